package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	errSessionClosed = errors.New("session closed")
	errMissedPong    = errors.New("no pong since last ping")
)

// Conn is the subset of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// tier says what happens when a recipient's send buffer is full.
type tier int

const (
	// lossy deliveries (cursor, preview) are dropped.
	lossy tier = iota
	// reliable deliveries (shapes) evict the slow session instead.
	reliable
)

// Session is one authenticated websocket connection. Sessions are never merged;
// a user with several tabs has several sessions.
type Session struct {
	ID     string
	UserID string

	hub  *Hub
	conn Conn
	send chan []byte

	mu         sync.RWMutex
	sendClosed bool

	closeOnce sync.Once
	connDone  chan struct{}

	// alive is set by pongs and cleared by each heartbeat ping.
	alive atomic.Bool
}

func NewSession(hub *Hub, conn Conn, userID string) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.cfg.SendBuffer),
		connDone: make(chan struct{}),
	}
	s.alive.Store(true)
	return s
}

// sendInit queues the session-init frame. It must be the first frame queued.
func (s *Session) sendInit() error {
	data, err := json.Marshal(sessionInitFrame{Type: MsgSessionInit, SessionID: s.ID})
	if err != nil {
		return err
	}
	if ok, _ := s.trySend(data); !ok {
		return errSessionClosed
	}
	return nil
}

// trySend queues msg without blocking. full reports a full buffer.
func (s *Session) trySend(msg []byte) (ok, full bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sendClosed {
		return false, false
	}
	select {
	case s.send <- msg:
		return true, false
	default:
		return false, true
	}
}

func (s *Session) deliver(msg []byte, t tier) bool {
	ok, full := s.trySend(msg)
	if ok {
		return true
	}
	if !full {
		return false
	}

	if t == lossy {
		s.hub.metrics.DroppedDeliveries.Inc()
		return false
	}

	s.hub.metrics.SlowEvictions.Inc()
	s.hub.log.Warn("session send buffer full, evicting", "session", s.ID, "user", s.UserID)
	s.hub.Unregister(s)
	return false
}

// closeSend stops further deliveries and lets the write pump finish.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sendClosed {
		s.sendClosed = true
		close(s.send)
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.connDone)
		_ = s.conn.Close()
	})
}

func (s *Session) connClosed() bool {
	select {
	case <-s.connDone:
		return true
	default:
		return false
	}
}

// ping writes a transport-level ping. A closed connection, or a peer that
// has not answered the previous ping, counts as dead.
func (s *Session) ping(deadline time.Time) error {
	if s.connClosed() {
		return errSessionClosed
	}
	if !s.alive.Swap(false) {
		return errMissedPong
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// prepareRead sets the read limit and pong handling. It runs before the pumps
// start so a heartbeat can never race the pong handler's installation.
func (s *Session) prepareRead() {
	cfg := s.hub.cfg
	s.conn.SetReadLimit(int64(cfg.MaxMessageBytes))
	pongWait := cfg.PongWait()
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.alive.Store(true)
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// ReadPump reads frames in arrival order and routes each before reading the next.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.Unregister(s)
		s.close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.log.Debug("session read error", "session", s.ID, "error", err)
			}
			return
		}
		s.hub.metrics.MessagesIn.Inc()

		_ = s.hub.router.Route(context.Background(), s, data)
	}
}

// WritePump writes one frame per queued message until the hub closes the
// send channel or a write fails.
func (s *Session) WritePump() {
	defer s.close()

	writeWait := s.hub.cfg.WriteWait()
	for msg := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.hub.log.Debug("session write error", "session", s.ID, "error", err)
			s.hub.Unregister(s)
			return
		}
		s.hub.metrics.MessagesOut.Inc()
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
