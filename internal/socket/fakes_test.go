package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"whiteboard/internal/config"
	"whiteboard/internal/logging"
	"whiteboard/internal/redis"
)

// fakeConn answers every ping with a pong unless silent is set.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	onPong  func(string) error

	failPing  atomic.Bool
	silent    atomic.Bool
	pings     atomic.Int32
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("connection closed")
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) WriteControl(int, []byte, time.Time) error {
	if c.failPing.Load() {
		return errors.New("broken pipe")
	}
	c.pings.Add(1)

	c.mu.Lock()
	onPong := c.onPong
	c.mu.Unlock()
	if onPong != nil && !c.silent.Load() {
		return onPong("")
	}
	return nil
}

func (c *fakeConn) SetReadLimit(int64)              {}
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPong = h
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type released struct {
	user  string
	rooms []string
}

// memMembers is an in-memory MembershipStore.
type memMembers struct {
	mu       sync.Mutex
	rooms    map[string]map[string]struct{}
	releases []released
	err      error
}

func newMemMembers() *memMembers {
	return &memMembers{rooms: make(map[string]map[string]struct{})}
}

func (m *memMembers) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memMembers) AddMember(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	set, ok := m.rooms[roomID]
	if !ok {
		set = make(map[string]struct{})
		m.rooms[roomID] = set
	}
	set[userID] = struct{}{}
	return nil
}

func (m *memMembers) RemoveMember(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.rooms[roomID], userID)
	return nil
}

func (m *memMembers) Members(_ context.Context, roomID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]string, 0, len(m.rooms[roomID]))
	for userID := range m.rooms[roomID] {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memMembers) ReleaseMemberships(_ context.Context, userID string, roomIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, roomID := range roomIDs {
		delete(m.rooms[roomID], userID)
	}
	m.releases = append(m.releases, released{user: userID, rooms: append([]string(nil), roomIDs...)})
	return nil
}

func (m *memMembers) released() []released {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]released(nil), m.releases...)
}

type recordingWriter struct {
	mu      sync.Mutex
	intents []redis.Intent
}

func (w *recordingWriter) Enqueue(in redis.Intent) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.intents = append(w.intents, in)
	return true
}

func (w *recordingWriter) all() []redis.Intent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]redis.Intent(nil), w.intents...)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SendBuffer = 16
	cfg.HeartbeatIntervalMS = 10
	cfg.RedisOpTimeoutMS = 1000
	return cfg
}

func newTestHub(t *testing.T, cfg config.Config) (*Hub, *memMembers, *recordingWriter) {
	t.Helper()
	members := newMemMembers()
	writer := &recordingWriter{}
	return NewHub(cfg, logging.Discard(), NewMetrics(), members, writer), members, writer
}

// addSession registers a session without starting its pumps.
func addSession(h *Hub, userID string) *Session {
	s := NewSession(h, newFakeConn(), userID)
	h.registry.Add(s)
	return s
}

// drain returns every frame queued for s, decoded.
func drain(t *testing.T, s *Session) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return out
			}
			var m map[string]any
			require.NoError(t, json.Unmarshal(msg, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}
