package socket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"whiteboard/internal/config"
)

// Hub owns the session registry. Registration, removal and heartbeat all run
// on the Run goroutine; fan-out reads the registry concurrently.
type Hub struct {
	cfg     config.Config
	log     *slog.Logger
	metrics *Metrics

	registry *Registry
	router   *Router
	members  MembershipStore

	register   chan *Session
	unregister chan *Session
	done       chan struct{}

	// regMu orders Register against shutdown's drain of the register channel.
	regMu   sync.Mutex
	stopped bool

	releases sync.WaitGroup
}

func NewHub(cfg config.Config, log *slog.Logger, metrics *Metrics, members MembershipStore, intents IntentWriter) *Hub {
	h := &Hub{
		cfg:        cfg,
		log:        log,
		metrics:    metrics,
		registry:   NewRegistry(),
		members:    members,
		register:   make(chan *Session, cfg.RegisterBufSize),
		unregister: make(chan *Session, cfg.UnregisterBufSize),
		done:       make(chan struct{}),
	}
	h.router = NewRouter(h.registry, members, intents, metrics, log)
	return h
}

func (h *Hub) Registry() *Registry { return h.registry }

// Run processes lifecycle events until ctx is cancelled, then closes every session.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case s := <-h.register:
			h.attach(s)

		case s := <-h.unregister:
			h.detach(s, true)

		case <-ticker.C:
			h.heartbeat()

		case <-ctx.Done():
			h.stop()
			return nil
		}
	}
}

// Register hands a new session to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(s *Session) bool {
	h.regMu.Lock()
	defer h.regMu.Unlock()
	if h.stopped {
		return false
	}
	select {
	case h.register <- s:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

func (h *Hub) attach(s *Session) {
	h.registry.Add(s)

	h.metrics.ConnectedSessions.Inc()
	h.metrics.Connections.Inc()
	h.log.Info("session opened", "session", s.ID, "user", s.UserID)

	s.prepareRead()
	go s.WritePump()
	go s.ReadPump()
}

// detach removes the session and, when release is set, drops room memberships
// its user no longer holds through any other session. Repeated calls are no-ops.
func (h *Hub) detach(s *Session, release bool) bool {
	rm, ok := h.registry.Remove(s.ID)
	if !ok {
		return false
	}
	s.closeSend()

	h.metrics.ConnectedSessions.Dec()
	h.metrics.Disconnects.Inc()
	h.log.Info("session closed", "session", s.ID, "user", s.UserID, "lastForUser", rm.LastForUser, "released", rm.Release)

	if release && len(rm.Release) > 0 {
		h.releases.Add(1)
		go func() {
			defer h.releases.Done()
			h.release(s.UserID, rm.Release)
		}()
	}
	return true
}

func (h *Hub) release(userID string, rooms []string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.RedisOpTimeout())
	defer cancel()

	if err := h.members.ReleaseMemberships(ctx, userID, rooms); err != nil {
		h.metrics.StoreErrors.Inc()
		h.log.Error("failed to release room memberships", "user", userID, "rooms", rooms, "error", err)
	}
}

// heartbeat pings every session; any session that cannot be pinged, or that
// has not answered the previous ping, is cleaned up exactly like a close.
func (h *Hub) heartbeat() {
	deadline := time.Now().Add(h.cfg.WriteWait())
	for _, s := range h.registry.Snapshot() {
		if err := s.ping(deadline); err != nil {
			h.metrics.HeartbeatEvictions.Inc()
			h.log.Info("heartbeat failed, evicting session", "session", s.ID, "user", s.UserID, "error", err)
			h.detach(s, true)
			s.close()
		}
	}
}

// stop ends the hub. Closing done first frees any Register blocked on a full
// register channel before shutdown takes regMu.
func (h *Hub) stop() {
	close(h.done)
	h.shutdown()
}

// shutdown closes every session, including ones queued for registration but
// never attached, and keeps room memberships in the store so they survive a
// broker restart.
func (h *Hub) shutdown() {
	h.regMu.Lock()
	h.stopped = true
	h.regMu.Unlock()

drain:
	for {
		select {
		case s := <-h.register:
			s.closeSend()
			s.close()
		default:
			break drain
		}
	}

	for _, s := range h.registry.Snapshot() {
		h.detach(s, false)
		s.close()
	}
	h.releases.Wait()
}
