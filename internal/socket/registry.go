package socket

import "sync"

// Registry indexes live sessions by ID and by user, and remembers which rooms
// each session joined so membership can be released when it goes away.
//
// Invariant: a user key in byUser exists iff it maps to at least one session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]*Session
	rooms    map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]*Session),
		rooms:    make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
	set, ok := r.byUser[s.UserID]
	if !ok {
		set = make(map[string]*Session)
		r.byUser[s.UserID] = set
	}
	set[s.ID] = s
}

// Removal describes what disappeared with a session.
type Removal struct {
	Session *Session
	// LastForUser is set when the user has no sessions left.
	LastForUser bool
	// Release lists rooms the session joined that no other session of the
	// same user still holds; the user's membership in them should be dropped.
	Release []string
}

// Remove drops the session and its room bookkeeping. ok is false when the
// session was not registered (already removed).
func (r *Registry) Remove(sessionID string) (Removal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Removal{}, false
	}
	delete(r.sessions, sessionID)

	rm := Removal{Session: s}

	set := r.byUser[s.UserID]
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.byUser, s.UserID)
		rm.LastForUser = true
	}

	for roomID := range r.rooms[sessionID] {
		if !r.userHoldsRoomLocked(s.UserID, roomID) {
			rm.Release = append(rm.Release, roomID)
		}
	}
	delete(r.rooms, sessionID)

	return rm, true
}

func (r *Registry) userHoldsRoomLocked(userID, roomID string) bool {
	for sid := range r.byUser[userID] {
		if _, ok := r.rooms[sid][roomID]; ok {
			return true
		}
	}
	return false
}

// TrackRoom records that the session joined roomID. It reports false for an
// unknown session.
func (r *Registry) TrackRoom(sessionID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	rooms, ok := r.rooms[sessionID]
	if !ok {
		rooms = make(map[string]struct{})
		r.rooms[sessionID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

func (r *Registry) UntrackRoom(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.rooms[sessionID]
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(r.rooms, sessionID)
	}
}

func (r *Registry) RoomsOf(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms[sessionID]))
	for roomID := range r.rooms[sessionID] {
		out = append(out, roomID)
	}
	return out
}

func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// SessionsOf returns a snapshot of the user's live sessions.
func (r *Registry) SessionsOf(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
