package websocket

import "sync"

// SessionInfo is the in-memory record for one live connection.
type SessionInfo struct {
	SID         string
	UserID      int64
	Username    string
	DisplayName string
	RoomID      string
}

// SessionRegistry maps session ids to session records. Only the connect and
// disconnect paths mutate it; everything else reads.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*SessionInfo
	order    []string // sids in connect order, for stable dedup
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*SessionInfo)}
}

// Set stores or updates a session record.
func (r *SessionRegistry) Set(s SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.SID]; !ok {
		r.order = append(r.order, s.SID)
	}
	r.sessions[s.SID] = &s
}

// Get returns a copy of the session record, or false if unknown.
func (r *SessionRegistry) Get(sid string) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	if !ok {
		return SessionInfo{}, false
	}
	return *s, true
}

// Delete removes a session record.
func (r *SessionRegistry) Delete(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return
	}
	delete(r.sessions, sid)
	for i, id := range r.order {
		if id == sid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// InRoom returns the sessions bound to the room, deduplicated by user id. A
// user reconnecting may transiently hold two sessions; the one that connected
// first wins.
func (r *SessionRegistry) InRoom(roomID string) []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[int64]bool)
	var out []SessionInfo
	for _, sid := range r.order {
		s := r.sessions[sid]
		if s.RoomID != roomID || seen[s.UserID] {
			continue
		}
		seen[s.UserID] = true
		out = append(out, *s)
	}
	return out
}
