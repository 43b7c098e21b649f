package core

import (
	"slices"

	"github.com/samber/lo"
)

// SessionRegistry records which sessions are members of one room.
// Its key set always equals the PlayerStore key set.
type SessionRegistry struct {
	sessions map[SessionID]Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[SessionID]Session)}
}

func (r *SessionRegistry) Add(s Session) {
	r.sessions[s.ID] = s
}

func (r *SessionRegistry) Remove(sid SessionID) (Session, bool) {
	s, ok := r.sessions[sid]
	if ok {
		delete(r.sessions, sid)
	}
	return s, ok
}

func (r *SessionRegistry) Get(sid SessionID) (Session, bool) {
	s, ok := r.sessions[sid]
	return s, ok
}

func (r *SessionRegistry) Has(sid SessionID) bool {
	_, ok := r.sessions[sid]
	return ok
}

func (r *SessionRegistry) Len() int { return len(r.sessions) }

// IDs returns member ids in sorted order.
func (r *SessionRegistry) IDs() []SessionID {
	ids := lo.Keys(r.sessions)
	slices.Sort(ids)
	return ids
}

// Each visits members in sorted id order.
func (r *SessionRegistry) Each(fn func(Session)) {
	for _, sid := range r.IDs() {
		fn(r.sessions[sid])
	}
}

func (r *SessionRegistry) Clear() {
	clear(r.sessions)
}
