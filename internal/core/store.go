package core

import (
	"slices"

	"github.com/samber/lo"

	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

// Field marks which parts of a player changed since the last flush.
type Field uint8

const (
	FieldPosition Field = 1 << iota
	FieldNickname
	FieldAvatar
	FieldPeerID
	FieldMuted
	FieldSpeaking
)

type change struct {
	added  bool
	fields Field
}

// PlayerStore is the single authoritative player map of a room. Every
// mutation goes through a setter so the store can describe what changed
// since the previous Flush as add, remove and update ops.
//
// Not safe for concurrent use; the owning room serializes access.
type PlayerStore struct {
	players map[SessionID]*domain.Player
	changes map[SessionID]*change
	removed map[SessionID]struct{}
	version uint64
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{
		players: make(map[SessionID]*domain.Player),
		changes: make(map[SessionID]*change),
		removed: make(map[SessionID]struct{}),
	}
}

func (s *PlayerStore) Len() int { return len(s.players) }

func (s *PlayerStore) Version() uint64 { return s.version }

func (s *PlayerStore) Has(sid SessionID) bool {
	_, ok := s.players[sid]
	return ok
}

// Get returns a copy of the player for sid.
func (s *PlayerStore) Get(sid SessionID) (domain.Player, bool) {
	p, ok := s.players[sid]
	if !ok {
		return domain.Player{}, false
	}
	return *p, true
}

func (s *PlayerStore) Add(sid SessionID, p *domain.Player) {
	s.players[sid] = p
	s.changes[sid] = &change{added: true}
}

// Remove deletes sid. Removing an unknown id is a no-op.
func (s *PlayerStore) Remove(sid SessionID) bool {
	if _, ok := s.players[sid]; !ok {
		return false
	}
	delete(s.players, sid)
	c, pending := s.changes[sid]
	delete(s.changes, sid)
	if pending && c.added {
		// Never announced, so nothing to retract.
		return true
	}
	s.removed[sid] = struct{}{}
	return true
}

func (s *PlayerStore) SetPosition(sid SessionID, pos domain.Position) bool {
	return s.mutate(sid, FieldPosition, func(p *domain.Player) bool {
		if p.Position == pos {
			return false
		}
		p.Position = pos
		return true
	})
}

func (s *PlayerStore) SetNickname(sid SessionID, name string) bool {
	return s.mutate(sid, FieldNickname, func(p *domain.Player) bool {
		if p.Nickname == name {
			return false
		}
		p.Nickname = name
		return true
	})
}

func (s *PlayerStore) SetAvatar(sid SessionID, avatar string) bool {
	return s.mutate(sid, FieldAvatar, func(p *domain.Player) bool {
		if p.Avatar == avatar {
			return false
		}
		p.Avatar = avatar
		return true
	})
}

func (s *PlayerStore) SetPeerID(sid SessionID, peerID string) bool {
	return s.mutate(sid, FieldPeerID, func(p *domain.Player) bool {
		if p.PeerID == peerID {
			return false
		}
		p.PeerID = peerID
		return true
	})
}

func (s *PlayerStore) SetMuted(sid SessionID, muted bool) bool {
	return s.mutate(sid, FieldMuted, func(p *domain.Player) bool {
		if p.Muted == muted {
			return false
		}
		p.Muted = muted
		return true
	})
}

func (s *PlayerStore) SetSpeaking(sid SessionID, speaking bool) bool {
	return s.mutate(sid, FieldSpeaking, func(p *domain.Player) bool {
		if p.Speaking == speaking {
			return false
		}
		p.Speaking = speaking
		return true
	})
}

// mutate applies fn to the player and marks f dirty when fn reports a change.
func (s *PlayerStore) mutate(sid SessionID, f Field, fn func(*domain.Player) bool) bool {
	p, ok := s.players[sid]
	if !ok {
		return false
	}
	if !fn(p) {
		return false
	}
	c, ok := s.changes[sid]
	if !ok {
		c = &change{}
		s.changes[sid] = c
	}
	c.fields |= f
	return true
}

// NicknameCollisions counts players other than self that hold name.
func (s *PlayerStore) NicknameCollisions(self SessionID, name string) int {
	return lo.CountBy(lo.Entries(s.players), func(e lo.Entry[SessionID, *domain.Player]) bool {
		return e.Key != self && e.Value.Nickname == name
	})
}

// Snapshot returns the replicated view of every player.
func (s *PlayerStore) Snapshot() map[string]protocol.PlayerState {
	out := make(map[string]protocol.PlayerState, len(s.players))
	for sid, p := range s.players {
		out[string(sid)] = protocol.PlayerStateOf(p)
	}
	return out
}

// Dirty reports whether anything changed since the last Flush.
func (s *PlayerStore) Dirty() bool {
	return len(s.changes) > 0 || len(s.removed) > 0
}

// Flush returns the ops describing every change since the previous call and
// bumps the version when there was any. Removes come first, then adds, then
// updates, each group sorted by id.
func (s *PlayerStore) Flush() []protocol.PatchOp {
	if !s.Dirty() {
		return nil
	}
	ops := make([]protocol.PatchOp, 0, len(s.changes)+len(s.removed))

	removed := lo.Keys(s.removed)
	slices.Sort(removed)
	for _, sid := range removed {
		ops = append(ops, protocol.PatchOp{Op: protocol.OpRemove, ID: string(sid)})
	}

	changed := lo.Keys(s.changes)
	slices.Sort(changed)
	var updates []protocol.PatchOp
	for _, sid := range changed {
		c := s.changes[sid]
		p := s.players[sid]
		if c.added {
			ps := protocol.PlayerStateOf(p)
			ops = append(ops, protocol.PatchOp{Op: protocol.OpAdd, ID: string(sid), Player: &ps})
			continue
		}
		updates = append(updates, protocol.PatchOp{Op: protocol.OpUpdate, ID: string(sid), Fields: changedFields(p, c.fields)})
	}
	ops = append(ops, updates...)

	clear(s.changes)
	clear(s.removed)
	s.version++
	return ops
}

// Reset drops every player and pending change.
func (s *PlayerStore) Reset() {
	clear(s.players)
	clear(s.changes)
	clear(s.removed)
}

func changedFields(p *domain.Player, f Field) map[string]any {
	out := make(map[string]any, 2)
	if f&FieldPosition != 0 {
		out[protocol.FieldX] = p.Position.X
		out[protocol.FieldY] = p.Position.Y
	}
	if f&FieldNickname != 0 {
		out[protocol.FieldNickname] = p.Nickname
	}
	if f&FieldAvatar != 0 {
		out[protocol.FieldAvatar] = p.Avatar
	}
	if f&FieldPeerID != 0 {
		out[protocol.FieldPeerID] = p.PeerID
	}
	if f&FieldMuted != 0 {
		out[protocol.FieldMuted] = p.Muted
	}
	if f&FieldSpeaking != 0 {
		out[protocol.FieldSpeaking] = p.Speaking
	}
	return out
}
