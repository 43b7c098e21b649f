package core

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

// Broadcaster turns store changes into frames for every member. Each session
// receives frames in the order the room produced them because all sends
// happen on the room loop and TrySend queues in order.
type Broadcaster struct {
	room     domain.RoomName
	registry *SessionRegistry
	store    *PlayerStore
	policy   Policy
	logger   zerolog.Logger

	resync map[SessionID]struct{}
	kicked []SessionID
}

func NewBroadcaster(room domain.RoomName, registry *SessionRegistry, store *PlayerStore, policy Policy, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		room:     room,
		registry: registry,
		store:    store,
		policy:   policy,
		logger:   logger,
		resync:   make(map[SessionID]struct{}),
	}
}

// SendSnapshot sends the full player map to s.
func (b *Broadcaster) SendSnapshot(s Session) {
	state := protocol.NewState(b.store.Version(), string(s.ID), b.store.Snapshot())
	frame, err := s.Codec.Marshal(state)
	if err != nil {
		b.logger.Error().Err(err).Str("sid", string(s.ID)).Msg("encode snapshot")
		return
	}
	b.send(s, frame)
}

// SendTo delivers v to one member only.
func (b *Broadcaster) SendTo(sid SessionID, v any) {
	s, ok := b.registry.Get(sid)
	if !ok {
		return
	}
	frame, err := s.Codec.Marshal(v)
	if err != nil {
		b.logger.Error().Err(err).Str("sid", string(sid)).Msg("encode reply")
		return
	}
	b.send(s, frame)
}

// Flush pushes the changes accumulated in the store to every member.
// Sessions marked slow get a fresh snapshot instead of the patch.
func (b *Broadcaster) Flush() {
	ops := b.store.Flush()
	frames := make(map[string]Frame, 2)
	b.registry.Each(func(s Session) {
		if _, ok := b.resync[s.ID]; ok {
			delete(b.resync, s.ID)
			b.SendSnapshot(s)
			return
		}
		if len(ops) == 0 {
			return
		}
		frame, ok := frames[s.Codec.Name()]
		if !ok {
			data, err := s.Codec.Marshal(protocol.NewPatch(b.store.Version(), ops))
			if err != nil {
				b.logger.Error().Err(err).Str("codec", s.Codec.Name()).Msg("encode patch")
				return
			}
			frame = data
			frames[s.Codec.Name()] = frame
		}
		b.send(s, frame)
	})
}

// TakeKicked returns the sessions the policy asked to drop since the last call.
func (b *Broadcaster) TakeKicked() []SessionID {
	out := b.kicked
	b.kicked = nil
	return out
}

// Forget drops per-session bookkeeping for a departed member.
func (b *Broadcaster) Forget(sid SessionID) {
	delete(b.resync, sid)
}

func (b *Broadcaster) send(s Session, frame Frame) {
	err := s.Conn.TrySend(frame)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrBackpressure) {
		b.logger.Warn().Err(err).Str("sid", string(s.ID)).Msg("send failed, dropping member")
		b.kicked = append(b.kicked, s.ID)
		return
	}
	action := NoAction
	if b.policy != nil {
		action = b.policy.OnBackPressure(b.room, s.ID)
	}
	b.logger.Warn().Str("sid", string(s.ID)).Int("action", int(action)).Msg("backpressure")
	switch action {
	case MarkSlow, DropFrame:
		// The store already forgot what the lost frame carried; only a
		// snapshot brings the session back in line.
		b.resync[s.ID] = struct{}{}
	case KickMember:
		b.kicked = append(b.kicked, s.ID)
	case NoAction:
	}
}
