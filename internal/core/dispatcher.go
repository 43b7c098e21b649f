package core

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

// IntentContext is what a handler sees: the sender, a copy of its player,
// the store to mutate and a way to answer the sender only.
type IntentContext struct {
	SID    SessionID
	Player domain.Player
	Store  *PlayerStore
	Reply  func(v any)
}

// Handler validates one client intent and applies it to the store.
// Returned errors never reach other sessions.
type Handler func(c *IntentContext, msg protocol.Inbound) error

// Dispatcher routes inbound frames to the handler registered for their kind
// and contains every failure at this boundary.
type Dispatcher struct {
	handlers map[protocol.Kind]Handler
	store    *PlayerStore
	reply    func(sid SessionID, v any)
	logger   zerolog.Logger
}

func NewDispatcher(store *PlayerStore, reply func(SessionID, any), logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[protocol.Kind]Handler),
		store:    store,
		reply:    reply,
		logger:   logger,
	}
}

func (d *Dispatcher) Register(kind protocol.Kind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch runs the handler for msg on behalf of sid. Unknown kinds and
// senders without a player are ignored. Client errors are answered with an
// error frame; anything else, panics included, is only logged.
func (d *Dispatcher) Dispatch(sid SessionID, msg protocol.Inbound) {
	h, ok := d.handlers[msg.Kind]
	if !ok {
		d.logger.Debug().Str("sid", string(sid)).Str("kind", string(msg.Kind)).Msg("unknown message kind")
		return
	}
	player, ok := d.store.Get(sid)
	if !ok {
		return
	}
	c := &IntentContext{
		SID:    sid,
		Player: player,
		Store:  d.store,
		Reply:  func(v any) { d.reply(sid, v) },
	}

	err := d.invoke(h, c, msg)
	if err == nil {
		return
	}
	if wire, ok := protocol.ErrorFor(err); ok {
		d.logger.Info().Err(err).Str("sid", string(sid)).Str("kind", string(msg.Kind)).Msg("intent rejected")
		c.Reply(wire)
		return
	}
	if errors.Is(err, domain.ErrMalformedPayload) {
		d.logger.Debug().Err(err).Str("sid", string(sid)).Str("kind", string(msg.Kind)).Msg("malformed payload dropped")
		return
	}
	d.logger.Error().Err(err).Str("sid", string(sid)).Str("kind", string(msg.Kind)).Msg("handler failed")
}

func (d *Dispatcher) invoke(h Handler, c *IntentContext, msg protocol.Inbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(c, msg)
}
