package core

import (
	"fmt"
	"math"

	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

// RegisterIntents installs the handler for every client message kind.
func RegisterIntents(d *Dispatcher) {
	d.Register(protocol.KindMove, handleMove)
	d.Register(protocol.KindSetNickname, handleSetNickname)
	d.Register(protocol.KindUpdateName, handleSetNickname)
	d.Register(protocol.KindPeerID, handlePeerID)
	d.Register(protocol.KindMute, handleMute)
	d.Register(protocol.KindSpeak, handleSpeaking)
	d.Register(protocol.KindSpeaking, handleSpeaking)
	d.Register(protocol.KindUpdateAvatar, handleUpdateAvatar)
	d.Register(protocol.KindPing, handlePing)
}

// handleMove overwrites the position. No reachability or speed checks.
func handleMove(c *IntentContext, msg protocol.Inbound) error {
	var p protocol.MovePayload
	if err := msg.Payload(&p); err != nil {
		return err
	}
	if p.X == nil || p.Y == nil || !finite(*p.X) || !finite(*p.Y) {
		return fmt.Errorf("%w: move needs numeric x and y", domain.ErrMalformedPayload)
	}
	c.Store.SetPosition(c.SID, domain.Position{X: *p.X, Y: *p.Y})
	return nil
}

// handleSetNickname renames the sender when the trimmed name has a valid
// length and no other player holds it. On collision the suggestion is the
// name followed by the number of colliding players; it is not applied.
func handleSetNickname(c *IntentContext, msg protocol.Inbound) error {
	var p protocol.NicknamePayload
	if err := msg.Payload(&p); err != nil {
		return err
	}
	raw, ok := p.Value()
	if !ok {
		return fmt.Errorf("%w: no nickname", domain.ErrMalformedPayload)
	}
	name, err := domain.NormalizeNickname(raw)
	if err != nil {
		return err
	}
	if n := c.Store.NicknameCollisions(c.SID, name); n > 0 {
		return domain.NewNameTakenError(name, n)
	}
	c.Store.SetNickname(c.SID, name)
	return nil
}

func handlePeerID(c *IntentContext, msg protocol.Inbound) error {
	var p protocol.PeerIDPayload
	if err := msg.Payload(&p); err != nil {
		return err
	}
	if p.PeerID == "" {
		return nil
	}
	c.Store.SetPeerID(c.SID, p.PeerID)
	return nil
}

func handleMute(c *IntentContext, msg protocol.Inbound) error {
	var p protocol.MutePayload
	if err := msg.Payload(&p); err != nil {
		return err
	}
	if p.Muted == nil {
		return fmt.Errorf("%w: no muted flag", domain.ErrMalformedPayload)
	}
	c.Store.SetMuted(c.SID, *p.Muted)
	return nil
}

func handleSpeaking(c *IntentContext, msg protocol.Inbound) error {
	var p protocol.SpeakingPayload
	if err := msg.Payload(&p); err != nil {
		return err
	}
	if p.IsSpeaking == nil {
		return fmt.Errorf("%w: no isSpeaking flag", domain.ErrMalformedPayload)
	}
	c.Store.SetSpeaking(c.SID, *p.IsSpeaking)
	return nil
}

func handleUpdateAvatar(c *IntentContext, msg protocol.Inbound) error {
	var p protocol.AvatarPayload
	if err := msg.Payload(&p); err != nil {
		return err
	}
	avatar := domain.AvatarHint(p.Avatar)
	if avatar == "" {
		return nil
	}
	c.Store.SetAvatar(c.SID, avatar)
	return nil
}

func handlePing(c *IntentContext, _ protocol.Inbound) error {
	c.Reply(protocol.NewPong())
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
