package app

import (
	"fmt"
	"strings"

	"github.com/dkeye/VibeTown/internal/core"
	"github.com/dkeye/VibeTown/internal/domain"
)

// SimplePolicy drops members that cannot keep up.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomName, core.SessionID) core.BackpressureAction {
	return core.KickMember
}

// ResyncPolicy keeps slow members and sends them a full snapshot once their
// buffer drains.
type ResyncPolicy struct{}

func (ResyncPolicy) OnBackPressure(domain.RoomName, core.SessionID) core.BackpressureAction {
	return core.MarkSlow
}

// DropPolicy loses the frame and keeps the member as is.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomName, core.SessionID) core.BackpressureAction {
	return core.DropFrame
}

// PolicyFromString maps the transport.backpressure setting to a policy.
func PolicyFromString(name string) (core.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "kick":
		return SimplePolicy{}, nil
	case "resync":
		return ResyncPolicy{}, nil
	case "drop":
		return DropPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
