package core

import (
	"context"

	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	// MarkSlow sends the session a full snapshot on the next broadcast.
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a session whose outbound buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomName, sid SessionID) BackpressureAction
}

// JoinOptions are client hints used only as initial values.
type JoinOptions struct {
	Nickname string
	Avatar   string
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID SessionID `json:"id"`
	protocol.PlayerState
}

// RoomService is the API of one authoritative room.
type RoomService interface {
	Name() domain.RoomName
	Info() domain.RoomInfo
	MemberCount() int
	Members(ctx context.Context) ([]MemberDTO, error)

	Join(ctx context.Context, s Session, opts JoinOptions) error
	Leave(sid SessionID, consented bool)
	Deliver(ctx context.Context, sid SessionID, msg protocol.Inbound) error

	Dispose()
	Done() <-chan struct{}
}

// RoomManager maps room names to live rooms.
type RoomManager interface {
	JoinOrCreate(ctx context.Context, name domain.RoomName, s Session, opts JoinOptions) (RoomService, error)
	Get(name domain.RoomName) (RoomService, bool)
	List() []domain.RoomInfo
	StopRoom(name domain.RoomName) bool
}
