package protocol

import "github.com/dkeye/VibeTown/internal/domain"

// PlayerState is the replicated view of a domain.Player.
type PlayerState struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Nickname string  `json:"nickname"`
	Avatar   string  `json:"avatar"`
	PeerID   string  `json:"peerId"`
	Muted    bool    `json:"muted"`
	Speaking bool    `json:"isSpeaking"`
}

func PlayerStateOf(p *domain.Player) PlayerState {
	return PlayerState{
		X:        p.Position.X,
		Y:        p.Position.Y,
		Nickname: p.Nickname,
		Avatar:   p.Avatar,
		PeerID:   p.PeerID,
		Muted:    p.Muted,
		Speaking: p.Speaking,
	}
}

// State is a full snapshot, sent to a session when it joins or resyncs.
type State struct {
	Type      string                 `json:"type"`
	Version   uint64                 `json:"version"`
	SessionID string                 `json:"sessionId"`
	Players   map[string]PlayerState `json:"players"`
}

func NewState(version uint64, sessionID string, players map[string]PlayerState) State {
	return State{Type: TypeState, Version: version, SessionID: sessionID, Players: players}
}

type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpUpdate Op = "update"
)

// PatchOp describes one change to the player map.
type PatchOp struct {
	Op     Op             `json:"op"`
	ID     string         `json:"id"`
	Player *PlayerState   `json:"player,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Patch carries every change applied since the previous patch.
type Patch struct {
	Type    string    `json:"type"`
	Version uint64    `json:"version"`
	Ops     []PatchOp `json:"ops"`
}

func NewPatch(version uint64, ops []PatchOp) Patch {
	return Patch{Type: TypePatch, Version: version, Ops: ops}
}

type Pong struct {
	Type string `json:"type"`
}

func NewPong() Pong { return Pong{Type: TypePong} }
