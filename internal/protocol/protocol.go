// Package protocol defines the frames exchanged between clients and a room.
//
// Every frame is a flat object with a "type" discriminator. Client frames
// carry their payload fields next to "type"; server frames are the structs
// in server.go.
package protocol

// Kind names a client message.
type Kind string

const (
	KindMove         Kind = "move"
	KindSetNickname  Kind = "setNickname"
	KindUpdateName   Kind = "updateName"
	KindPeerID       Kind = "peerId"
	KindMute         Kind = "mute"
	KindSpeak        Kind = "speak"
	KindSpeaking     Kind = "speaking"
	KindUpdateAvatar Kind = "updateAvatar"
	KindPing         Kind = "ping"
)

// Server frame types.
const (
	TypeState = "state"
	TypePatch = "patch"
	TypeError = "error"
	TypePong  = "pong"
)

// Wire names of replicated player fields, used as keys of update ops.
const (
	FieldX        = "x"
	FieldY        = "y"
	FieldNickname = "nickname"
	FieldAvatar   = "avatar"
	FieldPeerID   = "peerId"
	FieldMuted    = "muted"
	FieldSpeaking = "isSpeaking"
)
