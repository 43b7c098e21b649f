package core

import "github.com/dkeye/VibeTown/internal/protocol"

// SessionID is assigned by the transport and unique while the session lives.
type SessionID string

// Session is what a room stores and fans out to. The room holds it as a
// lookup key; the transport keeps ownership of the connection.
type Session struct {
	ID    SessionID
	Conn  SignalConnection
	Codec protocol.Codec
}
