package core

import "errors"

// Frame is an encoded server message.
type Frame []byte

var ErrBackpressure = errors.New("backpressure")

// SignalConnection abstracts the outbound side of a session transport.
// Owned by the adapter; TrySend must never block.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
