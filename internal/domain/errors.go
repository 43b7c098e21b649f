package domain

import (
	"errors"
	"strconv"
)

var (
	ErrRoomFull          = errors.New("room full")
	ErrRoomDisposed      = errors.New("room disposed")
	ErrAlreadyJoined     = errors.New("session already joined")
	ErrInvalidNameLength = errors.New("nickname must be between 3 and 16 characters")
	ErrNameTaken         = errors.New("nickname already taken")
	ErrMalformedPayload  = errors.New("malformed payload")
)

// NameTakenError is returned when a rename collides with another member.
// Suggestion is the name the client may resubmit; it is not re-checked.
type NameTakenError struct {
	Name       string
	Suggestion string
}

// NewNameTakenError suggests name followed by the number of collisions seen.
func NewNameTakenError(name string, collisions int) *NameTakenError {
	return &NameTakenError{Name: name, Suggestion: name + strconv.Itoa(collisions)}
}

func (e *NameTakenError) Error() string { return ErrNameTaken.Error() + ": " + e.Name }

func (e *NameTakenError) Unwrap() error { return ErrNameTaken }
