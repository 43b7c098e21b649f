package protocol

import (
	"errors"

	"github.com/dkeye/VibeTown/internal/domain"
)

type ErrorCode string

const (
	CodeInvalidNicknameLength ErrorCode = "INVALID_NICKNAME_LENGTH"
	CodeNicknameTaken         ErrorCode = "NICKNAME_TAKEN"
	CodeRoomFull              ErrorCode = "ROOM_FULL"
)

// Error is sent only to the session whose request was rejected.
type Error struct {
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Code       ErrorCode `json:"code"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// ErrorFor maps client-facing domain errors to a wire error.
// It reports false for errors that are not meant for the client.
func ErrorFor(err error) (Error, bool) {
	var taken *domain.NameTakenError
	switch {
	case errors.As(err, &taken):
		return Error{Type: TypeError, Message: domain.ErrNameTaken.Error(), Code: CodeNicknameTaken, Suggestion: taken.Suggestion}, true
	case errors.Is(err, domain.ErrInvalidNameLength):
		return Error{Type: TypeError, Message: domain.ErrInvalidNameLength.Error(), Code: CodeInvalidNicknameLength}, true
	case errors.Is(err, domain.ErrRoomFull):
		return Error{Type: TypeError, Message: domain.ErrRoomFull.Error(), Code: CodeRoomFull}, true
	}
	return Error{}, false
}
