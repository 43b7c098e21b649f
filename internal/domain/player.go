// Package domain contains entities without transport, just data and rules.
package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	MinNicknameLen = 3
	MaxNicknameLen = 16
	MaxAvatarLen   = 32

	DefaultAvatar = "default"
)

// Position is a point in world coordinates. The server does not clamp it.
type Position struct {
	X float64
	Y float64
}

// Player is the authoritative record for one room member.
type Player struct {
	Position Position
	Nickname string
	Avatar   string
	PeerID   string
	Muted    bool
	Speaking bool
}

// NewPlayer builds a player at pos. Empty hints fall back to defaults.
func NewPlayer(pos Position, nickname, avatar string) *Player {
	if avatar == "" {
		avatar = DefaultAvatar
	}
	return &Player{Position: pos, Nickname: nickname, Avatar: avatar}
}

// NormalizeNickname trims the requested name and checks its length in runes.
func NormalizeNickname(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < MinNicknameLen || n > MaxNicknameLen {
		return "", ErrInvalidNameLength
	}
	return name, nil
}

// NicknameHint cleans a join-time name hint. Hints are not held to the
// rename rules, only trimmed and cut to MaxNicknameLen runes.
func NicknameHint(raw string) string {
	return truncateRunes(strings.TrimSpace(raw), MaxNicknameLen)
}

// AvatarHint cleans an avatar key from a join hint or an updateAvatar message.
func AvatarHint(raw string) string {
	return truncateRunes(strings.TrimSpace(raw), MaxAvatarLen)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
