package protocol

// MovePayload is the body of a move message. Both coordinates are required.
type MovePayload struct {
	X *float64 `json:"x" jsonschema:"required"`
	Y *float64 `json:"y" jsonschema:"required"`
}

// NicknamePayload serves setNickname ({nickname}) and updateName ({name}).
type NicknamePayload struct {
	Nickname *string `json:"nickname,omitempty"`
	Name     *string `json:"name,omitempty"`
}

// Value returns the requested name, preferring the nickname key.
func (p NicknamePayload) Value() (string, bool) {
	switch {
	case p.Nickname != nil:
		return *p.Nickname, true
	case p.Name != nil:
		return *p.Name, true
	}
	return "", false
}

type PeerIDPayload struct {
	PeerID string `json:"peerId"`
}

type MutePayload struct {
	Muted *bool `json:"muted" jsonschema:"required"`
}

type SpeakingPayload struct {
	IsSpeaking *bool `json:"isSpeaking" jsonschema:"required"`
}

type AvatarPayload struct {
	Avatar string `json:"avatar"`
}
