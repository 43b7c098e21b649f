package protocol

import "github.com/invopop/jsonschema"

// Catalog lists every frame body by its type name. It exists to be reflected
// into a JSON schema for client authors.
type Catalog struct {
	Move         MovePayload     `json:"move"`
	SetNickname  NicknamePayload `json:"setNickname"`
	UpdateName   NicknamePayload `json:"updateName"`
	PeerID       PeerIDPayload   `json:"peerId"`
	Mute         MutePayload     `json:"mute"`
	Speaking     SpeakingPayload `json:"speaking"`
	UpdateAvatar AvatarPayload   `json:"updateAvatar"`

	State State `json:"state"`
	Patch Patch `json:"patch"`
	Error Error `json:"error"`
	Pong  Pong  `json:"pong"`
}

func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(Catalog))
	schema.Title = "Vibe Town room protocol"
	schema.Description = "Frames are flat objects discriminated by their type field"
	return schema
}
