package protocol

import (
	"errors"
	"fmt"

	"github.com/dkeye/VibeTown/internal/domain"
)

var ErrMissingType = errors.New("frame has no type")

// Inbound is a client frame whose kind is known but whose payload is decoded
// lazily by the handler registered for that kind.
type Inbound struct {
	Kind  Kind
	raw   []byte
	codec Codec
}

// Decode reads the type discriminator of a client frame.
func Decode(c Codec, data []byte) (Inbound, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := c.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return Inbound{}, ErrMissingType
	}
	return Inbound{Kind: env.Type, raw: data, codec: c}, nil
}

// NewInbound builds a frame of the given kind from a payload value.
func NewInbound(c Codec, kind Kind, payload map[string]any) (Inbound, error) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["type"] = kind
	data, err := c.Marshal(body)
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{Kind: kind, raw: data, codec: c}, nil
}

// Payload decodes the frame body into v. Type mismatches are reported as
// domain.ErrMalformedPayload.
func (m Inbound) Payload(v any) error {
	if m.codec == nil {
		return fmt.Errorf("%w: %s: empty frame", domain.ErrMalformedPayload, m.Kind)
	}
	if err := m.codec.Unmarshal(m.raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrMalformedPayload, m.Kind, err)
	}
	return nil
}
