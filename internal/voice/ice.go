// Package voice describes the peer-to-peer voice side channel. The server
// relays no media; it only hands clients the ICE servers to negotiate with.
package voice

import (
	"fmt"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VibeTown/internal/config"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

// ClientConfig is what GET /api/voice/config returns.
type ClientConfig struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// ICEServers validates every configured URL and converts the list to pion's
// type. An empty list falls back to DefaultSTUN.
func ICEServers(cfg config.VoiceConfig) ([]webrtc.ICEServer, error) {
	if len(cfg.ICEServers) == 0 {
		return []webrtc.ICEServer{{URLs: []string{DefaultSTUN}}}, nil
	}
	out := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for i, s := range cfg.ICEServers {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("voice.ice_servers[%d]: no urls", i)
		}
		server := webrtc.ICEServer{URLs: s.URLs}
		for _, raw := range s.URLs {
			uri, err := stun.ParseURI(raw)
			if err != nil {
				return nil, fmt.Errorf("voice.ice_servers[%d]: %q: %w", i, raw, err)
			}
			if uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS {
				if s.Username == "" || s.Credential == "" {
					return nil, fmt.Errorf("voice.ice_servers[%d]: %q needs username and credential", i, raw)
				}
			}
		}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out, nil
}

func NewClientConfig(cfg config.VoiceConfig) (ClientConfig, error) {
	servers, err := ICEServers(cfg)
	if err != nil {
		return ClientConfig{}, err
	}
	return ClientConfig{ICEServers: servers}, nil
}
