package signal

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VibeTown/internal/core"
	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

// rejectJoin tells the client why it was not admitted and closes the socket.
// No pump runs yet, so writing on the socket directly is safe.
func (ctl *SignalWSController) rejectJoin(sid core.SessionID, c *WsSignalConn, codec protocol.Codec, err error) {
	code, reason := websocket.CloseInternalServerErr, "join failed"
	if errors.Is(err, domain.ErrRoomFull) {
		code, reason = websocket.CloseTryAgainLater, "room full"
	}
	log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join rejected")

	if wire, ok := protocol.ErrorFor(err); ok {
		if data, mErr := codec.Marshal(wire); mErr == nil {
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(c.msgType, data)
		}
	}
	closeGracefully(c.conn, code, reason)
	c.Close()
}

func closeGracefully(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// isConsentedClose reports whether the client closed the socket on purpose.
func isConsentedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
