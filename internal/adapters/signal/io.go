package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VibeTown/internal/core"
	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			closeGracefully(c.conn, websocket.CloseGoingAway, "server shutting down")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(c.msgType, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump feeds client frames to the room until the socket fails, then
// removes the session from it.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, room core.RoomService, c *WsSignalConn, codec protocol.Codec) {
	consented := false
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Bool("consented", consented).Msg("readPump closing")
		cancel()
		room.Leave(sid, consented)
		c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			consented = isConsentedClose(err)
			if !consented {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		msg, err := protocol.Decode(codec, data)
		if err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad frame")
			continue
		}
		if err := room.Deliver(ctx, sid, msg); err != nil {
			if !errors.Is(err, domain.ErrRoomDisposed) && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("deliver")
			}
			return
		}
	}
}
