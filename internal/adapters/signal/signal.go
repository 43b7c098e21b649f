package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VibeTown/internal/config"
	"github.com/dkeye/VibeTown/internal/core"
	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
)

var ErrConnClosed = errors.New("connection closed")

type Options struct {
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
}

func OptionsFromConfig(cfg config.TransportConfig) Options {
	return Options{
		SendBuffer: cfg.SendBuffer,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
	}
}

type SignalWSController struct {
	Rooms   core.RoomManager
	Limiter *JoinLimiter
	opts    Options
}

func NewSignalWSController(rooms core.RoomManager, limiter *JoinLimiter, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 25 * time.Second
	}
	if opts.PongWait <= opts.PingPeriod {
		opts.PongWait = opts.PingPeriod * 12 / 5
	}
	return &SignalWSController{Rooms: rooms, Limiter: limiter, opts: opts}
}

// WsSignalConn is the outbound half of a websocket session. Frames queue on
// send and are written by writePump only.
type WsSignalConn struct {
	conn    *websocket.Conn
	send    chan core.Frame
	msgType int

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, codec protocol.Codec, buffer int) *WsSignalConn {
	msgType := websocket.TextMessage
	if codec.Binary() {
		msgType = websocket.BinaryMessage
	}
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer), msgType: msgType}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleRoom upgrades the request and joins the new session to room. hint
// carries the client's requested name and avatar.
func (ctl *SignalWSController) HandleRoom(ctx context.Context, c *gin.Context, room domain.RoomName, hint core.JoinOptions) {
	token := c.GetString("client_token")
	if ctl.Limiter != nil && !ctl.Limiter.Allow(token) {
		log.Warn().Str("module", "signal").Str("client", token).Msg("join rate limited")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many joins"})
		return
	}
	codec, err := protocol.CodecByName(c.Query("codec"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	sid := core.SessionID(uuid.NewString())
	conn := newWsSignalConn(ws, codec, ctl.opts.SendBuffer)
	sess := core.Session{ID: sid, Conn: conn, Codec: codec}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(room)).Str("codec", codec.Name()).Msg("new WS connection")

	joined, err := ctl.Rooms.JoinOrCreate(ctx, room, sess, hint)
	if err != nil {
		ctl.rejectJoin(sid, conn, codec, err)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, cancel, sid, joined, conn, codec)
}
