// Package signal is the WebSocket protocol adapter: it decodes inbound
// frames, dispatches them by type, and drives the room's broadcast fan-out.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Atelier/internal/app"
	"github.com/dkeye/Atelier/internal/core"
	"github.com/dkeye/Atelier/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	writeWait       = 5 * time.Second
	sendBuffer      = 64
	cursorRateLimit = 60 // cursor-update broadcasts per participant per second
)

type RoomWSController struct {
	Rooms      core.RoomFactory
	Relay      *app.Relay
	ReadLimit  int64
	PingPeriod time.Duration

	limiter *RoomRateLimiter
}

func NewRoomWSController(rooms core.RoomFactory, relay *app.Relay, readLimit int64, pingPeriod time.Duration) *RoomWSController {
	return &RoomWSController{
		Rooms:      rooms,
		Relay:      relay,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
		limiter:    NewRoomRateLimiter(cursorRateLimit, time.Second),
	}
}

// WsSignalConn adapts a gorilla connection to core.SignalConnection with a
// buffered outbound channel. A full buffer fails the send instead of
// blocking the broadcaster.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
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

// HandleRoom upgrades the connection and attaches it to the room named by the
// id query parameter. The room instance is created (and its snapshot loaded)
// before the first frame is read.
func (ctl *RoomWSController) HandleRoom(ctx context.Context, c *gin.Context) {
	key := c.Query("id")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no room id provided"})
		return
	}

	room := ctl.Rooms.GetOrCreate(domain.RoomKey(key))

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("room", key).Str("sid", c.GetString("client_token")).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, sendBuffer),
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	room.Register(conn)

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, conn)
	go ctl.readPump(connCtx, cancel, room, conn)
}
