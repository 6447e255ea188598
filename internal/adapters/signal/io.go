package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Atelier/internal/core"
)

func (ctl *RoomWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *RoomWSController) readPump(ctx context.Context, cancel context.CancelFunc, room core.RoomService, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("room", string(room.Key())).Msg("readPump closing")
		cancel()
		ctl.disconnect(room, c)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("room", string(room.Key())).Msg("readPump read error")
				}
				return
			}
			ctl.handleFrame(ctx, room, c, data)
		}
	}
}

// handleFrame is the per-frame state machine: decode the type discriminator,
// dispatch, never crash the room. Malformed or unknown frames are logged and
// dropped.
func (ctl *RoomWSController) handleFrame(ctx context.Context, room core.RoomService, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(room.Key())).Msg("bad frame dropped")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(room, c, data)
	case "cursor-update":
		ctl.handleCursorUpdate(room, c, data)
	case "config":
		ctl.handleConfig(room, c, data)
	case "node-position":
		ctl.handleNodePosition(room, c, data)
	case "node-add":
		ctl.handleNodeAdd(room, c, data)
	case "node-remove":
		ctl.handleNodeRemove(room, c, data)
	case "message":
		ctl.handleMessage(ctx, room, c, data)
	case "ping":
		ctl.handlePing(room, c)
	case "leave":
		ctl.disconnect(room, c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown frame type")
	}
}

// disconnect tears down the session side of a connection: unregister it and,
// if it had claimed an identity, retire that participant's cursor.
func (ctl *RoomWSController) disconnect(room core.RoomService, c *WsSignalConn) {
	pid, ok := room.Unregister(c)
	if !ok {
		return
	}
	room.State().RemoveCursor(pid)
	room.Broadcast(cursorLeaveEvent{Type: "cursor-leave", UserID: string(pid)}, c)
}
