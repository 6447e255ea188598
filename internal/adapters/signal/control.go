package signal

import "github.com/dkeye/Atelier/internal/core"

// handlePing answers application-level liveness probes from clients whose
// runtime hides transport pings.
func (ctl *RoomWSController) handlePing(room core.RoomService, conn *WsSignalConn) {
	room.SendTo(conn, struct {
		Type string `json:"type"`
	}{"pong"})
}
