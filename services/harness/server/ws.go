// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

// clientBuffer is the per-client event queue depth. A client that
// falls further behind loses events, same contract as the runner's
// own event channel.
const clientBuffer = 256

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// =============================================================================
// Hub
// =============================================================================

// wsClient is one connected dashboard. Its send channel is owned by
// the hub: the hub closes it exactly once, on unregister or closeAll.
type wsClient struct {
	conn *websocket.Conn
	send chan runner.Event
}

// writeLoop drains the send channel onto the wire. It exits when the
// hub closes the channel or the first write fails.
func (cl *wsClient) writeLoop(logger *slog.Logger) {
	for ev := range cl.send {
		if err := cl.conn.WriteJSON(ev); err != nil {
			logger.Warn("failed to write websocket JSON", "error", err)
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = cl.conn.WriteMessage(websocket.CloseMessage, msg)
}

// hub fans runner events out to every connected websocket client.
// Broadcasts never block: a slow client drops events rather than
// stalling the run that produced them.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

func (h *hub) register(conn *websocket.Conn) *wsClient {
	cl := &wsClient{conn: conn, send: make(chan runner.Event, clientBuffer)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	return cl
}

func (h *hub) unregister(cl *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
	_ = cl.conn.Close()
}

func (h *hub) broadcast(ev runner.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- ev:
		default:
			// Slow client, drop the event.
		}
	}
}

// closeAll disconnects every client. Used on shutdown: websocket
// connections are hijacked, so http.Server.Shutdown will not wait
// for them.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
		_ = cl.conn.Close()
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// =============================================================================
// Handler
// =============================================================================

// handleWS upgrades the connection and streams run events until the
// peer disconnects. The stream is one-way: inbound payloads are read
// only to detect the close.
func (s *Server) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}

	cl := s.hub.register(ws)
	defer s.hub.unregister(cl)
	s.logger.Info("websocket client connected", "remote", ws.RemoteAddr().String())

	go cl.writeLoop(s.logger)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	s.logger.Info("websocket client disconnected", "remote", ws.RemoteAddr().String())
}
