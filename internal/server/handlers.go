// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, room listings, and the built-in chat page.
package server

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

//go:embed web/chat.html
var chatPage []byte

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// ServeWS handles WebSocket upgrade requests. It validates that the request
// uses the GET method, upgrades the HTTP connection, and registers a new
// Client with the hub, which starts the client's read/write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, h, r.RemoteAddr)

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
	}
}

// WebSocketHandler upgrades connections onto the process-wide hub.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	GetHub().ServeWS(w, r)
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Room chat server is running!")
}

// RoomsHandler lists the rooms that currently have members, with their
// populations, as JSON.
func (h *Hub) RoomsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.router.ListRooms())
}

// RoomHistoryHandler returns the event log of one room as JSON.
func (h *Hub) RoomHistoryHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	history, ok := h.router.History(name)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ChatPageHandler serves the built-in browser client.
func ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(chatPage); err != nil {
		GetHub().logger.Warn("error writing chat page", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		GetHub().logger.Warn("error writing JSON response", "error", err)
	}
}
