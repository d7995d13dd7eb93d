// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import "net/http"

// Routes returns a ServeMux serving the health check, the WebSocket
// endpoint, the room listing endpoints and the chat page for this hub.
func (h *Hub) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("GET /rooms", h.RoomsHandler)
	mux.HandleFunc("GET /rooms/{name}/history", h.RoomHistoryHandler)
	mux.HandleFunc("GET /chat", ChatPageHandler)
	return mux
}

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes bound to the process-wide hub.
func SetupRoutes() *http.ServeMux {
	return GetHub().Routes()
}
