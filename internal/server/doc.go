// Package server implements the HTTP and WebSocket gateway of the room chat
// relay.
//
// Each websocket connection becomes a Client with a read pump that decodes
// JSON frames into chat.Router calls and a write pump that drains the
// client's send queue. The Hub tracks live clients, implements
// chat.Transport for the router, and guarantees that the router's
// disconnect path runs once per connection. Configuration, origin checks,
// routing and HTTP server helpers live in their own files.
package server
