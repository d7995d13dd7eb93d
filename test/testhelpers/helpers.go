// Package testhelpers provides common utilities for exercising the room chat
// server end to end.
//
// Each test gets its own hub and httptest server so tests never share room
// state. Frame helpers speak the JSON protocol from the client side.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/server"
)

// TestOrigin is the origin every helper dials with. It is part of the
// default allow-list.
const TestOrigin = "http://localhost:8080"

// DefaultReadTimeout bounds every frame read.
const DefaultReadTimeout = 2 * time.Second

// TestServer bundles a running hub with the HTTP server fronting it.
type TestServer struct {
	Hub    *server.Hub
	Server *httptest.Server
}

// URL returns the base HTTP URL of the server.
func (ts *TestServer) URL() string {
	return ts.Server.URL
}

// WebSocketURL returns the ws:// URL of the chat endpoint.
func (ts *TestServer) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws"
}

// StartServer starts a fresh hub and server. Both are shut down when the
// test ends.
func StartServer(t *testing.T) *TestServer {
	t.Helper()

	hub := server.NewHub(DiscardLogger())
	go hub.Run()
	srv := httptest.NewServer(hub.Routes())

	t.Cleanup(func() {
		srv.Close()
		if err := hub.Shutdown(5 * time.Second); err != nil {
			t.Errorf("hub shutdown: %v", err)
		}
	})
	return &TestServer{Hub: hub, Server: srv}
}

// UseConfig applies cfg for the duration of the test. Must be called before
// StartServer, since hubs and clients read the configuration when created.
func UseConfig(t *testing.T, cfg *server.Config) {
	t.Helper()
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// ConnectWebSocket dials url with the given Origin header. An empty origin
// sends no Origin header at all.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Connect dials the test server with TestOrigin and closes the connection
// when the test ends.
func Connect(t *testing.T, ts *TestServer) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(ts.WebSocketURL(), TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendFrame writes one JSON frame.
func SendFrame(t *testing.T, conn *websocket.Conn, frame server.InboundFrame) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to send %s frame: %v", frame.Type, err)
	}
}

// ReadFrame reads and decodes the next frame.
func ReadFrame(conn *websocket.Conn, timeout time.Duration) (server.OutboundFrame, error) {
	var frame server.OutboundFrame
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return frame, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return frame, err
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return frame, fmt.Errorf("decode frame %s: %w", raw, err)
	}
	return frame, nil
}

// ExpectFrame reads the next frame and fails unless it has the given type.
func ExpectFrame(t *testing.T, conn *websocket.Conn, frameType string) server.OutboundFrame {
	t.Helper()
	frame, err := ReadFrame(conn, DefaultReadTimeout)
	if err != nil {
		t.Fatalf("Expected %s frame: %v", frameType, err)
	}
	if string(frame.Type) != frameType {
		t.Fatalf("Expected %s frame, got %+v", frameType, frame)
	}
	return frame
}

// ExpectNoFrame fails if a frame arrives within timeout. A timed out read
// leaves the connection unreadable, so call it last.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	frame, err := ReadFrame(conn, timeout)
	if err == nil {
		t.Fatalf("Expected no frame, got %+v", frame)
	}
}

// Join sends ChatJoin, reads the replayed history, which must hold exactly
// replayed frames, then the joiner's own join event. It returns the replay.
func Join(t *testing.T, conn *websocket.Conn, nickname, room string, replayed int) []server.OutboundFrame {
	t.Helper()
	SendFrame(t, conn, server.InboundFrame{Type: server.FrameJoin, Nickname: nickname, Room: room})

	replay := make([]server.OutboundFrame, 0, replayed)
	for range replayed {
		replay = append(replay, ExpectAnyFrame(t, conn))
	}

	own := ExpectFrame(t, conn, server.FrameJoin)
	if own.Nickname != nickname {
		t.Fatalf("Expected own join as %q, got %+v", nickname, own)
	}
	return replay
}

// ExpectAnyFrame reads the next frame whatever its type.
func ExpectAnyFrame(t *testing.T, conn *websocket.Conn) server.OutboundFrame {
	t.Helper()
	frame, err := ReadFrame(conn, DefaultReadTimeout)
	if err != nil {
		t.Fatalf("Expected a frame: %v", err)
	}
	return frame
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitFor polls cond until it holds or the deadline passes.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
