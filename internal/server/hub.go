// Package server coordinates client registration, notice fan-out, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Hub tracks every live websocket client and implements chat.Transport on
// top of their send queues. It owns the chat router, so every connection it
// registers is known to the router, and every connection it drops is
// disconnected from the router exactly once.
type Hub struct {
	clients    map[chat.ConnID]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	router *chat.Router
	logger *slog.Logger
}

// NewHub creates a Hub with its own registry, room store and router. A nil
// logger falls back to slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[chat.ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger,
	}
	h.router = chat.NewRouter(chat.NewRegistry(), chat.NewRoomStore(), h,
		chat.WithLogger(logger),
		chat.WithDefaultRoom(currentConfig().DefaultRoom),
	)
	return h
}

// Router returns the chat router driven by this hub.
func (h *Hub) Router() *chat.Router {
	return h.router
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine
// as it runs until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}
			h.attach(client)

		case client := <-h.unregister:
			h.detach(client)
		}
	}
}

func (h *Hub) attach(client *Client) {
	h.mutex.Lock()
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.router.Connect(client.id)
	client.logger.Info("client registered", "clients", clientCount)

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// detach removes the client and runs its router disconnect. Only the first
// call for a given client gets past the map check, however many paths
// report the closure.
func (h *Hub) detach(client *Client) {
	h.mutex.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	client.shutdown()
	h.router.Disconnect(client.id)
	client.logger.Info("client unregistered", "clients", clientCount)
}

// leave is called by a client's read pump on exit. Once Run has returned the
// hub detaches the client directly.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.detach(client)
	}
}

func (h *Hub) lookup(id chat.ConnID) (*Client, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	client, ok := h.clients[id]
	return client, ok
}

// Deliver implements chat.Transport. Notices are encoded once and queued on
// each recipient; a recipient whose queue is full is closed and cleans up
// through its own disconnect path.
func (h *Hub) Deliver(recipients []chat.ConnID, notices ...chat.Notice) {
	if len(recipients) == 0 || len(notices) == 0 {
		return
	}
	frames := h.encodeNotices(notices)
	if len(frames) == 0 {
		return
	}

	var slow []*Client
	for _, id := range recipients {
		client, ok := h.lookup(id)
		if !ok {
			continue
		}
		if !client.enqueue(frames) {
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		client.logger.Warn("send queue full; closing client")
		client.shutdown()
	}
}

// Close implements chat.Transport.
func (h *Hub) Close(id chat.ConnID) {
	if client, ok := h.lookup(id); ok {
		client.shutdown()
	}
}

// shutdownClients gracefully closes all active client connections. Each
// client's read pump then detaches it, which runs the router disconnect.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if client.conn == nil {
			h.detach(client)
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			client.logger.Warn("error closing client connection", "error", err)
		}
	}

	h.logger.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
