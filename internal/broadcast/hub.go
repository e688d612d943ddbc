package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/medsimlabs/vitalcast/internal/domain"
	"github.com/medsimlabs/vitalcast/internal/metrics"
)

// EventName is the single event name carried by every broadcast envelope.
const EventName = "PlayAnimationEvent"

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// envelope is the wire frame sent to clients.
type envelope struct {
	Event string                `json:"event"`
	Data  domain.AnimationEvent `json:"data"`
}

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type unregisterCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type publishCmd struct {
	baseHubCmd
	data         []byte
	replyChannel chan struct{}
}

type clientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub owns the set of connected WebSocket clients and implements
// domain.AnimationPublisher. Every published event goes to every client,
// regardless of identity - this is a broadcast, not a targeted send.
type Hub struct {
	cmdCh   chan hubCmd
	clock   clockwork.Clock
	clients map[*websocket.Conn]*clientWriter
	done    chan struct{}
}

// NewHub creates the hub and starts its actor goroutine.
func NewHub(clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clock:   clock,
		clients: make(map[*websocket.Conn]*clientWriter),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a client connection to the broadcast set.
func (h *Hub) Register(conn *websocket.Conn) error {
	select {
	case h.cmdCh <- registerCmd{connection: conn}:
		return nil
	case <-h.done:
		return domain.ErrPublisherClosed
	}
}

// Unregister removes a client connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	select {
	case h.cmdCh <- unregisterCmd{connection: conn}:
	case <-h.done:
	}
}

// Publish fans the event out to all connected clients. Zero clients is a
// successful no-op. Delivery is best-effort: slow clients are evicted, and
// no per-subscriber acknowledgment exists.
func (h *Hub) Publish(ctx context.Context, event domain.AnimationEvent) error {
	data, err := json.Marshal(envelope{Event: EventName, Data: event})
	if err != nil {
		return fmt.Errorf("failed to marshal animation event: %w", err)
	}

	replyCh := make(chan struct{}, 1)
	select {
	case h.cmdCh <- publishCmd{data: data, replyChannel: replyCh}:
	case <-h.done:
		return domain.ErrPublisherClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Wait for the fan-out so the caller can sequence status updates after it.
	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case <-replyCh:
		return nil
	case <-h.done:
		return domain.ErrPublisherClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return fmt.Errorf("publish timed out after %v", commandTimeout)
	}
}

// ClientCount returns the number of connected clients. Returns -1 if the
// command times out.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	select {
	case h.cmdCh <- clientCountCmd{replyChannel: replyCh}:
	case <-h.done:
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the hub down, closing all client connections. Blocks until the
// actor goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	select {
	case h.cmdCh <- stopCmd{}:
	case <-h.done:
		return
	}

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()
	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.connection)
		case publishCmd:
			h.handlePublish(c)
		case clientCountCmd:
			c.replyChannel <- len(h.clients)
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	h.clients[c.connection] = newClientWriter(c.connection, h.clock)
	metrics.HubConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Client registered", "total_clients", len(h.clients))
}

func (h *Hub) handleUnregister(conn *websocket.Conn) {
	cw, exists := h.clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(h.clients, conn)
	metrics.HubConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Client unregistered", "remaining_clients", len(h.clients))
}

func (h *Hub) handlePublish(c publishCmd) {
	var slow []*websocket.Conn
	for conn, writer := range h.clients {
		select {
		case writer.sendChannel <- c.data:
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow client")
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(conn)
	}

	metrics.HubEventsPublished.Inc()
	c.replyChannel <- struct{}{}
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "clients", len(h.clients))
	for conn, cw := range h.clients {
		cw.stopGraceful("Server shutting down")
		delete(h.clients, conn)
	}
	metrics.HubConnectedClients.Set(0)
}
