// Package ws serves the live boost feed over websockets.
package ws

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/boost"
)

// Groups a client may join.
const (
	GroupBoosts   = "boosts"
	GroupStreams  = "streams"
	GroupPayments = "payments"
)

var validGroups = map[string]bool{
	GroupBoosts:   true,
	GroupStreams:  true,
	GroupPayments: true,
}

// GroupFor returns the group a record is published to, or "" when the
// record is not part of the feed.
func GroupFor(rec *boost.Record) string {
	if rec.PaymentInfo != nil {
		return GroupPayments
	}
	switch rec.Action {
	case boost.ActionBoost:
		return GroupBoosts
	case boost.ActionStream:
		return GroupStreams
	default:
		return ""
	}
}

// Hub manages WebSocket connections and group subscriptions.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // group -> clients
	unregister chan *Client
	done       chan struct{}
	encoder    *Encoder
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(encoder *Encoder, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		encoder:    encoder,
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				// Remove from all groups
				for group := range client.groups {
					if clients, ok := h.groups[group]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.groups, group)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("connID", client.connID))
		}
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
}

// add registers c. It reports false once the hub has shut down.
func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[c] = true
	h.logger.Debug("client registered", zap.String("connID", c.connID))
	return true
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// deliver queues msg for c. A client whose buffer is full is disconnected.
func (h *Hub) deliver(c *Client, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		go h.remove(c)
	}
}

// JoinGroup adds a client to a group.
func (h *Hub) JoinGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][client] = true
	client.groups[group] = true

	h.logger.Debug("client joined group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

// LeaveGroup removes a client from a group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.groups[group]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, group)
		}
	}
	delete(client.groups, group)

	h.logger.Debug("client left group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

// GetActiveGroups returns all groups with at least one subscriber, sorted.
func (h *Hub) GetActiveGroups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var groups []string
	for group, clients := range h.groups {
		if len(clients) > 0 {
			groups = append(groups, group)
		}
	}
	sort.Strings(groups)
	return groups
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends rec to every client subscribed to its group. Records with
// no group are dropped.
func (h *Hub) Publish(ctx context.Context, rec *boost.Record) {
	group := GroupFor(rec)
	if group == "" {
		return
	}

	h.mu.RLock()
	clients, ok := h.groups[group]
	if !ok || len(clients) == 0 {
		h.mu.RUnlock()
		return
	}
	// Copy clients to avoid holding lock while encoding
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	frames, err := h.encoder.EncodeRecord(group, rec)
	if err != nil {
		h.logger.Error("failed to encode record",
			zap.Uint64("index", rec.Index),
			zap.Error(err),
		)
		return
	}

	for _, client := range clientList {
		h.deliver(client, client.dataFrame(frames))
	}
}
