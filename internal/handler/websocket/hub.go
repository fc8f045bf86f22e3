// internal/handler/websocket/hub.go
package handler

import (
	"context"
	"encoding/json"
	"sync"

	"auction-service/internal/domain"
	"auction-service/internal/pub"

	"go.uber.org/zap"
)

// Hub tracks connected clients by room and implements pub.Broadcaster so it
// can be the final sink for notifications. Rooms are user_<id>,
// auction_<id> and the global auctions room.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.Send)
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) Notify(_ context.Context, recipientID, kind string, payload any) error {
	env, err := pub.NewEnvelope(pub.ChannelNotify, recipientID, "", kind, payload)
	if err != nil {
		return err
	}
	h.Deliver(env)
	return nil
}

func (h *Hub) Broadcast(_ context.Context, topic, kind string, payload any) error {
	env, err := pub.NewEnvelope(pub.ChannelBroadcast, "", topic, kind, payload)
	if err != nil {
		return err
	}
	h.Deliver(env)
	return nil
}

// Deliver routes an envelope to the members of its room.
func (h *Hub) Deliver(env *pub.Envelope) {
	room := env.Topic
	if env.Channel == pub.ChannelNotify {
		room = domain.UserTopic(env.Recipient)
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", zap.String("kind", env.Kind), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		c.enqueue(data)
	}
}

// ConnectedClients returns the number of open connections.
func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
