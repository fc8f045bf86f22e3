// internal/handler/websocket/ws_handler.go
package handler

import (
	"net/http"

	"auction-service/internal/domain"
	"auction-service/internal/middleware"
	"auction-service/pkg/utils/id"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *Hub, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleConnection upgrades the request. Every client joins the global
// auctions room; identified clients also join their own user room.
// GET /ws
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:     id.Generate("ws"),
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		hub:    h.hub,
		logger: h.logger,
	}
	if actor, ok := middleware.GetActor(r.Context()); ok {
		client.UserID = actor.ID
	}

	h.hub.register(client)
	h.hub.join(client, domain.TopicAuctions)
	if client.UserID != "" {
		h.hub.join(client, domain.UserTopic(client.UserID))
	}
	client.sendJSON(&WSResponse{Type: "connected", Success: true})

	go client.writePump()
	go client.readPump()

	h.logger.Debug("websocket client connected",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID))
}
