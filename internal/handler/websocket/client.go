// internal/handler/websocket/client.go
package handler

import (
	"encoding/json"
	"time"

	"auction-service/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Client is one websocket connection.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
	hub    *Hub
	logger *zap.Logger
}

// WSMessage is an inbound control message.
type WSMessage struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id,omitempty"`
}

// WSResponse acknowledges a control message.
type WSResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Room    string `json:"room,omitempty"`
	Error   string `json:"error,omitempty"`
}

// enqueue never blocks the hub; a slow client loses messages.
func (c *Client) enqueue(data []byte) {
	select {
	case c.Send <- data:
	default:
		c.logger.Warn("client send buffer full", zap.String("client_id", c.ID))
	}
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal JSON", zap.String("client_id", c.ID), zap.Error(err))
		return
	}
	c.enqueue(data)
}

// readPump handles room membership requests until the connection closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendJSON(&WSResponse{Type: "error", Error: "invalid message format"})
		return
	}

	switch msg.Type {
	case "join_auction":
		if msg.AuctionID == "" {
			c.sendJSON(&WSResponse{Type: msg.Type, Error: "auction_id is required"})
			return
		}
		room := domain.AuctionTopic(msg.AuctionID)
		c.hub.join(c, room)
		c.sendJSON(&WSResponse{Type: msg.Type, Success: true, Room: room})
	case "leave_auction":
		room := domain.AuctionTopic(msg.AuctionID)
		c.hub.leave(c, room)
		c.sendJSON(&WSResponse{Type: msg.Type, Success: true, Room: room})
	case "ping":
		c.sendJSON(&WSResponse{Type: "pong", Success: true})
	default:
		c.sendJSON(&WSResponse{Type: "error", Error: "unknown message type: " + msg.Type})
	}
}

// writePump flushes queued messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
