// Package notifyws pushes notification events to connected websocket clients.
package notifyws

import (
	"context"
	"encoding/json"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/notification"
)

// Hub owns every client's send channel. Only the Run goroutine writes to or
// closes it; other goroutines hand frames over through control.
type Hub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	control    chan outbound
	done       chan struct{}
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	send   chan []byte
	// done is closed together with send once the hub drops the client.
	done chan struct{}
}

type outbound struct {
	client  *Client
	payload []byte
}

type Message struct {
	Type         string               `json:"type"`
	RecipientID  int64                `json:"-"`
	Notification *models.Notification `json:"notification,omitempty"`
	Error        string               `json:"error,omitempty"`
	Timestamp    string               `json:"timestamp"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
		control:    make(chan outbound, 64),
		done:       make(chan struct{}),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
		done:   make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for client := range set {
					client.close()
				}
				delete(h.clients, userID)
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.close()
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case message := <-h.broadcast:
			h.deliver(message)
		case out := <-h.control:
			h.sendToClient(out.client, out.payload)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) Name() string {
	return "websocket"
}

// Deliver queues a notification for every open connection of the recipient.
// Users without a connection simply miss the live push.
func (h *Hub) Deliver(ctx context.Context, event notification.Event) error {
	n := event.Notification
	message := &Message{
		Type:         "notification",
		RecipientID:  event.UserID,
		Notification: &n,
		Timestamp:    formatTimestamp(n.CreatedAt),
	}
	select {
	case h.broadcast <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) deliver(message *Message) {
	encoded, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("notification hub encode message")
		return
	}
	h.sendToUser(message.RecipientID, encoded)
}

func (h *Hub) sendToUser(userID int64, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			log.Warn().Int64("user_id", userID).Msg("websocket client too slow, dropping")
			delete(set, client)
			client.close()
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// sendToClient delivers a control frame to one connection if the hub still
// holds it. Frames for dropped clients are discarded.
func (h *Hub) sendToClient(client *Client, payload []byte) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, registered := set[client]; !registered {
		return
	}
	select {
	case client.send <- payload:
	default:
		delete(set, client)
		client.close()
		if len(set) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

// close must only be called from the hub goroutine, or before the client was
// ever registered.
func (c *Client) close() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.send)
	close(c.done)
}

func (c *Client) dropped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// ReadPump keeps the connection alive and answers pings. Clients do not send
// anything else.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil || c.dropped() {
			return
		}

		var incoming struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			writeControl(c, &Message{Type: "error", Error: "invalid message payload"})
			continue
		}
		if incoming.Type != "ping" {
			writeControl(c, &Message{Type: "error", Error: "unsupported message type"})
			continue
		}
		writeControl(c, &Message{Type: "pong"})
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeControl(client *Client, message *Message) {
	message.Timestamp = formatTimestamp(time.Now())
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case client.hub.control <- outbound{client: client, payload: payload}:
	case <-client.done:
	case <-client.hub.done:
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}
