package websocket

import (
	"encoding/json"
	"log"

	"relations-go/internal/events"
)

// Hub maintains the set of active client sessions and routes relationship
// events to the session of the affected user. Assumes one connection per
// user ID; a newer connection replaces the older one.
type Hub struct {
	clients map[uint]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Events aimed at a specific user.
	direct chan *events.Envelope
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uint]*Client),
		direct:     make(chan *events.Envelope, 256),
	}
}

// DeliverEvent hands an event envelope to the hub for session delivery.
// Non-blocking so the Kafka consumer never stalls behind a slow hub.
func (h *Hub) DeliverEvent(envelope *events.Envelope) {
	select {
	case h.direct <- envelope:
	default:
		log.Printf("警告: Hub direct channel is full. Dropping %s event for user %d", envelope.Name, envelope.UserID)
	}
}

// clientFrame is what a connected session receives on the wire.
type clientFrame struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Run starts the hub and listens for messages on its channels.
func (h *Hub) Run() {
	log.Println("WebSocket Hub Run loop started.")
	for {
		select {
		case client := <-h.register:
			if existingClient, ok := h.clients[client.UserID]; ok {
				log.Printf("警告: 用户 %d 已有连接，关闭旧连接并注册新连接。", client.UserID)
				close(existingClient.send)
			}
			h.clients[client.UserID] = client
			log.Printf("客户端已注册: UserID %d", client.UserID)

		case client := <-h.unregister:
			// Only drop the stored client if it is the one unregistering;
			// a replaced connection must not tear down its successor.
			if storedClient, ok := h.clients[client.UserID]; ok && storedClient == client {
				delete(h.clients, client.UserID)
				close(client.send)
				log.Printf("客户端已注销: UserID %d", client.UserID)
			}

		case envelope := <-h.direct:
			client, ok := h.clients[envelope.UserID]
			if !ok {
				// No active session; at-least-once delivery means the user
				// refetches relationships on next connect.
				continue
			}

			frame, err := json.Marshal(clientFrame{Name: envelope.Name, Payload: envelope.Payload})
			if err != nil {
				log.Printf("错误: 无法序列化事件 %s 以发送给 UserID %d: %v", envelope.Name, envelope.UserID, err)
				continue
			}

			select {
			case client.send <- frame:
			default:
				// Send buffer full: assume the client is slow or gone.
				log.Printf("警告: UserID %d 的发送通道已满或关闭，移除客户端。", envelope.UserID)
				close(client.send)
				delete(h.clients, envelope.UserID)
			}
		}
	}
}
