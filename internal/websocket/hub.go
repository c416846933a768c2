// Package websocket pushes live review updates to browsers watching a client.
package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

type topicMessage struct {
	topic string
	data  []byte
}

type clientMessage struct {
	client *Client
	data   []byte
}

// Hub maintains the set of active connections and broadcasts messages to them.
// All maps are owned by the Run goroutine.
type Hub struct {
	// Registered connections.
	clients map[*Client]bool

	// Messages addressed to the subscribers of one topic.
	broadcast chan topicMessage

	// Replies addressed to a single connection.
	direct chan clientMessage

	// Register requests from the connections.
	Register chan *Client

	// Unregister requests from connections.
	Unregister chan *Client

	// A map of client (QuickBooks company) IDs to the connections watching it.
	subscriptions map[string]map[*Client]bool

	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:     make(chan topicMessage, 256),
		direct:        make(chan clientMessage, 64),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		done:          make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			if client.Topic != "" {
				h.addSubscription(client, client.Topic)
			}
			log.Debug().Str("client_id", client.Topic).Int("total_connections", len(h.clients)).Msg("Websocket connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Debug().Str("client_id", client.Topic).Int("total_connections", len(h.clients)).Msg("Websocket disconnected")
			}
		case msg := <-h.broadcast:
			for client := range h.subscriptions[msg.topic] {
				select {
				case client.Send <- msg.data:
				default:
					h.drop(client)
				}
			}
		case msg := <-h.direct:
			if h.clients[msg.client] {
				select {
				case msg.client.Send <- msg.data:
				default:
					h.drop(msg.client)
				}
			}
		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

// Stop terminates Run and closes every connection's send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Join registers a connection. It is a no-op once the hub has stopped.
func (h *Hub) Join(client *Client) {
	select {
	case h.Register <- client:
	case <-h.done:
	}
}

// Leave unregisters a connection. It is a no-op once the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// BroadcastTo queues a message for every connection subscribed to topic.
// Messages are dropped when the queue is full.
func (h *Hub) BroadcastTo(topic string, message []byte) {
	select {
	case h.broadcast <- topicMessage{topic: topic, data: message}:
	default:
		log.Warn().Str("client_id", topic).Msg("Websocket broadcast queue full, dropping message")
	}
}

// SendTo queues a message for a single registered connection.
func (h *Hub) SendTo(client *Client, message []byte) {
	select {
	case h.direct <- clientMessage{client: client, data: message}:
	case <-h.done:
	default:
		log.Warn().Str("client_id", client.Topic).Msg("Websocket reply queue full, dropping message")
	}
}

// Publish encodes an action and payload and broadcasts it to a client's watchers.
func (h *Hub) Publish(clientID, action string, payload any) {
	data, err := json.Marshal(Message{Action: action, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to encode websocket message")
		return
	}
	h.BroadcastTo(clientID, data)
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	h.removeSubscription(client)
}

func (h *Hub) addSubscription(client *Client, topic string) {
	if h.subscriptions[topic] == nil {
		h.subscriptions[topic] = make(map[*Client]bool)
	}
	h.subscriptions[topic][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	for topic, subs := range h.subscriptions {
		if _, ok := subs[client]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, topic)
			}
		}
	}
}
