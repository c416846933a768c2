package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/isdelr/qb-categorizer-be/internal/services"
	ws "github.com/isdelr/qb-categorizer-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades review screens to websocket connections scoped to one client.
type WebSocketHandler struct {
	hub      *ws.Hub
	clients  services.ClientServiceProvider
	users    services.UserServiceProvider
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. Connections are accepted
// only from the given origins; an empty list allows any origin.
func NewWebSocketHandler(hub *ws.Hub, clients services.ClientServiceProvider, users services.UserServiceProvider, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:     hub,
		clients: clients,
		users:   users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Serve handles GET /ws/clients/{clientId}.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.users)
	if !ok {
		return
	}
	client, err := h.clients.GetClientForUser(user.ID, chi.URLParam(r, "clientId"))
	if err != nil {
		writeError(w, r, err, "Client not found or unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	c := ws.NewClient(h.hub, conn, client.ID)
	h.hub.Join(c)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.WritePump()
	}()
	go func() {
		defer wg.Done()
		c.ReadPump(h.handleIncomingWSMessage)
	}()

	// Cleanup on disconnect.
	go func() {
		wg.Wait()
		h.hub.Leave(c)
	}()
}

// handleIncomingWSMessage answers keepalive pings; review screens only listen otherwise.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().Err(err).Str("client_id", client.Topic).Msg("Error decoding websocket message")
		return
	}

	var reply []byte
	switch msg.Action {
	case "ping":
		reply = ws.NewMessage(ws.ActionPong, nil)
	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		reply = ws.NewErrorMessage("Unknown action: " + msg.Action)
	}

	h.hub.SendTo(client, reply)
}
