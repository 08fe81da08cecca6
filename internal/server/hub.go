package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stocksignal/internal/controller"
	"stocksignal/models"
)

// Hub fans controller events out to WebSocket clients. Each connected
// client gets a snapshot of the current results on connect, then the
// live stream of progress, result, and state events.
type Hub struct {
	ctrl   *controller.Controller
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub(ctrl *controller.Controller) *Hub {
	return &Hub{
		ctrl:    ctrl,
		logger:  log.With().Str("component", "ws-hub").Logger(),
		clients: make(map[*Client]bool),
	}
}

// Run drains the controller's event stream until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe := h.ctrl.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error().Err(err).Msg("marshaling event")
				continue
			}
			h.broadcast(data)
		}
	}
}

// HandleWS registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWS(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Int("clients", count).Msg("ws client connected")

	client.sendSnapshot()
	go client.writePump()
	go client.readPump()
}

// snapshot is the catch-up message sent to a freshly connected client.
type snapshot struct {
	Type     string                  `json:"type"`
	State    controller.RunState     `json:"state"`
	Results  []models.AnalysisResult `json:"results"`
	Progress *models.Progress        `json:"progress,omitempty"`
	Failed   []string                `json:"failed_tickers,omitempty"`
	Settings models.AnalysisSettings `json:"settings"`
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// broadcast queues data on every client. Slow clients drop messages
// instead of stalling the hub; the next snapshot reconciles them.
func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
