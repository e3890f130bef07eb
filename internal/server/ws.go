package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/mediastate"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/metrics"
	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/server/api"
)

// Client-initiated events.
const (
	EventRecognition         = "mediapipe_recognition"
	EventRecognitionResponse = "mediapipe_response"
)

const (
	// sendBuffer is the number of messages queued per client before drops.
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The dashboard is served from another origin
	},
}

// Message is the envelope pushed to WebSocket clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// incoming is the envelope of messages sent by clients.
type incoming struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub pushes media-state updates to connected WebSocket clients and accepts
// recognition logs sent by them.
type Hub struct {
	state        *mediastate.Service
	metrics      *metrics.Metrics
	recognitions *api.RecognitionHandler
	logger       *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	unsubs  []func()
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewHub creates a hub subscribed to every media-state topic. recognitions
// may be nil, in which case recognition messages are answered with a failure.
func NewHub(state *mediastate.Service, m *metrics.Metrics, recognitions *api.RecognitionHandler, logger *slog.Logger) *Hub {
	h := &Hub{
		state:        state,
		metrics:      m,
		recognitions: recognitions,
		logger:       logger,
		clients:      make(map[*client]struct{}),
	}

	topics := []mediastate.Topic{
		mediastate.TopicDetections,
		mediastate.TopicDetectionStats,
		mediastate.TopicActivityInsights,
		mediastate.TopicCameraStatus,
		mediastate.TopicReset,
	}
	for _, topic := range topics {
		event := string(topic)
		h.unsubs = append(h.unsubs, state.Subscribe(topic, func(payload any) {
			h.Broadcast(Message{Event: event, Data: payload})
		}))
	}
	return h
}

// ServeHTTP upgrades the connection and streams updates until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	// Current state first so late joiners render immediately.
	if data, err := json.Marshal(Message{Event: "state", Data: h.state.State()}); err == nil {
		c.send <- data
	}

	h.register(c)
	defer h.unregister(c)

	go c.writePump()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.handleMessage(r.Context(), c, data)
	}
}

// handleMessage dispatches one client message. Unknown events are ignored.
func (h *Hub) handleMessage(ctx context.Context, c *client, data []byte) {
	var msg incoming
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug("decode websocket message", "error", err)
		return
	}

	switch msg.Event {
	case EventRecognition:
		h.reply(c, Message{Event: EventRecognitionResponse, Data: h.recordRecognition(ctx, msg.Data)})
	default:
		h.logger.Debug("ignoring websocket event", "event", msg.Event)
	}
}

// recordRecognition stores {"type","data"} through the same path as
// POST /api/mediapipe/store and returns the response body.
func (h *Hub) recordRecognition(ctx context.Context, data json.RawMessage) any {
	if h.recognitions == nil {
		return api.FailureResponse{Error: "Recognition storage not configured"}
	}

	var req struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return api.FailureResponse{Error: "No data provided"}
		}
	}

	_, body := h.recognitions.Record(ctx, req.Type, req.Data)
	return body
}

// reply queues msg for a single client.
func (h *Hub) reply(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode websocket message", "event", msg.Event, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Debug("dropping reply for slow client", "event", msg.Event)
	}
}

// Broadcast queues msg for every client. Clients whose queue is full miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode websocket message", "event", msg.Event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping message for slow client", "event", msg.Event)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from media state and disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	unsubs := h.unsubs
	h.unsubs = nil
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.ActiveClients.Add(1)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		close(c.done)
		c.conn.Close()
		h.metrics.ActiveClients.Add(^uint64(0))
	}
}

// writePump is the only goroutine writing to the connection.
func (c *client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
