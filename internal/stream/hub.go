package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"knowledge-assistant-be/internal/pkg/logger"
	"knowledge-assistant-be/pkg/agent"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Hub fans answer streams out to websocket subscribers. Clients
// subscribe per chat session, so one question asked over REST can be
// watched live from any device that holds the session open.
type Hub struct {
	// SessionID -> subscribed clients (multi-device)
	clients map[uuid.UUID][]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Redis connection for cross-instance fan-out
	rdb *redis.Client

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info("StreamHub", "Client subscribed", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.SessionID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.SessionID]) == 0 {
					delete(h.clients, client.SessionID)
					h.logger.Info("StreamHub", "Session has no subscribers left", map[string]interface{}{"session_id": client.SessionID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish delivers one workflow event to every subscriber of the
// session, locally and through Redis for other instances.
func (h *Hub) Publish(sessionID uuid.UUID, event agent.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("StreamHub", "Failed to serialize event", map[string]interface{}{"error": err.Error()})
		return
	}

	// With Redis in play the publishing instance receives its own
	// message back through the subscription, so local delivery happens
	// exactly once either way.
	if h.rdb == nil {
		h.deliverLocal(sessionID, data)
		return
	}

	payload := map[string]interface{}{
		"target_session_id": sessionID.String(),
		"message":           json.RawMessage(data),
	}
	jsonPayload, _ := json.Marshal(payload)
	h.rdb.Publish(context.Background(), "cluster_events", jsonPayload)
}

func (h *Hub) deliverLocal(sessionID uuid.UUID, data []byte) {
	// Send only under the read lock. Run's unregister branch closes
	// Send under the write lock, so a send can never hit a closed
	// channel.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients[sessionID] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("StreamHub", "Client Send buffer full, dropping subscriber", map[string]interface{}{"session_id": sessionID})
			// Run owns close(client.Send). The enqueue must not
			// block while the read lock is held, Run may be waiting
			// on the write lock. A dropped enqueue is retried by the
			// next full-buffer event.
			select {
			case h.unregister <- client:
			default:
			}
		}
	}
}

func (h *Hub) subscribeToRedis() {
	// Every instance subscribes to one shared channel and filters by
	// the sessions it holds locally.
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, "cluster_events")
	defer pubsub.Close()

	ch := pubsub.Channel()

	for msg := range ch {
		var payload struct {
			TargetSessionID string          `json:"target_session_id"`
			Message         json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Printf("Redis msg parse error: %v", err)
			continue
		}

		sid, err := uuid.Parse(payload.TargetSessionID)
		if err != nil {
			continue
		}

		h.deliverLocal(sid, payload.Message)
	}
}
