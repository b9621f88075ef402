package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/models"
)

// Hub fans frames published for a user out to all of that user's live
// connections on this process.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*Connection
	cancelFuncs map[uuid.UUID]context.CancelFunc
	redisClient *redis.Client
	log         *logger.Logger
}

// NewHub creates a hub. A nil redis client disables cross-process delivery.
func NewHub(redisClient *redis.Client, log *logger.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*Connection),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		redisClient: redisClient,
		log:         log,
	}
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[c.userID] = append(h.connections[c.userID], c)

	// Start pub/sub subscription if this is the first connection for this user
	if len(h.connections[c.userID]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[c.userID] = cancel
		go h.subscribe(ctx, c.userID)
	}

	h.log.Info("websocket connected", "user_id", c.userID, "connection_id", c.id, "total", len(h.connections[c.userID]))
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.connections[c.userID]
	for i, other := range conns {
		if other == c {
			h.connections[c.userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[c.userID]) == 0 {
		delete(h.connections, c.userID)
		if cancel, ok := h.cancelFuncs[c.userID]; ok {
			cancel()
			delete(h.cancelFuncs, c.userID)
		}
	}

	h.log.Info("websocket disconnected", "user_id", c.userID, "connection_id", c.id)
}

func (h *Hub) subscribe(ctx context.Context, userID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, models.UserUpdatesChannel(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.connections[userID] {
		if err := c.SendRaw(data); err != nil {
			h.log.Warn("dropping frame", "user_id", userID, "connection_id", c.id, "error", err)
		}
	}
}

// CloseAll closes every live connection. Each handler then force-completes
// the sessions its connection owned.
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	var conns []*Connection
	for _, cs := range h.connections {
		conns = append(conns, cs...)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}
