package stream

import (
	"context"
	"sync"

	"backend-socialpost/internal/logging"

	"github.com/redis/go-redis/v9"
)

// Channel carries post-created broadcasts between Feed-Stream instances.
const Channel = "posts:created"

const sendBuffer = 64

type Hub struct {
	redis   *redis.Client
	logger  logging.Logger
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Send chan []byte
}

// NewHub delivers locally when redisClient is nil. Otherwise broadcasts go
// through Redis and Run must be started to receive them.
func NewHub(redisClient *redis.Client, logger logging.Logger) *Hub {
	return &Hub{
		redis:   redisClient,
		logger:  logger,
		clients: map[*Client]struct{}{},
	}
}

func (h *Hub) Register() *Client {
	client := &Client{Send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
}

// Broadcast publishes payload once per instance. With Redis every instance,
// this one included, delivers it from the subscription.
func (h *Hub) Broadcast(ctx context.Context, payload []byte) error {
	if h.redis == nil {
		h.deliver(payload)
		return nil
	}
	return h.redis.Publish(ctx, Channel, payload).Err()
}

// Run forwards Redis messages to local clients until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.redis == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := h.redis.Subscribe(ctx, Channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.deliver([]byte(msg.Payload))
		}
	}
}

// deliver drops the message for clients whose buffer is full.
func (h *Hub) deliver(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- payload:
		default:
			h.logger.Debug(context.Background(), "dropping message for slow client")
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
