package stream

import (
	"context"
	"encoding/json"
	"errors"

	"backend-socialpost/internal/events"
	"backend-socialpost/internal/logging"
	"backend-socialpost/internal/posts"
	"backend-socialpost/internal/shared/apperr"
)

type PostLoader interface {
	GetPost(ctx context.Context, viewerID, postID int64) (posts.Post, error)
}

type Message struct {
	Action  string     `json:"action"`
	Payload posts.Post `json:"payload"`
}

// Consumer turns post-created events into websocket broadcasts.
type Consumer struct {
	hub    *Hub
	posts  PostLoader
	logger logging.Logger
}

func NewConsumer(hub *Hub, loader PostLoader, logger logging.Logger) *Consumer {
	return &Consumer{hub: hub, posts: loader, logger: logger}
}

// Handle acks bodies that can never succeed and returns load or publish
// errors so the broker retries them.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	postID, err := events.ParsePostCreated(body)
	if err != nil {
		c.logger.Warn(ctx, "dropping malformed post event", "error", err)
		return nil
	}

	// Anonymous viewer: the broadcast goes to everyone.
	post, err := c.posts.GetPost(ctx, 0, postID)
	if errors.Is(err, apperr.ErrNotFound) {
		c.logger.Info(ctx, "post deleted before broadcast", "post_id", postID)
		return nil
	}
	if err != nil {
		c.logger.Error(ctx, "loading post for broadcast", "post_id", postID, "error", err)
		return err
	}

	msg, err := json.Marshal(Message{Action: "created", Payload: post})
	if err != nil {
		return err
	}
	return c.hub.Broadcast(ctx, msg)
}
