package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/careportal/careportal/internal/shared"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueSessionEvent enqueues a session audit event on QueueAudit.
func (c *Client) EnqueueSessionEvent(ctx context.Context, event shared.SessionEvent) (*asynq.TaskInfo, error) {
	task, err := NewSessionEventTask(event)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
