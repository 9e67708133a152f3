// Package jobs runs background work on asynq: the client used by the API to
// enqueue tasks, the worker server and the cron scheduler. Task types and
// handlers belong to the domain packages.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// RedisConfig addresses the Redis instance backing the queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) clientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}
}

// Client enqueues tasks from the API process.
type Client struct {
	c *asynq.Client
}

func NewClient(cfg RedisConfig) *Client {
	return &Client{c: asynq.NewClient(cfg.clientOpt())}
}

// Enqueue submits task. A task whose ID is already queued counts as
// enqueued, so retried requests do not schedule the same work twice.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	_, err := c.c.EnqueueContext(ctx, task, opts...)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.c.Close()
}
