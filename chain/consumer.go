package chain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/job"
)

// Dispatcher runs a job request. *worker.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req job.Request) (*job.Result, error)
}

// Consumer drains a chain Store into a Dispatcher, one item at a time.
type Consumer struct {
	store      Store
	dispatcher Dispatcher
	interval   time.Duration
	logger     *slog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithPollInterval sets how long the consumer sleeps when the store is
// empty.
func WithPollInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.interval = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = l }
}

// NewConsumer creates a Consumer.
func NewConsumer(store Store, dispatcher Dispatcher, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		store:      store,
		dispatcher: dispatcher,
		interval:   time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run drains the store until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	if r, ok := c.store.(Recoverer); ok {
		n, err := r.RecoverChain(ctx)
		if err != nil {
			c.logger.Error("chain: recover reserved items failed", slog.String("error", err.Error()))
		} else if n > 0 {
			c.logger.Info("chain: recovered unacknowledged items", slog.Int("count", n))
		}
	}
	for {
		n, err := c.Drain(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Error("chain: dequeue failed", slog.String("error", err.Error()))
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.interval):
		}
	}
}

// Drain dispatches items until the store is empty and returns how many it
// processed. Every dequeued item is acknowledged once dispatched, whether
// the job succeeded, failed or is unknown.
func (c *Consumer) Drain(ctx context.Context) (int, error) {
	n := 0
	for ctx.Err() == nil {
		item, err := c.store.DequeueChain(ctx)
		if err != nil {
			return n, err
		}
		if item == nil {
			return n, nil
		}
		c.dispatch(ctx, item)
		n++
	}
	return n, nil
}

func (c *Consumer) dispatch(ctx context.Context, item *Item) {
	res, err := c.dispatcher.Dispatch(ctx, job.Request{
		JobID:       item.JobID,
		Input:       item.Input,
		Metadata:    item.Metadata,
		ScheduledAt: item.EnqueuedAt,
	})
	switch {
	case errors.Is(err, chrono.ErrJobNotFound):
		c.logger.Warn("chain: dropping item for unknown job",
			slog.String("job_id", item.JobID),
			slog.String("source_job_id", item.SourceJobID),
		)
	case err != nil:
		c.logger.Error("chain: dispatch failed",
			slog.String("job_id", item.JobID),
			slog.String("error", err.Error()),
		)
	case res != nil && !res.Success:
		c.logger.Warn("chain: chained job failed",
			slog.String("job_id", item.JobID),
			slog.String("source_job_id", item.SourceJobID),
			slog.String("message", res.Message),
		)
	}

	if err := c.store.AckChain(context.WithoutCancel(ctx), item.ID); err != nil {
		c.logger.Error("chain: ack failed",
			slog.String("item_id", item.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
