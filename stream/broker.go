package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/ext"
	"github.com/xraph/chrono/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Broker)(nil)
	_ ext.JobEnqueued     = (*Broker)(nil)
	_ ext.JobStarted      = (*Broker)(nil)
	_ ext.JobSucceeded    = (*Broker)(nil)
	_ ext.JobFailed       = (*Broker)(nil)
	_ ext.JobRetrying     = (*Broker)(nil)
	_ ext.JobChained      = (*Broker)(nil)
	_ ext.JobDeadLettered = (*Broker)(nil)
	_ ext.TriggerFired    = (*Broker)(nil)
	_ ext.Shutdown        = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker receives lifecycle events as an extension and publishes them to
// subscribers by topic.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	subscribers map[string]*Subscriber
	closed      bool

	totalPublished atomic.Int64
	bufferSize     int
}

// Option configures a Broker.
type Option func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) Option {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a stream broker.
func NewBroker(logger *slog.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:      NewTopicRegistry(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		subscribers: make(map[string]*Subscriber),
		bufferSize:  DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Subscribe creates a subscriber on topics. After Shutdown it returns a
// subscriber whose channel is already closed.
func (b *Broker) Subscribe(topics ...string) *Subscriber {
	sub := NewSubscriber(uuid.NewString(), b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.Close()
		return sub
	}
	b.subscribers[sub.ID()] = sub
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// Remove takes a subscriber off every topic and closes it.
func (b *Broker) Remove(sub *Subscriber) {
	b.topics.UnsubscribeAll(sub.ID())
	b.mu.Lock()
	delete(b.subscribers, sub.ID())
	b.mu.Unlock()
	sub.Close()
}

// Stats returns broker statistics.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	count := len(b.subscribers)
	var dropped int64
	for _, sub := range b.subscribers {
		dropped += sub.Dropped()
	}
	b.mu.Unlock()
	return Stats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    dropped,
	}
}

// Stats contains broker counters.
type Stats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

func (b *Broker) publish(typ EventType, topic string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("stream: marshal event",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		return
	}
	evt := &Event{Type: typ, Timestamp: b.now(), Topic: topic, Data: raw}
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))
}

func jobData(jobID string, meta job.Metadata) JobEventData {
	return JobEventData{
		JobID:         jobID,
		CorrelationID: meta.CorrelationID,
		TriggerSource: meta.TriggerSource,
	}
}

// ── Job lifecycle hooks ─────────────────────────────

func (b *Broker) OnJobEnqueued(_ context.Context, jobID string, meta job.Metadata) error {
	b.publish(EventJobEnqueued, JobTopic(jobID), jobData(jobID, meta))
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, x *job.Execution, _ time.Time) error {
	b.publish(EventJobStarted, JobTopic(x.JobID()), jobData(x.JobID(), x.Metadata))
	return nil
}

func (b *Broker) OnJobSucceeded(_ context.Context, x *job.Execution, _ *job.Result, elapsed time.Duration) error {
	d := jobData(x.JobID(), x.Metadata)
	d.ElapsedMs = elapsed.Milliseconds()
	b.publish(EventJobSucceeded, JobTopic(x.JobID()), d)
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, x *job.Execution, jobErr error, attempt int) error {
	d := jobData(x.JobID(), x.Metadata)
	d.Attempt = attempt
	if jobErr != nil {
		d.Error = jobErr.Error()
	}
	b.publish(EventJobFailed, JobTopic(x.JobID()), d)
	return nil
}

func (b *Broker) OnJobRetrying(_ context.Context, x *job.Execution, attempt int, delay time.Duration) error {
	d := jobData(x.JobID(), x.Metadata)
	d.Attempt = attempt
	d.DelayMs = delay.Milliseconds()
	b.publish(EventJobRetrying, JobTopic(x.JobID()), d)
	return nil
}

func (b *Broker) OnJobChained(_ context.Context, fromJobID, toJobID string) error {
	b.publish(EventJobChained, JobTopic(fromJobID), JobEventData{JobID: fromJobID, NextJobID: toJobID})
	return nil
}

func (b *Broker) OnJobDeadLettered(_ context.Context, item *dlq.Item) error {
	d := jobData(item.JobID, item.Metadata)
	d.Attempt = item.RetryAttempt
	d.Error = item.Error
	d.DeadLetterID = item.ID.String()
	b.publish(EventJobDeadLettered, JobTopic(item.JobID), d)
	return nil
}

// ── Trigger hooks ───────────────────────────────────

func (b *Broker) OnTriggerFired(_ context.Context, jobID, triggerID string, dueAt time.Time) error {
	b.publish(EventTriggerFired, JobTopic(jobID), TriggerEventData{
		JobID:     jobID,
		TriggerID: triggerID,
		DueAt:     dueAt,
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

// OnShutdown closes every subscriber, ending open streams.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]*Subscriber)
	b.closed = true
	b.mu.Unlock()

	for id, sub := range subs {
		b.topics.UnsubscribeAll(id)
		sub.Close()
	}
	b.logger.Info("stream broker shut down", slog.Int("subscribers", len(subs)))
	return nil
}
