package status

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/history"
)

// JobMetrics aggregates the execution logs of one job.
type JobMetrics struct {
	JobID              string        `json:"job_id"`
	TotalExecutions    int           `json:"total_executions"`
	SuccessCount       int           `json:"success_count"`
	FailureCount       int           `json:"failure_count"`
	DeadLetterCount    int           `json:"dead_letter_count"`
	TotalRetryAttempts int           `json:"total_retry_attempts"`
	AverageDuration    time.Duration `json:"average_duration"`
}

// SuccessRate returns the share of successful executions as a percentage,
// or 0 when there are none.
func (m *JobMetrics) SuccessRate() float64 {
	if m.TotalExecutions == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.TotalExecutions) * 100
}

// MetricsProvider computes JobMetrics from the log and dead-letter stores.
type MetricsProvider struct {
	logs history.Store
	dead dlq.Store
}

// NewMetricsProvider creates a MetricsProvider. dead may be nil.
func NewMetricsProvider(logs history.Store, dead dlq.Store) *MetricsProvider {
	return &MetricsProvider{logs: logs, dead: dead}
}

// Get returns the metrics of jobID, or chrono.ErrNoStatus when it has
// never run.
func (p *MetricsProvider) Get(ctx context.Context, jobID string) (*JobMetrics, error) {
	logs, err := p.logs.QueryLogs(ctx, jobID, 0)
	if err != nil {
		return nil, fmt.Errorf("status: query logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("%w: %s", chrono.ErrNoStatus, jobID)
	}
	dead, err := p.deadLetterCounts(ctx)
	if err != nil {
		return nil, err
	}
	m := aggregate(jobID, logs)
	m.DeadLetterCount = dead[jobID]
	return m, nil
}

// All returns metrics for every job with at least one log, sorted by job ID.
func (p *MetricsProvider) All(ctx context.Context) ([]*JobMetrics, error) {
	logs, err := p.logs.ListLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: list logs: %w", err)
	}
	dead, err := p.deadLetterCounts(ctx)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*history.Log)
	for _, l := range logs {
		grouped[l.JobID] = append(grouped[l.JobID], l)
	}
	out := make([]*JobMetrics, 0, len(grouped))
	for jobID, entries := range grouped {
		m := aggregate(jobID, entries)
		m.DeadLetterCount = dead[jobID]
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

func (p *MetricsProvider) deadLetterCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	if p.dead == nil {
		return counts, nil
	}
	items, err := p.dead.ListDeadLetters(ctx, dlq.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("status: list dead letters: %w", err)
	}
	for _, item := range items {
		counts[item.JobID]++
	}
	return counts, nil
}

func aggregate(jobID string, logs []*history.Log) *JobMetrics {
	m := &JobMetrics{JobID: jobID, TotalExecutions: len(logs)}
	var total time.Duration
	for _, l := range logs {
		if l.Success {
			m.SuccessCount++
		}
		m.TotalRetryAttempts += l.RetryAttempt
		total += l.Duration
	}
	m.FailureCount = m.TotalExecutions - m.SuccessCount
	if len(logs) > 0 {
		m.AverageDuration = total / time.Duration(len(logs))
	}
	return m
}
