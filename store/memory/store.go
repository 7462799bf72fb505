// Package memory implements store.Store in process memory. Safe for
// concurrent access; intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/chrono"
	"github.com/xraph/chrono/chain"
	"github.com/xraph/chrono/dlq"
	"github.com/xraph/chrono/history"
	"github.com/xraph/chrono/id"
	"github.com/xraph/chrono/queue"
	"github.com/xraph/chrono/scheduler"
)

// Ensure Store implements every subsystem store at compile time.
// We can't import store here (import cycle in tests), so we verify each one.
var (
	_ scheduler.StateStore = (*Store)(nil)
	_ history.Store        = (*Store)(nil)
	_ queue.Journal        = (*Store)(nil)
	_ dlq.Store            = (*Store)(nil)
	_ chain.Store          = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	states   map[string]*scheduler.State
	logs     []*history.Log
	journal  map[string][]*queue.EnqueuedJob
	dead     map[string]*dlq.Item
	pending  []*chain.Item
	reserved map[string]*chain.Item
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		states:   make(map[string]*scheduler.State),
		journal:  make(map[string][]*queue.EnqueuedJob),
		dead:     make(map[string]*dlq.Item),
		reserved: make(map[string]*chain.Item),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Trigger state
// ──────────────────────────────────────────────────

// GetTriggerState returns a copy of the job's trigger state.
func (m *Store) GetTriggerState(_ context.Context, jobID string) (*scheduler.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[jobID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// SetTriggerState upserts the job's trigger state.
func (m *Store) SetTriggerState(_ context.Context, s *scheduler.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.states[s.JobID] = &cp
	return nil
}

// RemoveTriggerState deletes the job's trigger state.
func (m *Store) RemoveTriggerState(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, jobID)
	return nil
}

// ──────────────────────────────────────────────────
// Execution history
// ──────────────────────────────────────────────────

// AppendLog stores a copy of l.
func (m *Store) AppendLog(_ context.Context, l *history.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *l
	m.logs = append(m.logs, &cp)
	return nil
}

// QueryLogs returns up to take logs of jobID, most recent first.
func (m *Store) QueryLogs(_ context.Context, jobID string, take int) ([]*history.Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*history.Log
	for _, l := range m.logs {
		if l.JobID == jobID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sortLogs(out)
	if take > 0 && len(out) > take {
		out = out[:take]
	}
	return out, nil
}

// ListLogs returns every log, most recent first.
func (m *Store) ListLogs(_ context.Context) ([]*history.Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*history.Log, 0, len(m.logs))
	for _, l := range m.logs {
		cp := *l
		out = append(out, &cp)
	}
	sortLogs(out)
	return out, nil
}

// PurgeLogsBefore deletes logs executed before cutoff.
func (m *Store) PurgeLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.logs[:0]
	var n int64
	for _, l := range m.logs {
		if l.ExecutedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	clear(m.logs[len(kept):])
	m.logs = kept
	return n, nil
}

// PurgeLogsOverLimit keeps the newest maxPerJob logs of every job.
func (m *Store) PurgeLogsOverLimit(_ context.Context, maxPerJob int) (int64, error) {
	if maxPerJob <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := make([]*history.Log, len(m.logs))
	copy(sorted, m.logs)
	sortLogs(sorted)

	drop := make(map[*history.Log]struct{})
	seen := make(map[string]int)
	for _, l := range sorted {
		seen[l.JobID]++
		if seen[l.JobID] > maxPerJob {
			drop[l] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}

	kept := make([]*history.Log, 0, len(m.logs)-len(drop))
	for _, l := range m.logs {
		if _, ok := drop[l]; !ok {
			kept = append(kept, l)
		}
	}
	m.logs = kept
	return int64(len(drop)), nil
}

func sortLogs(logs []*history.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].ExecutedAt.After(logs[j].ExecutedAt)
	})
}

// ──────────────────────────────────────────────────
// Queue journal
// ──────────────────────────────────────────────────

// EnqueueJob appends qj to its job's journal.
func (m *Store) EnqueueJob(_ context.Context, qj *queue.EnqueuedJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *qj
	m.journal[qj.JobID] = append(m.journal[qj.JobID], &cp)
	return nil
}

// DequeueJob removes and returns the oldest journal entry of jobID.
func (m *Store) DequeueJob(_ context.Context, jobID string) (*queue.EnqueuedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.journal[jobID]
	if len(entries) == 0 {
		return nil, nil
	}
	head := entries[0]
	if len(entries) == 1 {
		delete(m.journal, jobID)
	} else {
		m.journal[jobID] = entries[1:]
	}
	return head, nil
}

// AckJob removes the journal entry of jobID stamped with requestID.
func (m *Store) AckJob(_ context.Context, jobID, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.journal[jobID]
	for i, qj := range entries {
		if qj.RequestID != requestID {
			continue
		}
		if len(entries) == 1 {
			delete(m.journal, jobID)
		} else {
			m.journal[jobID] = append(entries[:i:i], entries[i+1:]...)
		}
		return nil
	}
	return nil
}

// ──────────────────────────────────────────────────
// Dead letters
// ──────────────────────────────────────────────────

// AddDeadLetter stores a copy of item.
func (m *Store) AddDeadLetter(_ context.Context, item *dlq.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *item
	m.dead[item.ID.String()] = &cp
	return nil
}

// ListDeadLetters returns items matching opts, most recent first.
func (m *Store) ListDeadLetters(_ context.Context, opts dlq.ListOpts) ([]*dlq.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*dlq.Item, 0, len(m.dead))
	for _, item := range m.dead {
		if opts.JobID != "" && item.JobID != opts.JobID {
			continue
		}
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FailedAt.After(out[j].FailedAt)
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}

// GetDeadLetter returns one item.
func (m *Store) GetDeadLetter(_ context.Context, itemID id.ID) (*dlq.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.dead[itemID.String()]
	if !ok {
		return nil, chrono.ErrDeadLetterNotFound
	}
	cp := *item
	return &cp, nil
}

// MarkRequeued stamps RequeuedAt on an item.
func (m *Store) MarkRequeued(_ context.Context, itemID id.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.dead[itemID.String()]
	if !ok {
		return chrono.ErrDeadLetterNotFound
	}
	t := at
	item.RequeuedAt = &t
	return nil
}

// DeleteDeadLetters removes every item of jobID.
func (m *Store) DeleteDeadLetters(_ context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, item := range m.dead {
		if item.JobID == jobID {
			delete(m.dead, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Chain queue
// ──────────────────────────────────────────────────

// EnqueueChain appends an item.
func (m *Store) EnqueueChain(_ context.Context, item *chain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *item
	m.pending = append(m.pending, &cp)
	return nil
}

// DequeueChain reserves the oldest item.
func (m *Store) DequeueChain(_ context.Context) (*chain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil, nil
	}
	item := m.pending[0]
	m.pending[0] = nil
	m.pending = m.pending[1:]
	m.reserved[item.ID.String()] = item
	cp := *item
	return &cp, nil
}

// AckChain drops a reserved item.
func (m *Store) AckChain(_ context.Context, itemID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reserved, itemID.String())
	return nil
}

// RecoverChain moves reserved items back to the front of the queue.
func (m *Store) RecoverChain(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.reserved) == 0 {
		return 0, nil
	}
	back := make([]*chain.Item, 0, len(m.reserved))
	for key, item := range m.reserved {
		back = append(back, item)
		delete(m.reserved, key)
	}
	sort.Slice(back, func(i, j int) bool {
		return back[i].EnqueuedAt.Before(back[j].EnqueuedAt)
	})
	m.pending = append(back, m.pending...)
	return len(back), nil
}

// PendingChain reports how many chain items wait for a consumer.
func (m *Store) PendingChain() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
