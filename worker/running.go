package worker

import "sync"

// RunningSet tracks the job IDs currently inside an Executor. It is
// reference counted, so two overlapping dispatches of one job keep it
// running until both return. It never blocks a dispatch.
type RunningSet struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewRunningSet creates an empty set.
func NewRunningSet() *RunningSet {
	return &RunningSet{counts: make(map[string]int)}
}

// Add marks one more dispatch of jobID as running.
func (r *RunningSet) Add(jobID string) {
	r.mu.Lock()
	r.counts[jobID]++
	r.mu.Unlock()
}

// Remove marks one dispatch of jobID as done.
func (r *RunningSet) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts[jobID] <= 1 {
		delete(r.counts, jobID)
		return
	}
	r.counts[jobID]--
}

// IsRunning reports whether any dispatch of jobID is in flight.
func (r *RunningSet) IsRunning(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[jobID] > 0
}

// IDs returns the running job IDs in no particular order.
func (r *RunningSet) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.counts))
	for id := range r.counts {
		ids = append(ids, id)
	}
	return ids
}
