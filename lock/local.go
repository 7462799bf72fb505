package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Local serializes holders within one process with a weighted semaphore
// per key. Semaphores are dropped once nobody holds or waits on them.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

var _ Provider = (*Local)(nil)

// NewLocal creates an in-process lock provider.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// TryAcquire implements Provider.
func (l *Local) TryAcquire(ctx context.Context, key string, timeout time.Duration) (Handle, error) {
	s := l.ref(key)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		l.unref(key)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	return &localHandle{owner: l, key: key, slot: s}, nil
}

// Held reports whether key is currently locked.
func (l *Local) Held(key string) bool {
	l.mu.Lock()
	s, ok := l.slots[key]
	l.mu.Unlock()
	if !ok {
		return false
	}
	if s.sem.TryAcquire(1) {
		s.sem.Release(1)
		return false
	}
	return true
}

func (l *Local) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(l.slots, key)
	}
}

type localHandle struct {
	owner *Local
	key   string
	slot  *slot
	once  sync.Once
}

func (h *localHandle) Release(context.Context) error {
	h.once.Do(func() {
		h.slot.sem.Release(1)
		h.owner.unref(h.key)
	})
	return nil
}
