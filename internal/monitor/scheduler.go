package monitor

import (
	"sync"
	"time"
)

// taskScheduler keeps at most one pending delayed task per key with
// cancel-and-replace semantics. Scheduling a key that already has a pending
// task re-arms the timer instead of stacking callbacks.
type taskScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTaskScheduler() *taskScheduler {
	return &taskScheduler{timers: make(map[string]*time.Timer)}
}

// Schedule arms fn to run after delay, replacing any pending task for key.
func (s *taskScheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending task for key, if any.
func (s *taskScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// CancelAll drops every pending task. Called on subscription teardown so no
// timer fires against a store handle that is no longer owned.
func (s *taskScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}
