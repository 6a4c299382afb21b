// Package testutil provides recording runners, sinks, and polling helpers
// for exercising a runtime from tests. Effects and subscriptions complete on
// their own goroutines, so assertions about their outcomes poll with
// Eventually instead of sleeping fixed amounts.
package testutil

import (
	"sync"
	"testing"
	"time"
)

// Eventually polls cond every couple of milliseconds until it returns true
// or the timeout elapses, then fails the test with the given message.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf(format, args...)
}

// Never verifies cond stays false for the whole window. Use sparingly; it
// costs the full window on every run.
func Never(t *testing.T, window time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatalf(format, args...)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// CaptureSink records every view handed to Patch. Wire its Patch method as
// the app's render sink and assert on Count, Last, or All.
type CaptureSink struct {
	mu    sync.Mutex
	views []any
}

// Patch records view.
func (s *CaptureSink) Patch(view any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, view)
}

// Count returns how many views have been recorded.
func (s *CaptureSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

// Last returns the most recent view, or nil when nothing has rendered.
func (s *CaptureSink) Last() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.views) == 0 {
		return nil
	}
	return s.views[len(s.views)-1]
}

// All returns a copy of every recorded view in render order.
func (s *CaptureSink) All() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.views))
	copy(out, s.views)
	return out
}
