package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/comalice/dispatchx"
)

// CountingRunner is an effect runner that counts its invocations. When Next
// is set it dispatches Next with the effect's data as payload before
// returning Err.
type CountingRunner[S any] struct {
	Next dispatchx.Action[S]
	Err  error

	mu   sync.Mutex
	runs int
}

// Run implements dispatchx.EffectRunner.
func (c *CountingRunner[S]) Run(ctx context.Context, dispatch dispatchx.Dispatch[S], data any) error {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
	if c.Next != nil {
		dispatch(c.Next, data)
	}
	return c.Err
}

// Runs returns how many times the runner has been invoked.
func (c *CountingRunner[S]) Runs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

// ErrStartFailed is the error ManualSource returns while its Fail budget is
// positive.
var ErrStartFailed = errors.New("testutil: subscription start failed")

// ManualSource is a subscription runner driven entirely by the test. It
// records starts and cancels, and after a successful start the test emits
// dispatches through Emit. Setting Fail makes the next that many Start calls
// return ErrStartFailed, which is how start-retry behavior is exercised.
//
// A ManualSource is used as a pointer, so its subscription identity is the
// instance itself.
type ManualSource[S any] struct {
	Fail int

	mu       sync.Mutex
	starts   int
	cancels  int
	dispatch dispatchx.Dispatch[S]
}

// Start implements dispatchx.SubscriptionRunner.
func (m *ManualSource[S]) Start(dispatch dispatchx.Dispatch[S], data any) (dispatchx.CancelFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.Fail > 0 {
		m.Fail--
		return nil, ErrStartFailed
	}
	m.dispatch = dispatch
	return func() {
		m.mu.Lock()
		m.cancels++
		m.dispatch = nil
		m.mu.Unlock()
	}, nil
}

// Emit dispatches through the subscription, reporting false when the source
// is not running. Call it from the test goroutine, never from inside a
// commit.
func (m *ManualSource[S]) Emit(action dispatchx.Action[S], payload any) bool {
	m.mu.Lock()
	dispatch := m.dispatch
	m.mu.Unlock()
	if dispatch == nil {
		return false
	}
	dispatch(action, payload)
	return true
}

// Starts returns how many times Start has been called, failures included.
func (m *ManualSource[S]) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Cancels returns how many times the subscription has been torn down.
func (m *ManualSource[S]) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// RecordingArchiver keeps every commit record it receives, in delivery
// order.
type RecordingArchiver[S any] struct {
	mu   sync.Mutex
	recs []dispatchx.CommitRecord[S]
}

// Archive implements dispatchx.Archiver.
func (a *RecordingArchiver[S]) Archive(rec dispatchx.CommitRecord[S]) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

// Records returns a copy of the records received so far.
func (a *RecordingArchiver[S]) Records() []dispatchx.CommitRecord[S] {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]dispatchx.CommitRecord[S], len(a.recs))
	copy(out, a.recs)
	return out
}
