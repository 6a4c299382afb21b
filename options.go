package dispatchx

import (
	"context"

	"go.uber.org/zap"
)

// Option configures a Runtime at construction.
type Option[S any] func(*Runtime[S])

// WithLogger sets the runtime's logger. Without it the runtime logs nothing.
func WithLogger[S any](log *zap.Logger) Option[S] {
	return func(r *Runtime[S]) {
		if log != nil {
			r.log = log
		}
	}
}

// WithArchiver attaches a durable sink for commit records. Records are
// delivered in commit order by a dedicated goroutine; archiving never blocks
// or fails a dispatch.
func WithArchiver[S any](a Archiver[S]) Option[S] {
	return func(r *Runtime[S]) {
		r.archiver = a
	}
}

// WithPublisher attaches an observer for commit records, delivered in commit
// order after the archiver.
func WithPublisher[S any](p Publisher[S]) Option[S] {
	return func(r *Runtime[S]) {
		r.publisher = p
	}
}

// WithErrorHook registers a callback for faults the runtime observes off the
// action path: effect failures and panics, subscription start failures, and
// teardown panics. Faults are logged whether or not a hook is set; the hook
// is for feeding them back into the application, typically via Defer with an
// error action.
//
// Effect faults arrive on the effect's goroutine. Start and teardown faults
// arrive on the commit path with the runtime lock held, so the hook must
// return quickly and must not call Dispatch.
func WithErrorHook[S any](hook func(Fault)) Option[S] {
	return func(r *Runtime[S]) {
		r.errHook = hook
	}
}

// WithQueueSize sets the capacity of the deferred-dispatch queue. Values
// below one are ignored.
func WithQueueSize[S any](n int) Option[S] {
	return func(r *Runtime[S]) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithBaseContext sets the parent of the effect context. Canceling ctx
// cancels every in-flight effect; Stop does the same through its own child
// context.
func WithBaseContext[S any](ctx context.Context) Option[S] {
	return func(r *Runtime[S]) {
		if ctx != nil {
			r.baseCtx = ctx
		}
	}
}
