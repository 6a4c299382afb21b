package dispatchx

import (
	"fmt"

	"go.uber.org/zap"
)

// reconcile diffs the desired subscription list for state against the
// running set, cancels what disappeared, and starts what appeared. Called
// with the commit lock held.
//
// Nil and zero entries are filtered before diffing, so conditional entries
// built with When cost nothing when their condition is false. Duplicate
// descriptors collapse to a single running instance. Matching is by Key, so
// recomputing the list every commit never restarts a subscription whose
// descriptor is structurally unchanged.
func (r *Runtime[S]) reconcile(state S) {
	if r.app.Subscriptions == nil {
		return
	}
	desired := r.app.Subscriptions(state)
	want := make(map[string]Subscription[S], len(desired))
	order := make([]string, 0, len(desired))
	for _, sub := range desired {
		if sub.Runner == nil {
			continue
		}
		key := Key(sub)
		if _, dup := want[key]; dup {
			continue
		}
		want[key] = sub
		order = append(order, key)
	}

	for key, run := range r.running {
		if _, keep := want[key]; !keep {
			r.cancelSubscription(key, run)
			delete(r.running, key)
		}
	}

	for _, key := range order {
		if _, up := r.running[key]; up {
			continue
		}
		sub := want[key]
		cancel, err := sub.Runner.Start(r.Dispatch, sub.Data)
		if err != nil {
			r.log.Error("subscription start failed", zap.String("subscription", key), zap.Error(err))
			r.fault(FaultSubscriptionStart, key, err)
			continue
		}
		if cancel == nil {
			cancel = func() {}
		}
		r.running[key] = runningSub{cancel: cancel}
		r.log.Debug("subscription started", zap.String("subscription", key))
	}
}

// cancelSubscription tears one subscription down, containing panics so a
// faulty cancel function cannot take down the commit path or strand the
// remaining teardowns.
func (r *Runtime[S]) cancelSubscription(key string, run runningSub) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("subscription teardown panicked", zap.String("subscription", key), zap.Any("panic", rec))
			r.fault(FaultSubscriptionTeardown, key, fmt.Errorf("panic: %v", rec))
		}
	}()
	run.cancel()
	r.log.Debug("subscription stopped", zap.String("subscription", key))
}
