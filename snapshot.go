package dispatchx

import "sort"

// RuntimeSnapshot is a point-in-time view of a runtime's internals for
// diagnostics and tests. It carries no state value; pair it with State when
// the data matters too.
type RuntimeSnapshot struct {
	Seq           uint64
	Phase         string
	Subscriptions []string
	QueueLen      int
	QueueCap      int
	InFlight      int64
}

// Snapshot reports the commit count, lifecycle phase, keys of the running
// subscriptions in sorted order, deferred-queue occupancy, and the number of
// effect goroutines still running. Consistent with respect to commits: a
// snapshot never observes a half-applied reconciliation.
func (r *Runtime[S]) Snapshot() RuntimeSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := make([]string, 0, len(r.running))
	for key := range r.running {
		subs = append(subs, key)
	}
	sort.Strings(subs)
	snap := RuntimeSnapshot{
		Seq:           r.seq,
		Phase:         phaseString(r.phase.Load()),
		Subscriptions: subs,
		InFlight:      r.inflight.Load(),
	}
	if r.deferred != nil {
		snap.QueueLen = len(r.deferred)
		snap.QueueCap = cap(r.deferred)
	}
	return snap
}
