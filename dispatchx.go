// Package dispatchx provides a small dispatch runtime for applications built
// from one immutable state value, pure actions, one-shot effects, and
// declaratively managed subscriptions.
//
// The model has four moving parts:
//
//   - State: a single application-defined value, replaced wholesale on every
//     commit, never mutated in place.
//   - Action: a pure function from (state, payload) to a replacement state,
//     optionally paired with effects to run.
//   - Effect: a descriptor naming an impure one-shot operation; the runtime
//     invokes its runner exactly once per scheduling and the runner reports
//     back through dispatch.
//   - Subscription: a long-lived effect with a cancellation handle; after
//     every commit the runtime diffs the desired subscription list against
//     the running set and starts or stops the difference.
//
// All state transitions flow through a single Dispatch entry point per
// Runtime instance. Dispatch is synchronous: when it returns, the new state
// is committed, subscriptions are reconciled, and the view has been handed
// to the render sink. Effects returned by the action are scheduled on their
// own goroutines after the commit and never delay it.
//
// Actions must be pure. The only places impure calls may occur are inside an
// EffectRunner or a SubscriptionRunner; that indirection is what keeps
// action and state code free of I/O and trivially testable.
package dispatchx

import "context"

// Action computes a replacement state from the current state and a dispatch
// payload. Returning a nil effect slice is the plain-transition form.
//
// Actions must be pure: no I/O, no clocks, no random numbers, and no
// mutation of the state argument. Calling an action twice with the same
// inputs must yield deep-equal results.
//
// An action must not call Runtime.Dispatch from its own body; use
// Runtime.Defer or return an effect instead.
type Action[S any] func(state S, payload any) (S, []Effect[S])

// Dispatch triggers an action against a runtime's current state. It is the
// sole channel through which state transitions enter the runtime. A Dispatch
// value is bound to one Runtime instance and remains valid for its lifetime.
type Dispatch[S any] func(action Action[S], payload any)

// Effect describes a one-shot impure operation as data: the runner that
// performs it and the plain configuration it needs (URLs, keys, follow-up
// actions). The runtime never interprets Data; it is handed to the runner
// verbatim. The zero Effect is inert and is skipped when returned from an
// action.
type Effect[S any] struct {
	Runner EffectRunner[S]
	Data   any
}

// EffectRunner performs the single impure operation an Effect names.
//
// The runner owns the outcome protocol: it calls dispatch with a follow-up
// action on success or failure as its Data prescribes. A runner that returns
// an error (or panics) without having dispatched is a lost failure; the
// runtime logs it and does not retry.
//
// The context is the runtime's effect context; it is canceled when the
// runtime stops. Effects are otherwise not cancellable: once scheduled they
// run to completion or failure.
type EffectRunner[S any] interface {
	Run(ctx context.Context, dispatch Dispatch[S], data any) error
}

// EffectFunc adapts a function to the EffectRunner interface.
type EffectFunc[S any] func(ctx context.Context, dispatch Dispatch[S], data any) error

// Run implements EffectRunner.
func (f EffectFunc[S]) Run(ctx context.Context, dispatch Dispatch[S], data any) error {
	return f(ctx, dispatch, data)
}

// CancelFunc tears down a running subscription. After it returns the stream
// is stopped and no new work begins; a dispatch already in flight on the
// source's goroutine may still be delivered.
type CancelFunc func()

// Subscription describes a long-lived effect: a runner started when the
// descriptor first appears in the desired list and canceled when it
// disappears. The zero Subscription is inert and is filtered out of desired
// lists, which is how conditional entries are expressed (see When).
//
// Identity for reconciliation is structural: the runner's concrete type plus
// a deterministic encoding of Data. Two descriptors with equal structure are
// the same subscription even when freshly allocated, so recomputing the list
// on every commit does not restart anything.
type Subscription[S any] struct {
	Runner SubscriptionRunner[S]
	Data   any
}

// SubscriptionRunner starts the long-lived operation a Subscription names
// and returns the handle that stops it.
//
// Start is called by the reconciler with the runtime lock held; it must not
// call dispatch synchronously. Spawn a goroutine and dispatch from there.
// A returned error means the subscription failed to start; the reconciler
// logs it, leaves the descriptor out of the running set, and retries on the
// next commit.
type SubscriptionRunner[S any] interface {
	Start(dispatch Dispatch[S], data any) (CancelFunc, error)
}

// SubscriptionFunc adapts a function to the SubscriptionRunner interface.
type SubscriptionFunc[S any] func(dispatch Dispatch[S], data any) (CancelFunc, error)

// Start implements SubscriptionRunner.
func (f SubscriptionFunc[S]) Start(dispatch Dispatch[S], data any) (CancelFunc, error) {
	return f(dispatch, data)
}

// When gates a subscription on a condition, returning the zero Subscription
// when the condition is false. It keeps desired-list expressions declarative:
//
//	func subs(s Model) []dispatchx.Subscription[Model] {
//		return []dispatchx.Subscription[Model]{
//			dispatchx.When(s.LiveUpdate, sources.Every(time.Second, Tick)),
//		}
//	}
func When[S any](cond bool, sub Subscription[S]) Subscription[S] {
	if !cond {
		return Subscription[S]{}
	}
	return sub
}

// App bundles everything needed to boot a runtime.
//
// Initial is the first committed state. Init effects are scheduled once at
// Start, after the initial subscription reconciliation and render, so an
// application can begin with a load-from-storage or fetch effect.
//
// Subscriptions computes the desired subscription list for a state; it is
// called after every commit and may be nil for applications without
// long-lived sources. Nil and zero entries in the returned slice are
// filtered before diffing.
//
// View builds an opaque description of the state and Patch applies it to
// whatever output device the application renders on. The runtime calls
// Patch(View(state)) after each commit when both are set; it never inspects
// the description. Neither function may call Dispatch inline; use
// Runtime.Defer for render-driven transitions.
type App[S any] struct {
	Initial       S
	Init          []Effect[S]
	Subscriptions func(S) []Subscription[S]
	View          func(S) any
	Patch         func(any)
}
