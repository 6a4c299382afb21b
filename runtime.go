package dispatchx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/dispatchx/internal/logutil"
)

// DefaultQueueSize is the capacity of the deferred-dispatch queue when
// WithQueueSize is not given.
const DefaultQueueSize = 256

// recordBuffer is the capacity of the commit-record channel feeding the
// archive loop.
const recordBuffer = 256

var (
	// ErrAlreadyStarted is returned by Start on a running runtime.
	ErrAlreadyStarted = errors.New("dispatchx: runtime already started")
	// ErrNotStarted is returned when a lifecycle or queue operation needs a
	// running runtime and it has not been started.
	ErrNotStarted = errors.New("dispatchx: runtime not started")
	// ErrStopped is returned once Stop has been called; a stopped runtime
	// cannot be restarted.
	ErrStopped = errors.New("dispatchx: runtime stopped")
	// ErrQueueFull is returned by Defer when the deferred-dispatch queue is
	// at capacity.
	ErrQueueFull = errors.New("dispatchx: deferred queue full")
	// ErrNilAction is returned by Defer when given a nil action.
	ErrNilAction = errors.New("dispatchx: nil action")
)

// Fault stages, as delivered to the WithErrorHook callback.
const (
	FaultEffect               = "effect"
	FaultSubscriptionStart    = "subscription_start"
	FaultSubscriptionTeardown = "subscription_teardown"
)

// Fault describes a failure the runtime observed off the action path: an
// effect that returned an error or panicked, a subscription that failed to
// start, or a teardown that panicked. Action panics are not faults; they
// propagate to the Dispatch caller.
type Fault struct {
	Stage  string // FaultEffect, FaultSubscriptionStart, or FaultSubscriptionTeardown
	Source string // effect runner type name, or subscription key
	Err    error
}

const (
	phaseNew int32 = iota
	phaseRunning
	phaseStopped
)

func phaseString(p int32) string {
	switch p {
	case phaseRunning:
		return "running"
	case phaseStopped:
		return "stopped"
	default:
		return "new"
	}
}

// Runtime drives one application: it owns the state, serializes dispatches,
// reconciles subscriptions, renders, and schedules effects.
//
// Dispatch calls are linearized. Each one runs its action against the state
// left by the previous commit, installs the result, diffs subscriptions, and
// hands the new view to the render sink before returning. Effects returned
// by the action start on their own goroutines after the commit section ends,
// so a caller that dispatches and then reads State observes its own commit,
// but never the effects' follow-ups unless they have already raced in.
//
// Dispatch must not be called from inside an action, a view, or a patch
// function; the commit lock is not reentrant and the call would deadlock.
// Code on the commit path that needs another transition uses Defer, which
// queues the dispatch for delivery after the current commit completes.
//
// A Runtime passes through three phases: new, running, stopped. Only Start
// moves it forward and the path is one way; create a new Runtime rather than
// restarting a stopped one.
type Runtime[S any] struct {
	app       App[S]
	log       *zap.Logger
	archiver  Archiver[S]
	publisher Publisher[S]
	errHook   func(Fault)
	queueSize int
	baseCtx   context.Context

	phase    atomic.Int32
	inflight atomic.Int64

	mu      sync.RWMutex
	state   S
	seq     uint64
	running map[string]runningSub

	deferred     chan deferredDispatch[S]
	quit         chan struct{}
	pumpDone     chan struct{}
	archiveCh    chan CommitRecord[S]
	archiveDone  chan struct{}
	effectCtx    context.Context
	effectCancel context.CancelFunc
}

type runningSub struct {
	cancel CancelFunc
}

type deferredDispatch[S any] struct {
	action  Action[S]
	payload any
}

// New builds a runtime for app. The runtime holds app.Initial as its state
// but commits nothing until Start.
func New[S any](app App[S], opts ...Option[S]) *Runtime[S] {
	r := &Runtime[S]{
		app:       app,
		log:       zap.NewNop(),
		queueSize: DefaultQueueSize,
		baseCtx:   context.Background(),
		running:   make(map[string]runningSub),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.state = app.Initial
	return r
}

// Start commits the initial state, reconciles the first subscription set,
// renders once, and schedules the app's Init effects. It is not idempotent:
// a second call returns ErrAlreadyStarted, and a call after Stop returns
// ErrStopped.
func (r *Runtime[S]) Start() error {
	r.mu.Lock()
	switch r.phase.Load() {
	case phaseRunning:
		r.mu.Unlock()
		return ErrAlreadyStarted
	case phaseStopped:
		r.mu.Unlock()
		return ErrStopped
	}

	r.effectCtx, r.effectCancel = context.WithCancel(r.baseCtx)
	r.deferred = make(chan deferredDispatch[S], r.queueSize)
	r.quit = make(chan struct{})
	r.pumpDone = make(chan struct{})
	if r.archiver != nil || r.publisher != nil {
		r.archiveCh = make(chan CommitRecord[S], recordBuffer)
		r.archiveDone = make(chan struct{})
		go r.archiveLoop()
	}
	r.phase.Store(phaseRunning)

	r.seq++
	r.log.Debug("started", zap.Uint64("seq", r.seq))
	r.record(CommitRecord[S]{Seq: r.seq, State: r.state, At: time.Now()})
	r.reconcile(r.state)
	r.render(r.state)
	init := r.app.Init
	r.mu.Unlock()

	go r.pump()
	r.schedule(init)
	return nil
}

// Stop cancels every running subscription, cancels the effect context, and
// shuts down the deferred-dispatch and archive loops. Dispatches that arrive
// after Stop are dropped. Stop does not wait for in-flight effects; they
// observe the canceled context and their late dispatches are dropped too.
//
// Stop must not be called from effect or subscription code.
func (r *Runtime[S]) Stop() error {
	r.mu.Lock()
	switch r.phase.Load() {
	case phaseNew:
		r.mu.Unlock()
		return ErrNotStarted
	case phaseStopped:
		r.mu.Unlock()
		return ErrStopped
	}
	r.phase.Store(phaseStopped)
	close(r.quit)
	for key, run := range r.running {
		r.cancelSubscription(key, run)
	}
	clear(r.running)
	r.mu.Unlock()

	r.effectCancel()
	<-r.pumpDone
	if r.archiveCh != nil {
		close(r.archiveCh)
		<-r.archiveDone
	}
	r.log.Debug("stopped")
	return nil
}

// Dispatch runs action against the current state and commits the result.
// It returns after the new state is installed, subscriptions are reconciled,
// and the view has been handed to the render sink; effects returned by the
// action are scheduled on their own goroutines and may still be running.
//
// A nil action is ignored. Dispatches on a runtime that is not running are
// dropped. If the action panics, the panic propagates to the caller and the
// state keeps its previous value.
func (r *Runtime[S]) Dispatch(action Action[S], payload any) {
	if action == nil {
		r.log.Debug("nil action ignored")
		return
	}
	effects, ok := r.commit(action, payload)
	if ok {
		r.schedule(effects)
	}
}

func (r *Runtime[S]) commit(action Action[S], payload any) ([]Effect[S], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase.Load() != phaseRunning {
		r.log.Debug("dispatch dropped",
			zap.String("action", logutil.FuncName(action)),
			zap.String("phase", phaseString(r.phase.Load())))
		return nil, false
	}
	next, effects := action(r.state, payload)
	r.state = next
	r.seq++
	r.log.Debug("commit",
		zap.Uint64("seq", r.seq),
		zap.String("action", logutil.FuncName(action)),
		zap.Int("effects", len(effects)))
	r.record(CommitRecord[S]{Seq: r.seq, State: next, At: time.Now()})
	r.reconcile(next)
	r.render(next)
	return effects, true
}

func (r *Runtime[S]) render(state S) {
	if r.app.View == nil || r.app.Patch == nil {
		return
	}
	r.app.Patch(r.app.View(state))
}

func (r *Runtime[S]) schedule(effects []Effect[S]) {
	for _, ef := range effects {
		if ef.Runner == nil {
			continue
		}
		r.inflight.Add(1)
		go r.runEffect(ef)
	}
}

func (r *Runtime[S]) runEffect(ef Effect[S]) {
	defer r.inflight.Add(-1)
	name := logutil.TypeName(ef.Runner)
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("effect panicked", zap.String("effect", name), zap.Any("panic", rec))
			r.fault(FaultEffect, name, fmt.Errorf("panic: %v", rec))
		}
	}()
	if err := ef.Runner.Run(r.effectCtx, r.Dispatch, ef.Data); err != nil {
		r.log.Error("effect failed", zap.String("effect", name), zap.Error(err))
		r.fault(FaultEffect, name, err)
	}
}

// fault hands a kernel-observed failure to the error hook, if one is set.
func (r *Runtime[S]) fault(stage, source string, err error) {
	if r.errHook == nil {
		return
	}
	r.errHook(Fault{Stage: stage, Source: source, Err: err})
}

// Defer queues a dispatch for delivery after the current commit section
// completes. It never blocks: when the queue is full it returns ErrQueueFull
// and the dispatch is not queued. Queued dispatches are delivered in order
// by a single goroutine, so two Defer calls from the same goroutine commit
// in call order.
//
// Defer is the escape hatch for code running on the commit path, such as a
// patch function reacting to its own render. Effects and subscriptions
// should call Dispatch directly.
func (r *Runtime[S]) Defer(action Action[S], payload any) error {
	if action == nil {
		return ErrNilAction
	}
	switch r.phase.Load() {
	case phaseNew:
		return ErrNotStarted
	case phaseStopped:
		return ErrStopped
	}
	select {
	case r.deferred <- deferredDispatch[S]{action: action, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Runtime[S]) pump() {
	defer close(r.pumpDone)
	for {
		select {
		case <-r.quit:
			return
		case d := <-r.deferred:
			r.Dispatch(d.action, d.payload)
		}
	}
}

// State returns the most recently committed state.
func (r *Runtime[S]) State() S {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Seq returns the number of commits so far. It is zero before Start; the
// initial state commits as sequence one.
func (r *Runtime[S]) Seq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

func (r *Runtime[S]) record(rec CommitRecord[S]) {
	if r.archiveCh == nil {
		return
	}
	select {
	case r.archiveCh <- rec:
	default:
		r.log.Warn("commit record dropped", zap.Uint64("seq", rec.Seq))
	}
}
