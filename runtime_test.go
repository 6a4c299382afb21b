package dispatchx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type model struct {
	Count int
	Log   []string
}

func inc(s model, _ any) (model, []Effect[model]) {
	return model{Count: s.Count + 1, Log: s.Log}, nil
}

func add(s model, p any) (model, []Effect[model]) {
	return model{Count: s.Count + p.(int), Log: s.Log}, nil
}

func tag(s model, p any) (model, []Effect[model]) {
	next := append(append([]string(nil), s.Log...), p.(string))
	return model{Count: s.Count, Log: next}, nil
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

type viewSink struct {
	mu    sync.Mutex
	views []any
}

func (s *viewSink) patch(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, v)
}

func (s *viewSink) all() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.views...)
}

func TestStartCommitsInitialState(t *testing.T) {
	rt := New(App[model]{Initial: model{Count: 7}})
	if rt.Seq() != 0 {
		t.Fatalf("seq %d before start, want 0", rt.Seq())
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()
	if rt.Seq() != 1 {
		t.Fatalf("seq %d after start, want 1", rt.Seq())
	}
	if got := rt.State().Count; got != 7 {
		t.Fatalf("state %d after start, want 7", got)
	}
}

func TestLifecycleErrors(t *testing.T) {
	rt := New(App[model]{})
	if err := rt.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("stop before start: %v, want ErrNotStarted", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rt.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: %v, want ErrAlreadyStarted", err)
	}
	if err := rt.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := rt.Stop(); !errors.Is(err, ErrStopped) {
		t.Fatalf("second stop: %v, want ErrStopped", err)
	}
	if err := rt.Start(); !errors.Is(err, ErrStopped) {
		t.Fatalf("start after stop: %v, want ErrStopped", err)
	}
}

func TestDispatchCommitsSynchronously(t *testing.T) {
	rt := New(App[model]{})
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	rt.Dispatch(inc, nil)
	if got := rt.State().Count; got != 1 {
		t.Fatalf("state %d after dispatch returned, want 1", got)
	}
	rt.Dispatch(add, 5)
	if got := rt.State().Count; got != 6 {
		t.Fatalf("state %d, want 6", got)
	}
	if rt.Seq() != 3 {
		t.Fatalf("seq %d, want 3", rt.Seq())
	}
}

func TestActionsReturnNewStateWithoutMutatingInput(t *testing.T) {
	orig := model{Count: 3, Log: []string{"a"}}
	frozen := model{Count: 3, Log: []string{"a"}}

	first, _ := tag(orig, "b")
	second, _ := tag(orig, "b")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("same inputs produced different states (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(frozen, orig); diff != "" {
		t.Fatalf("action mutated its input state (-want +got):\n%s", diff)
	}
}

func TestDispatchOutsideRunningPhaseDropped(t *testing.T) {
	rt := New(App[model]{})
	rt.Dispatch(inc, nil)
	if rt.Seq() != 0 {
		t.Fatal("dispatch before start committed")
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rt.Dispatch(inc, nil)
	if err := rt.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rt.Dispatch(inc, nil)
	if got := rt.State().Count; got != 1 {
		t.Fatalf("state %d after post-stop dispatch, want 1", got)
	}
	if rt.Seq() != 2 {
		t.Fatalf("seq %d after post-stop dispatch, want 2", rt.Seq())
	}
}

func TestNilActionIgnored(t *testing.T) {
	rt := New(App[model]{})
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()
	rt.Dispatch(nil, "payload")
	if rt.Seq() != 1 {
		t.Fatalf("nil action committed, seq %d", rt.Seq())
	}
}

func TestActionPanicLeavesStateUncommitted(t *testing.T) {
	rt := New(App[model]{})
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()
	rt.Dispatch(inc, nil)

	boom := func(model, any) (model, []Effect[model]) { panic("boom") }
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("action panic did not propagate to the dispatcher")
			}
		}()
		rt.Dispatch(boom, nil)
	}()

	if got := rt.State().Count; got != 1 {
		t.Fatalf("state %d after panicking action, want 1", got)
	}
	if rt.Seq() != 2 {
		t.Fatalf("seq %d after panicking action, want 2", rt.Seq())
	}
	rt.Dispatch(inc, nil)
	if got := rt.State().Count; got != 2 {
		t.Fatalf("runtime unusable after contained panic: state %d", got)
	}
}

func TestConcurrentDispatchesLinearize(t *testing.T) {
	rt := New(App[model]{})
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	const workers, per = 8, 200
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				rt.Dispatch(inc, nil)
			}
		}()
	}
	wg.Wait()

	if got := rt.State().Count; got != workers*per {
		t.Fatalf("state %d after concurrent dispatches, want %d", got, workers*per)
	}
	if rt.Seq() != workers*per+1 {
		t.Fatalf("seq %d, want %d", rt.Seq(), workers*per+1)
	}
}

func TestRendersFollowCommitOrder(t *testing.T) {
	sink := &viewSink{}
	rt := New(App[model]{
		View:  func(s model) any { return s.Count },
		Patch: sink.patch,
	})
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	const workers, per = 4, 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				rt.Dispatch(inc, nil)
			}
		}()
	}
	wg.Wait()

	views := sink.all()
	if len(views) != workers*per+1 {
		t.Fatalf("%d renders, want %d", len(views), workers*per+1)
	}
	for i, v := range views {
		if v.(int) != i {
			t.Fatalf("render %d carried count %v; renders out of commit order", i, v)
		}
	}
}

func TestEffectsRunAfterCommit(t *testing.T) {
	rt := New(App[model]{})
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	release := make(chan struct{})
	follow := func(s model, _ any) (model, []Effect[model]) {
		return model{Count: s.Count + 100}, nil
	}
	gated := EffectFunc[model](func(ctx context.Context, dispatch Dispatch[model], _ any) error {
		<-release
		dispatch(follow, nil)
		return nil
	})
	step := func(s model, _ any) (model, []Effect[model]) {
		return model{Count: s.Count + 1}, []Effect[model]{{Runner: gated}}
	}

	rt.Dispatch(step, nil)
	if got := rt.State().Count; got != 1 {
		t.Fatalf("intermediate state %d not observable after dispatch returned, want 1", got)
	}
	close(release)
	eventually(t, func() bool { return rt.State().Count == 101 }, "effect's follow-up dispatch never committed")
	if rt.Seq() != 3 {
		t.Fatalf("seq %d, want 3", rt.Seq())
	}
}

func TestInitEffectsScheduledAtStart(t *testing.T) {
	var runs atomic.Int32
	loader := EffectFunc[model](func(ctx context.Context, dispatch Dispatch[model], data any) error {
		runs.Add(1)
		dispatch(add, data)
		return nil
	})
	rt := New(App[model]{
		Init: []Effect[model]{{Runner: loader, Data: 42}},
	})
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	eventually(t, func() bool { return rt.State().Count == 42 }, "init effect never dispatched")
	if runs.Load() != 1 {
		t.Fatalf("init effect ran %d times, want 1", runs.Load())
	}
}

func TestEffectFailureIsLoggedAndLost(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rt := New(App[model]{}, WithLogger[model](zap.New(core)))
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	failing := EffectFunc[model](func(context.Context, Dispatch[model], any) error {
		return errors.New("connection refused")
	})
	step := func(s model, _ any) (model, []Effect[model]) {
		return model{Count: s.Count + 1}, []Effect[model]{{Runner: failing}}
	}
	rt.Dispatch(step, nil)

	eventually(t, func() bool { return logs.FilterMessage("effect failed").Len() == 1 }, "effect failure never logged")
	if got := rt.State().Count; got != 1 {
		t.Fatalf("failed effect affected state: %d", got)
	}
	rt.Dispatch(inc, nil)
	if got := rt.State().Count; got != 2 {
		t.Fatalf("runtime wedged after effect failure: state %d", got)
	}
}

func TestEffectPanicContained(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rt := New(App[model]{}, WithLogger[model](zap.New(core)))
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	exploding := EffectFunc[model](func(context.Context, Dispatch[model], any) error {
		panic("runner bug")
	})
	step := func(s model, _ any) (model, []Effect[model]) {
		return s, []Effect[model]{{Runner: exploding}}
	}
	rt.Dispatch(step, nil)

	eventually(t, func() bool { return logs.FilterMessage("effect panicked").Len() == 1 }, "effect panic never logged")
	rt.Dispatch(inc, nil)
	if got := rt.State().Count; got != 1 {
		t.Fatalf("runtime wedged after effect panic: state %d", got)
	}
}

func TestErrorHookObservesFaults(t *testing.T) {
	var mu sync.Mutex
	var faults []Fault
	hook := func(f Fault) {
		mu.Lock()
		defer mu.Unlock()
		faults = append(faults, f)
	}
	stageCount := func(stage string) int {
		mu.Lock()
		defer mu.Unlock()
		n := 0
		for _, f := range faults {
			if f.Stage == stage {
				n++
			}
		}
		return n
	}

	badStart := SubscriptionFunc[model](func(Dispatch[model], any) (CancelFunc, error) {
		return nil, errors.New("no device")
	})
	badStop := SubscriptionFunc[model](func(Dispatch[model], any) (CancelFunc, error) {
		return func() { panic("teardown bug") }, nil
	})
	rt := New(App[model]{
		Subscriptions: func(s model) []Subscription[model] {
			return []Subscription[model]{
				{Runner: badStart, Data: "mic"},
				When(s.Count == 0, Subscription[model]{Runner: badStop, Data: "cam"}),
			}
		},
	}, WithErrorHook[model](hook))
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	if got := stageCount(FaultSubscriptionStart); got != 1 {
		t.Fatalf("%d start faults after first reconcile, want 1", got)
	}

	failing := EffectFunc[model](func(context.Context, Dispatch[model], any) error {
		return errors.New("connection refused")
	})
	step := func(s model, _ any) (model, []Effect[model]) {
		return model{Count: s.Count + 1}, []Effect[model]{{Runner: failing}}
	}
	rt.Dispatch(step, nil)
	eventually(t, func() bool { return stageCount(FaultEffect) == 1 }, "effect fault never reached the hook")
	if got := stageCount(FaultSubscriptionTeardown); got != 1 {
		t.Fatalf("%d teardown faults, want 1", got)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, f := range faults {
		if f.Err == nil || f.Source == "" {
			t.Fatalf("fault missing detail: %+v", f)
		}
	}
}

func TestDeferDeliversInOrder(t *testing.T) {
	rt := New(App[model]{})
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	for _, p := range []string{"a", "b", "c"} {
		if err := rt.Defer(tag, p); err != nil {
			t.Fatalf("defer %q: %v", p, err)
		}
	}
	eventually(t, func() bool { return len(rt.State().Log) == 3 }, "deferred dispatches never delivered")
	got := rt.State().Log
	for i, want := range []string{"a", "b", "c"} {
		if got[i] != want {
			t.Fatalf("deferred order %v, want [a b c]", got)
		}
	}
}

func TestDeferLifecycleErrors(t *testing.T) {
	rt := New(App[model]{})
	if err := rt.Defer(inc, nil); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("defer before start: %v, want ErrNotStarted", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rt.Defer(nil, nil); !errors.Is(err, ErrNilAction) {
		t.Fatalf("defer nil action: %v, want ErrNilAction", err)
	}
	if err := rt.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := rt.Defer(inc, nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("defer after stop: %v, want ErrStopped", err)
	}
}

func TestDeferQueueFull(t *testing.T) {
	rt := New(App[model]{}, WithQueueSize[model](1))
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	entered := make(chan struct{})
	release := make(chan struct{})
	blocker := func(s model, _ any) (model, []Effect[model]) {
		close(entered)
		<-release
		return s, nil
	}
	if err := rt.Defer(blocker, nil); err != nil {
		t.Fatalf("defer blocker: %v", err)
	}
	<-entered

	if err := rt.Defer(inc, nil); err != nil {
		t.Fatalf("defer into empty queue: %v", err)
	}
	if err := rt.Defer(inc, nil); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("defer into full queue: %v, want ErrQueueFull", err)
	}
	close(release)
	eventually(t, func() bool { return rt.State().Count == 1 }, "queued dispatch never delivered after unblock")
}

func TestArchiverReceivesRecordsInOrder(t *testing.T) {
	var mu sync.Mutex
	var recs []CommitRecord[model]
	archiver := ArchiverFunc[model](func(rec CommitRecord[model]) error {
		mu.Lock()
		defer mu.Unlock()
		recs = append(recs, rec)
		return nil
	})
	rt := New(App[model]{Initial: model{Count: 10}}, WithArchiver[model](archiver))
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	for i := 0; i < 5; i++ {
		rt.Dispatch(inc, nil)
	}
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(recs) == 6
	}, "archiver never received all commit records")

	mu.Lock()
	defer mu.Unlock()
	for i, rec := range recs {
		if rec.Seq != uint64(i+1) {
			t.Fatalf("record %d carries seq %d; records out of commit order", i, rec.Seq)
		}
		if rec.State.Count != 10+i {
			t.Fatalf("record %d carries count %d, want %d", i, rec.State.Count, 10+i)
		}
		if rec.At.IsZero() {
			t.Fatalf("record %d missing timestamp", i)
		}
	}
}

func TestPublisherSeesEveryCommit(t *testing.T) {
	pub := NewChannelPublisher[model](16)
	rt := New(App[model]{}, WithPublisher[model](pub))
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	rt.Dispatch(inc, nil)
	rt.Dispatch(inc, nil)
	for want := uint64(1); want <= 3; want++ {
		select {
		case rec := <-pub.C:
			if rec.Seq != want {
				t.Fatalf("published seq %d, want %d", rec.Seq, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("commit %d never published", want)
		}
	}
}

func TestArchiveFailureDoesNotAffectDispatch(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	archiver := ArchiverFunc[model](func(CommitRecord[model]) error {
		return errors.New("disk full")
	})
	rt := New(App[model]{}, WithLogger[model](zap.New(core)), WithArchiver[model](archiver))
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	rt.Dispatch(inc, nil)
	if got := rt.State().Count; got != 1 {
		t.Fatalf("archive failure leaked into dispatch: state %d", got)
	}
	eventually(t, func() bool { return logs.FilterMessage("archive failed").Len() >= 1 }, "archive failure never logged")
}

func TestStopCancelsEffectContext(t *testing.T) {
	var canceled atomic.Bool
	waiter := EffectFunc[model](func(ctx context.Context, _ Dispatch[model], _ any) error {
		<-ctx.Done()
		canceled.Store(true)
		return ctx.Err()
	})
	rt := New(App[model]{Init: []Effect[model]{{Runner: waiter}}})
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rt.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	eventually(t, func() bool { return canceled.Load() }, "effect context not canceled by stop")
}

func TestBaseContextCancellationReachesEffects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var canceled atomic.Bool
	waiter := EffectFunc[model](func(ctx context.Context, _ Dispatch[model], _ any) error {
		<-ctx.Done()
		canceled.Store(true)
		return nil
	})
	rt := New(App[model]{Init: []Effect[model]{{Runner: waiter}}}, WithBaseContext[model](ctx))
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	cancel()
	eventually(t, func() bool { return canceled.Load() }, "base context cancellation never reached the effect")
}

func TestRuntimesAreIndependent(t *testing.T) {
	a := New(App[model]{})
	b := New(App[model]{Initial: model{Count: 100}})
	for _, rt := range []*Runtime[model]{a, b} {
		if err := rt.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer rt.Stop()
	}
	a.Dispatch(inc, nil)
	a.Dispatch(inc, nil)
	b.Dispatch(inc, nil)
	if got := a.State().Count; got != 2 {
		t.Fatalf("first runtime state %d, want 2", got)
	}
	if got := b.State().Count; got != 101 {
		t.Fatalf("second runtime state %d, want 101", got)
	}
}

func TestSnapshotReportsRuntimeShape(t *testing.T) {
	source := SubscriptionFunc[model](func(Dispatch[model], any) (CancelFunc, error) {
		return func() {}, nil
	})
	rt := New(App[model]{
		Subscriptions: func(model) []Subscription[model] {
			return []Subscription[model]{{Runner: source, Data: "clock"}}
		},
	}, WithQueueSize[model](32))

	snap := rt.Snapshot()
	if snap.Phase != "new" || snap.Seq != 0 {
		t.Fatalf("pre-start snapshot %+v", snap)
	}

	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rt.Dispatch(inc, nil)
	snap = rt.Snapshot()
	if snap.Phase != "running" {
		t.Fatalf("phase %q, want running", snap.Phase)
	}
	if snap.Seq != 2 {
		t.Fatalf("snapshot seq %d, want 2", snap.Seq)
	}
	if len(snap.Subscriptions) != 1 {
		t.Fatalf("snapshot lists %d subscriptions, want 1", len(snap.Subscriptions))
	}
	if snap.QueueCap != 32 {
		t.Fatalf("queue cap %d, want 32", snap.QueueCap)
	}

	if err := rt.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	snap = rt.Snapshot()
	if snap.Phase != "stopped" {
		t.Fatalf("phase %q after stop, want stopped", snap.Phase)
	}
	if len(snap.Subscriptions) != 0 {
		t.Fatalf("snapshot lists %d subscriptions after stop, want 0", len(snap.Subscriptions))
	}
}
