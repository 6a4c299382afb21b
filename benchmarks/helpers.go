// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/comalice/dispatchx"
)

// BenchState is the state shape benchmarks dispatch against: a counter plus
// a field map sized by GenState.
type BenchState struct {
	Count  int
	Fields map[string]string
}

// Tick increments the counter and leaves the rest of the state unchanged.
func Tick(s BenchState, _ any) (BenchState, []dispatchx.Effect[BenchState]) {
	s.Count++
	return s, nil
}

// GenState builds a BenchState carrying n extra fields.
func GenState(n int) BenchState {
	s := BenchState{Fields: make(map[string]string, n)}
	for i := 0; i < n; i++ {
		s.Fields[fmt.Sprintf("f%d", i)] = fmt.Sprintf("value_%d", i)
	}
	return s
}

// NullSource is a subscription runner that starts instantly and never emits,
// so reconcile benchmarks measure diffing rather than stream setup.
type NullSource struct{}

// Start implements dispatchx.SubscriptionRunner.
func (NullSource) Start(_ dispatchx.Dispatch[BenchState], _ any) (dispatchx.CancelFunc, error) {
	return func() {}, nil
}

// GenSubscriptions returns n distinct idle subscriptions.
func GenSubscriptions(n int) []dispatchx.Subscription[BenchState] {
	subs := make([]dispatchx.Subscription[BenchState], n)
	for i := range subs {
		subs[i] = dispatchx.Subscription[BenchState]{Runner: NullSource{}, Data: i}
	}
	return subs
}

// ChurnKey is the descriptor data for GenChurnSubscriptions. Gen flips every
// commit, so every key changes and the whole set restarts.
type ChurnKey struct {
	Index int
	Gen   int
}

// GenChurnSubscriptions returns n idle subscriptions keyed by generation.
func GenChurnSubscriptions(n, gen int) []dispatchx.Subscription[BenchState] {
	subs := make([]dispatchx.Subscription[BenchState], n)
	for i := range subs {
		subs[i] = dispatchx.Subscription[BenchState]{Runner: NullSource{}, Data: ChurnKey{Index: i, Gen: gen}}
	}
	return subs
}

// GenStateYAML marshals a generated state to YAML bytes of roughly the size
// an archive snapshot of that state would occupy.
func GenStateYAML(n int) []byte {
	data, err := yaml.Marshal(GenState(n))
	if err != nil {
		panic(err)
	}
	return data
}
