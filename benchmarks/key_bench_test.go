// Package benchmarks provides benchmarks for subscription keying and
// snapshot encoding.
package benchmarks

import (
	"fmt"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/comalice/dispatchx"
)

type nestedKey struct {
	Name   string
	Limits struct {
		Min, Max int
	}
	Tags []string
}

func BenchmarkSubscriptionKey(b *testing.B) {
	flat := dispatchx.Subscription[BenchState]{Runner: NullSource{}, Data: 42}

	nested := nestedKey{Name: "poll", Tags: []string{"a", "b", "c"}}
	nested.Limits.Min, nested.Limits.Max = 1, 100
	deep := dispatchx.Subscription[BenchState]{Runner: NullSource{}, Data: nested}

	mapped := dispatchx.Subscription[BenchState]{Runner: NullSource{}, Data: GenState(16).Fields}

	cases := []struct {
		name string
		sub  dispatchx.Subscription[BenchState]
	}{
		{"flat", flat},
		{"nested", deep},
		{"map16", mapped},
	}
	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = dispatchx.Key(tc.sub)
			}
		})
	}
}

func BenchmarkStateYAML(b *testing.B) {
	for _, n := range []int{8, 64, 512} {
		b.Run(fmt.Sprintf("fields=%d", n), func(b *testing.B) {
			state := GenState(n)
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := yaml.Marshal(state); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkStateYAMLDecode(b *testing.B) {
	data := GenStateYAML(64)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var s BenchState
		if err := yaml.Unmarshal(data, &s); err != nil {
			b.Fatal(err)
		}
	}
}
