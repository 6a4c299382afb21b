package dispatchx

import (
	"fmt"
	"reflect"

	"github.com/comalice/dispatchx/internal/structkey"
)

// Key returns the reconciliation identity of a subscription descriptor. Two
// descriptors with the same key are the same subscription: the reconciler
// keeps one running instance for them no matter how many times the desired
// list is recomputed.
//
// The key combines the runner's identity with a structural encoding of Data.
// Data should be plain immutable values (structs, strings, numbers, slices,
// maps); it is keyed by contents, so equal configuration always matches.
// Functions inside Data, typically follow-up actions, are keyed by code
// address: a top-level action is stable, and closures from the same source
// location compare equal even when their captured variables differ. Data
// that must distinguish two subscriptions therefore belongs in plain fields,
// not in captured state.
//
// Value runners are keyed structurally and function runners by code address,
// so the runners built by the sources package match across commits. A
// pointer runner is keyed by address: the instance itself is the identity,
// which keeps stateful runner objects from producing a different key every
// commit.
//
// Key is exported for tests and for interpreting RuntimeSnapshot output; the
// exact format is not part of the compatibility surface.
func Key[S any](sub Subscription[S]) string {
	return runnerKey(sub.Runner) + "|" + structkey.Of(sub.Data)
}

func runnerKey(runner any) string {
	v := reflect.ValueOf(runner)
	if v.Kind() == reflect.Pointer {
		return fmt.Sprintf("%T@%x", runner, v.Pointer())
	}
	return structkey.Of(runner)
}
