package dispatchx

// Enricher builds the effect that augments a payload on its way to an
// action. The effect computes whatever the enrichment needs, such as a
// generated identifier, and dispatches next with the combined payload.
type Enricher[S any] func(next Action[S], payload any) Effect[S]

// Enriched wraps next so that dispatching the wrapper first runs the
// enrichment effect. The wrapper commits no state change of its own; next
// receives whatever payload the enrichment effect dispatches.
//
//	AddItem := dispatchx.Enriched(effects.NewID[Model](), addItemWithID)
//
// Dispatching AddItem("milk") generates an identifier off the commit path
// and then dispatches addItemWithID with the original payload and the new
// identifier attached.
func Enriched[S any](enrich Enricher[S], next Action[S]) Action[S] {
	return func(state S, payload any) (S, []Effect[S]) {
		return state, []Effect[S]{enrich(next, payload)}
	}
}

// Batch merges effect lists, dropping nil runners. Useful when an action
// assembles its effects from helpers that may return nothing.
func Batch[S any](lists ...[]Effect[S]) []Effect[S] {
	var out []Effect[S]
	for _, list := range lists {
		for _, ef := range list {
			if ef.Runner == nil {
				continue
			}
			out = append(out, ef)
		}
	}
	return out
}
