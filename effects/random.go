package effects

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/comalice/dispatchx"
)

// RollData configures a Roll effect.
type RollData[S any] struct {
	// N bounds the result: the payload is an int in [0, N).
	N    int
	Next dispatchx.Action[S]
}

// Roll dispatches next with a random int in [0, n). Randomness lives in the
// effect so actions stay deterministic.
func Roll[S any](n int, next dispatchx.Action[S]) dispatchx.Effect[S] {
	return dispatchx.Effect[S]{Runner: rollRunner[S]{}, Data: RollData[S]{N: n, Next: next}}
}

type rollRunner[S any] struct{}

func (rollRunner[S]) Run(ctx context.Context, dispatch dispatchx.Dispatch[S], data any) error {
	cfg, ok := data.(RollData[S])
	if !ok {
		return fmt.Errorf("roll effect: unexpected data %T", data)
	}
	if cfg.N < 1 {
		return fmt.Errorf("roll effect: bound %d out of range", cfg.N)
	}
	dispatch(cfg.Next, rand.Intn(cfg.N))
	return nil
}

// WithID is the payload a NewID enrichment delivers: the original dispatch
// payload plus a fresh identifier.
type WithID struct {
	Payload any
	ID      string
}

// NewID returns an enricher that attaches a fresh UUID to the payload before
// it reaches the wrapped action. Use with dispatchx.Enriched:
//
//	AddItem := dispatchx.Enriched(effects.NewID[Model](), addItemWithID)
func NewID[S any]() dispatchx.Enricher[S] {
	return func(next dispatchx.Action[S], payload any) dispatchx.Effect[S] {
		return dispatchx.Effect[S]{Runner: idRunner[S]{}, Data: idData[S]{next: next, payload: payload}}
	}
}

type idData[S any] struct {
	next    dispatchx.Action[S]
	payload any
}

type idRunner[S any] struct{}

func (idRunner[S]) Run(ctx context.Context, dispatch dispatchx.Dispatch[S], data any) error {
	cfg, ok := data.(idData[S])
	if !ok {
		return fmt.Errorf("id effect: unexpected data %T", data)
	}
	dispatch(cfg.next, WithID{Payload: cfg.payload, ID: uuid.NewString()})
	return nil
}
