package effects

import (
	"context"
	"fmt"
	"time"

	"github.com/comalice/dispatchx"
)

// DelayData configures a Delay effect.
type DelayData[S any] struct {
	For     time.Duration
	Next    dispatchx.Action[S]
	Payload any
}

// Delay dispatches next with payload after d has elapsed. Stopping the
// runtime cancels pending delays.
func Delay[S any](d time.Duration, next dispatchx.Action[S], payload any) dispatchx.Effect[S] {
	return dispatchx.Effect[S]{Runner: delayRunner[S]{}, Data: DelayData[S]{For: d, Next: next, Payload: payload}}
}

type delayRunner[S any] struct{}

func (delayRunner[S]) Run(ctx context.Context, dispatch dispatchx.Dispatch[S], data any) error {
	cfg, ok := data.(DelayData[S])
	if !ok {
		return fmt.Errorf("delay effect: unexpected data %T", data)
	}
	timer := time.NewTimer(cfg.For)
	defer timer.Stop()
	select {
	case <-timer.C:
		dispatch(cfg.Next, cfg.Payload)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now dispatches next with the current time as payload. It exists so actions
// never read the clock themselves.
func Now[S any](next dispatchx.Action[S]) dispatchx.Effect[S] {
	return dispatchx.Effect[S]{Runner: nowRunner[S]{}, Data: next}
}

type nowRunner[S any] struct{}

func (nowRunner[S]) Run(ctx context.Context, dispatch dispatchx.Dispatch[S], data any) error {
	next, ok := data.(dispatchx.Action[S])
	if !ok {
		return fmt.Errorf("now effect: unexpected data %T", data)
	}
	dispatch(next, time.Now())
	return nil
}
