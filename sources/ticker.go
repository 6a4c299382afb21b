// Package sources provides subscription runners for the event streams
// applications commonly subscribe to: tickers, Go channels, and OS signals.
//
// Each constructor returns a plain subscription descriptor. The runtime
// starts the underlying stream when the descriptor first appears in the
// subscription set and cancels it when the descriptor disappears, so
// application code only ever declares what it wants to listen to.
package sources

import (
	"fmt"
	"time"

	"github.com/comalice/dispatchx"
)

// EveryData configures an Every subscription. It is the descriptor data, so
// two Every subscriptions with the same interval and action share one
// running ticker.
type EveryData[S any] struct {
	Interval time.Duration
	Action   dispatchx.Action[S]
}

// Every emits a tick on the given interval, dispatching action with the
// tick time as payload. Changing the interval between commits restarts the
// ticker; keeping it stable keeps the same ticker running.
func Every[S any](interval time.Duration, action dispatchx.Action[S]) dispatchx.Subscription[S] {
	return dispatchx.Subscription[S]{
		Runner: tickerRunner[S]{},
		Data:   EveryData[S]{Interval: interval, Action: action},
	}
}

type tickerRunner[S any] struct{}

func (tickerRunner[S]) Start(dispatch dispatchx.Dispatch[S], data any) (dispatchx.CancelFunc, error) {
	cfg, ok := data.(EveryData[S])
	if !ok {
		return nil, fmt.Errorf("ticker source: unexpected data type %T", data)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("ticker source: interval %v must be positive", cfg.Interval)
	}

	ticker := time.NewTicker(cfg.Interval)
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case t := <-ticker.C:
				dispatch(cfg.Action, t)
			case <-stop:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(stop)
	}, nil
}
