package sources

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/comalice/dispatchx"
)

// SignalData configures an OnSignal subscription.
type SignalData[S any] struct {
	Signals []os.Signal
	Action  dispatchx.Action[S]
}

// OnSignal dispatches action with the received os.Signal as payload whenever
// one of the named signals arrives. With no signals listed it relays every
// incoming signal, matching the signal.Notify convention.
func OnSignal[S any](action dispatchx.Action[S], signals ...os.Signal) dispatchx.Subscription[S] {
	return dispatchx.Subscription[S]{
		Runner: signalRunner[S]{},
		Data:   SignalData[S]{Signals: signals, Action: action},
	}
}

type signalRunner[S any] struct{}

func (signalRunner[S]) Start(dispatch dispatchx.Dispatch[S], data any) (dispatchx.CancelFunc, error) {
	cfg, ok := data.(SignalData[S])
	if !ok {
		return nil, fmt.Errorf("signal source: unexpected data type %T", data)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, cfg.Signals...)
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-ch:
				dispatch(cfg.Action, sig)
			case <-stop:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(stop)
	}, nil
}
