package sources

import (
	"fmt"

	"github.com/comalice/dispatchx"
)

// ChannelData configures a FromChannel subscription. The channel itself is
// part of the descriptor, keyed by identity, so feeding two different
// channels through FromChannel yields two independent subscriptions.
type ChannelData[S, T any] struct {
	C      <-chan T
	Action dispatchx.Action[S]
}

// FromChannel dispatches action with each value received from ch. The
// subscription ends on its own when ch is closed; removing the descriptor
// from the subscription set stops delivery without draining the channel.
func FromChannel[S, T any](ch <-chan T, action dispatchx.Action[S]) dispatchx.Subscription[S] {
	return dispatchx.Subscription[S]{
		Runner: channelRunner[S, T]{},
		Data:   ChannelData[S, T]{C: ch, Action: action},
	}
}

type channelRunner[S, T any] struct{}

func (channelRunner[S, T]) Start(dispatch dispatchx.Dispatch[S], data any) (dispatchx.CancelFunc, error) {
	cfg, ok := data.(ChannelData[S, T])
	if !ok {
		return nil, fmt.Errorf("channel source: unexpected data type %T", data)
	}
	if cfg.C == nil {
		return nil, fmt.Errorf("channel source: nil channel")
	}

	stop := make(chan struct{})

	go func() {
		for {
			select {
			case v, ok := <-cfg.C:
				if !ok {
					return
				}
				dispatch(cfg.Action, v)
			case <-stop:
				return
			}
		}
	}()

	return func() { close(stop) }, nil
}
