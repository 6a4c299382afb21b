package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ably/ably-go/ably"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comalice/dispatchx"
)

// Message is the payload a realtime subscription dispatches for each
// message received on a channel.
type Message struct {
	ID      string
	Channel string
	Event   string
	Data    []byte
	At      time.Time
}

// Source feeds Ably channel messages into a runtime as subscriptions.
// Create one Source per client at wiring time and hold on to it: the Source
// itself is the runner, so descriptors built from the same Source keep their
// identity across commits while Channel and Event distinguish the streams.
type Source[S any] struct {
	client *Client
}

// NewSource builds a Source on an established client.
func NewSource[S any](client *Client) *Source[S] {
	return &Source[S]{client: client}
}

// MessagesData is the descriptor data behind Source.Messages.
type MessagesData[S any] struct {
	Channel string
	Event   string
	Action  dispatchx.Action[S]
}

// Messages subscribes to the named event on an Ably channel, dispatching
// action with a Message payload for each one delivered. An empty event name
// subscribes to every event on the channel.
func (s *Source[S]) Messages(channel, event string, action dispatchx.Action[S]) dispatchx.Subscription[S] {
	return dispatchx.Subscription[S]{
		Runner: s,
		Data:   MessagesData[S]{Channel: channel, Event: event, Action: action},
	}
}

// Start implements dispatchx.SubscriptionRunner. Attaching and subscribing
// happen on their own goroutine so a slow broker never holds up a commit;
// attach and subscribe failures are logged, and the stream stays down until
// its descriptor changes.
func (s *Source[S]) Start(dispatch dispatchx.Dispatch[S], data any) (dispatchx.CancelFunc, error) {
	cfg, ok := data.(MessagesData[S])
	if !ok {
		return nil, fmt.Errorf("realtime source: unexpected data type %T", data)
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("realtime source: missing channel name")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.run(ctx, dispatch, cfg)
	return dispatchx.CancelFunc(cancel), nil
}

func (s *Source[S]) run(ctx context.Context, dispatch dispatchx.Dispatch[S], cfg MessagesData[S]) {
	log := s.client.log
	channel := s.client.rt.Channels.Get(cfg.Channel)
	if err := channel.Attach(ctx); err != nil {
		log.Error("realtime attach failed",
			zap.String("channel", cfg.Channel),
			zap.Error(err))
		return
	}

	handler := func(message *ably.Message) {
		data, err := decodePayload(message.Data)
		if err != nil {
			log.Warn("realtime message payload unreadable",
				zap.String("channel", cfg.Channel),
				zap.String("event", message.Name),
				zap.Error(err))
			return
		}

		id := message.ID
		if id == "" {
			id = uuid.NewString()
		}
		at := time.Now()
		if message.Timestamp > 0 {
			at = time.UnixMilli(message.Timestamp)
		}

		dispatch(cfg.Action, Message{
			ID:      id,
			Channel: cfg.Channel,
			Event:   message.Name,
			Data:    data,
			At:      at,
		})
	}

	var (
		unsub func()
		err   error
	)
	if cfg.Event == "" {
		unsub, err = channel.SubscribeAll(ctx, handler)
	} else {
		unsub, err = channel.Subscribe(ctx, cfg.Event, handler)
	}
	if err != nil {
		log.Error("realtime subscribe failed",
			zap.String("channel", cfg.Channel),
			zap.String("event", cfg.Event),
			zap.Error(err))
		return
	}

	<-ctx.Done()
	unsub()
}
