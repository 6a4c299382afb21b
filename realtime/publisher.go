package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/comalice/dispatchx"
)

// commitMessage is the wire form of a mirrored commit.
type commitMessage[S any] struct {
	Seq   uint64    `json:"seq"`
	At    time.Time `json:"at"`
	State S         `json:"state"`
}

// Publisher mirrors commit records to an Ably channel as JSON messages. It
// satisfies dispatchx.Publisher, so it plugs straight into
// dispatchx.WithPublisher; delivery runs on the runtime's archive goroutine
// and each publish is bounded by the configured timeout.
type Publisher[S any] struct {
	client  *Client
	channel string
	event   string
	timeout time.Duration
}

// NewPublisher builds a Publisher for the named channel with the default
// event name and publish timeout.
func NewPublisher[S any](client *Client, channel string) *Publisher[S] {
	return &Publisher[S]{
		client:  client,
		channel: channel,
		event:   DefaultCommitEvent,
		timeout: DefaultPublishTimeout,
	}
}

// WithEvent overrides the message name commits publish under.
func (p *Publisher[S]) WithEvent(event string) *Publisher[S] {
	p.event = event
	return p
}

// WithTimeout overrides the per-publish deadline.
func (p *Publisher[S]) WithTimeout(d time.Duration) *Publisher[S] {
	if d > 0 {
		p.timeout = d
	}
	return p
}

// Publish implements dispatchx.Publisher.
func (p *Publisher[S]) Publish(rec dispatchx.CommitRecord[S]) error {
	payload, err := json.Marshal(commitMessage[S]{Seq: rec.Seq, At: rec.At, State: rec.State})
	if err != nil {
		return fmt.Errorf("encode commit %d: %w", rec.Seq, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.rt.Channels.Get(p.channel).Publish(ctx, p.event, payload); err != nil {
		return fmt.Errorf("publish commit %d: %w", rec.Seq, err)
	}
	return nil
}
