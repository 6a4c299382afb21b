// Package realtime connects a runtime to Ably. Commits flow out as channel
// messages through Publisher, and channel messages flow back in as
// subscriptions through Source, so two processes sharing a channel can
// observe each other's state.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ably/ably-go/ably"
	"go.uber.org/zap"
)

const (
	// DefaultConnectTimeout bounds how long Connect waits for the broker.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultPublishTimeout bounds a single commit publish.
	DefaultPublishTimeout = 5 * time.Second
	// DefaultCommitEvent is the message name commits publish under.
	DefaultCommitEvent = "commit"
)

// Options configure Connect.
type Options struct {
	// Key is the Ably API key. Required.
	Key string
	// ClientID is presented to the broker when set.
	ClientID string
	// Logger receives connection and delivery diagnostics. Defaults to a
	// no-op logger.
	Logger *zap.Logger
}

// Client is a connected Ably realtime client shared by any number of
// Sources and Publishers.
type Client struct {
	rt  *ably.Realtime
	log *zap.Logger
}

// Connect builds an Ably client from opts and waits until the connection is
// established or ctx ends. Callers that want a bound on the wait should pass
// a ctx with a deadline, typically DefaultConnectTimeout.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.Key == "" {
		return nil, fmt.Errorf("realtime: missing API key")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	clientOpts := []ably.ClientOption{
		ably.WithKey(opts.Key),
		ably.WithAutoConnect(false),
	}
	if opts.ClientID != "" {
		clientOpts = append(clientOpts, ably.WithClientID(opts.ClientID))
	}

	rt, err := ably.NewRealtime(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("realtime: %w", err)
	}
	if err := waitConnected(ctx, rt, log); err != nil {
		rt.Close()
		return nil, fmt.Errorf("realtime: %w", err)
	}
	return &Client{rt: rt, log: log}, nil
}

// Close shuts down the underlying Ably connection.
func (c *Client) Close() {
	c.rt.Close()
}

func waitConnected(ctx context.Context, client *ably.Realtime, log *zap.Logger) error {
	connected := make(chan struct{}, 1)
	var connErr error

	off := client.Connection.OnAll(func(change ably.ConnectionStateChange) {
		switch change.Current {
		case ably.ConnectionStateConnected:
			select {
			case connected <- struct{}{}:
			default:
			}
		case ably.ConnectionStateFailed:
			connErr = fmt.Errorf("connection failed")
			if change.Reason != nil {
				connErr = change.Reason
			}
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer off()

	client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-connected:
		if connErr != nil {
			return connErr
		}
		log.Info("connected to Ably")
		return nil
	}
}

func decodePayload(data any) ([]byte, error) {
	switch typed := data.(type) {
	case nil:
		return nil, nil
	case []byte:
		return typed, nil
	case string:
		return []byte(typed), nil
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return encoded, nil
	}
}
