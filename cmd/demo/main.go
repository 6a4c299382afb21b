// Command demo runs a small traffic-light app on a fully wired runtime:
// configuration from the environment, a bolt-backed commit archive that
// survives restarts, commits published to a terminal dashboard, and an
// optional Ably mirror when DISPATCHX_ABLY_CHANNEL is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/dispatchx"
	"github.com/comalice/dispatchx/config"
	"github.com/comalice/dispatchx/internal/dashboard"
	"github.com/comalice/dispatchx/realtime"
	"github.com/comalice/dispatchx/sources"
	"github.com/comalice/dispatchx/store"
)

const maxCycles = 12

type trafficLight struct {
	Light  string `json:"light"`
	Cycles int    `json:"cycles"`
}

func advance(s trafficLight, _ any) (trafficLight, []dispatchx.Effect[trafficLight]) {
	switch s.Light {
	case "red":
		s.Light = "green"
	case "green":
		s.Light = "yellow"
	default:
		s.Light = "red"
	}
	s.Cycles++
	return s, nil
}

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = filepath.Join(os.TempDir(), "dispatchx-demo.db")
	}
	st, err := store.Open(storePath)
	if err != nil {
		logger.Fatal("open store", zap.String("path", storePath), zap.Error(err))
	}
	defer st.Close()
	archive := store.NewLog[trafficLight](st)

	initial := trafficLight{Light: "red"}
	if prev, seq, err := archive.Latest(); err == nil {
		initial = prev
		logger.Info("resuming from archive", zap.Uint64("seq", seq), zap.String("light", prev.Light))
	} else if !errors.Is(err, store.ErrNoEntry) {
		logger.Fatal("read archive", zap.Error(err))
	}

	pub := dispatchx.NewChannelPublisher[trafficLight](cfg.PublishBuffer)
	publisher := dispatchx.Publisher[trafficLight](pub)

	if cfg.AblyChannel != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), realtime.DefaultConnectTimeout)
		client, err := realtime.Connect(connectCtx, realtime.Options{Key: cfg.AblyKey, Logger: logger})
		cancel()
		if err != nil {
			logger.Fatal("connect to Ably", zap.Error(err))
		}
		defer client.Close()
		mirror := realtime.NewPublisher[trafficLight](client, cfg.AblyChannel)
		publisher = dispatchx.MultiPublisher[trafficLight](pub, mirror)
		logger.Info("mirroring commits", zap.String("channel", cfg.AblyChannel))
	}

	app := dispatchx.App[trafficLight]{
		Initial: initial,
		Subscriptions: func(trafficLight) []dispatchx.Subscription[trafficLight] {
			return []dispatchx.Subscription[trafficLight]{
				sources.Every(500*time.Millisecond, advance),
			}
		},
		View:  func(s trafficLight) any { return fmt.Sprintf("light is %s (cycle %d)", s.Light, s.Cycles) },
		Patch: func(v any) { fmt.Println(v) },
	}

	opts := config.Options[trafficLight](cfg, logger)
	opts = append(opts,
		dispatchx.WithArchiver[trafficLight](archive),
		dispatchx.WithPublisher[trafficLight](publisher),
	)
	rt := dispatchx.New(app, opts...)
	if err := rt.Start(); err != nil {
		logger.Fatal("start runtime", zap.Error(err))
	}
	defer rt.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := dashboard.New(os.Stdout)
	cycles := 0
	for {
		select {
		case rec := <-pub.C:
			if err := renderer.Frame(rt.Snapshot(), rec.State); err != nil {
				logger.Warn("dashboard render failed", zap.Error(err))
			}
			cycles++
			if cycles >= maxCycles {
				fmt.Printf("Demo complete after %d commits; state is archived in %s.\n", maxCycles, storePath)
				return
			}
		case <-ctx.Done():
			fmt.Println("\nShutting down gracefully...")
			return
		}
	}
}
