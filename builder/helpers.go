// Package builder assembles dispatchx apps declaratively, so wiring reads
// as a single expression instead of struct literal plumbing.
package builder

import (
	"context"

	"github.com/comalice/dispatchx"
)

// Option configures an app under construction.
type Option[S any] func(*dispatchx.App[S])

// New assembles an app from an initial state and options.
func New[S any](initial S, opts ...Option[S]) dispatchx.App[S] {
	app := dispatchx.App[S]{Initial: initial}
	for _, opt := range opts {
		opt(&app)
	}
	return app
}

// WithInit schedules effects to run once the initial state commits.
func WithInit[S any](effects ...dispatchx.Effect[S]) Option[S] {
	return func(app *dispatchx.App[S]) {
		app.Init = append(app.Init, effects...)
	}
}

// WithSubscriptions declares the subscription set derived from each state.
func WithSubscriptions[S any](subs func(S) []dispatchx.Subscription[S]) Option[S] {
	return func(app *dispatchx.App[S]) {
		app.Subscriptions = subs
	}
}

// WithRender installs the two halves of the render sink: view projects a
// committed state, patch applies the projection.
func WithRender[S any](view func(S) any, patch func(any)) Option[S] {
	return func(app *dispatchx.App[S]) {
		app.View = view
		app.Patch = patch
	}
}

// Run starts a runtime for app and arranges for it to stop when ctx ends.
// Stop errors on the shutdown path are discarded; they can only report a
// runtime that is already stopped.
func Run[S any](ctx context.Context, app dispatchx.App[S], opts ...dispatchx.Option[S]) (*dispatchx.Runtime[S], error) {
	rt := dispatchx.New(app, opts...)
	if err := rt.Start(); err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = rt.Stop()
	}()
	return rt, nil
}
