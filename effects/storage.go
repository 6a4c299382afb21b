package effects

import (
	"context"
	"errors"
	"fmt"

	"github.com/comalice/dispatchx"
	"github.com/comalice/dispatchx/store"
)

// KV is the key/value surface the storage effects need. *store.Store
// implements it; tests substitute in-memory fakes.
type KV interface {
	Set(key string, value any) error
	Get(key string, out any) error
	Del(key string) error
}

// SaveData configures a Save effect.
type SaveData[S any] struct {
	Store KV
	Key   string
	Value any
	// OnErr receives the error payload when the write fails. When nil, a
	// failed save is a lost failure.
	OnErr dispatchx.Action[S]
}

// Save writes value under key in the store's shared bucket.
func Save[S any](st KV, key string, value any) dispatchx.Effect[S] {
	return dispatchx.Effect[S]{Runner: saveRunner[S]{}, Data: SaveData[S]{Store: st, Key: key, Value: value}}
}

type saveRunner[S any] struct{}

func (saveRunner[S]) Run(ctx context.Context, dispatch dispatchx.Dispatch[S], data any) error {
	cfg, ok := data.(SaveData[S])
	if !ok {
		return fmt.Errorf("save effect: unexpected data %T", data)
	}
	if err := cfg.Store.Set(cfg.Key, cfg.Value); err != nil {
		if cfg.OnErr == nil {
			return err
		}
		dispatch(cfg.OnErr, err)
	}
	return nil
}

type loadData[S any] struct {
	store     KV
	key       string
	onLoaded  dispatchx.Action[S]
	onMissing dispatchx.Action[S]
}

// Load reads the value stored under key, decodes it as a T, and dispatches
// onLoaded with the decoded value. When the key has never been set,
// onMissing is dispatched with a nil payload instead; a nil onMissing makes
// an absent key a silent no-op.
func Load[S any, T any](st KV, key string, onLoaded, onMissing dispatchx.Action[S]) dispatchx.Effect[S] {
	return dispatchx.Effect[S]{
		Runner: loadRunner[S, T]{},
		Data:   loadData[S]{store: st, key: key, onLoaded: onLoaded, onMissing: onMissing},
	}
}

type loadRunner[S any, T any] struct{}

func (loadRunner[S, T]) Run(ctx context.Context, dispatch dispatchx.Dispatch[S], data any) error {
	cfg, ok := data.(loadData[S])
	if !ok {
		return fmt.Errorf("load effect: unexpected data %T", data)
	}
	var value T
	err := cfg.store.Get(cfg.key, &value)
	if errors.Is(err, store.ErrNoKey) {
		if cfg.onMissing != nil {
			dispatch(cfg.onMissing, nil)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if cfg.onLoaded != nil {
		dispatch(cfg.onLoaded, value)
	}
	return nil
}

// Remove deletes key from the store's shared bucket.
func Remove[S any](st KV, key string) dispatchx.Effect[S] {
	return dispatchx.Effect[S]{Runner: removeRunner[S]{}, Data: loadData[S]{store: st, key: key}}
}

type removeRunner[S any] struct{}

func (removeRunner[S]) Run(ctx context.Context, dispatch dispatchx.Dispatch[S], data any) error {
	cfg, ok := data.(loadData[S])
	if !ok {
		return fmt.Errorf("remove effect: unexpected data %T", data)
	}
	return cfg.store.Del(cfg.key)
}
