package store

import (
	"encoding/json"
	"fmt"

	"github.com/comalice/dispatchx"
)

// Log adapts a Store into a commit archiver for one runtime's state type.
// Wire it with dispatchx.WithArchiver; every commit lands in the archive in
// order, and Latest recovers the newest state at the next boot.
type Log[S any] struct {
	store *Store
}

// NewLog builds a Log writing to store.
func NewLog[S any](store *Store) *Log[S] {
	return &Log[S]{store: store}
}

// Archive implements dispatchx.Archiver.
func (l *Log[S]) Archive(rec dispatchx.CommitRecord[S]) error {
	_, err := l.store.Append(rec.Seq, rec.At, rec.State)
	return err
}

// Latest returns the most recently archived state and its runtime sequence.
// Returns ErrNoEntry when the archive is empty.
func (l *Log[S]) Latest() (S, uint64, error) {
	var state S
	next, err := l.store.NextPos()
	if err != nil {
		return state, 0, err
	}
	if next == 1 {
		return state, 0, ErrNoEntry
	}
	entry, err := l.store.EntryAt(next - 1)
	if err != nil {
		return state, 0, err
	}
	if err := json.Unmarshal(entry.State, &state); err != nil {
		return state, 0, fmt.Errorf("unmarshal archived state: %w", err)
	}
	return state, entry.Seq, nil
}
