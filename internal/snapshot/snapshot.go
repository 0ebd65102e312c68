// Package snapshot keeps the single crash-recovery copy of unsaved editor
// content.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pilothub/api/internal/kv"
	"pilothub/api/internal/revisions"
)

const Key = "gt_pilot_snapshot"

var ErrCorrupt = errors.New("snapshot corrupt")

type Snapshot struct {
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

type Store struct {
	kv  kv.Store
	now func() time.Time
}

func New(store kv.Store) *Store {
	return &Store{kv: store, now: time.Now}
}

// Save overwrites any existing snapshot.
func (s *Store) Save(ctx context.Context, content string) (Snapshot, error) {
	snap := Snapshot{Timestamp: revisions.FormatTimestamp(s.now()), Content: content}
	if err := kv.SetJSON(ctx, s.kv, Key, snap); err != nil {
		return Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

// Peek returns the stored snapshot without clearing it.
func (s *Store) Peek(ctx context.Context) (Snapshot, bool, error) {
	raw, err := s.kv.Get(ctx, Key)
	if errors.Is(err, kv.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return snap, true, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Remove(ctx, Key); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
