package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/logger"
)

// Source loads the full reward catalog, e.g. from BigQuery or a CSV file.
type Source interface {
	ListRewards(ctx context.Context) ([]domain.Reward, error)
}

// Store holds the current catalog snapshot. Readers always see a complete
// snapshot; a refresh swaps the pointer atomically and never edits a
// published snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewStore creates a store holding an empty snapshot.
func NewStore() *Store {
	s := &Store{now: time.Now}
	s.current.Store(NewSnapshot(nil, s.now()))
	return s
}

// Current returns the snapshot in effect. Batches should call it once and
// keep the result for their whole run.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Replace publishes a new snapshot built from rewards and returns it.
func (s *Store) Replace(rewards []domain.Reward) *Snapshot {
	snap := NewSnapshot(rewards, s.now())
	s.current.Store(snap)
	return snap
}

// Refresh loads the catalog from src and publishes it. On error the current
// snapshot stays in place.
func (s *Store) Refresh(ctx context.Context, src Source) (*Snapshot, error) {
	rewards, err := src.ListRewards(ctx)
	if err != nil {
		return nil, fmt.Errorf("Refresh: listing rewards: %w", err)
	}
	snap := s.Replace(rewards)

	log := logger.FromContext(ctx)
	log.Info().
		Str("catalog_version", snap.Version()).
		Int("reward_count", snap.Len()).
		Msg("Published reward catalog snapshot")

	return snap, nil
}

// Watch refreshes the catalog every interval until ctx is done. Failed
// refreshes are logged and retried on the next tick.
func (s *Store) Watch(ctx context.Context, src Source, interval time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx, src); err != nil {
				log.Warn().Err(err).Msg("Reward catalog refresh failed, keeping previous snapshot")
			}
		}
	}
}

// StaticSource serves a fixed reward list.
type StaticSource []domain.Reward

// ListRewards implements Source.
func (s StaticSource) ListRewards(ctx context.Context) ([]domain.Reward, error) {
	return append([]domain.Reward(nil), s...), nil
}
