package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notedrop/internal/observability"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"go.uber.org/zap"
)

const defaultReaperInterval = 30 * time.Second

// StaleLockReaper returns notes whose worker died mid-delivery to pending.
// The note keeps its releaseAt, so the redelivery reuses the round's key and a
// receiver that already saw the crashed attempt collapses it.
type StaleLockReaper struct {
	notes     repository.NoteRepository
	logger    *zap.Logger
	metrics   *observability.Metrics
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewStaleLockReaper(
	notes repository.NoteRepository,
	threshold time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) (*StaleLockReaper, error) {
	if notes == nil {
		return nil, fmt.Errorf("note repository is required")
	}
	if interval <= 0 {
		interval = defaultReaperInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StaleLockReaper{
		notes:     notes,
		logger:    logger,
		threshold: threshold,
		interval:  interval,
		now:       time.Now,
	}, nil
}

func (r *StaleLockReaper) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Enabled reports whether a threshold is configured. A zero threshold turns the reaper off.
func (r *StaleLockReaper) Enabled() bool {
	return r != nil && r.threshold > 0
}

func (r *StaleLockReaper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.Enabled() {
		r.logger.Info("stale lock reaper disabled")
		return nil
	}

	if _, err := r.ReleaseStaleLocks(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("stale lock reaper initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ReleaseStaleLocks(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("stale lock reaper scan failed", zap.Error(err))
			}
		}
	}
}

// ReleaseStaleLocks releases every claim older than the threshold.
func (r *StaleLockReaper) ReleaseStaleLocks(ctx context.Context) (int64, error) {
	if !r.Enabled() {
		return 0, nil
	}

	olderThan := r.now().UTC().Add(-r.threshold)
	released, err := r.notes.ReleaseStale(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale locks: %w", err)
	}

	if released > 0 {
		r.metrics.AddStaleLocksReleased(released)
		r.logger.Warn("released stale note locks",
			zap.Int64("released", released),
			zap.Time("lockedBefore", olderThan),
		)
	}
	return released, nil
}
