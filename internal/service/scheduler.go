package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notedrop/internal/observability"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = 5 * time.Second
	minSchedulerLoops   = 1
)

// ClaimScheduler repeatedly claims due notes and hands them to the executor.
// Any number of schedulers may share one store; the claim is the only lock.
type ClaimScheduler struct {
	notes    repository.NoteRepository
	executor Deliverer
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
	loops    int
	wake     chan struct{}
	now      func() time.Time
}

func NewClaimScheduler(
	notes repository.NoteRepository,
	executor Deliverer,
	interval time.Duration,
	loops int,
	logger *zap.Logger,
) (*ClaimScheduler, error) {
	if notes == nil {
		return nil, fmt.Errorf("note repository is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("delivery executor is required")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if loops < minSchedulerLoops {
		loops = minSchedulerLoops
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ClaimScheduler{
		notes:    notes,
		executor: executor,
		logger:   logger,
		interval: interval,
		loops:    loops,
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}, nil
}

func (s *ClaimScheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Wake cuts the current idle wait of one loop short. It never blocks.
func (s *ClaimScheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start runs the configured number of claim loops until ctx is cancelled.
func (s *ClaimScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.loops; i++ {
		loopID := i + 1
		g.Go(func() error {
			s.logger.Info("claim loop started", zap.Int("loopId", loopID))
			s.run(groupCtx)
			s.logger.Info("claim loop stopped", zap.Int("loopId", loopID))
			return nil
		})
	}

	return g.Wait()
}

func (s *ClaimScheduler) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if _, err := s.Drain(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("claim loop iteration failed", zap.Error(err))
		}
		timer.Reset(s.interval)
	}
}

// Drain claims and delivers due notes until none remain and returns how many it handled.
func (s *ClaimScheduler) Drain(ctx context.Context) (int, error) {
	handled := 0
	for {
		if err := ctx.Err(); err != nil {
			return handled, nil
		}

		note, err := s.notes.ClaimOneDue(ctx, s.now())
		if err != nil {
			return handled, fmt.Errorf("failed to claim due note: %w", err)
		}
		if note == nil {
			return handled, nil
		}
		s.metrics.IncClaimed()
		handled++

		if _, err := s.executor.Deliver(ctx, note); err != nil {
			return handled, fmt.Errorf("failed to deliver note %s: %w", note.ID, err)
		}
	}
}
