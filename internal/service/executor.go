package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notedrop/internal/domain"
	"github.com/kursadbilgin/notedrop/internal/observability"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"github.com/kursadbilgin/notedrop/internal/retry"
	"github.com/kursadbilgin/notedrop/internal/webhook"
	"go.uber.org/zap"
)

const persistOutcomeTimeout = 5 * time.Second

// Deliverer performs one delivery attempt for a claimed note.
type Deliverer interface {
	Deliver(ctx context.Context, note *domain.Note) (domain.Status, error)
}

// DeliveryExecutor sends a claimed note to its webhook and records the outcome.
type DeliveryExecutor struct {
	notes   repository.NoteRepository
	sender  webhook.Sender
	policy  *retry.Policy
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewDeliveryExecutor(
	notes repository.NoteRepository,
	sender webhook.Sender,
	policy *retry.Policy,
	logger *zap.Logger,
) (*DeliveryExecutor, error) {
	if notes == nil {
		return nil, fmt.Errorf("note repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("webhook sender is required")
	}
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryExecutor{
		notes:  notes,
		sender: sender,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (e *DeliveryExecutor) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// Deliver makes exactly one webhook call for note and persists the resulting state.
// Webhook failures are recorded on the note, not returned; the error is reserved for
// notes that are not claimable and for storage failures.
func (e *DeliveryExecutor) Deliver(ctx context.Context, note *domain.Note) (domain.Status, error) {
	if note == nil {
		return "", fmt.Errorf("%w: note is nil", domain.ErrValidation)
	}
	if note.Status != domain.StatusProcessing {
		return note.Status, fmt.Errorf("%w: deliver from %s", domain.ErrInvalidTransition, note.Status)
	}

	ctx = observability.WithNoteID(ctx, note.ID)
	logger := observability.WithContextLogger(e.logger, ctx)

	e.metrics.IncWorkerInFlight()
	defer e.metrics.DecWorkerInFlight()

	key := domain.IdempotencyKey(note.ID, note.ReleaseAt)
	startedAt := e.now().UTC()
	// An in-flight call is finished rather than aborted on shutdown; the sender's
	// own timeout bounds it. Aborting would burn a retry and rotate the key.
	resp, sendErr := e.sender.Send(context.WithoutCancel(ctx), webhook.Request{
		URL:            note.WebhookURL,
		NoteID:         note.ID,
		IdempotencyKey: key,
		Payload:        note.Payload(),
	})
	finishedAt := e.now().UTC()

	attempt := domain.Attempt{At: startedAt}
	if sendErr == nil {
		attempt.OK = true
		if resp != nil {
			attempt.StatusCode = resp.StatusCode
		}
		if err := note.MarkDelivered(attempt, finishedAt); err != nil {
			return note.Status, err
		}
		if err := e.persist(ctx, note); err != nil {
			return note.Status, err
		}

		e.metrics.ObserveDeliveryDuration("delivered", finishedAt.Sub(startedAt))
		e.metrics.IncDelivered()
		logger.Info("note delivered",
			zap.Int("statusCode", attempt.StatusCode),
			zap.String("idempotencyKey", key),
		)
		return note.Status, nil
	}

	attempt.StatusCode = failureStatusCode(sendErr)
	attempt.Error = sendErr.Error()
	failures := note.FailureCount() + 1
	decision := e.policy.Decide(failures)

	if decision.Retry {
		nextReleaseAt := finishedAt.Add(decision.Delay)
		if err := note.ScheduleRetry(attempt, nextReleaseAt); err != nil {
			return note.Status, err
		}
		if err := e.persist(ctx, note); err != nil {
			return note.Status, err
		}

		e.metrics.ObserveDeliveryDuration("failed", finishedAt.Sub(startedAt))
		e.metrics.IncRetryScheduled()
		logger.Warn("note delivery failed, retry scheduled",
			zap.Int("statusCode", attempt.StatusCode),
			zap.Int("failures", failures),
			zap.Duration("backoff", decision.Delay),
			zap.Time("releaseAt", note.ReleaseAt),
			zap.Error(sendErr),
		)
		return note.Status, nil
	}

	if err := note.MarkDead(attempt); err != nil {
		return note.Status, err
	}
	if err := e.persist(ctx, note); err != nil {
		return note.Status, err
	}

	e.metrics.ObserveDeliveryDuration("failed", finishedAt.Sub(startedAt))
	e.metrics.IncDead()
	logger.Error("note delivery failed, retries exhausted",
		zap.Int("statusCode", attempt.StatusCode),
		zap.Int("failures", failures),
		zap.Error(sendErr),
	)
	return note.Status, nil
}

// persist survives cancellation of ctx so a shutdown in the middle of a call
// still records the attempt instead of leaving the note locked.
func (e *DeliveryExecutor) persist(ctx context.Context, note *domain.Note) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistOutcomeTimeout)
	defer cancel()

	if err := e.notes.SaveOutcome(saveCtx, note); err != nil {
		return fmt.Errorf("failed to save delivery outcome: %w", err)
	}
	return nil
}

// failureStatusCode returns the HTTP status carried by err, or 0 when the call
// never produced a response.
func failureStatusCode(err error) int {
	var deliveryErr *webhook.DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.StatusCode
	}
	return 0
}
