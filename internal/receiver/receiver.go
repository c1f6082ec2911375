// Package receiver implements the webhook sink: a side effect guarded so that
// every idempotency key runs it at most once.
package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notedrop/internal/idempotency"
	"github.com/kursadbilgin/notedrop/internal/observability"
	"go.uber.org/zap"
)

var (
	ErrMissingKey = errors.New("missing X-Idempotency-Key")
	// ErrForcedFailure is returned by FailingSideEffect.
	ErrForcedFailure = errors.New("forced failure")
)

// Delivery is one inbound webhook call.
type Delivery struct {
	Key     string
	NoteID  string
	Payload json.RawMessage
}

type Result struct {
	Duplicate bool
}

// SideEffect is the work a delivery triggers.
type SideEffect func(ctx context.Context, d Delivery) error

type Receiver struct {
	guard   idempotency.Guard
	effect  SideEffect
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewReceiver(guard idempotency.Guard, effect SideEffect, logger *zap.Logger) (*Receiver, error) {
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if effect == nil {
		effect = LogSideEffect(logger)
	}

	return &Receiver{
		guard:  guard,
		effect: effect,
		logger: logger,
	}, nil
}

func (r *Receiver) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Receive runs the side effect for the first delivery of d.Key and reports later
// ones as duplicates. A failed side effect keeps its reservation, so a retry of the
// same key is acknowledged without running it again.
func (r *Receiver) Receive(ctx context.Context, d Delivery) (Result, error) {
	d.Key = strings.TrimSpace(d.Key)
	if d.Key == "" {
		r.metrics.IncReceiverRequest("missing_key")
		return Result{}, ErrMissingKey
	}

	logger := r.logger.With(zap.String("key", d.Key))
	if d.NoteID != "" {
		logger = logger.With(zap.String("noteId", d.NoteID))
	}

	reserved, err := r.guard.Reserve(ctx, d.Key)
	if err != nil {
		r.metrics.IncReceiverRequest("error")
		return Result{}, err
	}
	if !reserved {
		r.metrics.IncReceiverRequest("duplicate")
		logger.Info("duplicate delivery received, skipping")
		return Result{Duplicate: true}, nil
	}

	if err := r.effect(ctx, d); err != nil {
		r.metrics.IncReceiverRequest("failed")
		logger.Warn("delivery side effect failed", zap.Error(err))
		return Result{}, err
	}

	r.metrics.IncReceiverRequest("processed")
	return Result{}, nil
}

// LogSideEffect records the delivered note.
func LogSideEffect(logger *zap.Logger) SideEffect {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, d Delivery) error {
		logger.Info("processed note",
			zap.String("key", d.Key),
			zap.String("noteId", d.NoteID),
			zap.ByteString("body", d.Payload),
		)
		return nil
	}
}

// FailingSideEffect always fails, for exercising the sender's retry path.
func FailingSideEffect() SideEffect {
	return func(context.Context, Delivery) error {
		return ErrForcedFailure
	}
}
