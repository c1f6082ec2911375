package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notedrop/internal/domain"
	"github.com/kursadbilgin/notedrop/internal/queue"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"go.uber.org/zap"
)

// CreateNoteInput is the management payload for a new note. ReleaseAt is RFC 3339.
type CreateNoteInput struct {
	Title      string
	Body       string
	ReleaseAt  string
	WebhookURL string
}

type NoteService struct {
	notes     repository.NoteRepository
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewNoteService builds the management service. publisher may be nil, in which
// case workers only find new work by polling.
func NewNoteService(
	notes repository.NoteRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*NoteService, error) {
	if notes == nil {
		return nil, fmt.Errorf("note repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NoteService{
		notes:     notes,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *NoteService) Create(ctx context.Context, in CreateNoteInput) (*domain.Note, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	releaseAt, err := parseReleaseAt(in.ReleaseAt)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	note := &domain.Note{
		ID:         uuid.NewString(),
		Title:      strings.TrimSpace(in.Title),
		Body:       in.Body,
		ReleaseAt:  releaseAt,
		WebhookURL: strings.TrimSpace(in.WebhookURL),
		Status:     domain.StatusPending,
		Attempts:   []domain.Attempt{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := note.Validate(); err != nil {
		return nil, err
	}

	if err := s.notes.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	if !note.ReleaseAt.After(now) {
		s.publishDue(ctx, note.ID)
	}

	s.logger.Info("note created",
		zap.String("noteId", note.ID),
		zap.Time("releaseAt", note.ReleaseAt),
	)
	return note, nil
}

func (s *NoteService) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: note id is required", domain.ErrValidation)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: note %s", domain.ErrNotFound, id)
	}
	return s.notes.GetByID(ctx, id)
}

func (s *NoteService) List(ctx context.Context, params repository.ListParams) ([]domain.Note, int64, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, *params.Status)
	}
	return s.notes.List(ctx, params.Normalize())
}

// Replay makes the note due immediately regardless of its current status.
func (s *NoteService) Replay(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: note id is required", domain.ErrValidation)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: note %s", domain.ErrNotFound, id)
	}

	if err := s.notes.Replay(ctx, id, s.now()); err != nil {
		return err
	}

	s.publishDue(ctx, id)
	s.logger.Info("note replayed", zap.String("noteId", id))
	return nil
}

// publishDue is best effort: the claim loops pick the note up on their next poll anyway.
func (s *NoteService) publishDue(ctx context.Context, noteID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, queue.DueMessage{NoteID: noteID}); err != nil {
		s.logger.Warn("failed to publish due note hint",
			zap.String("noteId", noteID),
			zap.Error(err),
		)
	}
}

func parseReleaseAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: releaseAt is required", domain.ErrValidation)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: releaseAt must be an RFC 3339 timestamp", domain.ErrValidation)
	}
	return domain.NormalizeTime(t), nil
}
