package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notedrop/internal/domain"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type ListParams struct {
	Status   *domain.Status
	Page     int
	PageSize int
}

// Normalize clamps paging to sane bounds.
func (p ListParams) Normalize() ListParams {
	p.Page = max(p.Page, 1)
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	p.PageSize = min(p.PageSize, MaxPageSize)
	return p
}

// NoteRepository is the durable home of notes. ClaimOneDue is the only way a note
// leaves pending, and it must hand a given note to at most one caller.
type NoteRepository interface {
	Create(ctx context.Context, n *domain.Note) error
	GetByID(ctx context.Context, id string) (*domain.Note, error)
	List(ctx context.Context, params ListParams) ([]domain.Note, int64, error)
	// ClaimOneDue returns nil, nil when nothing is due.
	ClaimOneDue(ctx context.Context, now time.Time) (*domain.Note, error)
	// SaveOutcome persists the last attempt of n together with its new status.
	SaveOutcome(ctx context.Context, n *domain.Note) error
	Replay(ctx context.Context, id string, now time.Time) error
	ReleaseStale(ctx context.Context, lockedBefore time.Time) (int64, error)
	Ping(ctx context.Context) error
}

type GormNoteRepo struct {
	db *gorm.DB
}

func NewGormNoteRepo(db *gorm.DB) *GormNoteRepo {
	return &GormNoteRepo{db: db}
}

func (r *GormNoteRepo) Create(ctx context.Context, n *domain.Note) error {
	if n == nil {
		return fmt.Errorf("%w: note is nil", domain.ErrValidation)
	}
	model := noteModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*n = *noteModelToDomain(model, n.Attempts)
	return nil
}

func (r *GormNoteRepo) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	var model NoteModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.withAttempts(ctx, &model)
}

func (r *GormNoteRepo) List(ctx context.Context, params ListParams) ([]domain.Note, int64, error) {
	params = params.Normalize()
	query := r.db.WithContext(ctx).Model(&NoteModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []NoteModel
	err := query.
		Order("created_at DESC").
		Order("seq DESC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	ids := make([]string, 0, len(models))
	for i := range models {
		ids = append(ids, models[i].ID)
	}
	attempts, err := attemptsByNote(ctx, r.db, ids)
	if err != nil {
		return nil, 0, err
	}

	notes := make([]domain.Note, 0, len(models))
	for i := range models {
		notes = append(notes, *noteModelToDomain(&models[i], attempts[models[i].ID]))
	}
	return notes, total, nil
}

// claimSQL flips the earliest due pending row to processing in one statement.
// SKIP LOCKED lets concurrent claimers move on to the next row instead of
// waiting on, and then double-claiming, the same one.
const claimSQL = `
UPDATE notes SET status = ?, locked_at = ?, updated_at = ?
WHERE id = (
	SELECT id FROM notes
	WHERE status = ? AND release_at <= ?
	ORDER BY release_at ASC, seq ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING *`

func (r *GormNoteRepo) ClaimOneDue(ctx context.Context, now time.Time) (*domain.Note, error) {
	now = now.UTC()

	var models []NoteModel
	err := r.db.WithContext(ctx).
		Raw(claimSQL, domain.StatusProcessing, now, now, domain.StatusPending, now).
		Scan(&models).Error
	if err != nil {
		return nil, fmt.Errorf("claim due note: %w", err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	return r.withAttempts(ctx, &models[0])
}

func (r *GormNoteRepo) SaveOutcome(ctx context.Context, n *domain.Note) error {
	if n == nil || len(n.Attempts) == 0 {
		return fmt.Errorf("%w: outcome needs an attempt", domain.ErrValidation)
	}
	last := n.Attempts[len(n.Attempts)-1]

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertAttempt(ctx, tx, n.ID, len(n.Attempts), last); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}

		result := tx.Model(&NoteModel{}).
			Where("id = ?", n.ID).
			Updates(map[string]any{
				"status":       n.Status,
				"release_at":   n.ReleaseAt,
				"delivered_at": n.DeliveredAt,
				"locked_at":    n.LockedAt,
				"updated_at":   time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *GormNoteRepo) Replay(ctx context.Context, id string, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NoteModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       domain.StatusPending,
			"release_at":   domain.NormalizeTime(now),
			"locked_at":    nil,
			"delivered_at": nil,
			"updated_at":   now.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReleaseStale returns notes stuck in processing since before lockedBefore to pending.
// release_at is left alone so the redelivery carries the same idempotency key.
func (r *GormNoteRepo) ReleaseStale(ctx context.Context, lockedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&NoteModel{}).
		Where("status = ? AND locked_at < ?", domain.StatusProcessing, lockedBefore.UTC()).
		Updates(map[string]any{
			"status":     domain.StatusPending,
			"locked_at":  nil,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *GormNoteRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormNoteRepo) withAttempts(ctx context.Context, model *NoteModel) (*domain.Note, error) {
	attempts, err := attemptsByNote(ctx, r.db, []string{model.ID})
	if err != nil {
		return nil, err
	}
	return noteModelToDomain(model, attempts[model.ID]), nil
}
