package repository

import (
	"time"

	"github.com/kursadbilgin/notedrop/internal/domain"
)

// NoteModel is the persistence model for the notes table.
type NoteModel struct {
	ID          string        `gorm:"type:uuid;primaryKey"`
	Seq         int64         `gorm:"autoIncrement;not null;uniqueIndex"`
	Title       string        `gorm:"type:varchar(200);not null"`
	Body        string        `gorm:"type:text;not null"`
	ReleaseAt   time.Time     `gorm:"type:timestamptz;not null"`
	WebhookURL  string        `gorm:"type:text;not null"`
	Status      domain.Status `gorm:"type:varchar(20);not null"`
	DeliveredAt *time.Time    `gorm:"type:timestamptz"`
	LockedAt    *time.Time    `gorm:"type:timestamptz"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (NoteModel) TableName() string {
	return "notes"
}

// NoteAttemptModel is the persistence model for note_attempts.
type NoteAttemptModel struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	NoteID        string    `gorm:"type:uuid;not null"`
	AttemptNumber int       `gorm:"not null"`
	At            time.Time `gorm:"type:timestamptz;not null"`
	StatusCode    int       `gorm:"not null;default:0"`
	OK            bool      `gorm:"not null"`
	Error         *string   `gorm:"type:text"`
}

func (NoteAttemptModel) TableName() string {
	return "note_attempts"
}

func noteModelFromDomain(n *domain.Note) *NoteModel {
	if n == nil {
		return nil
	}

	return &NoteModel{
		ID:          n.ID,
		Title:       n.Title,
		Body:        n.Body,
		ReleaseAt:   n.ReleaseAt,
		WebhookURL:  n.WebhookURL,
		Status:      n.Status,
		DeliveredAt: n.DeliveredAt,
		LockedAt:    n.LockedAt,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

func noteModelToDomain(m *NoteModel, attempts []domain.Attempt) *domain.Note {
	if m == nil {
		return nil
	}

	return &domain.Note{
		ID:          m.ID,
		Title:       m.Title,
		Body:        m.Body,
		ReleaseAt:   domain.NormalizeTime(m.ReleaseAt),
		WebhookURL:  m.WebhookURL,
		Status:      m.Status,
		Attempts:    attempts,
		DeliveredAt: utcPtr(m.DeliveredAt),
		LockedAt:    utcPtr(m.LockedAt),
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func attemptModelFromDomain(noteID string, number int, a domain.Attempt) *NoteAttemptModel {
	model := &NoteAttemptModel{
		NoteID:        noteID,
		AttemptNumber: number,
		At:            a.At.UTC(),
		StatusCode:    a.StatusCode,
		OK:            a.OK,
	}
	if a.Error != "" {
		errText := a.Error
		model.Error = &errText
	}
	return model
}

func attemptModelToDomain(m *NoteAttemptModel) domain.Attempt {
	a := domain.Attempt{
		At:         m.At.UTC(),
		StatusCode: m.StatusCode,
		OK:         m.OK,
	}
	if m.Error != nil {
		a.Error = *m.Error
	}
	return a
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
