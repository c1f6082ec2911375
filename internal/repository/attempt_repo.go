package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notedrop/internal/domain"
	"gorm.io/gorm"
)

// attemptsByNote loads the attempt history of every note in noteIDs, oldest first.
func attemptsByNote(ctx context.Context, db *gorm.DB, noteIDs []string) (map[string][]domain.Attempt, error) {
	out := make(map[string][]domain.Attempt, len(noteIDs))
	if len(noteIDs) == 0 {
		return out, nil
	}

	var models []NoteAttemptModel
	err := db.WithContext(ctx).
		Where("note_id IN ?", noteIDs).
		Order("note_id, attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	for i := range models {
		out[models[i].NoteID] = append(out[models[i].NoteID], attemptModelToDomain(&models[i]))
	}
	return out, nil
}

func insertAttempt(ctx context.Context, tx *gorm.DB, noteID string, number int, a domain.Attempt) error {
	model := attemptModelFromDomain(noteID, number, a)
	model.ID = uuid.NewString()
	return tx.WithContext(ctx).Create(model).Error
}
