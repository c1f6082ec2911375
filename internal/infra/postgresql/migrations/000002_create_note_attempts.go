package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"gorm.io/gorm"
)

func createNoteAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_note_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NoteAttemptModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_note_attempts_note_number ON note_attempts (note_id, attempt_number)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NoteAttemptModel{})
		},
	}
}
