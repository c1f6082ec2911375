package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notedrop/internal/repository"
	"gorm.io/gorm"
)

func createNotesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notes",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NoteModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				// Serves the claim query: earliest due pending note first.
				`CREATE INDEX IF NOT EXISTS idx_notes_status_release_seq ON notes (status, release_at, seq)`,
				`CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes (created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_notes_processing_locked ON notes (locked_at) WHERE status = 'processing'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NoteModel{})
		},
	}
}
