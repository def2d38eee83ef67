package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// ConnectPostgres establishes a connection to the PostgreSQL database using the provided DSN.
func ConnectPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return db, nil
}

// Migrate creates the schema. Besides AutoMigrate it installs the partial
// unique index that serializes concurrent submission creation: at most one
// started submission may exist per (assessment, student) pair.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Workspace{},
		&models.Teacher{},
		&models.Class{},
		&models.Student{},
		&models.Assessment{},
		&models.Question{},
		&models.Submission{},
		&models.SubmissionResponse{},
		&models.QuestionScore{},
		&models.RestartEvent{},
		&models.AuditEvent{},
		&models.ReviewRequest{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_submission ` +
			`ON submissions (assessment_id, student_id) WHERE status = 'started'`,
	).Error; err != nil {
		return fmt.Errorf("failed to create active submission index: %w", err)
	}

	return nil
}
