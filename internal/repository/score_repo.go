package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// ScoreRepository persists per-axis question scores.
type ScoreRepository interface {
	// Upsert writes the score keyed by (submission, question, scorer type).
	// Rescoring overwrites the existing row rather than appending.
	Upsert(ctx context.Context, score *models.QuestionScore) error
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.QuestionScore, error)
}

type scoreRepository struct {
	db *gorm.DB
}

// NewScoreRepository instantiates the repository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) Upsert(ctx context.Context, score *models.QuestionScore) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "submission_id"},
			{Name: "question_id"},
			{Name: "scorer_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"score", "justification", "updated_at"}),
	}).Create(score).Error
}

func (r *scoreRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.QuestionScore, error) {
	var scores []models.QuestionScore
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("question_id ASC, scorer_type ASC").
		Find(&scores).Error; err != nil {
		return nil, err
	}

	return scores, nil
}
