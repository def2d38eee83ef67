package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// ResponseRepository defines data operations for submission responses.
type ResponseRepository interface {
	Create(ctx context.Context, response *models.SubmissionResponse) error
	Update(ctx context.Context, response *models.SubmissionResponse) error
	GetByID(ctx context.Context, id uint) (models.SubmissionResponse, error)
	FindBySubmissionAndQuestion(ctx context.Context, submissionID, questionID uint) (models.SubmissionResponse, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionResponse, error)
}

type responseRepository struct {
	db *gorm.DB
}

// NewResponseRepository instantiates the repository.
func NewResponseRepository(db *gorm.DB) ResponseRepository {
	return &responseRepository{db: db}
}

func (r *responseRepository) Create(ctx context.Context, response *models.SubmissionResponse) error {
	return r.db.WithContext(ctx).Create(response).Error
}

func (r *responseRepository) Update(ctx context.Context, response *models.SubmissionResponse) error {
	return r.db.WithContext(ctx).Save(response).Error
}

func (r *responseRepository) GetByID(ctx context.Context, id uint) (models.SubmissionResponse, error) {
	var response models.SubmissionResponse
	if err := r.db.WithContext(ctx).
		Preload("Question").
		First(&response, id).Error; err != nil {
		return models.SubmissionResponse{}, err
	}

	return response, nil
}

func (r *responseRepository) FindBySubmissionAndQuestion(ctx context.Context, submissionID, questionID uint) (models.SubmissionResponse, error) {
	var response models.SubmissionResponse
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Where("question_id = ?", questionID).
		First(&response).Error; err != nil {
		return models.SubmissionResponse{}, err
	}

	return response, nil
}

func (r *responseRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionResponse, error) {
	var responses []models.SubmissionResponse
	if err := r.db.WithContext(ctx).
		Preload("Question").
		Where("submission_id = ?", submissionID).
		Order("question_id ASC").
		Find(&responses).Error; err != nil {
		return nil, err
	}

	return responses, nil
}
