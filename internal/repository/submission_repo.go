package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	// FindActive returns the single started submission for the pair, or
	// gorm.ErrRecordNotFound when the student has not begun the assessment.
	FindActive(ctx context.Context, assessmentID, studentID uint) (models.Submission, error)
	// FindLatestForPair returns the most recent submission row regardless of
	// status, used to carry pledge acceptance across grace restarts.
	FindLatestForPair(ctx context.Context, assessmentID, studentID uint) (models.Submission, error)
	ListByAssessment(ctx context.Context, assessmentID uint) ([]models.Submission, error)
	ListScoringErrors(ctx context.Context, workspaceID uint) ([]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Responses").
		Preload("Responses.Question").
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) FindActive(ctx context.Context, assessmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Where("student_id = ?", studentID).
		Where("status = ?", models.SubmissionStatusStarted).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) FindLatestForPair(ctx context.Context, assessmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByAssessment(ctx context.Context, assessmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("created_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ListScoringErrors(ctx context.Context, workspaceID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Joins("JOIN assessments ON assessments.id = submissions.assessment_id").
		Where("assessments.workspace_id = ?", workspaceID).
		Where("submissions.scoring_status = ?", models.ScoringStatusError).
		Where("submissions.scoring_error <> ?", models.ScoringErrorRestarted).
		Order("submissions.updated_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}
