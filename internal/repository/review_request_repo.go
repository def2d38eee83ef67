package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// ReviewRequestRepository persists student review requests.
type ReviewRequestRepository interface {
	Create(ctx context.Context, request *models.ReviewRequest) error
	Update(ctx context.Context, request *models.ReviewRequest) error
	GetByID(ctx context.Context, id uint) (models.ReviewRequest, error)
	FindOpenBySubmission(ctx context.Context, submissionID uint) (models.ReviewRequest, error)
	HasOpenRequest(ctx context.Context, submissionID uint) (bool, error)
}

type reviewRequestRepository struct {
	db *gorm.DB
}

// NewReviewRequestRepository instantiates the repository.
func NewReviewRequestRepository(db *gorm.DB) ReviewRequestRepository {
	return &reviewRequestRepository{db: db}
}

func (r *reviewRequestRepository) Create(ctx context.Context, request *models.ReviewRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *reviewRequestRepository) Update(ctx context.Context, request *models.ReviewRequest) error {
	return r.db.WithContext(ctx).Save(request).Error
}

func (r *reviewRequestRepository) GetByID(ctx context.Context, id uint) (models.ReviewRequest, error) {
	var request models.ReviewRequest
	if err := r.db.WithContext(ctx).First(&request, id).Error; err != nil {
		return models.ReviewRequest{}, err
	}

	return request, nil
}

func (r *reviewRequestRepository) FindOpenBySubmission(ctx context.Context, submissionID uint) (models.ReviewRequest, error) {
	var request models.ReviewRequest
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Where("status = ?", models.ReviewRequestStatusOpen).
		First(&request).Error; err != nil {
		return models.ReviewRequest{}, err
	}

	return request, nil
}

func (r *reviewRequestRepository) HasOpenRequest(ctx context.Context, submissionID uint) (bool, error) {
	_, err := r.FindOpenBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
