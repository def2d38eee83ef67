package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// RestartEventRepository persists the single-use grace restart records.
type RestartEventRepository interface {
	// Create inserts the event. The unique index on (assessment, student)
	// makes this the serialization point for concurrent restart attempts;
	// the loser receives gorm.ErrDuplicatedKey.
	Create(ctx context.Context, event *models.RestartEvent) error
	FindByPair(ctx context.Context, assessmentID, studentID uint) (models.RestartEvent, error)
	ExistsForPair(ctx context.Context, assessmentID, studentID uint) (bool, error)
}

type restartEventRepository struct {
	db *gorm.DB
}

// NewRestartEventRepository instantiates the repository.
func NewRestartEventRepository(db *gorm.DB) RestartEventRepository {
	return &restartEventRepository{db: db}
}

func (r *restartEventRepository) Create(ctx context.Context, event *models.RestartEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *restartEventRepository) FindByPair(ctx context.Context, assessmentID, studentID uint) (models.RestartEvent, error) {
	var event models.RestartEvent
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Where("student_id = ?", studentID).
		First(&event).Error; err != nil {
		return models.RestartEvent{}, err
	}

	return event, nil
}

func (r *restartEventRepository) ExistsForPair(ctx context.Context, assessmentID, studentID uint) (bool, error) {
	_, err := r.FindByPair(ctx, assessmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
