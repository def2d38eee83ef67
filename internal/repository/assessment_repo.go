package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// AssessmentOwnership resolves the chain from an assessment up to the
// teacher that owns its workspace. Returned instead of chasing nested
// joined rows so callers get a typed NotFound rather than a nil path.
type AssessmentOwnership struct {
	AssessmentID uint
	ClassID      uint
	WorkspaceID  uint
	TeacherID    uint
}

// AssessmentRepository reads assessment definitions and ownership.
type AssessmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Assessment, error)
	GetQuestion(ctx context.Context, id uint) (models.Question, error)
	ResolveOwnership(ctx context.Context, assessmentID uint) (AssessmentOwnership, error)
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository instantiates the repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func (r *assessmentRepository) GetByID(ctx context.Context, id uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&assessment, id).Error; err != nil {
		return models.Assessment{}, err
	}

	return assessment, nil
}

func (r *assessmentRepository) GetQuestion(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}

func (r *assessmentRepository) ResolveOwnership(ctx context.Context, assessmentID uint) (AssessmentOwnership, error) {
	var assessment models.Assessment
	if err := r.db.WithContext(ctx).First(&assessment, assessmentID).Error; err != nil {
		return AssessmentOwnership{}, err
	}

	var workspace models.Workspace
	if err := r.db.WithContext(ctx).First(&workspace, assessment.WorkspaceID).Error; err != nil {
		return AssessmentOwnership{}, err
	}

	return AssessmentOwnership{
		AssessmentID: assessment.ID,
		ClassID:      assessment.ClassID,
		WorkspaceID:  workspace.ID,
		TeacherID:    workspace.TeacherID,
	}, nil
}
