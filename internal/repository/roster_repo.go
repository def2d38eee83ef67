package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// RosterRepository reads the thin roster rows used for assignment and
// ownership checks.
type RosterRepository interface {
	GetStudent(ctx context.Context, id uint) (models.Student, error)
	GetWorkspace(ctx context.Context, id uint) (models.Workspace, error)
}

type rosterRepository struct {
	db *gorm.DB
}

// NewRosterRepository instantiates the repository.
func NewRosterRepository(db *gorm.DB) RosterRepository {
	return &rosterRepository{db: db}
}

func (r *rosterRepository) GetStudent(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *rosterRepository) GetWorkspace(ctx context.Context, id uint) (models.Workspace, error) {
	var workspace models.Workspace
	if err := r.db.WithContext(ctx).First(&workspace, id).Error; err != nil {
		return models.Workspace{}, err
	}

	return workspace, nil
}
