package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// AuditEventFilter narrows audit log queries.
type AuditEventFilter struct {
	SubmissionID *uint
	AssessmentID *uint
	StudentID    *uint
	EventType    string
	Limit        int
}

// AuditEventRepository persists the append-only integrity log.
type AuditEventRepository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
	List(ctx context.Context, filter AuditEventFilter) ([]models.AuditEvent, error)
}

type auditEventRepository struct {
	db *gorm.DB
}

// NewAuditEventRepository instantiates the repository.
func NewAuditEventRepository(db *gorm.DB) AuditEventRepository {
	return &auditEventRepository{db: db}
}

func (r *auditEventRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *auditEventRepository) List(ctx context.Context, filter AuditEventFilter) ([]models.AuditEvent, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditEvent{})

	if filter.SubmissionID != nil {
		query = query.Where("submission_id = ?", *filter.SubmissionID)
	}
	if filter.AssessmentID != nil {
		query = query.Where("assessment_id = ?", *filter.AssessmentID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var events []models.AuditEvent
	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, err
	}

	return events, nil
}
