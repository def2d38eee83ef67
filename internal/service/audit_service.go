package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/unhalum90/newveritas-api/internal/models"
	"github.com/unhalum90/newveritas-api/internal/repository"
)

// Audit event types written by the pipeline.
const (
	AuditPledgeAccepted        = "pledge.accepted"
	AuditSubmissionSubmitted   = "submission.submitted"
	AuditSubmissionRestarted   = "submission.restarted"
	AuditScoringFailed         = "scoring.failed"
	AuditFeedbackPublished     = "feedback.published"
	AuditReviewRequestFiled    = "review_request.filed"
	AuditReviewRequestResolved = "review_request.resolved"
)

// AuditActor identifies who performed a logged action.
type AuditActor struct {
	ID   uint
	Role string
}

// SystemActor is used for actions the pipeline performs on its own,
// such as practice-mode auto-publish.
var SystemActor = AuditActor{ID: 0, Role: "system"}

// AuditEntry captures the details of one integrity log record.
type AuditEntry struct {
	Actor         AuditActor
	EventType     string
	SubmissionID  *uint
	AssessmentID  *uint
	StudentID     *uint
	PreviousValue string
	NewValue      string
	Reason        string
	Metadata      map[string]interface{}
}

// AuditRecorder appends entries to the integrity log. Recording is
// best-effort: implementations log failures and never return them to the
// operation being described.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type auditService struct {
	repo   repository.AuditEventRepository
	logger zerolog.Logger
}

// NewAuditService constructs the integrity log recorder.
func NewAuditService(repo repository.AuditEventRepository, logger zerolog.Logger) AuditRecorder {
	return &auditService{
		repo:   repo,
		logger: logger.With().Str("component", "audit_service").Logger(),
	}
}

func (s *auditService) Record(ctx context.Context, entry AuditEntry) {
	eventType := strings.TrimSpace(entry.EventType)
	if eventType == "" {
		s.logger.Warn().Msg("audit entry dropped: missing event type")
		return
	}

	role := strings.ToLower(strings.TrimSpace(entry.Actor.Role))
	if role == "" {
		role = "system"
	}

	metadata := datatypes.JSONMap{}
	for key, value := range entry.Metadata {
		metadata[key] = value
	}

	event := models.AuditEvent{
		ActorID:       entry.Actor.ID,
		ActorRole:     role,
		EventType:     eventType,
		SubmissionID:  entry.SubmissionID,
		AssessmentID:  entry.AssessmentID,
		StudentID:     entry.StudentID,
		PreviousValue: entry.PreviousValue,
		NewValue:      entry.NewValue,
		Reason:        entry.Reason,
		Metadata:      metadata,
	}

	if err := s.repo.Create(ctx, &event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to persist audit event")
	}
}
