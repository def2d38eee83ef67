package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
	"github.com/unhalum90/newveritas-api/internal/repository"
)

// ErrAssessmentNotFound indicates the assessment could not be located.
var ErrAssessmentNotFound = errors.New("assessment not found")

// ErrAssessmentNotLive indicates the assessment is not open to students.
var ErrAssessmentNotLive = errors.New("assessment is not live")

// ErrNotAssigned indicates the student's class does not match the assessment's class.
var ErrNotAssigned = errors.New("assessment not assigned to student")

// ErrSubmissionNotFound indicates the submission could not be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrWorkspaceNotFound indicates the workspace could not be located.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// ErrForbidden indicates the caller does not own the resource.
var ErrForbidden = errors.New("forbidden")

// ErrAlreadySubmitted indicates the submission has already been finalized.
var ErrAlreadySubmitted = errors.New("submission already submitted")

// ErrSubmissionNotActive indicates the submission row was superseded by a restart.
var ErrSubmissionNotActive = errors.New("submission is no longer active")

// ErrPledgeRequired indicates the integrity pledge must be accepted before submitting.
var ErrPledgeRequired = errors.New("integrity pledge not accepted")

// ErrPledgeNotRequired indicates the assessment does not enforce a pledge.
var ErrPledgeNotRequired = errors.New("assessment does not require a pledge")

// ErrRestartNotEnabled indicates the assessment does not allow grace restarts.
var ErrRestartNotEnabled = errors.New("grace restart not enabled")

// ErrRestartAlreadyUsed indicates the single grace restart was already consumed.
var ErrRestartAlreadyUsed = errors.New("grace restart already used")

// ErrInvalidRestartReason indicates an unknown restart reason.
var ErrInvalidRestartReason = errors.New("invalid restart reason")

// ScoringRunner runs the rubric scoring pass for one submission.
type ScoringRunner interface {
	ScoreSubmission(ctx context.Context, submissionID uint) error
}

// AutoPublisher publishes feedback without a teacher actor, used by
// practice-mode assessments once scoring completes.
type AutoPublisher interface {
	AutoPublish(ctx context.Context, submissionID uint) error
}

// LifecycleService owns the submission state machine: creation, pledge
// gating, submit, grace restart.
type LifecycleService interface {
	Begin(ctx context.Context, assessmentID, studentID uint) (models.Submission, error)
	AcceptPledge(ctx context.Context, submissionID, studentID uint, ip string) (models.Submission, error)
	Submit(ctx context.Context, submissionID, studentID uint) (models.Submission, error)
	RestartGrace(ctx context.Context, submissionID, studentID uint, reason string, questionID *uint) (models.Submission, error)
}

type lifecycleService struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	roster      repository.RosterRepository
	restarts    repository.RestartEventRepository
	scorer      ScoringRunner
	publisher   AutoPublisher
	dispatcher  Dispatcher
	audit       AuditRecorder
	logger      zerolog.Logger
	now         func() time.Time
}

// NewLifecycleService constructs the submission lifecycle manager.
func NewLifecycleService(
	submissions repository.SubmissionRepository,
	assessments repository.AssessmentRepository,
	roster repository.RosterRepository,
	restarts repository.RestartEventRepository,
	scorer ScoringRunner,
	publisher AutoPublisher,
	dispatcher Dispatcher,
	audit AuditRecorder,
	logger zerolog.Logger,
) LifecycleService {
	return &lifecycleService{
		submissions: submissions,
		assessments: assessments,
		roster:      roster,
		restarts:    restarts,
		scorer:      scorer,
		publisher:   publisher,
		dispatcher:  dispatcher,
		audit:       audit,
		logger:      logger.With().Str("component", "lifecycle_service").Logger(),
		now:         time.Now,
	}
}

func (s *lifecycleService) Begin(ctx context.Context, assessmentID, studentID uint) (models.Submission, error) {
	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrAssessmentNotFound
		}
		return models.Submission{}, err
	}

	if !assessment.IsLive() {
		return models.Submission{}, ErrAssessmentNotLive
	}

	student, err := s.roster.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrNotAssigned
		}
		return models.Submission{}, err
	}

	if student.ClassID != assessment.ClassID {
		return models.Submission{}, ErrNotAssigned
	}

	// Idempotent resume: an open attempt is returned as-is.
	existing, err := s.submissions.FindActive(ctx, assessmentID, studentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Submission{}, err
	}

	// No open attempt. A submitted latest row closes the assessment for this
	// student; grace restart is the only path to a further attempt.
	prior, priorErr := s.submissions.FindLatestForPair(ctx, assessmentID, studentID)
	if priorErr != nil && !errors.Is(priorErr, gorm.ErrRecordNotFound) {
		return models.Submission{}, priorErr
	}
	if priorErr == nil && prior.Status == models.SubmissionStatusSubmitted {
		return models.Submission{}, ErrAlreadySubmitted
	}

	submission := models.Submission{
		AssessmentID:  assessmentID,
		StudentID:     studentID,
		Status:        models.SubmissionStatusStarted,
		StartedAt:     s.now(),
		ScoringStatus: models.ScoringStatusPending,
		ReviewStatus:  models.ReviewStatusUnpublished,
	}
	if priorErr == nil && prior.PledgeAccepted() {
		// Carry pledge acceptance forward so students are not re-prompted.
		submission.IntegrityPledgeAcceptedAt = prior.IntegrityPledgeAcceptedAt
		submission.IntegrityPledgeVersion = prior.IntegrityPledgeVersion
		submission.IntegrityPledgeIPAddress = prior.IntegrityPledgeIPAddress
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		// Lost the creation race: return the winner's row.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.submissions.FindActive(ctx, assessmentID, studentID)
		}
		return models.Submission{}, err
	}

	s.logger.Info().Uint("submission_id", submission.ID).Uint("assessment_id", assessmentID).Uint("student_id", studentID).Msg("submission started")

	return submission, nil
}

func (s *lifecycleService) AcceptPledge(ctx context.Context, submissionID, studentID uint, ip string) (models.Submission, error) {
	submission, assessment, err := s.loadOwnedSubmission(ctx, submissionID, studentID)
	if err != nil {
		return models.Submission{}, err
	}

	if err := requireActive(submission); err != nil {
		return models.Submission{}, err
	}

	if !assessment.PledgeRequired {
		return models.Submission{}, ErrPledgeNotRequired
	}

	// Accepting twice is a successful no-op.
	if submission.PledgeAccepted() {
		return submission, nil
	}

	acceptedAt := s.now()
	submission.IntegrityPledgeAcceptedAt = &acceptedAt
	submission.IntegrityPledgeVersion = assessment.PledgeVersion
	submission.IntegrityPledgeIPAddress = ip

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:        AuditActor{ID: studentID, Role: "student"},
		EventType:    AuditPledgeAccepted,
		SubmissionID: &submission.ID,
		AssessmentID: &submission.AssessmentID,
		StudentID:    &submission.StudentID,
		NewValue:     assessment.PledgeVersion,
		Metadata:     map[string]interface{}{"ip_address": ip},
	})

	return submission, nil
}

func (s *lifecycleService) Submit(ctx context.Context, submissionID, studentID uint) (models.Submission, error) {
	submission, assessment, err := s.loadOwnedSubmission(ctx, submissionID, studentID)
	if err != nil {
		return models.Submission{}, err
	}

	if err := requireActive(submission); err != nil {
		return models.Submission{}, err
	}

	if assessment.PledgeRequired && !submission.PledgeAccepted() {
		return models.Submission{}, ErrPledgeRequired
	}

	submittedAt := s.now()
	submission.Status = models.SubmissionStatusSubmitted
	submission.SubmittedAt = &submittedAt
	submission.ScoringStatus = models.ScoringStatusPending
	submission.ScoringError = ""

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:         AuditActor{ID: studentID, Role: "student"},
		EventType:     AuditSubmissionSubmitted,
		SubmissionID:  &submission.ID,
		AssessmentID:  &submission.AssessmentID,
		StudentID:     &submission.StudentID,
		PreviousValue: models.SubmissionStatusStarted,
		NewValue:      models.SubmissionStatusSubmitted,
	})

	// Scoring runs in the background; the student gets success now and
	// polls scoring_status for the outcome. Practice mode chains an
	// auto-publish once scoring completes.
	id := submission.ID
	practice := assessment.IsPractice()
	s.dispatcher.Dispatch("score_submission", func(taskCtx context.Context) {
		if err := s.scorer.ScoreSubmission(taskCtx, id); err != nil {
			s.logger.Error().Err(err).Uint("submission_id", id).Msg("scoring run failed")
			return
		}
		if practice {
			if err := s.publisher.AutoPublish(taskCtx, id); err != nil {
				s.logger.Error().Err(err).Uint("submission_id", id).Msg("practice auto-publish failed")
			}
		}
	})

	s.logger.Info().Uint("submission_id", submission.ID).Msg("submission submitted")

	return submission, nil
}

func (s *lifecycleService) RestartGrace(ctx context.Context, submissionID, studentID uint, reason string, questionID *uint) (models.Submission, error) {
	if reason != models.RestartReasonSlowStart && reason != models.RestartReasonOffTopic {
		return models.Submission{}, ErrInvalidRestartReason
	}

	submission, assessment, err := s.loadOwnedSubmission(ctx, submissionID, studentID)
	if err != nil {
		return models.Submission{}, err
	}

	if !assessment.GraceRestartEnabled {
		return models.Submission{}, ErrRestartNotEnabled
	}

	if err := requireActive(submission); err != nil {
		return models.Submission{}, err
	}

	used, err := s.restarts.ExistsForPair(ctx, submission.AssessmentID, studentID)
	if err != nil {
		return models.Submission{}, err
	}
	if used {
		return models.Submission{}, ErrRestartAlreadyUsed
	}

	// Close out the old attempt. The sentinel scoring error keeps the row
	// out of pending-scoring queues without reading as a real failure.
	submission.Status = models.SubmissionStatusRestarted
	submission.ScoringStatus = models.ScoringStatusComplete
	submission.ScoringError = models.ScoringErrorRestarted
	if err := s.submissions.Update(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	replacement := models.Submission{
		AssessmentID:              submission.AssessmentID,
		StudentID:                 studentID,
		Status:                    models.SubmissionStatusStarted,
		StartedAt:                 s.now(),
		ScoringStatus:             models.ScoringStatusPending,
		ReviewStatus:              models.ReviewStatusUnpublished,
		IntegrityPledgeAcceptedAt: submission.IntegrityPledgeAcceptedAt,
		IntegrityPledgeVersion:    submission.IntegrityPledgeVersion,
		IntegrityPledgeIPAddress:  submission.IntegrityPledgeIPAddress,
	}

	if err := s.submissions.Create(ctx, &replacement); err != nil {
		// The unique active-submission index means a concurrent restart
		// already created the replacement row.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.Submission{}, ErrRestartAlreadyUsed
		}
		return models.Submission{}, err
	}

	event := models.RestartEvent{
		AssessmentID:    submission.AssessmentID,
		StudentID:       studentID,
		OldSubmissionID: submission.ID,
		NewSubmissionID: replacement.ID,
		Reason:          reason,
		QuestionID:      questionID,
	}
	if err := s.restarts.Create(ctx, &event); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.Submission{}, ErrRestartAlreadyUsed
		}
		return models.Submission{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:         AuditActor{ID: studentID, Role: "student"},
		EventType:     AuditSubmissionRestarted,
		SubmissionID:  &submission.ID,
		AssessmentID:  &submission.AssessmentID,
		StudentID:     &studentID,
		PreviousValue: models.SubmissionStatusStarted,
		NewValue:      models.SubmissionStatusRestarted,
		Reason:        reason,
		Metadata:      map[string]interface{}{"new_submission_id": replacement.ID},
	})

	s.logger.Info().Uint("old_submission_id", submission.ID).Uint("new_submission_id", replacement.ID).Str("reason", reason).Msg("grace restart used")

	return replacement, nil
}

func (s *lifecycleService) loadOwnedSubmission(ctx context.Context, submissionID, studentID uint) (models.Submission, models.Assessment, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.Assessment{}, ErrSubmissionNotFound
		}
		return models.Submission{}, models.Assessment{}, err
	}

	if submission.StudentID != studentID {
		return models.Submission{}, models.Assessment{}, ErrForbidden
	}

	assessment, err := s.assessments.GetByID(ctx, submission.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Submission{}, models.Assessment{}, err
	}

	return submission, assessment, nil
}

func requireActive(submission models.Submission) error {
	switch submission.Status {
	case models.SubmissionStatusStarted:
		return nil
	case models.SubmissionStatusSubmitted:
		return ErrAlreadySubmitted
	default:
		return ErrSubmissionNotActive
	}
}
