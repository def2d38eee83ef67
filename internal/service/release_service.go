package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/dto"
	"github.com/unhalum90/newveritas-api/internal/models"
	"github.com/unhalum90/newveritas-api/internal/repository"
)

// ErrScoringIncomplete indicates feedback cannot be released while scoring is outstanding.
var ErrScoringIncomplete = errors.New("scoring not complete")

// ErrScoreOutOfBounds indicates an override outside the rubric scale.
var ErrScoreOutOfBounds = errors.New("score override outside rubric bounds")

// ErrNotPublished indicates the feedback has not been released yet.
var ErrNotPublished = errors.New("feedback not published")

// ErrReviewRequestOpen indicates an open review request already exists.
var ErrReviewRequestOpen = errors.New("review request already open")

// ErrReviewRequestNotFound indicates the review request could not be located.
var ErrReviewRequestNotFound = errors.New("review request not found")

// ErrReviewRequestClosed indicates the review request was already resolved.
var ErrReviewRequestClosed = errors.New("review request already resolved")

// ReleaseService is the teacher-controlled gate that publishes feedback,
// plus the student review-request flow that follows publication.
type ReleaseService interface {
	AutoPublisher
	ReleaseFeedback(ctx context.Context, submissionID, teacherID uint, comment *string, scoreOverride *float64) (models.Submission, error)
	Feedback(ctx context.Context, submissionID, studentID uint) (dto.FeedbackResponse, error)
	FileReviewRequest(ctx context.Context, submissionID, studentID uint, message string) (models.ReviewRequest, error)
	ResolveReviewRequest(ctx context.Context, requestID, teacherID uint, resolution, note string) (models.ReviewRequest, error)
}

type releaseService struct {
	submissions repository.SubmissionRepository
	scores      repository.ScoreRepository
	assessments repository.AssessmentRepository
	reviews     repository.ReviewRequestRepository
	audit       AuditRecorder
	events      EventPublisher
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReleaseService constructs the review/release gate.
func NewReleaseService(
	submissions repository.SubmissionRepository,
	scores repository.ScoreRepository,
	assessments repository.AssessmentRepository,
	reviews repository.ReviewRequestRepository,
	audit AuditRecorder,
	events EventPublisher,
	logger zerolog.Logger,
) ReleaseService {
	return &releaseService{
		submissions: submissions,
		scores:      scores,
		assessments: assessments,
		reviews:     reviews,
		audit:       audit,
		events:      events,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "release_service").Logger(),
		now:         time.Now,
	}
}

func (s *releaseService) ReleaseFeedback(ctx context.Context, submissionID, teacherID uint, comment *string, scoreOverride *float64) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}

	ownership, err := s.assessments.ResolveOwnership(ctx, submission.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrAssessmentNotFound
		}
		return models.Submission{}, err
	}
	if ownership.TeacherID != teacherID {
		return models.Submission{}, ErrForbidden
	}

	assessment, err := s.assessments.GetByID(ctx, submission.AssessmentID)
	if err != nil {
		return models.Submission{}, err
	}

	if scoreOverride != nil {
		if *scoreOverride < assessment.RubricScaleMin || *scoreOverride > assessment.RubricScaleMax {
			return models.Submission{}, ErrScoreOutOfBounds
		}
	}

	var sanitized string
	if comment != nil {
		sanitized = strings.TrimSpace(s.sanitizer.Sanitize(*comment))
	}

	actor := AuditActor{ID: teacherID, Role: "teacher"}
	return s.publish(ctx, submission, actor, sanitized, scoreOverride)
}

// AutoPublish releases feedback without a teacher actor. Used by
// practice-mode assessments once scoring completes; a failed scoring run
// leaves the submission unpublished.
func (s *releaseService) AutoPublish(ctx context.Context, submissionID uint) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	_, err = s.publish(ctx, submission, SystemActor, "", nil)
	return err
}

func (s *releaseService) publish(ctx context.Context, submission models.Submission, actor AuditActor, comment string, scoreOverride *float64) (models.Submission, error) {
	if submission.Status != models.SubmissionStatusSubmitted {
		return models.Submission{}, ErrSubmissionNotSubmitted
	}
	if submission.ScoringStatus != models.ScoringStatusComplete {
		return models.Submission{}, ErrScoringIncomplete
	}

	finalScore := scoreOverride
	if finalScore == nil {
		scores, err := s.scores.ListBySubmission(ctx, submission.ID)
		if err != nil {
			return models.Submission{}, err
		}
		finalScore = AggregateScore(scores)
	}

	previous := submission.ReviewStatus
	publishedAt := s.now()
	submission.ReviewStatus = models.ReviewStatusPublished
	submission.PublishedAt = &publishedAt
	submission.TeacherComment = comment
	submission.FinalScoreOverride = scoreOverride
	submission.FinalScore = finalScore

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:         actor,
		EventType:     AuditFeedbackPublished,
		SubmissionID:  &submission.ID,
		AssessmentID:  &submission.AssessmentID,
		StudentID:     &submission.StudentID,
		PreviousValue: previous,
		NewValue:      models.ReviewStatusPublished,
	})
	s.events.Publish(EventFeedbackPublished, PipelineEvent{
		SubmissionID: submission.ID,
		AssessmentID: submission.AssessmentID,
		StudentID:    submission.StudentID,
		OccurredAt:   publishedAt,
	})
	s.logger.Info().Uint("submission_id", submission.ID).Str("actor_role", actor.Role).Msg("feedback published")

	return submission, nil
}

func (s *releaseService) Feedback(ctx context.Context, submissionID, studentID uint) (dto.FeedbackResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FeedbackResponse{}, ErrSubmissionNotFound
		}
		return dto.FeedbackResponse{}, err
	}

	if submission.StudentID != studentID {
		return dto.FeedbackResponse{}, ErrForbidden
	}

	if submission.ReviewStatus != models.ReviewStatusPublished {
		return dto.FeedbackResponse{}, ErrNotPublished
	}

	scores, err := s.scores.ListBySubmission(ctx, submissionID)
	if err != nil {
		return dto.FeedbackResponse{}, err
	}

	return buildFeedback(submission, scores), nil
}

func buildFeedback(submission models.Submission, scores []models.QuestionScore) dto.FeedbackResponse {
	byQuestion := map[uint][]models.QuestionScore{}
	for _, score := range scores {
		byQuestion[score.QuestionID] = append(byQuestion[score.QuestionID], score)
	}
	averages := QuestionAverages(scores)

	questions := make([]dto.QuestionFeedback, 0, len(submission.Responses))
	for _, response := range submission.Responses {
		views := make([]dto.AxisScoreView, 0, len(byQuestion[response.QuestionID]))
		for _, score := range byQuestion[response.QuestionID] {
			views = append(views, dto.AxisScoreView{
				Axis:          score.ScorerType,
				Score:         score.Score,
				Justification: score.Justification,
			})
		}

		var average *float64
		if avg, ok := averages[response.QuestionID]; ok {
			value := avg
			average = &value
		}

		questions = append(questions, dto.QuestionFeedback{
			QuestionID:       response.QuestionID,
			Prompt:           response.Question.Prompt,
			Transcript:       response.Transcript,
			FollowupQuestion: response.AIFollowupQuestion,
			Scores:           views,
			Average:          average,
		})
	}

	return dto.FeedbackResponse{
		SubmissionID:   submission.ID,
		AssessmentID:   submission.AssessmentID,
		PublishedAt:    submission.PublishedAt,
		TeacherComment: submission.TeacherComment,
		FinalScore:     submission.FinalScore,
		Overridden:     submission.FinalScoreOverride != nil,
		Questions:      questions,
	}
}

func (s *releaseService) FileReviewRequest(ctx context.Context, submissionID, studentID uint, message string) (models.ReviewRequest, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ReviewRequest{}, ErrSubmissionNotFound
		}
		return models.ReviewRequest{}, err
	}

	if submission.StudentID != studentID {
		return models.ReviewRequest{}, ErrForbidden
	}

	if submission.ReviewStatus != models.ReviewStatusPublished {
		return models.ReviewRequest{}, ErrNotPublished
	}

	open, err := s.reviews.HasOpenRequest(ctx, submissionID)
	if err != nil {
		return models.ReviewRequest{}, err
	}
	if open {
		return models.ReviewRequest{}, ErrReviewRequestOpen
	}

	request := models.ReviewRequest{
		SubmissionID: submissionID,
		StudentID:    studentID,
		Message:      strings.TrimSpace(s.sanitizer.Sanitize(message)),
		Status:       models.ReviewRequestStatusOpen,
	}
	if err := s.reviews.Create(ctx, &request); err != nil {
		return models.ReviewRequest{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:        AuditActor{ID: studentID, Role: "student"},
		EventType:    AuditReviewRequestFiled,
		SubmissionID: &submissionID,
		AssessmentID: &submission.AssessmentID,
		StudentID:    &studentID,
		Metadata:     map[string]interface{}{"review_request_id": request.ID},
	})

	return request, nil
}

func (s *releaseService) ResolveReviewRequest(ctx context.Context, requestID, teacherID uint, resolution, note string) (models.ReviewRequest, error) {
	switch resolution {
	case models.ReviewRequestStatusReviewed, models.ReviewRequestStatusUpdated, models.ReviewRequestStatusNoChange:
	default:
		return models.ReviewRequest{}, errors.New("invalid resolution")
	}

	request, err := s.reviews.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ReviewRequest{}, ErrReviewRequestNotFound
		}
		return models.ReviewRequest{}, err
	}

	if !request.IsOpen() {
		return models.ReviewRequest{}, ErrReviewRequestClosed
	}

	submission, err := s.submissions.GetByID(ctx, request.SubmissionID)
	if err != nil {
		return models.ReviewRequest{}, err
	}

	ownership, err := s.assessments.ResolveOwnership(ctx, submission.AssessmentID)
	if err != nil {
		return models.ReviewRequest{}, err
	}
	if ownership.TeacherID != teacherID {
		return models.ReviewRequest{}, ErrForbidden
	}

	resolvedAt := s.now()
	previous := request.Status
	request.Status = resolution
	request.ResolvedBy = &teacherID
	request.ResolutionNote = strings.TrimSpace(s.sanitizer.Sanitize(note))
	request.ResolvedAt = &resolvedAt

	if err := s.reviews.Update(ctx, &request); err != nil {
		return models.ReviewRequest{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:         AuditActor{ID: teacherID, Role: "teacher"},
		EventType:     AuditReviewRequestResolved,
		SubmissionID:  &request.SubmissionID,
		AssessmentID:  &submission.AssessmentID,
		StudentID:     &request.StudentID,
		PreviousValue: previous,
		NewValue:      resolution,
		Reason:        request.ResolutionNote,
	})

	return request, nil
}
