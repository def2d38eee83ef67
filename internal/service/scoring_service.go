package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
	"github.com/unhalum90/newveritas-api/internal/observability"
	"github.com/unhalum90/newveritas-api/internal/repository"
	"github.com/unhalum90/newveritas-api/pkg/ai"
)

// ErrSubmissionNotSubmitted indicates scoring was requested before submit.
var ErrSubmissionNotSubmitted = errors.New("submission not submitted")

// rubricInstructions returns the grading brief for one axis.
func rubricInstructions(axis string) string {
	switch axis {
	case models.ScorerTypeReasoning:
		return "Grade the quality of the reasoning: does the student build a coherent argument, " +
			"connect cause and effect, and address the question directly?"
	case models.ScorerTypeEvidence:
		return "Grade the use of evidence: does the student cite specific facts, examples, or " +
			"observations that support their answer?"
	default:
		return "Grade the overall quality of the answer."
	}
}

// ScoringService scores every response of a submitted submission against
// the rubric axes. Failed runs are never retried automatically; a regrade
// is an explicit re-invocation.
type ScoringService interface {
	ScoringRunner
	// Rescore is the teacher-triggered regrade; it verifies workspace
	// ownership before re-running the scoring pass.
	Rescore(ctx context.Context, submissionID, teacherID uint) error
}

type scoringService struct {
	submissions repository.SubmissionRepository
	responses   repository.ResponseRepository
	scores      repository.ScoreRepository
	assessments repository.AssessmentRepository
	llm         ai.LanguageModel
	audit       AuditRecorder
	events      EventPublisher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewScoringService constructs the scoring dispatcher.
func NewScoringService(
	submissions repository.SubmissionRepository,
	responses repository.ResponseRepository,
	scores repository.ScoreRepository,
	assessments repository.AssessmentRepository,
	llm ai.LanguageModel,
	audit AuditRecorder,
	events EventPublisher,
	logger zerolog.Logger,
) ScoringService {
	return &scoringService{
		submissions: submissions,
		responses:   responses,
		scores:      scores,
		assessments: assessments,
		llm:         llm,
		audit:       audit,
		events:      events,
		logger:      logger.With().Str("component", "scoring_service").Logger(),
		now:         time.Now,
	}
}

func (s *scoringService) ScoreSubmission(ctx context.Context, submissionID uint) error {
	start := s.now()

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	if submission.Status != models.SubmissionStatusSubmitted {
		return ErrSubmissionNotSubmitted
	}

	assessment, err := s.assessments.GetByID(ctx, submission.AssessmentID)
	if err != nil {
		return fmt.Errorf("load assessment: %w", err)
	}

	startedAt := s.now()
	submission.ScoringStatus = models.ScoringStatusInProgress
	submission.ScoringStartedAt = &startedAt
	submission.ScoringError = ""
	if err := s.submissions.Update(ctx, &submission); err != nil {
		return fmt.Errorf("mark scoring in progress: %w", err)
	}

	responses, err := s.responses.ListBySubmission(ctx, submissionID)
	if err != nil {
		return s.failScoring(ctx, &submission, fmt.Errorf("list responses: %w", err))
	}

	// QuestionScore keys are disjoint per question, so responses may be
	// scored concurrently.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range responses {
		response := responses[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.scoreResponse(ctx, assessment, submission.ID, response); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return s.failScoring(ctx, &submission, firstErr)
	}

	scoredAt := s.now()
	submission.ScoringStatus = models.ScoringStatusComplete
	submission.ScoredAt = &scoredAt
	submission.ScoringError = ""
	if err := s.submissions.Update(ctx, &submission); err != nil {
		return fmt.Errorf("mark scoring complete: %w", err)
	}

	observability.ScoringRuns().WithLabelValues(models.ScoringStatusComplete).Inc()
	observability.ScoringDuration().Observe(s.now().Sub(start).Seconds())
	s.events.Publish(EventScoringComplete, PipelineEvent{
		SubmissionID: submission.ID,
		AssessmentID: submission.AssessmentID,
		StudentID:    submission.StudentID,
		OccurredAt:   scoredAt,
	})
	s.logger.Info().Uint("submission_id", submission.ID).Int("responses", len(responses)).Msg("scoring complete")

	return nil
}

func (s *scoringService) Rescore(ctx context.Context, submissionID, teacherID uint) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	ownership, err := s.assessments.ResolveOwnership(ctx, submission.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssessmentNotFound
		}
		return err
	}
	if ownership.TeacherID != teacherID {
		return ErrForbidden
	}

	return s.ScoreSubmission(ctx, submissionID)
}

func (s *scoringService) scoreResponse(ctx context.Context, assessment models.Assessment, submissionID uint, response models.SubmissionResponse) error {
	transcript := ""
	if response.Transcript != nil {
		transcript = *response.Transcript
	}

	for _, axis := range models.ScorerTypes {
		result, err := s.llm.ScoreAxis(ctx, ai.AxisScoringInput{
			Question:           response.Question.Prompt,
			Transcript:         transcript,
			RubricInstructions: rubricInstructions(axis),
			ScaleMin:           assessment.RubricScaleMin,
			ScaleMax:           assessment.RubricScaleMax,
		})
		if err != nil {
			return fmt.Errorf("score question %d axis %s: %w", response.QuestionID, axis, err)
		}

		score := models.QuestionScore{
			SubmissionID:  submissionID,
			QuestionID:    response.QuestionID,
			ScorerType:    axis,
			Score:         clamp(result.Score, assessment.RubricScaleMin, assessment.RubricScaleMax),
			Justification: result.Justification,
		}
		if err := s.scores.Upsert(ctx, &score); err != nil {
			return fmt.Errorf("persist score for question %d axis %s: %w", response.QuestionID, axis, err)
		}
	}

	return nil
}

func (s *scoringService) failScoring(ctx context.Context, submission *models.Submission, cause error) error {
	submission.ScoringStatus = models.ScoringStatusError
	submission.ScoringError = truncateError(cause.Error())
	if err := s.submissions.Update(ctx, submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to record scoring error")
	}

	observability.ScoringRuns().WithLabelValues(models.ScoringStatusError).Inc()
	s.audit.Record(ctx, AuditEntry{
		Actor:        SystemActor,
		EventType:    AuditScoringFailed,
		SubmissionID: &submission.ID,
		AssessmentID: &submission.AssessmentID,
		StudentID:    &submission.StudentID,
		NewValue:     models.ScoringStatusError,
		Reason:       submission.ScoringError,
	})
	s.events.Publish(EventScoringFailed, PipelineEvent{
		SubmissionID: submission.ID,
		AssessmentID: submission.AssessmentID,
		StudentID:    submission.StudentID,
		OccurredAt:   s.now(),
	})
	s.logger.Error().Err(cause).Uint("submission_id", submission.ID).Msg("scoring failed")

	return cause
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// QuestionAverages computes the mean of present axis scores per question.
// Missing axes are excluded from the denominator, never treated as zero.
func QuestionAverages(scores []models.QuestionScore) map[uint]float64 {
	sums := map[uint]float64{}
	counts := map[uint]int{}
	for _, score := range scores {
		sums[score.QuestionID] += score.Score
		counts[score.QuestionID]++
	}

	averages := make(map[uint]float64, len(sums))
	for questionID, sum := range sums {
		averages[questionID] = sum / float64(counts[questionID])
	}
	return averages
}

// AggregateScore computes the submission-level score: the mean of all
// present question averages. Returns nil when no scores exist.
func AggregateScore(scores []models.QuestionScore) *float64 {
	averages := QuestionAverages(scores)
	if len(averages) == 0 {
		return nil
	}

	total := 0.0
	for _, avg := range averages {
		total += avg
	}
	aggregate := total / float64(len(averages))
	return &aggregate
}
