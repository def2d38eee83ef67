package dto

import (
	"time"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// BeginSubmissionRequest starts (or resumes) an attempt at an assessment.
type BeginSubmissionRequest struct {
	AssessmentID uint `json:"assessment_id" validate:"required,gt=0"`
}

// RestartRequest consumes the single grace restart.
type RestartRequest struct {
	Reason     string `json:"reason" validate:"required,oneof=slow_start off_topic"`
	QuestionID *uint  `json:"question_id" validate:"omitempty,gt=0"`
}

// SubmissionResponseStatus is the per-question processing view used for polling.
type SubmissionResponseStatus struct {
	QuestionID       uint    `json:"question_id"`
	ProcessingStatus string  `json:"processing_status"`
	ProcessingError  string  `json:"processing_error,omitempty"`
	HasTranscript    bool    `json:"has_transcript"`
	FollowupQuestion *string `json:"followup_question"`
	OffTopicFlagged  bool    `json:"off_topic_flagged"`
}

// SubmissionStatusResponse is the polling view of one submission.
type SubmissionStatusResponse struct {
	ID             uint                       `json:"id"`
	AssessmentID   uint                       `json:"assessment_id"`
	StudentID      uint                       `json:"student_id"`
	Status         string                     `json:"status"`
	StartedAt      time.Time                  `json:"started_at"`
	SubmittedAt    *time.Time                 `json:"submitted_at"`
	ScoringStatus  string                     `json:"scoring_status"`
	ScoredAt       *time.Time                 `json:"scored_at"`
	ScoringError   string                     `json:"scoring_error,omitempty"`
	ReviewStatus   string                     `json:"review_status"`
	PublishedAt    *time.Time                 `json:"published_at"`
	PledgeAccepted bool                       `json:"pledge_accepted"`
	Responses      []SubmissionResponseStatus `json:"responses"`
}

// NewSubmissionStatusResponse converts a submission with preloaded
// responses into its polling shape.
func NewSubmissionStatusResponse(submission models.Submission) SubmissionStatusResponse {
	responses := make([]SubmissionResponseStatus, 0, len(submission.Responses))
	for _, response := range submission.Responses {
		responses = append(responses, SubmissionResponseStatus{
			QuestionID:       response.QuestionID,
			ProcessingStatus: response.ProcessingStatus,
			ProcessingError:  response.ProcessingError,
			HasTranscript:    response.Transcript != nil,
			FollowupQuestion: response.AIFollowupQuestion,
			OffTopicFlagged:  response.OffTopicFlagged,
		})
	}

	return SubmissionStatusResponse{
		ID:             submission.ID,
		AssessmentID:   submission.AssessmentID,
		StudentID:      submission.StudentID,
		Status:         submission.Status,
		StartedAt:      submission.StartedAt,
		SubmittedAt:    submission.SubmittedAt,
		ScoringStatus:  submission.ScoringStatus,
		ScoredAt:       submission.ScoredAt,
		ScoringError:   submission.ScoringError,
		ReviewStatus:   submission.ReviewStatus,
		PublishedAt:    submission.PublishedAt,
		PledgeAccepted: submission.PledgeAccepted(),
		Responses:      responses,
	}
}

// SubmissionSummary is the teacher-facing list row.
type SubmissionSummary struct {
	ID            uint       `json:"id"`
	AssessmentID  uint       `json:"assessment_id"`
	StudentID     uint       `json:"student_id"`
	Status        string     `json:"status"`
	ScoringStatus string     `json:"scoring_status"`
	ScoringError  string     `json:"scoring_error,omitempty"`
	ReviewStatus  string     `json:"review_status"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	FinalScore    *float64   `json:"final_score"`
}

// NewSubmissionSummary converts a submission into its list row.
func NewSubmissionSummary(submission models.Submission) SubmissionSummary {
	return SubmissionSummary{
		ID:            submission.ID,
		AssessmentID:  submission.AssessmentID,
		StudentID:     submission.StudentID,
		Status:        submission.Status,
		ScoringStatus: submission.ScoringStatus,
		ScoringError:  submission.ScoringError,
		ReviewStatus:  submission.ReviewStatus,
		SubmittedAt:   submission.SubmittedAt,
		FinalScore:    submission.FinalScore,
	}
}

// NewSubmissionSummarySlice converts a slice of submissions.
func NewSubmissionSummarySlice(submissions []models.Submission) []SubmissionSummary {
	summaries := make([]SubmissionSummary, 0, len(submissions))
	for _, submission := range submissions {
		summaries = append(summaries, NewSubmissionSummary(submission))
	}
	return summaries
}
