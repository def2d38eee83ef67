package dto

import (
	"time"

	"github.com/unhalum90/newveritas-api/internal/models"
)

// AxisScoreView is one rubric-axis grade inside the feedback payload.
type AxisScoreView struct {
	Axis          string  `json:"axis"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// QuestionFeedback groups the feedback for one question.
type QuestionFeedback struct {
	QuestionID       uint            `json:"question_id"`
	Prompt           string          `json:"prompt"`
	Transcript       *string         `json:"transcript"`
	FollowupQuestion *string         `json:"followup_question"`
	Scores           []AxisScoreView `json:"scores"`
	Average          *float64        `json:"average"`
}

// FeedbackResponse is the payload a student sees once feedback is released.
type FeedbackResponse struct {
	SubmissionID   uint               `json:"submission_id"`
	AssessmentID   uint               `json:"assessment_id"`
	PublishedAt    *time.Time         `json:"published_at"`
	TeacherComment string             `json:"teacher_comment"`
	FinalScore     *float64           `json:"final_score"`
	Overridden     bool               `json:"overridden"`
	Questions      []QuestionFeedback `json:"questions"`
}

// ReleaseRequest is the teacher payload for publishing feedback.
type ReleaseRequest struct {
	Comment       *string  `json:"comment" validate:"omitempty,max=4000"`
	ScoreOverride *float64 `json:"score_override"`
}

// ReviewRequestCreate is the student payload for requesting a second look.
type ReviewRequestCreate struct {
	Message string `json:"message" validate:"required,min=3,max=4000"`
}

// ReviewRequestResolve is the teacher payload for resolving a review request.
type ReviewRequestResolve struct {
	Resolution string `json:"resolution" validate:"required,oneof=reviewed updated no_change"`
	Note       string `json:"note" validate:"omitempty,max=4000"`
}

// ReviewRequestResponse mirrors a review request for API clients.
type ReviewRequestResponse struct {
	ID             uint       `json:"id"`
	SubmissionID   uint       `json:"submission_id"`
	StudentID      uint       `json:"student_id"`
	Message        string     `json:"message"`
	Status         string     `json:"status"`
	ResolvedBy     *uint      `json:"resolved_by"`
	ResolutionNote string     `json:"resolution_note"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewReviewRequestResponse converts the model into its API shape.
func NewReviewRequestResponse(request models.ReviewRequest) ReviewRequestResponse {
	return ReviewRequestResponse{
		ID:             request.ID,
		SubmissionID:   request.SubmissionID,
		StudentID:      request.StudentID,
		Message:        request.Message,
		Status:         request.Status,
		ResolvedBy:     request.ResolvedBy,
		ResolutionNote: request.ResolutionNote,
		ResolvedAt:     request.ResolvedAt,
		CreatedAt:      request.CreatedAt,
	}
}
