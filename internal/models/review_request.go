package models

import "time"

const (
	// ReviewRequestStatusOpen indicates the request awaits a teacher.
	ReviewRequestStatusOpen = "open"
	// ReviewRequestStatusReviewed indicates the teacher looked and kept the result.
	ReviewRequestStatusReviewed = "reviewed"
	// ReviewRequestStatusUpdated indicates the teacher amended the feedback.
	ReviewRequestStatusUpdated = "updated"
	// ReviewRequestStatusNoChange indicates the teacher declined any change.
	ReviewRequestStatusNoChange = "no_change"
)

// ReviewRequest is a student-initiated ask for a second look at published
// feedback. Resolving one never reopens the submission state machine.
type ReviewRequest struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SubmissionID uint   `gorm:"not null;index" json:"submission_id"`
	StudentID    uint   `gorm:"not null;index" json:"student_id"`
	Message      string `gorm:"type:text;not null" json:"message"`
	Status       string `gorm:"size:32;not null;default:open" json:"status"`

	ResolvedBy     *uint      `json:"resolved_by"`
	ResolutionNote string     `gorm:"type:text" json:"resolution_note"`
	ResolvedAt     *time.Time `json:"resolved_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the request still awaits resolution.
func (r ReviewRequest) IsOpen() bool {
	return r.Status == ReviewRequestStatusOpen
}
