package models

import "time"

const (
	// RestartReasonSlowStart covers a student who froze at the beginning.
	RestartReasonSlowStart = "slow_start"
	// RestartReasonOffTopic covers a response flagged as off topic.
	RestartReasonOffTopic = "off_topic"
)

// RestartEvent records the single permitted grace restart per
// (assessment, student) pair. The unique index is the serialization
// point for concurrent restart attempts.
type RestartEvent struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	AssessmentID uint `gorm:"not null;uniqueIndex:idx_restart_pair" json:"assessment_id"`
	StudentID    uint `gorm:"not null;uniqueIndex:idx_restart_pair" json:"student_id"`

	OldSubmissionID uint   `gorm:"not null" json:"old_submission_id"`
	NewSubmissionID uint   `gorm:"not null" json:"new_submission_id"`
	Reason          string `gorm:"size:32;not null" json:"reason"`
	QuestionID      *uint  `json:"question_id"`

	CreatedAt time.Time `json:"created_at"`
}
