package models

import "time"

const (
	// SubmissionStatusStarted indicates an in-progress attempt.
	SubmissionStatusStarted = "started"
	// SubmissionStatusSubmitted indicates the student finalized the attempt.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusRestarted indicates the attempt was superseded by a grace restart.
	SubmissionStatusRestarted = "restarted"
)

const (
	// ScoringStatusPending indicates scoring has been requested but not started.
	ScoringStatusPending = "pending"
	// ScoringStatusInProgress indicates the scoring run is executing.
	ScoringStatusInProgress = "in_progress"
	// ScoringStatusComplete indicates every axis score has been written.
	ScoringStatusComplete = "complete"
	// ScoringStatusError indicates the scoring run failed and needs an explicit re-trigger.
	ScoringStatusError = "error"
)

const (
	// ReviewStatusUnpublished indicates feedback is not yet visible to the student.
	ReviewStatusUnpublished = "unpublished"
	// ReviewStatusPublished indicates feedback has been released.
	ReviewStatusPublished = "published"
)

// ScoringErrorRestarted is the sentinel written to restarted submissions so
// they drop out of pending-scoring queues without reading as real failures.
const ScoringErrorRestarted = "Restarted by student"

// Submission is one attempt by one student at one assessment. Rows are never
// deleted; a grace restart supersedes the row instead.
type Submission struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	AssessmentID uint `gorm:"not null;index:idx_submission_pair" json:"assessment_id"`
	StudentID    uint `gorm:"not null;index:idx_submission_pair" json:"student_id"`

	Status      string     `gorm:"size:32;not null;default:started" json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`

	ScoringStatus    string     `gorm:"size:32;not null;default:pending" json:"scoring_status"`
	ScoringStartedAt *time.Time `json:"scoring_started_at"`
	ScoredAt         *time.Time `json:"scored_at"`
	ScoringError     string     `gorm:"size:512" json:"scoring_error"`

	ReviewStatus       string     `gorm:"size:32;not null;default:unpublished" json:"review_status"`
	PublishedAt        *time.Time `json:"published_at"`
	TeacherComment     string     `gorm:"type:text" json:"teacher_comment"`
	FinalScoreOverride *float64   `json:"final_score_override"`
	FinalScore         *float64   `json:"final_score"`

	IntegrityPledgeAcceptedAt *time.Time `json:"integrity_pledge_accepted_at"`
	IntegrityPledgeVersion    string     `gorm:"size:32" json:"integrity_pledge_version"`
	IntegrityPledgeIPAddress  string     `gorm:"size:64" json:"integrity_pledge_ip_address"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Assessment Assessment           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assessment"`
	Responses  []SubmissionResponse `json:"responses"`
}

// IsActive reports whether the submission is still open for responses.
func (s Submission) IsActive() bool {
	return s.Status == SubmissionStatusStarted
}

// PledgeAccepted reports whether the integrity pledge has been recorded.
func (s Submission) PledgeAccepted() bool {
	return s.IntegrityPledgeAcceptedAt != nil
}

// ScoringTerminal reports whether the scoring run reached a final state.
func (s Submission) ScoringTerminal() bool {
	return s.ScoringStatus == ScoringStatusComplete || s.ScoringStatus == ScoringStatusError
}
