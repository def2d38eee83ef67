package models

import "time"

const (
	// AssessmentStatusDraft marks an assessment that is still being authored.
	AssessmentStatusDraft = "draft"
	// AssessmentStatusLive marks an assessment students may begin.
	AssessmentStatusLive = "live"
	// AssessmentStatusClosed marks an assessment no longer accepting submissions.
	AssessmentStatusClosed = "closed"
)

const (
	// AssessmentModeGraded requires a teacher to review and release feedback.
	AssessmentModeGraded = "graded"
	// AssessmentModePractice auto-publishes feedback once scoring completes.
	AssessmentModePractice = "practice"
)

// Assessment is an oral assessment definition students respond to.
type Assessment struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	WorkspaceID uint   `gorm:"not null;index" json:"workspace_id"`
	ClassID     uint   `gorm:"not null;index" json:"class_id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Status      string `gorm:"size:32;not null;default:draft" json:"status"`
	Mode        string `gorm:"size:32;not null;default:graded" json:"mode"`

	PledgeRequired      bool   `gorm:"not null;default:false" json:"pledge_required"`
	PledgeVersion       string `gorm:"size:32" json:"pledge_version"`
	PledgeText          string `gorm:"type:text" json:"pledge_text"`
	GraceRestartEnabled bool   `gorm:"not null;default:false" json:"grace_restart_enabled"`

	RubricScaleMin float64 `gorm:"not null;default:1" json:"rubric_scale_min"`
	RubricScaleMax float64 `gorm:"not null;default:5" json:"rubric_scale_max"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Questions []Question `json:"questions"`
}

// IsLive reports whether students may currently begin the assessment.
func (a Assessment) IsLive() bool {
	return a.Status == AssessmentStatusLive
}

// IsPractice reports whether feedback auto-publishes without teacher review.
func (a Assessment) IsPractice() bool {
	return a.Mode == AssessmentModePractice
}

// Question is one spoken prompt within an assessment.
type Question struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	AssessmentID uint   `gorm:"not null;index" json:"assessment_id"`
	Position     int    `gorm:"not null" json:"position"`
	Prompt       string `gorm:"type:text;not null" json:"prompt"`

	FollowupEnabled      bool `gorm:"not null;default:false" json:"followup_enabled"`
	OffTopicCheckEnabled bool `gorm:"not null;default:false" json:"off_topic_check_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
