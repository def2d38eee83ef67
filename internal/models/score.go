package models

import "time"

const (
	// ScorerTypeReasoning grades the quality of the student's reasoning.
	ScorerTypeReasoning = "reasoning"
	// ScorerTypeEvidence grades the use of supporting evidence.
	ScorerTypeEvidence = "evidence"
)

// ScorerTypes lists the rubric axes every question is scored on.
var ScorerTypes = []string{ScorerTypeReasoning, ScorerTypeEvidence}

// QuestionScore is one axis score for one question in one submission.
// At most one row per (submission, question, scorer_type); rescoring
// overwrites the existing row.
type QuestionScore struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SubmissionID uint   `gorm:"not null;uniqueIndex:idx_score_axis" json:"submission_id"`
	QuestionID   uint   `gorm:"not null;uniqueIndex:idx_score_axis" json:"question_id"`
	ScorerType   string `gorm:"size:32;not null;uniqueIndex:idx_score_axis" json:"scorer_type"`

	Score         float64 `gorm:"not null" json:"score"`
	Justification string  `gorm:"type:text" json:"justification"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
