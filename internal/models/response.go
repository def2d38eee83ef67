package models

import "time"

const (
	// ProcessingStatusQueued indicates the audio is stored and awaiting the pipeline.
	ProcessingStatusQueued = "queued"
	// ProcessingStatusTranscribing indicates the transcription step is running.
	ProcessingStatusTranscribing = "transcribing"
	// ProcessingStatusGenerating indicates followup/off-topic generation is running.
	ProcessingStatusGenerating = "generating"
	// ProcessingStatusComplete indicates the pipeline finished for this response.
	ProcessingStatusComplete = "complete"
	// ProcessingStatusError indicates the pipeline aborted; partial fields are kept.
	ProcessingStatusError = "error"
)

// SubmissionResponse is one recorded answer to one question within a
// submission. Mutated only by the response processor after creation.
type SubmissionResponse struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	SubmissionID uint `gorm:"not null;uniqueIndex:idx_response_question" json:"submission_id"`
	QuestionID   uint `gorm:"not null;uniqueIndex:idx_response_question" json:"question_id"`

	StoragePath     string  `gorm:"size:512;not null" json:"storage_path"`
	MimeType        string  `gorm:"size:128;not null" json:"mime_type"`
	DurationSeconds float64 `json:"duration_seconds"`

	Transcript         *string `gorm:"type:text" json:"transcript"`
	AIFollowupQuestion *string `gorm:"type:text" json:"ai_followup_question"`
	OffTopicFlagged    bool    `gorm:"not null;default:false" json:"off_topic_flagged"`

	ProcessingStatus string `gorm:"size:32;not null;default:queued" json:"processing_status"`
	ProcessingError  string `gorm:"size:512" json:"processing_error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Question Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"question"`
}

// ProcessingTerminal reports whether the response pipeline reached a final state.
func (r SubmissionResponse) ProcessingTerminal() bool {
	return r.ProcessingStatus == ProcessingStatusComplete || r.ProcessingStatus == ProcessingStatusError
}
