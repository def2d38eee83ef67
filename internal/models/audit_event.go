package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent is one append-only entry in the integrity and audit log.
// Writes are best-effort; failures never propagate to the operation
// they describe.
type AuditEvent struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	ActorID      uint   `gorm:"not null" json:"actor_id"`
	ActorRole    string `gorm:"size:32;not null" json:"actor_role"`
	EventType    string `gorm:"size:64;not null;index" json:"event_type"`
	SubmissionID *uint  `gorm:"index" json:"submission_id"`
	AssessmentID *uint  `gorm:"index" json:"assessment_id"`
	StudentID    *uint  `gorm:"index" json:"student_id"`

	PreviousValue string            `gorm:"size:255" json:"previous_value"`
	NewValue      string            `gorm:"size:255" json:"new_value"`
	Reason        string            `gorm:"type:text" json:"reason"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}
