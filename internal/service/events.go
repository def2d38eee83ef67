package service

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Pipeline event subjects published for downstream consumers (teacher
// dashboards, notification fan-out).
const (
	EventScoringComplete   = "veritas.scoring.complete"
	EventScoringFailed     = "veritas.scoring.failed"
	EventFeedbackPublished = "veritas.feedback.published"
)

// PipelineEvent is the payload published on submission lifecycle milestones.
type PipelineEvent struct {
	SubmissionID uint      `json:"submission_id"`
	AssessmentID uint      `json:"assessment_id"`
	StudentID    uint      `json:"student_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EventPublisher emits pipeline events. Publishing is best-effort; a broker
// outage never fails the operation that produced the event.
type EventPublisher interface {
	Publish(subject string, event PipelineEvent)
}

type natsPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewNATSPublisher builds an event publisher over the provided connection.
// A nil connection yields a publisher that drops events, which keeps local
// development working without a broker.
func NewNATSPublisher(conn *nats.Conn, logger zerolog.Logger) EventPublisher {
	return &natsPublisher{
		conn:   conn,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsPublisher) Publish(subject string, event PipelineEvent) {
	if p.conn == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to encode pipeline event")
		return
	}

	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish pipeline event")
	}
}
