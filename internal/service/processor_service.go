package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
	"github.com/unhalum90/newveritas-api/internal/observability"
	"github.com/unhalum90/newveritas-api/internal/repository"
	"github.com/unhalum90/newveritas-api/pkg/ai"
	"github.com/unhalum90/newveritas-api/pkg/mediastore"
	"github.com/unhalum90/newveritas-api/pkg/transcribe"
)

// ErrResponseNotFound indicates the response row could not be located.
var ErrResponseNotFound = errors.New("response not found")

// ErrQuestionNotFound indicates the question does not belong to the assessment.
var ErrQuestionNotFound = errors.New("question not found")

// ErrUnsupportedAudioType indicates the uploaded file is not a recognized audio format.
var ErrUnsupportedAudioType = errors.New("unsupported audio type")

// FallbackFollowup is substituted when a required follow-up cannot be
// generated; a required follow-up is never silently absent.
const FallbackFollowup = "Tell me one more detail about your reasoning."

// offTopicConfidenceThreshold is the floor below which off-topic judgments
// are discarded rather than acted upon.
const offTopicConfidenceThreshold = 0.85

const processingErrorLimit = 256

// ResponseProcessor turns one uploaded answer into a transcript plus
// optional follow-up and off-topic signal, without blocking the upload.
type ResponseProcessor interface {
	// CreateFromUpload durably stores the audio, creates (or re-records)
	// the response row, and schedules Process in the background.
	CreateFromUpload(ctx context.Context, submissionID, studentID, questionID uint, audio []byte, durationSeconds float64) (models.SubmissionResponse, error)
	// Process runs the transcribe/generate pipeline for one response.
	Process(ctx context.Context, responseID uint)
}

type responseProcessor struct {
	responses   repository.ResponseRepository
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	store       mediastore.Store
	transcriber transcribe.Transcriber
	llm         ai.LanguageModel
	dispatcher  Dispatcher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewResponseProcessor constructs the per-response pipeline.
func NewResponseProcessor(
	responses repository.ResponseRepository,
	submissions repository.SubmissionRepository,
	assessments repository.AssessmentRepository,
	store mediastore.Store,
	transcriber transcribe.Transcriber,
	llm ai.LanguageModel,
	dispatcher Dispatcher,
	logger zerolog.Logger,
) ResponseProcessor {
	return &responseProcessor{
		responses:   responses,
		submissions: submissions,
		assessments: assessments,
		store:       store,
		transcriber: transcriber,
		llm:         llm,
		dispatcher:  dispatcher,
		logger:      logger.With().Str("component", "response_processor").Logger(),
		now:         time.Now,
	}
}

func (p *responseProcessor) CreateFromUpload(ctx context.Context, submissionID, studentID, questionID uint, audio []byte, durationSeconds float64) (models.SubmissionResponse, error) {
	if len(audio) == 0 {
		return models.SubmissionResponse{}, fmt.Errorf("audio payload is empty")
	}

	submission, err := p.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return models.SubmissionResponse{}, err
	}

	if submission.StudentID != studentID {
		return models.SubmissionResponse{}, ErrForbidden
	}

	if err := requireActive(submission); err != nil {
		return models.SubmissionResponse{}, err
	}

	question, err := p.assessments.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SubmissionResponse{}, ErrQuestionNotFound
		}
		return models.SubmissionResponse{}, err
	}
	if question.AssessmentID != submission.AssessmentID {
		return models.SubmissionResponse{}, ErrQuestionNotFound
	}

	mime := mimetype.Detect(audio)
	if !isAllowedAudioType(mime.String()) {
		return models.SubmissionResponse{}, fmt.Errorf("%w: %s", ErrUnsupportedAudioType, mime.String())
	}

	path := fmt.Sprintf("responses/%d/%s", submissionID, uuid.NewString())
	if _, err := p.store.Upload(ctx, path, bytes.NewReader(audio), mime.String()); err != nil {
		return models.SubmissionResponse{}, fmt.Errorf("failed to store audio: %w", err)
	}

	response, err := p.responses.FindBySubmissionAndQuestion(ctx, submissionID, questionID)
	switch {
	case err == nil:
		// Re-recording replaces the blob and resets derived fields.
		response.StoragePath = path
		response.MimeType = mime.String()
		response.DurationSeconds = durationSeconds
		response.Transcript = nil
		response.AIFollowupQuestion = nil
		response.OffTopicFlagged = false
		response.ProcessingStatus = models.ProcessingStatusQueued
		response.ProcessingError = ""
		if err := p.responses.Update(ctx, &response); err != nil {
			return models.SubmissionResponse{}, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		response = models.SubmissionResponse{
			SubmissionID:     submissionID,
			QuestionID:       questionID,
			StoragePath:      path,
			MimeType:         mime.String(),
			DurationSeconds:  durationSeconds,
			ProcessingStatus: models.ProcessingStatusQueued,
		}
		if err := p.responses.Create(ctx, &response); err != nil {
			return models.SubmissionResponse{}, err
		}
	default:
		return models.SubmissionResponse{}, err
	}

	id := response.ID
	p.dispatcher.Dispatch("process_response", func(taskCtx context.Context) {
		p.Process(taskCtx, id)
	})

	p.logger.Info().Uint("response_id", response.ID).Uint("submission_id", submissionID).Uint("question_id", questionID).Msg("response queued for processing")

	return response, nil
}

func (p *responseProcessor) Process(ctx context.Context, responseID uint) {
	start := p.now()

	response, err := p.responses.GetByID(ctx, responseID)
	if err != nil {
		p.logger.Error().Err(err).Uint("response_id", responseID).Msg("response lookup failed")
		return
	}

	question := response.Question

	response.ProcessingStatus = models.ProcessingStatusTranscribing
	if err := p.responses.Update(ctx, &response); err != nil {
		p.logger.Error().Err(err).Uint("response_id", responseID).Msg("failed to mark response transcribing")
		return
	}

	audio, err := p.store.Download(ctx, response.StoragePath)
	if err != nil {
		p.fail(ctx, &response, fmt.Errorf("download audio: %w", err))
		return
	}

	text, err := p.transcriber.Transcribe(ctx, audio, response.MimeType)
	if err != nil {
		p.fail(ctx, &response, fmt.Errorf("transcribe: %w", err))
		return
	}
	// An empty transcript is a provider degradation, not a failure; the
	// remaining steps tolerate a nil transcript.
	if strings.TrimSpace(text) != "" {
		transcript := strings.TrimSpace(text)
		response.Transcript = &transcript
	}

	response.ProcessingStatus = models.ProcessingStatusGenerating
	if err := p.responses.Update(ctx, &response); err != nil {
		p.fail(ctx, &response, fmt.Errorf("persist transcript: %w", err))
		return
	}

	if question.FollowupEnabled {
		followup := p.generateFollowup(ctx, question.Prompt, response.Transcript)
		response.AIFollowupQuestion = &followup
	}

	if question.OffTopicCheckEnabled && response.Transcript != nil {
		response.OffTopicFlagged = p.detectOffTopic(ctx, question.Prompt, *response.Transcript)
	}

	response.ProcessingStatus = models.ProcessingStatusComplete
	response.ProcessingError = ""
	if err := p.responses.Update(ctx, &response); err != nil {
		p.logger.Error().Err(err).Uint("response_id", responseID).Msg("failed to mark response complete")
		return
	}

	observability.ResponsesProcessed().WithLabelValues(models.ProcessingStatusComplete).Inc()
	observability.ResponseProcessingDuration().Observe(p.now().Sub(start).Seconds())
	p.logger.Info().Uint("response_id", responseID).Bool("has_transcript", response.Transcript != nil).Msg("response processed")
}

// generateFollowup returns the model's follow-up, or the fixed fallback when
// there is no transcript or generation fails.
func (p *responseProcessor) generateFollowup(ctx context.Context, prompt string, transcript *string) string {
	if transcript == nil {
		return FallbackFollowup
	}

	followup, err := p.llm.GenerateFollowup(ctx, prompt, *transcript)
	if err != nil {
		p.logger.Warn().Err(err).Msg("followup generation failed, using fallback")
		return FallbackFollowup
	}

	return followup
}

// detectOffTopic returns true only for high-confidence off-topic judgments.
func (p *responseProcessor) detectOffTopic(ctx context.Context, prompt, transcript string) bool {
	result, err := p.llm.DetectOffTopic(ctx, prompt, transcript)
	if err != nil {
		p.logger.Warn().Err(err).Msg("off-topic detection failed, signal discarded")
		return false
	}

	return result.OffTopic && result.Confidence >= offTopicConfidenceThreshold
}

// fail marks the response errored while keeping any partial fields already
// written; partial progress is never rolled back.
func (p *responseProcessor) fail(ctx context.Context, response *models.SubmissionResponse, cause error) {
	response.ProcessingStatus = models.ProcessingStatusError
	response.ProcessingError = truncateError(cause.Error())

	if err := p.responses.Update(ctx, response); err != nil {
		p.logger.Error().Err(err).Uint("response_id", response.ID).Msg("failed to mark response errored")
		return
	}

	observability.ResponsesProcessed().WithLabelValues(models.ProcessingStatusError).Inc()
	p.logger.Error().Err(cause).Uint("response_id", response.ID).Msg("response processing failed")
}

func truncateError(message string) string {
	if len(message) <= processingErrorLimit {
		return message
	}
	return message[:processingErrorLimit]
}

func isAllowedAudioType(mime string) bool {
	if strings.HasPrefix(mime, "audio/") {
		return true
	}
	// Browser recorders commonly emit webm/ogg containers that sniff as video.
	switch mime {
	case "video/webm", "application/ogg", "video/mp4":
		return true
	}
	return false
}
