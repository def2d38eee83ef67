// Package transcribe converts recorded audio into text.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

var (
	transcriptionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "veritas",
		Subsystem: "transcribe",
		Name:      "duration_seconds",
		Help:      "Duration of transcription requests",
	}, []string{"model"})

	transcriptionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "transcribe",
		Name:      "failures_total",
		Help:      "Number of failed transcription requests",
	}, []string{"model"})
)

// Transcriber converts an audio buffer plus MIME type into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// OpenAIConfig configures the Whisper-backed transcriber.
type OpenAIConfig struct {
	APIKey string
	Model  string
	Logger zerolog.Logger
}

// OpenAITranscriber implements Transcriber using the OpenAI audio API.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewOpenAITranscriber builds a transcriber from the provided configuration.
func NewOpenAITranscriber(cfg OpenAIConfig) (*OpenAITranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	return &OpenAITranscriber{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
		logger: cfg.Logger.With().Str("component", "transcriber").Logger(),
	}, nil
}

// Transcribe sends the audio buffer to the transcription model and returns the text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio buffer is empty")
	}

	request := openai.AudioRequest{
		Model:    t.model,
		Reader:   bytes.NewReader(audio),
		FilePath: "answer" + extensionForMime(mimeType),
	}

	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, request)
	transcriptionDuration.WithLabelValues(t.model).Observe(time.Since(start).Seconds())
	if err != nil {
		transcriptionFailures.WithLabelValues(t.model).Inc()
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

// extensionForMime maps the upload MIME type to a filename extension the
// audio API recognizes. Unknown types fall back to webm, the browser default.
func extensionForMime(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	default:
		return ".webm"
	}
}
