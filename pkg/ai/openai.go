package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	modelCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "veritas",
		Subsystem: "ai",
		Name:      "model_call_duration_seconds",
		Help:      "Duration of language model requests",
	}, []string{"operation", "model"})

	modelCallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "ai",
		Name:      "model_call_failures_total",
		Help:      "Number of failed language model requests",
	}, []string{"operation", "model"})
)

// OpenAIConfig defines configuration options for the OpenAI language model client.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIModel implements LanguageModel against the OpenAI chat completion API.
type OpenAIModel struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIModel builds a language model client using the provided configuration.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	tracer := otel.Tracer("github.com/unhalum90/newveritas-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIModel{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// GenerateFollowup produces one contextual follow-up question grounded in the transcript.
func (m *OpenAIModel) GenerateFollowup(ctx context.Context, question, transcript string) (string, error) {
	prompt := strings.Builder{}
	prompt.WriteString("# Original question\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n# Student answer transcript\n")
	prompt.WriteString(transcript)
	prompt.WriteString("\n\nAsk exactly one short follow-up question that probes the student's reasoning. Return plain text only.")

	content, err := m.complete(ctx, "followup", followupSystemPrompt(), prompt.String(), false)
	if err != nil {
		return "", err
	}

	followup := strings.TrimSpace(content)
	if followup == "" {
		return "", fmt.Errorf("empty followup from model")
	}

	return followup, nil
}

// DetectOffTopic judges whether the transcript answers the question at all.
func (m *OpenAIModel) DetectOffTopic(ctx context.Context, question, transcript string) (OffTopicResult, error) {
	prompt := strings.Builder{}
	prompt.WriteString("# Question\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n# Transcript\n")
	prompt.WriteString(transcript)
	prompt.WriteString("\n\nReturn JSON.")

	content, err := m.complete(ctx, "off_topic", offTopicSystemPrompt(), prompt.String(), true)
	if err != nil {
		return OffTopicResult{}, err
	}

	var result OffTopicResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return OffTopicResult{}, fmt.Errorf("parse off-topic json: %w", err)
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	return result, nil
}

// ScoreAxis grades the transcript on one rubric axis and clamps the score to the scale.
func (m *OpenAIModel) ScoreAxis(ctx context.Context, input AxisScoringInput) (AxisScore, error) {
	content, err := m.complete(ctx, "score_axis", scoringSystemPrompt(input), buildScoringPrompt(input), true)
	if err != nil {
		return AxisScore{}, err
	}

	return parseAxisScore(content, input.ScaleMin, input.ScaleMax)
}

func (m *OpenAIModel) complete(parent context.Context, operation, system, user string, jsonMode bool) (string, error) {
	ctx, span := m.tracer.Start(parent, "openai."+operation, trace.WithAttributes(
		attribute.String("model", m.cfg.Model),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       m.cfg.Model,
		MaxTokens:   m.cfg.MaxTokens,
		Temperature: m.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, request)
	modelCallDuration.WithLabelValues(operation, m.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		modelCallFailures.WithLabelValues(operation, m.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai %s: %w", operation, err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		modelCallFailures.WithLabelValues(operation, m.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func followupSystemPrompt() string {
	return "You are an oral examiner conducting an adaptive assessment. Given a question and the transcript of a spoken answer, " +
		"you ask one concise follow-up question that makes the student elaborate on their reasoning."
}

func offTopicSystemPrompt() string {
	return "You judge whether a spoken answer addresses the question asked. Respond with a JSON object containing " +
		"off_topic (boolean) and confidence (0-1). A rambling but relevant answer is not off topic."
}

func scoringSystemPrompt(input AxisScoringInput) string {
	return fmt.Sprintf("You are a rubric grader for oral assessments. Grade the transcript on a single axis using the provided "+
		"instructions. Respond with a JSON object containing score (a number between %.0f and %.0f) and justification (text). "+
		"If the transcript is missing or empty, give the minimum score and say the answer could not be transcribed.",
		input.ScaleMin, input.ScaleMax)
}

func buildScoringPrompt(input AxisScoringInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Question\n")
	builder.WriteString(input.Question)
	builder.WriteString("\n\n# Rubric instructions\n")
	builder.WriteString(input.RubricInstructions)
	builder.WriteString("\n\n# Transcript\n")
	if strings.TrimSpace(input.Transcript) == "" {
		builder.WriteString("(no transcript available)")
	} else {
		builder.WriteString(input.Transcript)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseAxisScore(content string, scaleMin, scaleMax float64) (AxisScore, error) {
	var data AxisScore
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return AxisScore{}, fmt.Errorf("parse axis score json: %w", err)
	}

	if data.Score < scaleMin {
		data.Score = scaleMin
	}
	if data.Score > scaleMax {
		data.Score = scaleMax
	}

	return data, nil
}
