package ai

import "context"

// OffTopicResult is the off-topic judgment for one transcript.
type OffTopicResult struct {
	OffTopic   bool    `json:"off_topic"`
	Confidence float64 `json:"confidence"`
}

// AxisScoringInput carries everything the model needs to grade one rubric axis.
type AxisScoringInput struct {
	Question           string
	Transcript         string
	RubricInstructions string
	ScaleMin           float64
	ScaleMax           float64
}

// AxisScore is the structured grade returned for one rubric axis.
type AxisScore struct {
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// LanguageModel describes the generative operations the pipeline depends on.
type LanguageModel interface {
	GenerateFollowup(ctx context.Context, question, transcript string) (string, error)
	DetectOffTopic(ctx context.Context, question, transcript string) (OffTopicResult, error)
	ScoreAxis(ctx context.Context, input AxisScoringInput) (AxisScore, error)
}
