package port

import "context"

// GenerateOptions controls sampling for one generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLM represents a language model for text generation.
type LLM interface {
	// Generate returns the model's reply to prompt. Implementations must
	// honour ctx cancellation where the backend allows it.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
