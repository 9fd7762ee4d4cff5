package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// Fixed texts returned in place of an answer when a question fails.
const (
	TimeoutAnswer = "Processing timeout: the answer could not be generated in time"
	FailureAnswer = "Error processing this question"
)

// Answerer turns retrieved chunks and a question into a short answer under
// a hard per-question deadline.
type Answerer struct {
	llm     port.LLM
	timeout time.Duration
	opts    port.GenerateOptions
}

func NewAnswerer(llm port.LLM, timeout time.Duration, opts port.GenerateOptions) *Answerer {
	return &Answerer{llm: llm, timeout: timeout, opts: opts}
}

type generation struct {
	text string
	err  error
}

// Answer returns the cleaned model output. Errors are always wrapped in
// domain.ErrGenerationTimeout or domain.ErrGeneration.
//
// The model call runs in its own goroutine. When the deadline passes first
// the call's context is cancelled and its late result is discarded.
func (a *Answerer) Answer(ctx context.Context, chunks []domain.ScoredChunk, question string) (string, error) {
	contexts := make([]string, len(chunks))
	for i, c := range chunks {
		contexts[i] = c.Chunk.Text
	}

	prompt, err := RenderPrompt(contexts, question)
	if err != nil {
		return "", fmt.Errorf("%w: render prompt: %v", domain.ErrGeneration, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		text, err := a.llm.Generate(ctx, prompt, a.opts)
		done <- generation{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", deadlineError(ctx.Err(), a.timeout)
	case res := <-done:
		if res.err != nil {
			if ctx.Err() != nil {
				return "", deadlineError(ctx.Err(), a.timeout)
			}
			return "", fmt.Errorf("%w: %v", domain.ErrGeneration, res.err)
		}
		answer := CleanAnswer(res.text)
		if answer == "" {
			return "", fmt.Errorf("%w: empty reply", domain.ErrGeneration)
		}
		return answer, nil
	}
}

func deadlineError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", domain.ErrGenerationTimeout, timeout)
	}
	return fmt.Errorf("%w: %v", domain.ErrGeneration, err)
}

// CleanAnswer strips surrounding whitespace and trailing periods.
func CleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".")
	return strings.TrimSpace(s)
}

// FallbackFor maps a question-scoped error to the text shown instead of an
// answer.
func FallbackFor(err error) string {
	if errors.Is(err, domain.ErrGenerationTimeout) {
		return TimeoutAnswer
	}
	return FailureAnswer
}

// StatusFor maps a question-scoped error to its terminal state.
func StatusFor(err error) domain.AnswerStatus {
	if errors.Is(err, domain.ErrGenerationTimeout) {
		return domain.StatusTimedOut
	}
	return domain.StatusFailed
}
