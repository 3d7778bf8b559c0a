package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response from model")

// Client is a multimodal text-generation provider. Implementations return the
// model's raw text; callers sanitize and decode it.
type Client interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
	Close() error
}

// Prompt is one request: an optional system instruction, the user text and an
// optional photo.
type Prompt struct {
	System   string
	Text     string
	Image    []byte
	MIMEType string
	// JSON asks the provider for a JSON-only answer when it supports that.
	JSON bool
}

type ctxKeyPhase struct{}

// WithPhase tags ctx with the pipeline stage issuing the call.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// PhaseFrom returns the phase string stored in the context.
func PhaseFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyPhase{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
