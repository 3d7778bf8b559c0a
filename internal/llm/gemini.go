package llm

import (
	"context"
	"strings"

	genai "google.golang.org/genai"

	"cropdoc/internal/provider"
)

// GeminiClient is a thin wrapper around the official genai client.
// It only focuses on the API call itself. Cross-cutting concerns
// (logging, metrics, hooks) are applied via Middleware.
type GeminiClient struct {
	cli       *genai.Client
	model     string
	maxTokens int
}

func NewGeminiClient(ctx context.Context, apiKey, model string, maxTokens int) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model, maxTokens: maxTokens}, nil
}

func (g *GeminiClient) Name() string { return "gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

// Generate sends the prompt text plus the inline photo and returns the
// concatenated text parts of the first candidate.
func (g *GeminiClient) Generate(ctx context.Context, p Prompt) (string, error) {
	parts := []*genai.Part{{Text: p.Text}}
	if len(p.Image) > 0 {
		mime := p.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: p.Image}})
	}

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.2)}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.maxTokens)
	}
	if p.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if s := strings.TrimSpace(p.System); s != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: s}}}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: parts}},
		cfg,
	)
	if err != nil {
		return "", provider.Wrap(g.Name(), "generate", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", provider.Wrap(g.Name(), "generate", ErrEmptyResponse)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", provider.Wrap(g.Name(), "generate", ErrEmptyResponse)
	}
	return b.String(), nil
}
