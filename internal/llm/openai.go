package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"cropdoc/internal/provider"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient calls any OpenAI-compatible Chat Completions API (OpenAI,
// Groq, OpenRouter, a local vLLM) with the photo as a data URL.
type OpenAIClient struct {
	http      *http.Client
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
}

func NewOpenAIClient(apiKey, model, baseURL string, maxTokens int) *OpenAIClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAIClient{
		http:      &http.Client{Timeout: 60 * time.Second},
		apiKey:    apiKey,
		model:     model,
		baseURL:   baseURL,
		maxTokens: maxTokens,
	}
}

func (c *OpenAIClient) Name() string { return "openai:" + c.model }
func (c *OpenAIClient) Close() error { return nil }

type chatReq struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float32           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate posts a system + user message and returns the first choice's text.
func (c *OpenAIClient) Generate(ctx context.Context, p Prompt) (string, error) {
	var msgs []chatMessage
	if s := strings.TrimSpace(p.System); s != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: []chatPart{{Type: "text", Text: s}}})
	}
	user := []chatPart{{Type: "text", Text: p.Text}}
	if len(p.Image) > 0 {
		mime := p.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		user = append(user, chatPart{
			Type:     "image_url",
			ImageURL: &chatImageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.Image)},
		})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	reqBody := chatReq{
		Model:       c.model,
		Messages:    msgs,
		Temperature: 0.2,
		MaxTokens:   c.maxTokens,
	}
	if p.JSON {
		reqBody.ResponseFormat = map[string]string{"type": "json_object"}
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", provider.Wrap(c.Name(), "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(b))
	if err != nil {
		return "", provider.Wrap(c.Name(), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", provider.Wrap(c.Name(), "post", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", provider.StatusError(c.Name(), resp.StatusCode, body)
	}
	var out chatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", provider.Wrap(c.Name(), "decode response", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", provider.Wrap(c.Name(), "decode response", ErrEmptyResponse)
	}
	return out.Choices[0].Message.Content, nil
}
