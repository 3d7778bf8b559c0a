// Package provider is the uniform boundary to external inference endpoints.
// Every failure it returns is a *ProviderError.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

// Endpoint posts JSON envelopes to a custom inference service.
type Endpoint struct {
	url  string
	key  string
	http *http.Client
}

// NewEndpoint returns nil when rawURL is empty so callers can treat the tier as
// absent. A nil client gets a default without its own timeout; callers bound
// each call through the context.
func NewEndpoint(rawURL, key string, client *http.Client) *Endpoint {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Endpoint{url: rawURL, key: strings.TrimSpace(key), http: client}
}

// Name is the endpoint host, used as result provenance.
func (e *Endpoint) Name() string {
	if e == nil {
		return ""
	}
	if u, err := url.Parse(e.url); err == nil && u.Host != "" {
		return u.Host
	}
	return e.url
}

// PostJSON sends body and returns the decoded-as-raw JSON response.
func (e *Endpoint) PostJSON(ctx context.Context, body any) (json.RawMessage, error) {
	if e == nil {
		return nil, ErrUnavailable
	}
	name := e.Name()
	b, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: name, Op: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(b))
	if err != nil {
		return nil, &ProviderError{Provider: name, Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.key != "" {
		req.Header.Set("Authorization", "Bearer "+e.key)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &ProviderError{Provider: name, Op: "post", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ProviderError{Provider: name, Op: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, StatusError(name, resp.StatusCode, data)
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, &ProviderError{Provider: name, Op: "decode response", Err: errInvalidBody}
	}
	return json.RawMessage(data), nil
}
