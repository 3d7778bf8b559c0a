package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable reports a tier that is not configured.
var ErrUnavailable = errors.New("provider: not configured")

var errInvalidBody = errors.New("response body is not JSON")

// ProviderError is a transport failure, non-2xx response or timeout from an
// external inference call. Cascades recover from it by moving to the next tier.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s: %s", e.Provider, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Wrap converts err into a *ProviderError unless it already is one.
func Wrap(name, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: name, Op: op, Err: err}
}

// StatusError builds the error for a non-2xx response, truncating the body.
func StatusError(name string, status int, body []byte) *ProviderError {
	const max = 2048
	if len(body) > max {
		body = body[:max]
	}
	return &ProviderError{Provider: name, Op: "unexpected status", StatusCode: status, Body: string(body)}
}
