package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cropdoc/internal/logging"
	"cropdoc/internal/metrics"
	"cropdoc/internal/provider"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, logging, metrics, hooks).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit limits request rate with a token bucket.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next Client
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}
func (c *rateLimited) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", provider.Wrap(c.Name(), "rate limit", err)
	}
	return c.next.Generate(ctx, p)
}

// -------- Logging, metrics & hooks --------

// WithLogging logs prompt size, latency and errors. A nil logger is a no-op.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Client) Client {
		return &logged{next: next, log: logger}
	}
}

type logged struct {
	next Client
	log  *zap.Logger
}

func (l *logged) Name() string { return l.next.Name() }
func (l *logged) Close() error { return l.next.Close() }
func (l *logged) Generate(ctx context.Context, p Prompt) (string, error) {
	lg := logging.For(ctx, l.log).With(zap.String("client", l.Name()), zap.String("phase", PhaseFrom(ctx)))
	lg.Debug("llm request", zap.Int("prompt_bytes", len(p.System)+len(p.Text)), zap.Int("image_bytes", len(p.Image)))
	start := time.Now()
	out, err := l.next.Generate(ctx, p)
	if err != nil {
		lg.Warn("llm error", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return out, err
	}
	lg.Debug("llm response", zap.Duration("elapsed", time.Since(start)), zap.Int("response_bytes", len(out)))
	return out, nil
}

// WithMetrics counts calls per client and outcome.
func WithMetrics(m *metrics.Metrics) Middleware {
	return func(next Client) Client {
		return &measured{next: next, m: m}
	}
}

type measured struct {
	next Client
	m    *metrics.Metrics
}

func (c *measured) Name() string { return c.next.Name() }
func (c *measured) Close() error { return c.next.Close() }
func (c *measured) Generate(ctx context.Context, p Prompt) (string, error) {
	out, err := c.next.Generate(ctx, p)
	c.m.ObserveLLM(c.Name(), err)
	return out, err
}

// Hook observes each call. Before runs with the prompt, After with the raw
// answer and error.
type Hook interface {
	Before(ctx context.Context, phase string, p Prompt)
	After(ctx context.Context, phase string, raw string, err error)
}

type ctxKeyHook struct{}

func WithHook(ctx context.Context, h Hook) context.Context {
	return context.WithValue(ctx, ctxKeyHook{}, h)
}

func HookFrom(ctx context.Context) Hook {
	if h, ok := ctx.Value(ctxKeyHook{}).(Hook); ok {
		return h
	}
	return nil
}

// WithHooks calls HookFrom(ctx).Before/After around Generate.
// If no hook is present in the context, it is a no-op.
func WithHooks() Middleware {
	return func(next Client) Client {
		return &hooked{next: next}
	}
}

type hooked struct{ next Client }

func (h *hooked) Name() string { return h.next.Name() }
func (h *hooked) Close() error { return h.next.Close() }
func (h *hooked) Generate(ctx context.Context, p Prompt) (string, error) {
	hook := HookFrom(ctx)
	if hook != nil {
		hook.Before(ctx, PhaseFrom(ctx), p)
	}
	raw, err := h.next.Generate(ctx, p)
	if hook != nil {
		hook.After(ctx, PhaseFrom(ctx), raw, err)
	}
	return raw, err
}
