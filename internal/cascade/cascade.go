// Package cascade runs an ordered list of provider tiers and returns the first
// success. Tiers are attempted strictly one after another; a failure or timeout
// moves on to the next tier and the fallback always produces a value.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"cropdoc/internal/llm"
	"cropdoc/internal/logging"
	"cropdoc/internal/metrics"
	"cropdoc/internal/provider"
)

// Deps are the collaborators every stage constructor takes. A nil LLM or an
// empty endpoint URL leaves that tier unavailable.
type Deps struct {
	LLM     llm.Client
	HTTP    *http.Client
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// Tier is one candidate implementation of a stage.
type Tier[In, Out any] interface {
	Name() string
	Attempt(ctx context.Context, in In) (Out, error)
}

// Func adapts a plain function into a Tier.
type Func[In, Out any] struct {
	TierName string
	Fn       func(ctx context.Context, in In) (Out, error)
}

func (f Func[In, Out]) Name() string { return f.TierName }
func (f Func[In, Out]) Attempt(ctx context.Context, in In) (Out, error) {
	return f.Fn(ctx, in)
}

// Attempt records what happened to one tier during a run.
type Attempt struct {
	Tier    string
	Outcome string
	Err     error
	Elapsed time.Duration
}

// Outcome is the value produced by a run and the tier that produced it.
type Outcome[Out any] struct {
	Value    Out
	Tier     string
	Fallback bool
	Attempts []Attempt
}

// Runner tries Tiers in order and falls back to Fallback when all of them fail.
type Runner[In, Out any] struct {
	Stage string
	Tiers []Tier[In, Out]
	// Timeout bounds each tier attempt; zero means only the caller's context.
	Timeout time.Duration
	// Fallback is the infallible last tier.
	FallbackName string
	Fallback     func(in In) Out

	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// Run never fails. It returns the first tier success or the fallback value.
func (r *Runner[In, Out]) Run(ctx context.Context, in In) Outcome[Out] {
	lg := logging.For(ctx, r.Log).With(zap.String("stage", r.Stage))
	var res Outcome[Out]
	for _, t := range r.Tiers {
		if t == nil {
			continue
		}
		start := time.Now()
		out, err := r.attempt(ctx, t, in)
		elapsed := time.Since(start)
		outcome := classify(err)
		res.Attempts = append(res.Attempts, Attempt{Tier: t.Name(), Outcome: outcome, Err: err, Elapsed: elapsed})
		r.Metrics.ObserveTier(r.Stage, t.Name(), outcome, elapsed)

		switch outcome {
		case metrics.OutcomeSuccess:
			lg.Debug("tier succeeded", zap.String("tier", t.Name()), zap.Duration("elapsed", elapsed))
			res.Value = out
			res.Tier = t.Name()
			return res
		case metrics.OutcomeSkipped:
			lg.Debug("tier unavailable", zap.String("tier", t.Name()))
		default:
			lg.Warn("tier failed, falling through",
				zap.String("tier", t.Name()),
				zap.String("outcome", outcome),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		}
	}

	name := r.FallbackName
	if name == "" {
		name = "fallback"
	}
	r.Metrics.ObserveTier(r.Stage, name, metrics.OutcomeSuccess, 0)
	if r.Fallback != nil {
		res.Value = r.Fallback(in)
	}
	res.Tier = name
	res.Fallback = true
	return res
}

type result[Out any] struct {
	out Out
	err error
}

// attempt runs one tier under its own deadline. The call runs on its own
// goroutine so a tier that ignores ctx cannot stall the cascade; its result is
// discarded once the deadline passes.
func (r *Runner[In, Out]) attempt(ctx context.Context, t Tier[In, Out], in In) (Out, error) {
	var zero Out
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	done := make(chan result[Out], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result[Out]{err: fmt.Errorf("tier %s panicked: %v", t.Name(), p)}
			}
		}()
		out, err := t.Attempt(ctx, in)
		done <- result[Out]{out: out, err: err}
	}()
	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return zero, provider.Wrap(t.Name(), "attempt", ctx.Err())
	}
}

func classify(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, provider.ErrUnavailable):
		return metrics.OutcomeSkipped
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}
