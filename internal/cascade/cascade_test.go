package cascade

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"cropdoc/internal/metrics"
	"cropdoc/internal/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func tier(name string, out string, err error, calls *int32) Tier[string, string] {
	return Func[string, string]{TierName: name, Fn: func(ctx context.Context, in string) (string, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		if err != nil {
			return "", err
		}
		return out + ":" + in, nil
	}}
}

func fallback(in string) string { return "mock:" + in }

func TestRun_FirstSuccessWins(t *testing.T) {
	var second int32
	r := &Runner[string, string]{
		Stage:    "diagnosis",
		Tiers:    []Tier[string, string]{tier("custom", "a", nil, nil), tier("llm", "b", nil, &second)},
		Fallback: fallback,
		Log:      zap.NewNop(),
	}
	res := r.Run(context.Background(), "x")
	assert.Equal(t, "a:x", res.Value)
	assert.Equal(t, "custom", res.Tier)
	assert.False(t, res.Fallback)
	assert.Zero(t, atomic.LoadInt32(&second))
}

func TestRun_FallsThroughInOrder(t *testing.T) {
	var order []string
	mk := func(name string, err error) Tier[string, string] {
		return Func[string, string]{TierName: name, Fn: func(ctx context.Context, in string) (string, error) {
			order = append(order, name)
			if err != nil {
				return "", err
			}
			return name, nil
		}}
	}
	r := &Runner[string, string]{
		Stage: "planner",
		Tiers: []Tier[string, string]{
			mk("custom", provider.ErrUnavailable),
			mk("llm", errors.New("bad json")),
			mk("third", nil),
		},
		Fallback: fallback,
	}
	res := r.Run(context.Background(), "x")
	assert.Equal(t, "third", res.Value)
	assert.Equal(t, []string{"custom", "llm", "third"}, order)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, metrics.OutcomeSkipped, res.Attempts[0].Outcome)
	assert.Equal(t, metrics.OutcomeError, res.Attempts[1].Outcome)
	assert.Equal(t, metrics.OutcomeSuccess, res.Attempts[2].Outcome)
}

func TestRun_AllFailUsesFallback(t *testing.T) {
	r := &Runner[string, string]{
		Stage:        "quality",
		Tiers:        []Tier[string, string]{tier("custom", "", errors.New("503"), nil), nil},
		FallbackName: "default",
		Fallback:     fallback,
	}
	res := r.Run(context.Background(), "x")
	assert.Equal(t, "mock:x", res.Value)
	assert.Equal(t, "default", res.Tier)
	assert.True(t, res.Fallback)
}

func TestRun_TimeoutIsATierFailure(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := Func[string, string]{TierName: "slow", Fn: func(ctx context.Context, in string) (string, error) {
		// ignores ctx on purpose; the runner must not wait for it
		<-release
		return "late", nil
	}}
	r := &Runner[string, string]{
		Stage:    "diagnosis",
		Tiers:    []Tier[string, string]{slow, tier("llm", "b", nil, nil)},
		Timeout:  30 * time.Millisecond,
		Fallback: fallback,
	}
	start := time.Now()
	res := r.Run(context.Background(), "x")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "b:x", res.Value)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, metrics.OutcomeTimeout, res.Attempts[0].Outcome)
	assert.ErrorIs(t, res.Attempts[0].Err, context.DeadlineExceeded)
}

func TestRun_CancelledContextStillProducesValue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	r := &Runner[string, string]{
		Stage:    "diagnosis",
		Tiers:    []Tier[string, string]{tier("custom", "a", nil, &calls)},
		Fallback: fallback,
	}
	res := r.Run(ctx, "x")
	assert.Equal(t, "mock:x", res.Value)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRun_PanicIsContained(t *testing.T) {
	boom := Func[string, string]{TierName: "boom", Fn: func(ctx context.Context, in string) (string, error) {
		panic("nil map")
	}}
	r := &Runner[string, string]{Stage: "planner", Tiers: []Tier[string, string]{boom}, Fallback: fallback}
	res := r.Run(context.Background(), "x")
	assert.Equal(t, "mock:x", res.Value)
	require.Len(t, res.Attempts, 1)
	assert.ErrorContains(t, res.Attempts[0].Err, "panicked")
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := &Runner[string, string]{
		Stage:        "diagnosis",
		Tiers:        []Tier[string, string]{tier("custom", "", provider.ErrUnavailable, nil), tier("llm", "", errors.New("x"), nil)},
		FallbackName: "mock",
		Fallback:     fallback,
		Metrics:      m,
	}
	r.Run(context.Background(), "x")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TierAttempts.WithLabelValues("diagnosis", "custom", metrics.OutcomeSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TierAttempts.WithLabelValues("diagnosis", "llm", metrics.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TierAttempts.WithLabelValues("diagnosis", "mock", metrics.OutcomeSuccess)))
}
