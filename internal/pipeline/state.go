package pipeline

import (
	"context"
	"time"
)

// State is a node of the pipeline state machine. Assembled is the only
// terminal state.
type State string

const (
	StateGating          State = "gating"
	StateSkipped         State = "skipped"
	StateProceeding      State = "proceeding"
	StateDiagnosing      State = "diagnosing"
	StateNormalizing     State = "normalizing"
	StatePlanning        State = "planning"
	StatePlanningSkipped State = "planning_skipped"
	StateAssembled       State = "assembled"
)

// Stage names used for duration metrics.
const (
	StageQuality   = "quality"
	StageWeather   = "weather"
	StageDiagnosis = "diagnosis"
	StagePlanner   = "planner"
)

// Event reports entry into a state. Detail carries the rejection reason for
// Skipped and the result id for Assembled.
type Event struct {
	State  State     `json:"state"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Observer receives every transition of one run, in order, on the run's
// goroutine.
type Observer interface {
	OnTransition(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) OnTransition(ctx context.Context, ev Event) { f(ctx, ev) }

type ctxKeyObserver struct{}

// WithObserver attaches obs to every Run that receives ctx.
func WithObserver(ctx context.Context, obs Observer) context.Context {
	return context.WithValue(ctx, ctxKeyObserver{}, obs)
}

func observerFrom(ctx context.Context) Observer {
	if obs, ok := ctx.Value(ctxKeyObserver{}).(Observer); ok {
		return obs
	}
	return nil
}

func emit(ctx context.Context, obs Observer, s State, detail string) {
	if obs == nil {
		return
	}
	obs.OnTransition(ctx, Event{State: s, Detail: detail, At: time.Now().UTC()})
}
