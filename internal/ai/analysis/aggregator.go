// Package analysis turns backend response fragments into a single report.
package analysis

import (
	"fmt"
	"strings"

	"github.com/rcourtman/pulse-anomaly/internal/ai/providers"
	pulseerrors "github.com/rcourtman/pulse-anomaly/internal/errors"
)

// State is the aggregator's position in a response.
type State int

const (
	// StateIdle means no content has been seen yet
	StateIdle State = iota
	// StateReasoning means reasoning text is being received
	StateReasoning
	// StateAnswer means answer text is being received
	StateAnswer
	// StateDone means the terminal fragment was seen
	StateDone
)

// String returns the state as a string
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReasoning:
		return "reasoning"
	case StateAnswer:
		return "answer"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Sink receives response text live, in delivery order.
type Sink interface {
	ReasoningStarted()
	ReasoningDelta(text string)
	ReasoningEnded()
	AnswerDelta(text string)
}

// Result is a completed response.
type Result struct {
	Answer    string          `json:"answer"`
	Reasoning string          `json:"reasoning,omitempty"`
	Stats     providers.Stats `json:"stats"`
}

// Aggregator consumes the fragments of one response. Text is forwarded to the
// sink and appended to the result with the same string, so live output and the
// final result cannot diverge.
//
// Reasoning is only kept when enabled at construction; otherwise it is dropped
// entirely. The backend never marks the end of reasoning, so the first answer
// text closes the reasoning phase and later reasoning text is dropped.
type Aggregator struct {
	reasoningEnabled bool
	sink             Sink

	state     State
	reasoning strings.Builder
	answer    strings.Builder
	stats     providers.Stats
}

// NewAggregator creates an aggregator for a single response. A nil sink
// discards live output.
func NewAggregator(reasoningEnabled bool, sink Sink) *Aggregator {
	if sink == nil {
		sink = discardSink{}
	}
	return &Aggregator{
		reasoningEnabled: reasoningEnabled,
		sink:             sink,
		state:            StateIdle,
	}
}

// State returns the current state.
func (a *Aggregator) State() State {
	return a.state
}

// Handle applies one fragment. Fragments after the terminal one are ignored.
func (a *Aggregator) Handle(f providers.Fragment) error {
	if a.state == StateDone {
		return nil
	}

	switch f.Kind {
	case providers.FragmentReasoning:
		if !a.reasoningEnabled || f.Text == "" || a.state == StateAnswer {
			return nil
		}
		if a.state == StateIdle {
			a.state = StateReasoning
			a.sink.ReasoningStarted()
		}
		a.reasoning.WriteString(f.Text)
		a.sink.ReasoningDelta(f.Text)

	case providers.FragmentAnswer:
		if f.Text == "" {
			return nil
		}
		if a.state == StateReasoning {
			a.sink.ReasoningEnded()
		}
		a.state = StateAnswer
		a.answer.WriteString(f.Text)
		a.sink.AnswerDelta(f.Text)

	case providers.FragmentFinal:
		if a.state == StateReasoning {
			a.sink.ReasoningEnded()
		}
		a.state = StateDone
		a.stats = f.Stats

	default:
		return pulseerrors.Malformed("aggregate", fmt.Errorf("unexpected fragment kind %s", f.Kind))
	}
	return nil
}

// Result returns the completed response, or ErrTruncatedResponse when the
// terminal fragment never arrived.
func (a *Aggregator) Result() (Result, error) {
	if a.state != StateDone {
		return Result{}, pulseerrors.Truncated("aggregate", fmt.Errorf("%w: stream ended in state %s", pulseerrors.ErrTruncatedResponse, a.state))
	}
	return Result{
		Answer:    a.answer.String(),
		Reasoning: a.reasoning.String(),
		Stats:     a.stats,
	}, nil
}

type discardSink struct{}

func (discardSink) ReasoningStarted()     {}
func (discardSink) ReasoningDelta(string) {}
func (discardSink) ReasoningEnded()       {}
func (discardSink) AnswerDelta(string)    {}
