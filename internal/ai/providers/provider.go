// Package providers contains analysis backend client implementations
package providers

import (
	"context"
	"fmt"
	"time"
)

// FragmentKind tags the variant held by a Fragment.
type FragmentKind int

const (
	// FragmentReasoning carries model deliberation text.
	FragmentReasoning FragmentKind = iota + 1
	// FragmentAnswer carries final answer text.
	FragmentAnswer
	// FragmentFinal terminates a response and carries its statistics.
	FragmentFinal
)

// String returns the kind as a string
func (k FragmentKind) String() string {
	switch k {
	case FragmentReasoning:
		return "reasoning"
	case FragmentAnswer:
		return "answer"
	case FragmentFinal:
		return "final"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Fragment is one decoded piece of a backend response. Only the fields
// relevant to Kind are set.
type Fragment struct {
	Kind  FragmentKind
	Text  string
	Stats Stats
}

// Reasoning builds a reasoning fragment.
func Reasoning(text string) Fragment {
	return Fragment{Kind: FragmentReasoning, Text: text}
}

// Answer builds an answer fragment.
func Answer(text string) Fragment {
	return Fragment{Kind: FragmentAnswer, Text: text}
}

// Final builds a terminal fragment.
func Final(stats Stats) Fragment {
	return Fragment{Kind: FragmentFinal, Stats: stats}
}

// Stats are the counters reported with a terminal fragment. A nil field was
// not reported by the backend, which is different from zero.
type Stats struct {
	PromptTokens     *uint64        `json:"promptTokens,omitempty"`
	CompletionTokens *uint64        `json:"completionTokens,omitempty"`
	TotalDuration    *time.Duration `json:"totalDuration,omitempty"`
	EvalDuration     *time.Duration `json:"evalDuration,omitempty"`
	LoadDuration     *time.Duration `json:"loadDuration,omitempty"`
}

// TotalTokens returns prompt plus completion tokens when both were reported.
func (s Stats) TotalTokens() (uint64, bool) {
	if s.PromptTokens == nil || s.CompletionTokens == nil {
		return 0, false
	}
	return *s.PromptTokens + *s.CompletionTokens, true
}

// GenerateRequest represents a single-prompt generation request
type GenerateRequest struct {
	Model  string // falls back to the client default when empty
	Prompt string
	Stream bool
	Think  bool // ask the model to expose its reasoning
}

// FragmentCallback receives fragments in delivery order. Returning an error
// aborts the request.
type FragmentCallback func(Fragment) error

// ModelInfo describes a model available on the backend
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

// Generator defines the interface for text generation backends
type Generator interface {
	// Generate sends req and delivers the decoded response fragments to callback
	Generate(ctx context.Context, req GenerateRequest, callback FragmentCallback) error

	// Name returns the provider name
	Name() string
}

// Provider is a Generator that can also be probed and listed
type Provider interface {
	Generator

	// TestConnection validates connectivity
	TestConnection(ctx context.Context) error

	// ListModels returns the models the backend can serve
	ListModels(ctx context.Context) ([]ModelInfo, error)
}
