package ai

import (
	"context"
)

// PrioritySuggester defines the contract for triage priority suggestion.
// This interface allows for swapping different providers (Gemini, rule-based)
// without touching the handlers.
type PrioritySuggester interface {
	// SuggestPriority analyzes the emergency description and returns an
	// advisory priority and vehicle type. The operator always has the final
	// word; suggestions never change state on their own.
	SuggestPriority(ctx context.Context, descripcion string) (*Suggestion, error)
}
