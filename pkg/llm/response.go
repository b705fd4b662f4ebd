package llm

import (
	"encoding/json"
	"time"
)

// ChatResponse represents a dialect-agnostic chat completion response.
type ChatResponse struct {
	// ID is the provider-assigned response identifier, passed through unchanged.
	ID string `json:"id"`

	// Model that generated the response
	Model string `json:"model"`

	// Response timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// The assistant's response message
	Message Message `json:"message"`

	// StopReason is the unified finish reason. Empty when the provider
	// reported a reason outside the configured vocabulary.
	StopReason FinishReason `json:"stop_reason,omitempty"`

	// Token usage
	Usage *Usage `json:"usage,omitempty"`

	// Dialect-specific fields that don't map to common parameters
	Extra map[string]any `json:"extra,omitempty"`

	// RawResponse preserves the original response payload.
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}

// Usage contains token counts. Values are copied verbatim from the provider
// and never recomputed.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Cache token counts
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Merge overlays the non-zero counters of other onto u. Providers report
// usage in pieces across a stream (input on open, output on finish).
func (u *Usage) Merge(other *Usage) {
	if other == nil {
		return
	}
	if other.PromptTokens != 0 {
		u.PromptTokens = other.PromptTokens
	}
	if other.CompletionTokens != 0 {
		u.CompletionTokens = other.CompletionTokens
	}
	if other.TotalTokens != 0 {
		u.TotalTokens = other.TotalTokens
	}
	if other.CacheCreationInputTokens != 0 {
		u.CacheCreationInputTokens = other.CacheCreationInputTokens
	}
	if other.CacheReadInputTokens != 0 {
		u.CacheReadInputTokens = other.CacheReadInputTokens
	}
}
