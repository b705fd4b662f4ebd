package llm

import "encoding/json"

// ChatRequest represents a dialect-agnostic chat completion request.
// This is the internal representation used by the proxy after decoding
// either wire dialect. System prompts are carried as leading messages with
// RoleSystem; a decoded request is never mutated by the pipeline.
type ChatRequest struct {
	// Model name (e.g., "gpt-4o", "claude-sonnet-4-5")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Whether to stream the response
	Stream *bool `json:"stream,omitempty"`

	// Generation parameters (unified across dialects)
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	// User is the end-user identifier (Chat Completions "user",
	// Messages "metadata.user_id").
	User string `json:"user,omitempty"`

	// Dialect-specific fields that don't map to common parameters
	Extra map[string]any `json:"extra,omitempty"`

	// RawRequest preserves the original request payload.
	RawRequest json.RawMessage `json:"raw_request,omitempty"`
}

// IsStream reports whether the request asked for a streamed response.
func (r *ChatRequest) IsStream() bool {
	return r.Stream != nil && *r.Stream
}

// SplitSystem separates the leading system messages from the rest of the
// conversation. misplaced is the index of the first system message found
// after a non-system message, or -1 when the ordering is valid.
func (r *ChatRequest) SplitSystem() (system []Message, rest []Message, misplaced int) {
	misplaced = -1
	i := 0
	for i < len(r.Messages) && r.Messages[i].Role == RoleSystem {
		i++
	}
	system, rest = r.Messages[:i], r.Messages[i:]

	for j, msg := range rest {
		if msg.Role == RoleSystem {
			misplaced = i + j
			break
		}
	}
	return system, rest, misplaced
}
