package llm

import "time"

// StreamChunk represents a single decoded fragment of a streaming response.
type StreamChunk struct {
	// Index is the position of the chunk in its stream. Indices are strictly
	// increasing and the terminal chunk always carries the highest one.
	Index int `json:"index"`

	// Stream metadata, present on the opening chunk
	ID    string `json:"id,omitempty"`
	Model string `json:"model,omitempty"`
	Role  string `json:"role,omitempty"`

	// Chunk timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// Delta is the text carried by this fragment (possibly empty).
	Delta string `json:"delta,omitempty"`

	// StopReason is set on the terminal chunk when the provider reported one.
	StopReason FinishReason `json:"stop_reason,omitempty"`

	// Usage metrics, only present on the terminal chunk
	Usage *Usage `json:"usage,omitempty"`

	// Terminal marks the final chunk of the stream.
	Terminal bool `json:"terminal"`
}

// HasContent reports whether the chunk carries generated text.
func (c *StreamChunk) HasContent() bool {
	return c.Delta != ""
}
