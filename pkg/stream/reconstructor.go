package stream

import (
	"time"

	"github.com/papercomputeco/switchboard/pkg/llm"
)

// Reconstructor accumulates the chunks delivered to the client into a
// complete response.
type Reconstructor struct {
	id      string
	model   string
	role    string
	created time.Time

	fragments  []llm.StreamChunk
	stopReason llm.FinishReason
	usage      *llm.Usage
	terminal   bool
}

// Add records one delivered chunk.
func (r *Reconstructor) Add(chunk *llm.StreamChunk) {
	if chunk == nil {
		return
	}
	if r.id == "" {
		r.id = chunk.ID
	}
	if r.model == "" {
		r.model = chunk.Model
	}
	if r.role == "" {
		r.role = chunk.Role
	}
	if r.created.IsZero() {
		r.created = chunk.CreatedAt
	}

	if chunk.HasContent() {
		r.fragments = append(r.fragments, *chunk)
	}
	if chunk.Terminal {
		r.terminal = true
		r.stopReason = chunk.StopReason
		r.usage = chunk.Usage
	}
}

// Text returns the concatenation of every delivered delta.
func (r *Reconstructor) Text() string {
	return llm.JoinDeltas(r.fragments)
}

// Fragments returns the number of content-bearing chunks delivered.
func (r *Reconstructor) Fragments() int {
	return len(r.fragments)
}

// Terminal reports whether the terminal chunk was delivered.
func (r *Reconstructor) Terminal() bool {
	return r.terminal
}

// Response closes the reconstruction into a unified response.
func (r *Reconstructor) Response() *llm.ChatResponse {
	content := []llm.ContentBlock{}
	if text := r.Text(); text != "" {
		content = llm.TextParts(text)
	}

	return &llm.ChatResponse{
		ID:         r.id,
		Model:      r.model,
		CreatedAt:  r.created,
		Message:    llm.Message{Role: llm.RoleAssistant, Content: content},
		StopReason: r.stopReason,
		Usage:      r.usage,
	}
}
