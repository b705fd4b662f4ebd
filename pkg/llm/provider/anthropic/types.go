package anthropic

import "encoding/json"

// messagesRequest represents the Messages dialect request format.
type messagesRequest struct {
	Model         string            `json:"model"`
	Messages      []messagesMessage `json:"messages"`
	System        json.RawMessage   `json:"system,omitempty"` // string or []messagesBlock
	MaxTokens     *int              `json:"max_tokens,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	TopP          *float64          `json:"top_p,omitempty"`
	TopK          *int              `json:"top_k,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Stream        *bool             `json:"stream,omitempty"`
	Metadata      *messagesMetadata `json:"metadata,omitempty"`
}

// knownRequestFields are the top-level request fields mapped into the unified
// model. Anything else is carried in ChatRequest.Extra.
var knownRequestFields = map[string]bool{
	"model":          true,
	"messages":       true,
	"system":         true,
	"max_tokens":     true,
	"temperature":    true,
	"top_p":          true,
	"top_k":          true,
	"stop_sequences": true,
	"stream":         true,
	"metadata":       true,
}

type messagesMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

// messagesMessage represents a message in the Messages dialect.
type messagesMessage struct {
	Role string `json:"role"`

	// Union type: string or []messagesBlock
	Content json.RawMessage `json:"content"`
}

// messagesBlock represents a content block in the Messages dialect.
type messagesBlock struct {
	Type   string          `json:"type"`
	Text   *string         `json:"text,omitempty"`
	Source *messagesSource `json:"source,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type messagesSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// messagesResponse represents the Messages dialect response format.
type messagesResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Role         string          `json:"role"`
	Content      []messagesBlock `json:"content"`
	Model        string          `json:"model"`
	StopReason   *string         `json:"stop_reason"`
	StopSequence *string         `json:"stop_sequence"`
	Usage        *messagesUsage  `json:"usage,omitempty"`
}

type messagesUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

type messagesErrorBody struct {
	Type  string              `json:"type"`
	Error messagesErrorDetail `json:"error"`
}

type messagesErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Stream event payloads emitted by the encoder.

type messageStartEvent struct {
	Type    string           `json:"type"`
	Message messagesResponse `json:"message"`
}

type contentBlockStartEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index"`
	ContentBlock messagesBlock `json:"content_block"`
}

type contentBlockDeltaEvent struct {
	Type  string    `json:"type"`
	Index int       `json:"index"`
	Delta textDelta `json:"delta"`
}

type textDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type contentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type messageDeltaEvent struct {
	Type  string            `json:"type"`
	Delta messageDeltaStop  `json:"delta"`
	Usage messageDeltaUsage `json:"usage"`
}

type messageDeltaStop struct {
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type messageDeltaUsage struct {
	InputTokens          int `json:"input_tokens,omitempty"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens,omitempty"`
}

type messageStopEvent struct {
	Type string `json:"type"`
}
