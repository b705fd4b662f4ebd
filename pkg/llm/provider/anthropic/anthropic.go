// Package anthropic implements the Messages dialect codec spoken natively by
// the anthropic provider family.
package anthropic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/llm/provider"
)

// DefaultMaxTokens is applied when a request converted into this dialect
// carries no max_tokens, which the Messages dialect requires.
const DefaultMaxTokens = 1000

const dialectName = "messages"

// Option configures the codec.
type Option func(*Codec)

// WithDefaultMaxTokens overrides DefaultMaxTokens.
func WithDefaultMaxTokens(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.defaultMaxTokens = n
		}
	}
}

// Codec implements provider.Codec for the Messages dialect.
type Codec struct {
	finish           *dialect.FinishTable
	defaultMaxTokens int
}

var _ provider.Codec = (*Codec)(nil)

// New creates a Messages codec using the given finish-reason table.
func New(finish *dialect.FinishTable, opts ...Option) *Codec {
	c := &Codec{
		finish:           finish,
		defaultMaxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Name() string { return string(dialect.Anthropic) }

func (c *Codec) Dialect() dialect.Dialect { return dialect.Messages }

func (c *Codec) DecodeRequest(payload []byte) (*llm.ChatRequest, error) {
	var req messagesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &llm.SchemaValidationError{Reason: "malformed JSON body", Err: err}
	}

	if req.Model == "" {
		return nil, &llm.SchemaValidationError{Field: "model", Reason: "required"}
	}
	if len(req.Messages) == 0 {
		return nil, &llm.SchemaValidationError{Field: "messages", Reason: "at least one message is required"}
	}
	if req.MaxTokens == nil {
		return nil, &llm.SchemaValidationError{Field: "max_tokens", Reason: "required"}
	}

	messages := make([]llm.Message, 0, len(req.Messages)+1)

	if len(req.System) > 0 && !bytes.Equal(req.System, []byte("null")) {
		system, err := decodeContent(req.System)
		if err != nil {
			return nil, &llm.SchemaValidationError{Field: "system", Err: err}
		}
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	}

	for i, msg := range req.Messages {
		if msg.Role != llm.RoleUser && msg.Role != llm.RoleAssistant {
			return nil, &llm.SchemaValidationError{
				Field:  fmt.Sprintf("messages[%d].role", i),
				Reason: fmt.Sprintf("unsupported role %q", msg.Role),
			}
		}
		content, err := decodeContent(msg.Content)
		if err != nil {
			return nil, &llm.SchemaValidationError{Field: fmt.Sprintf("messages[%d].content", i), Err: err}
		}
		messages = append(messages, llm.Message{Role: msg.Role, Content: content})
	}

	result := &llm.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Stop:        req.StopSequences,
		Stream:      req.Stream,
		Extra:       provider.ExtraFields(payload, knownRequestFields),
		RawRequest:  payload,
	}
	if req.Metadata != nil {
		result.User = req.Metadata.UserID
	}

	return result, nil
}

func (c *Codec) EncodeRequest(req *llm.ChatRequest) ([]byte, []llm.Warning, error) {
	system, rest, misplaced := req.SplitSystem()
	if misplaced >= 0 {
		return nil, nil, &llm.ConversionError{
			Field:  fmt.Sprintf("messages[%d].role", misplaced),
			Reason: "system message after the start of the conversation has no position in the messages dialect",
		}
	}

	var warnings []llm.Warning
	out := messagesRequest{
		Model:         req.Model,
		Messages:      make([]messagesMessage, 0, len(rest)),
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.Stop,
		Stream:        req.Stream,
	}

	if out.MaxTokens == nil {
		n := c.defaultMaxTokens
		out.MaxTokens = &n
		warnings = append(warnings, llm.Warning{
			Field:  "max_tokens",
			Reason: fmt.Sprintf("required by messages dialect, defaulted to %d", n),
		})
	}

	if req.User != "" {
		out.Metadata = &messagesMetadata{UserID: req.User}
	}

	if len(system) > 0 {
		raw, w, err := encodeSystem(system)
		if err != nil {
			return nil, nil, err
		}
		out.System = raw
		warnings = append(warnings, w...)
	}

	for i, msg := range rest {
		field := fmt.Sprintf("messages[%d]", len(system)+i)
		if msg.Role != llm.RoleUser && msg.Role != llm.RoleAssistant {
			warnings = append(warnings, llm.Warning{Field: field, Reason: fmt.Sprintf("role %q has no equivalent in messages dialect, dropped", msg.Role)})
			continue
		}

		content, w, err := encodeContent(field, msg.Content)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)
		if content == nil {
			warnings = append(warnings, llm.Warning{Field: field, Reason: "no content left after conversion, dropped"})
			continue
		}
		out.Messages = append(out.Messages, messagesMessage{Role: msg.Role, Content: content})
	}

	warnings = append(warnings, provider.DropExtra(req.Extra, dialectName)...)

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, nil, err
	}
	return payload, warnings, nil
}

func (c *Codec) DecodeResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp messagesResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &llm.UpstreamProtocolError{Reason: "malformed messages response", Err: err}
	}
	if resp.Type != "" && resp.Type != "message" {
		return nil, &llm.UpstreamProtocolError{Reason: fmt.Sprintf("unexpected response type %q", resp.Type)}
	}

	content := make([]llm.ContentBlock, 0, len(resp.Content))
	for _, block := range resp.Content {
		content = append(content, decodeBlock(block))
	}

	result := &llm.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: content,
		},
		Usage:       decodeUsage(resp.Usage),
		CreatedAt:   time.Now(),
		RawResponse: payload,
	}

	if resp.StopReason != nil {
		reason, ok := c.finish.Decode(dialect.Messages, *resp.StopReason)
		if ok {
			result.StopReason = reason
		} else {
			result.Extra = map[string]any{"stop_reason": *resp.StopReason}
		}
	}

	return result, nil
}

func (c *Codec) EncodeResponse(resp *llm.ChatResponse) ([]byte, []llm.Warning, error) {
	stopReason, ok := c.finish.Encode(dialect.Messages, resp.StopReason)
	if !ok {
		return nil, nil, &llm.ConversionError{
			Field:  "stop_reason",
			Reason: fmt.Sprintf("finish reason %q has no messages dialect equivalent", resp.StopReason),
		}
	}

	content, warnings := encodeResponseBlocks(resp.Message.Content)

	out := messagesResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       llm.RoleAssistant,
		Content:    content,
		Model:      resp.Model,
		StopReason: &stopReason,
		Usage:      encodeUsage(resp.Usage),
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, nil, err
	}
	return payload, warnings, nil
}

func (c *Codec) NewStreamDecoder() provider.StreamDecoder {
	return &streamDecoder{finish: c.finish}
}

func (c *Codec) NewStreamEncoder() provider.StreamEncoder {
	return &streamEncoder{finish: c.finish}
}

func (c *Codec) EncodeError(apiErr provider.APIError) []byte {
	payload, _ := json.Marshal(errorBody(apiErr))
	return payload
}

func errorBody(apiErr provider.APIError) messagesErrorBody {
	return messagesErrorBody{
		Type: "error",
		Error: messagesErrorDetail{
			Type:    errorType(apiErr.Kind),
			Message: apiErr.Message,
		},
	}
}

func errorType(kind provider.ErrorKind) string {
	switch kind {
	case provider.KindInvalidRequest:
		return "invalid_request_error"
	case provider.KindNotFound:
		return "not_found_error"
	case provider.KindAuthentication:
		return "authentication_error"
	case provider.KindPermission:
		return "permission_error"
	case provider.KindRateLimit:
		return "rate_limit_error"
	case provider.KindOverloaded:
		return "overloaded_error"
	case provider.KindTimeout:
		return "timeout_error"
	}
	return "api_error"
}

func newMessageID() string {
	return "msg_" + uuid.NewString()
}
