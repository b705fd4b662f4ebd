// Package openai implements the Chat Completions dialect codec spoken
// natively by the openai provider family.
package openai

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/llm/provider"
)

const dialectName = "chat_completions"

// Codec implements provider.Codec for the Chat Completions dialect.
type Codec struct {
	finish *dialect.FinishTable
}

var _ provider.Codec = (*Codec)(nil)

// New creates a Chat Completions codec using the given finish-reason table.
func New(finish *dialect.FinishTable) *Codec {
	return &Codec{finish: finish}
}

func (c *Codec) Name() string { return string(dialect.OpenAI) }

func (c *Codec) Dialect() dialect.Dialect { return dialect.ChatCompletions }

func (c *Codec) DecodeRequest(payload []byte) (*llm.ChatRequest, error) {
	var req chatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &llm.SchemaValidationError{Reason: "malformed JSON body", Err: err}
	}

	if req.Model == "" {
		return nil, &llm.SchemaValidationError{Field: "model", Reason: "required"}
	}
	if len(req.Messages) == 0 {
		return nil, &llm.SchemaValidationError{Field: "messages", Reason: "at least one message is required"}
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for i, msg := range req.Messages {
		converted, err := decodeMessage(msg)
		if err != nil {
			return nil, &llm.SchemaValidationError{Field: fmt.Sprintf("messages[%d]", i), Err: err}
		}
		messages = append(messages, converted)
	}

	stop, err := decodeStop(req.Stop)
	if err != nil {
		return nil, &llm.SchemaValidationError{Field: "stop", Err: err}
	}

	maxTokens := req.MaxTokens
	if maxTokens == nil {
		maxTokens = req.MaxCompletionTokens
	}

	return &llm.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        stop,
		Stream:      req.Stream,
		User:        req.User,
		Extra:       provider.ExtraFields(payload, knownRequestFields),
		RawRequest:  payload,
	}, nil
}

func (c *Codec) EncodeRequest(req *llm.ChatRequest) ([]byte, []llm.Warning, error) {
	var warnings []llm.Warning

	out := chatRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		User:        req.User,
	}

	// Ask for the usage frame so streamed calls still report token counts.
	if req.IsStream() {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	if len(req.Stop) > 0 {
		stop, err := json.Marshal(req.Stop)
		if err != nil {
			return nil, nil, err
		}
		out.Stop = stop
	}

	if req.TopK != nil {
		warnings = append(warnings, llm.DroppedField("top_k", dialectName))
	}

	for i, msg := range req.Messages {
		field := fmt.Sprintf("messages[%d]", i)
		converted, w, err := encodeMessage(field, msg)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)
		if converted == nil {
			warnings = append(warnings, llm.Warning{Field: field, Reason: "no content left after conversion, dropped"})
			continue
		}
		out.Messages = append(out.Messages, *converted)
	}

	warnings = append(warnings, provider.DropExtra(req.Extra, dialectName)...)

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, nil, err
	}
	return payload, warnings, nil
}

func (c *Codec) DecodeResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &llm.UpstreamProtocolError{Reason: "malformed chat completions response", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.UpstreamProtocolError{Reason: "chat completions response has no choices"}
	}

	choice := resp.Choices[0]
	msg, err := decodeMessage(choice.Message)
	if err != nil {
		return nil, &llm.UpstreamProtocolError{Reason: "malformed choices[0].message", Err: err}
	}
	msg.Role = llm.RoleAssistant

	result := &llm.ChatResponse{
		ID:          resp.ID,
		Model:       resp.Model,
		Message:     msg,
		Usage:       decodeUsage(resp.Usage),
		CreatedAt:   time.Unix(resp.Created, 0),
		RawResponse: payload,
	}

	if choice.FinishReason != nil {
		reason, ok := c.finish.Decode(dialect.ChatCompletions, *choice.FinishReason)
		if ok {
			result.StopReason = reason
		} else {
			result.Extra = map[string]any{"finish_reason": *choice.FinishReason}
		}
	}

	return result, nil
}

func (c *Codec) EncodeResponse(resp *llm.ChatResponse) ([]byte, []llm.Warning, error) {
	var warnings []llm.Warning

	text, w := joinResponseText(resp.Message.Content)
	warnings = append(warnings, w...)

	choice := chatChoice{
		Message: chatMessage{Role: llm.RoleAssistant},
	}
	choice.Message.Content, _ = json.Marshal(text)

	if raw, ok := c.finish.Encode(dialect.ChatCompletions, resp.StopReason); ok {
		choice.FinishReason = &raw
	} else if resp.StopReason != llm.FinishUnknown || resp.Extra["stop_reason"] != nil {
		warnings = append(warnings, llm.Warning{
			Field:  "finish_reason",
			Reason: fmt.Sprintf("finish reason %q has no chat completions equivalent, omitted", describeReason(resp)),
		})
	}

	usage, w := encodeUsage(resp.Usage)
	warnings = append(warnings, w...)

	created := resp.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	out := chatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: created.Unix(),
		Model:   resp.Model,
		Choices: []chatChoice{choice},
		Usage:   usage,
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

func errorBody(apiErr provider.APIError) chatErrorBody {
	body := chatErrorBody{
		Error: chatErrorDetail{
			Message: apiErr.Message,
			Type:    errorType(apiErr.Kind),
		},
	}
	if apiErr.Kind == provider.KindNotFound {
		code := "model_not_found"
		body.Error.Code = &code
	}
	return body
}

func errorType(kind provider.ErrorKind) string {
	switch kind {
	case provider.KindInvalidRequest, provider.KindNotFound:
		return "invalid_request_error"
	case provider.KindAuthentication:
		return "authentication_error"
	case provider.KindPermission:
		return "permission_error"
	case provider.KindRateLimit:
		return "rate_limit_error"
	case provider.KindTimeout:
		return "timeout"
	}
	return "server_error"
}

func describeReason(resp *llm.ChatResponse) string {
	if raw, ok := resp.Extra["stop_reason"].(string); ok {
		return raw
	}
	return string(resp.StopReason)
}

func newCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}
