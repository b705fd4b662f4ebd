package anthropic

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/llm/provider"
	"github.com/papercomputeco/switchboard/pkg/sse"
)

// Messages dialect stream event types.
const (
	eventMessageStart      = "message_start"
	eventContentBlockStart = "content_block_start"
	eventContentBlockDelta = "content_block_delta"
	eventContentBlockStop  = "content_block_stop"
	eventMessageDelta      = "message_delta"
	eventMessageStop       = "message_stop"
	eventPing              = "ping"
	eventError             = "error"
)

// streamDecoder decodes a Messages dialect event stream. The finish reason
// and output usage arrive in message_delta, before the message_stop that
// ends the stream, so they are held until the terminal chunk is built.
type streamDecoder struct {
	finish *dialect.FinishTable

	usage      llm.Usage
	sawUsage   bool
	stopReason llm.FinishReason
	sawFinish  bool
}

func (d *streamDecoder) Decode(ev *sse.Event) (*llm.StreamChunk, error) {
	if !gjson.Valid(ev.Data) {
		return nil, &llm.UpstreamProtocolError{Reason: "malformed messages stream event " + ev.Type}
	}
	data := gjson.Parse(ev.Data)

	eventType := ev.Type
	if eventType == "" {
		eventType = data.Get("type").String()
	}

	switch eventType {
	case eventMessageStart:
		msg := data.Get("message")
		d.mergeUsage(msg.Get("usage"))
		return &llm.StreamChunk{
			ID:    msg.Get("id").String(),
			Model: msg.Get("model").String(),
			Role:  msg.Get("role").String(),
		}, nil

	case eventContentBlockStart:
		block := data.Get("content_block")
		if block.Get("type").String() == llm.BlockText && block.Get("text").String() != "" {
			return &llm.StreamChunk{Delta: block.Get("text").String()}, nil
		}
		return nil, nil

	case eventContentBlockDelta:
		delta := data.Get("delta")
		if delta.Get("type").String() != "text_delta" {
			// input_json_delta, thinking_delta and signature_delta carry no
			// assistant text.
			return nil, nil
		}
		return &llm.StreamChunk{Delta: delta.Get("text").String()}, nil

	case eventMessageDelta:
		if raw := data.Get("delta.stop_reason"); raw.Exists() && raw.Type != gjson.Null {
			d.sawFinish = true
			d.stopReason, _ = d.finish.Decode(dialect.Messages, raw.String())
		}
		d.mergeUsage(data.Get("usage"))
		return nil, nil

	case eventMessageStop:
		return d.terminal(), nil

	case eventError:
		return nil, &llm.UpstreamTransportError{
			Message: data.Get("error.message").String(),
			Type:    data.Get("error.type").String(),
		}

	case eventContentBlockStop, eventPing:
		return nil, nil
	}

	return nil, nil
}

func (d *streamDecoder) Finish() (*llm.StreamChunk, error) {
	if !d.sawFinish {
		return nil, &llm.UpstreamProtocolError{Reason: "messages stream ended before message_stop"}
	}
	return d.terminal(), nil
}

func (d *streamDecoder) terminal() *llm.StreamChunk {
	chunk := &llm.StreamChunk{
		Terminal:   true,
		StopReason: d.stopReason,
	}
	if d.sawUsage {
		usage := d.usage
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		chunk.Usage = &usage
	}
	return chunk
}

func (d *streamDecoder) mergeUsage(u gjson.Result) {
	if !u.Exists() || u.Type == gjson.Null {
		return
	}
	d.sawUsage = true
	d.usage.Merge(&llm.Usage{
		PromptTokens:             int(u.Get("input_tokens").Int()),
		CompletionTokens:         int(u.Get("output_tokens").Int()),
		CacheCreationInputTokens: int(u.Get("cache_creation_input_tokens").Int()),
		CacheReadInputTokens:     int(u.Get("cache_read_input_tokens").Int()),
	})
}

// streamEncoder renders unified chunks as a Messages dialect event stream
// with a single text content block at index 0.
type streamEncoder struct {
	finish *dialect.FinishTable

	started   bool
	blockOpen bool
}

func (e *streamEncoder) Encode(chunk *llm.StreamChunk) ([]sse.Event, error) {
	var events []sse.Event

	if !e.started {
		e.started = true
		id := chunk.ID
		if id == "" {
			id = newMessageID()
		}
		start := messageStartEvent{
			Type: eventMessageStart,
			Message: messagesResponse{
				ID:      id,
				Type:    "message",
				Role:    llm.RoleAssistant,
				Content: []messagesBlock{},
				Model:   chunk.Model,
				Usage:   &messagesUsage{},
			},
		}
		if chunk.Usage != nil {
			start.Message.Usage.InputTokens = chunk.Usage.PromptTokens
		}
		ev, err := event(eventMessageStart, start)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if chunk.Delta != "" {
		if !e.blockOpen {
			e.blockOpen = true
			empty := ""
			ev, err := event(eventContentBlockStart, contentBlockStartEvent{
				Type:         eventContentBlockStart,
				ContentBlock: messagesBlock{Type: llm.BlockText, Text: &empty},
			})
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}

		ev, err := event(eventContentBlockDelta, contentBlockDeltaEvent{
			Type:  eventContentBlockDelta,
			Delta: textDelta{Type: "text_delta", Text: chunk.Delta},
		})
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if !chunk.Terminal {
		return events, nil
	}

	if e.blockOpen {
		e.blockOpen = false
		ev, err := event(eventContentBlockStop, contentBlockStopEvent{Type: eventContentBlockStop})
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	delta := messageDeltaEvent{Type: eventMessageDelta}
	if raw, ok := e.finish.Encode(dialect.Messages, chunk.StopReason); ok {
		delta.Delta.StopReason = &raw
	}
	if chunk.Usage != nil {
		delta.Usage = messageDeltaUsage{
			InputTokens:          chunk.Usage.PromptTokens,
			OutputTokens:         chunk.Usage.CompletionTokens,
			CacheReadInputTokens: chunk.Usage.CacheReadInputTokens,
		}
	}

	ev, err := event(eventMessageDelta, delta)
	if err != nil {
		return nil, err
	}
	stop, err := event(eventMessageStop, messageStopEvent{Type: eventMessageStop})
	if err != nil {
		return nil, err
	}
	return append(events, ev, stop), nil
}

func (e *streamEncoder) EncodeError(apiErr provider.APIError) []sse.Event {
	payload, _ := json.Marshal(errorBody(apiErr))
	return []sse.Event{{Type: eventError, Data: string(payload)}}
}

func event(eventType string, payload any) (sse.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return sse.Event{}, err
	}
	return sse.Event{Type: eventType, Data: string(data)}, nil
}
