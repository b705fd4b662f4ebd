package openai

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/llm/provider"
	"github.com/papercomputeco/switchboard/pkg/sse"
)

const chunkObject = "chat.completion.chunk"

// streamDecoder decodes a Chat Completions stream. The finish reason and the
// usage frame (stream_options.include_usage) both arrive before the [DONE]
// sentinel, so they are held until the terminal chunk is built.
type streamDecoder struct {
	finish *dialect.FinishTable

	opened     bool
	usage      *llm.Usage
	stopReason llm.FinishReason
	sawFinish  bool
}

func (d *streamDecoder) Decode(ev *sse.Event) (*llm.StreamChunk, error) {
	if ev.IsDone() {
		return d.terminal(), nil
	}
	if !gjson.Valid(ev.Data) {
		return nil, &llm.UpstreamProtocolError{Reason: "malformed chat completions stream chunk"}
	}
	data := gjson.Parse(ev.Data)

	if errResult := data.Get("error"); errResult.Exists() {
		msg := errResult.Get("message").String()
		if msg == "" {
			msg = errResult.String()
		}
		return nil, &llm.UpstreamTransportError{Message: msg, Type: errResult.Get("type").String()}
	}

	if usage := data.Get("usage"); usage.Exists() && usage.Type != gjson.Null {
		d.usage = &llm.Usage{
			PromptTokens:         int(usage.Get("prompt_tokens").Int()),
			CompletionTokens:     int(usage.Get("completion_tokens").Int()),
			TotalTokens:          int(usage.Get("total_tokens").Int()),
			CacheReadInputTokens: int(usage.Get("prompt_tokens_details.cached_tokens").Int()),
		}
	}

	choice := data.Get("choices.0")
	if raw := choice.Get("finish_reason"); raw.Exists() && raw.Type != gjson.Null {
		d.sawFinish = true
		d.stopReason, _ = d.finish.Decode(dialect.ChatCompletions, raw.String())
	}

	chunk := &llm.StreamChunk{Delta: choice.Get("delta.content").String()}
	if !d.opened {
		d.opened = true
		chunk.ID = data.Get("id").String()
		chunk.Model = data.Get("model").String()
		chunk.Role = choice.Get("delta.role").String()
		if created := data.Get("created").Int(); created > 0 {
			chunk.CreatedAt = time.Unix(created, 0)
		}
		return chunk, nil
	}

	if chunk.Delta == "" {
		return nil, nil
	}
	return chunk, nil
}

func (d *streamDecoder) Finish() (*llm.StreamChunk, error) {
	if !d.sawFinish {
		return nil, &llm.UpstreamProtocolError{Reason: "chat completions stream ended before a finish reason or [DONE]"}
	}
	return d.terminal(), nil
}

func (d *streamDecoder) terminal() *llm.StreamChunk {
	return &llm.StreamChunk{
		Terminal:   true,
		StopReason: d.stopReason,
		Usage:      d.usage,
	}
}

// streamEncoder renders unified chunks as Chat Completions chunk frames
// followed by the [DONE] sentinel.
type streamEncoder struct {
	finish *dialect.FinishTable

	id       string
	model    string
	created  int64
	roleSent bool
}

func (e *streamEncoder) Encode(chunk *llm.StreamChunk) ([]sse.Event, error) {
	if e.id == "" {
		e.id = chunk.ID
		if e.id == "" {
			e.id = newCompletionID()
		}
		e.created = time.Now().Unix()
		if !chunk.CreatedAt.IsZero() {
			e.created = chunk.CreatedAt.Unix()
		}
	}
	if chunk.Model != "" {
		e.model = chunk.Model
	}

	var events []sse.Event

	if !e.roleSent || chunk.Delta != "" {
		delta := chatDelta{Content: &chunk.Delta}
		if !e.roleSent {
			e.roleSent = true
			delta.Role = llm.RoleAssistant
		}
		ev, err := e.frame(chatChunkChoice{Delta: delta}, nil)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if !chunk.Terminal {
		return events, nil
	}

	final := chatChunkChoice{}
	if raw, ok := e.finish.Encode(dialect.ChatCompletions, chunk.StopReason); ok {
		final.FinishReason = &raw
	}
	usage, _ := encodeUsage(chunk.Usage)

	ev, err := e.frame(final, usage)
	if err != nil {
		return nil, err
	}
	return append(events, ev, sse.Event{Data: sse.DoneData}), nil
}

func (e *streamEncoder) EncodeError(apiErr provider.APIError) []sse.Event {
	payload, _ := json.Marshal(errorBody(apiErr))
	return []sse.Event{{Data: string(payload)}, {Data: sse.DoneData}}
}

func (e *streamEncoder) frame(choice chatChunkChoice, usage *chatUsage) (sse.Event, error) {
	data, err := json.Marshal(chatChunk{
		ID:      e.id,
		Object:  chunkObject,
		Created: e.created,
		Model:   e.model,
		Choices: []chatChunkChoice{choice},
		Usage:   usage,
	})
	if err != nil {
		return sse.Event{}, err
	}
	return sse.Event{Data: string(data)}, nil
}
