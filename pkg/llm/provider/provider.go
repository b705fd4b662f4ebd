// Package provider defines the per-dialect codecs that translate between a
// wire dialect and the unified llm model. Each implementation lives in its
// own subpackage (anthropic for the Messages dialect, openai for the Chat
// Completions dialect).
package provider

import (
	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/sse"
)

// Codec converts one dialect's wire payloads to and from the unified model.
type Codec interface {
	// Name returns the canonical name of the provider family that speaks
	// this dialect natively (e.g., "anthropic", "openai").
	Name() string

	// Dialect returns the wire dialect this codec speaks.
	Dialect() dialect.Dialect

	// DecodeRequest parses an inbound request. Missing mandatory fields fail
	// with *llm.SchemaValidationError.
	DecodeRequest(payload []byte) (*llm.ChatRequest, error)

	// EncodeRequest renders a unified request in this dialect. Optional
	// fields without an equivalent are dropped and reported as warnings;
	// unmappable mandatory fields fail with *llm.ConversionError.
	EncodeRequest(req *llm.ChatRequest) ([]byte, []llm.Warning, error)

	// DecodeResponse parses a buffered provider response. Malformed payloads
	// fail with *llm.UpstreamProtocolError.
	DecodeResponse(payload []byte) (*llm.ChatResponse, error)

	// EncodeResponse renders a unified response in this dialect.
	EncodeResponse(resp *llm.ChatResponse) ([]byte, []llm.Warning, error)

	// NewStreamDecoder returns a decoder for one upstream stream.
	NewStreamDecoder() StreamDecoder

	// NewStreamEncoder returns an encoder for one downstream stream.
	NewStreamEncoder() StreamEncoder

	// EncodeError renders an error body in this dialect.
	EncodeError(apiErr APIError) []byte
}

// StreamDecoder turns the SSE events of one upstream stream into unified
// chunks. Decoders are stateful and owned by a single stream.
type StreamDecoder interface {
	// Decode returns the chunk carried by ev, or (nil, nil) when the event
	// carries nothing to forward as a unified chunk (keep-alives, block
	// boundaries, partial terminal information). The returned chunk's Index
	// is left for the caller to assign.
	Decode(ev *sse.Event) (*llm.StreamChunk, error)

	// Finish is called when the upstream ends without a terminal event. It
	// returns a synthesized terminal chunk when the stream had already
	// reported a finish reason, and *llm.UpstreamProtocolError otherwise.
	Finish() (*llm.StreamChunk, error)
}

// StreamEncoder turns unified chunks into the SSE events of one downstream
// stream. Encoders are stateful and owned by a single stream.
type StreamEncoder interface {
	// Encode returns the events to forward for chunk, in order. A terminal
	// chunk also produces the dialect's end-of-stream events.
	Encode(chunk *llm.StreamChunk) ([]sse.Event, error)

	// EncodeError returns the dialect's terminal error events.
	EncodeError(apiErr APIError) []sse.Event
}
