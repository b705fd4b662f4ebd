// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// reader and frame encoder for the switchboard proxy. Upstream provider
// streams are parsed into Events, and Events (converted or passed through)
// are encoded back into wire frames for the downstream client.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"bytes"
	"strings"
)

// DoneData is the data payload Chat Completions streams end with.
const DoneData = "[DONE]"

// KeepAlive is a comment frame. Readers skip it, so it can be written at any
// point between events to find out whether the client is still there.
const KeepAlive = ": keep-alive\n\n"

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}

// IsDone reports whether the event is the "[DONE]" stream sentinel.
func (e *Event) IsDone() bool {
	return e.Type == "" && strings.TrimSpace(e.Data) == DoneData
}

// AppendTo writes the event as a wire frame terminated by a blank line.
// Multi-line data is split across several "data:" fields so that a reader
// rejoins it byte for byte.
func (e *Event) AppendTo(buf *bytes.Buffer) {
	if e.ID != "" {
		buf.WriteString("id: ")
		buf.WriteString(e.ID)
		buf.WriteByte('\n')
	}
	if e.Type != "" {
		buf.WriteString("event: ")
		buf.WriteString(e.Type)
		buf.WriteByte('\n')
	}
	for line := range strings.SplitSeq(e.Data, "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
}

// Encode returns the wire frames for events, in order.
func Encode(events ...Event) []byte {
	var buf bytes.Buffer
	for i := range events {
		events[i].AppendTo(&buf)
	}
	return buf.Bytes()
}
