// Package stream converts a provider's event stream into the client's
// dialect one event at a time and reconstructs the delivered response.
package stream

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/provider"
	"github.com/papercomputeco/switchboard/pkg/sse"
)

// ErrClosed is returned when events are fed to a completed or errored stream.
var ErrClosed = errors.New("stream already closed")

// State is the lifecycle position of a stream.
type State int

const (
	Created State = iota
	Open
	Completed
	Errored
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Open:
		return "open"
	case Completed:
		return "completed"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status is the completion status of a reconstructed response.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
)

// Converter handles one stream. It is owned by the goroutine forwarding the
// stream: Next, Commit, Finish and Fail must be called from that goroutine
// in arrival order.
type Converter struct {
	decoder     provider.StreamDecoder
	encoder     provider.StreamEncoder
	passthrough bool

	state State
	next  int
	recon Reconstructor
}

// New creates a converter decoding with upstream's dialect and encoding
// with client's. When both speak the same dialect, upstream events are
// forwarded with their payload untouched.
func New(upstream, client provider.Codec) *Converter {
	return &Converter{
		decoder:     upstream.NewStreamDecoder(),
		encoder:     client.NewStreamEncoder(),
		passthrough: upstream.Dialect() == client.Dialect(),
	}
}

// State returns the current lifecycle state.
func (c *Converter) State() State {
	return c.state
}

// Passthrough reports whether events are forwarded without conversion.
func (c *Converter) Passthrough() bool {
	return c.passthrough
}

// Next processes one upstream event. It returns the frame bytes to forward
// (possibly none) and the decoded chunk (nil for events that carry none).
// The chunk must be passed to Commit once its frames were delivered.
func (c *Converter) Next(ev *sse.Event) ([]byte, *llm.StreamChunk, error) {
	if c.state == Completed || c.state == Errored {
		return nil, nil, ErrClosed
	}
	c.state = Open

	chunk, err := c.decoder.Decode(ev)
	if err != nil {
		return nil, nil, err
	}

	var frames []byte
	if c.passthrough {
		frames = sse.Encode(*ev)
	}
	if chunk == nil {
		return frames, nil, nil
	}

	chunk.Index = c.next
	c.next++

	if !c.passthrough {
		events, err := c.encoder.Encode(chunk)
		if err != nil {
			return nil, nil, &llm.ConversionError{Field: "stream", Reason: err.Error()}
		}
		frames = sse.Encode(events...)
	}

	if chunk.Terminal {
		c.state = Completed
	}
	return frames, chunk, nil
}

// Commit accumulates a chunk whose frames reached the client.
func (c *Converter) Commit(chunk *llm.StreamChunk) {
	c.recon.Add(chunk)
}

// Finish is called when the upstream ends. If no terminal event was seen it
// synthesizes one from the finish information observed so far, or fails
// with *llm.UpstreamProtocolError. On passthrough no frames are produced
// for a synthesized terminal chunk.
func (c *Converter) Finish() ([]byte, *llm.StreamChunk, error) {
	if c.state == Completed {
		return nil, nil, nil
	}
	if c.state == Errored {
		return nil, nil, ErrClosed
	}

	chunk, err := c.decoder.Finish()
	if err != nil {
		return nil, nil, err
	}

	chunk.Index = c.next
	c.next++
	c.state = Completed

	if c.passthrough {
		return nil, chunk, nil
	}
	events, err := c.encoder.Encode(chunk)
	if err != nil {
		return nil, nil, &llm.ConversionError{Field: "stream", Reason: err.Error()}
	}
	return sse.Encode(events...), chunk, nil
}

// Fail closes the stream with err and returns the client dialect's error
// frames and stream terminator.
func (c *Converter) Fail(err error) []byte {
	c.state = Errored
	return sse.Encode(c.encoder.EncodeError(provider.Classify(err))...)
}

// Chunks returns the number of content-bearing chunks committed.
func (c *Converter) Chunks() int {
	return c.recon.Fragments()
}

// Text returns the concatenation of every committed delta.
func (c *Converter) Text() string {
	return c.recon.Text()
}

// Result returns the reconstructed response and whether the stream
// completed. A stream is completed only when its terminal chunk was
// delivered to the client.
func (c *Converter) Result() (*llm.ChatResponse, Status) {
	status := StatusInterrupted
	if c.state == Completed && c.recon.Terminal() {
		status = StatusCompleted
	}
	return c.recon.Response(), status
}
