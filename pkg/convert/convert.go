// Package convert performs field-level conversion between the two wire
// dialects by decoding with the source dialect's codec and encoding with the
// target dialect's codec. Conversion is a pure function of its input.
package convert

import (
	"fmt"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/llm/provider"
	"github.com/papercomputeco/switchboard/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/switchboard/pkg/llm/provider/openai"
	"github.com/papercomputeco/switchboard/pkg/stream"
)

// Config configures the codecs a Converter builds.
type Config struct {
	// Finish is the finish-reason vocabulary table. Defaults to
	// dialect.DefaultFinishTable.
	Finish *dialect.FinishTable

	// DefaultMaxTokens is applied when converting into the Messages dialect
	// without max_tokens.
	DefaultMaxTokens int
}

// Report collects the warnings produced by one conversion.
type Report struct {
	Warnings []llm.Warning
}

func (r *Report) add(w []llm.Warning) {
	r.Warnings = append(r.Warnings, w...)
}

// Converter holds one codec per dialect. It is immutable and safe for
// concurrent use.
type Converter struct {
	codecs map[dialect.Dialect]provider.Codec
}

// New builds a Converter for both dialects.
func New(c Config) *Converter {
	finish := c.Finish
	if finish == nil {
		finish = dialect.DefaultFinishTable()
	}

	return &Converter{
		codecs: map[dialect.Dialect]provider.Codec{
			dialect.Messages:        anthropic.New(finish, anthropic.WithDefaultMaxTokens(c.DefaultMaxTokens)),
			dialect.ChatCompletions: openai.New(finish),
		},
	}
}

// Codec returns the codec for d.
func (c *Converter) Codec(d dialect.Dialect) (provider.Codec, error) {
	codec, ok := c.codecs[d]
	if !ok {
		return nil, fmt.Errorf("no codec for dialect %q", d)
	}
	return codec, nil
}

// Request converts a request payload from one dialect to another.
func (c *Converter) Request(from, to dialect.Dialect, payload []byte) ([]byte, *Report, error) {
	src, dst, err := c.pair(from, to)
	if err != nil {
		return nil, nil, err
	}

	req, err := src.DecodeRequest(payload)
	if err != nil {
		return nil, nil, err
	}
	return c.EncodeRequest(dst, req)
}

// EncodeRequest renders an already decoded request with codec dst.
func (c *Converter) EncodeRequest(dst provider.Codec, req *llm.ChatRequest) ([]byte, *Report, error) {
	report := &Report{}
	out, warnings, err := dst.EncodeRequest(req)
	if err != nil {
		return nil, nil, err
	}
	report.add(warnings)
	return out, report, nil
}

// Response converts a buffered response payload from one dialect to
// another. The decoded response is returned alongside the converted payload.
func (c *Converter) Response(from, to dialect.Dialect, payload []byte) ([]byte, *llm.ChatResponse, *Report, error) {
	src, dst, err := c.pair(from, to)
	if err != nil {
		return nil, nil, nil, err
	}

	resp, err := src.DecodeResponse(payload)
	if err != nil {
		return nil, nil, nil, err
	}

	report := &Report{}
	out, warnings, err := dst.EncodeResponse(resp)
	if err != nil {
		return nil, resp, nil, err
	}
	report.add(warnings)
	return out, resp, report, nil
}

// Stream returns a per-stream converter decoding the upstream dialect and
// encoding the client dialect.
func (c *Converter) Stream(upstream, client dialect.Dialect) (*stream.Converter, error) {
	src, dst, err := c.pair(upstream, client)
	if err != nil {
		return nil, err
	}
	return stream.New(src, dst), nil
}

func (c *Converter) pair(from, to dialect.Dialect) (provider.Codec, provider.Codec, error) {
	src, err := c.Codec(from)
	if err != nil {
		return nil, nil, err
	}
	dst, err := c.Codec(to)
	if err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}
