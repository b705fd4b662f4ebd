// Package calllog defines the record written once per proxied call.
package calllog

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/perf"
	"github.com/papercomputeco/switchboard/pkg/routing"
)

// Status is how a call ended.
type Status string

const (
	// StatusCompleted means the full response reached the client.
	StatusCompleted Status = "completed"

	// StatusInterrupted means a stream ended early: the client went away,
	// the call timed out or the upstream failed mid-stream.
	StatusInterrupted Status = "interrupted"

	// StatusFailed means no response body was produced.
	StatusFailed Status = "failed"
)

// Record is the log entry of one call.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Path    string          `json:"path"`
	Dialect dialect.Dialect `json:"dialect"`

	// Routing outcome, empty when the call failed before routing.
	Family             dialect.Family `json:"family,omitempty"`
	Model              string         `json:"model,omitempty"`
	UpstreamModel      string         `json:"upstream_model,omitempty"`
	Route              string         `json:"route,omitempty"`
	Streaming          bool           `json:"streaming"`
	ConversionRequired bool           `json:"conversion_required"`

	// Request is the original inbound payload.
	Request string `json:"request"`

	// Response is the provider response as delivered to the client. For
	// streams it is the reconstruction of the delivered fragments.
	Response *llm.ChatResponse `json:"response,omitempty"`

	Sample     *perf.Sample  `json:"sample,omitempty"`
	ChunkCount int           `json:"chunk_count"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Warnings   []llm.Warning `json:"warnings,omitempty"`
}

// New starts a record for an inbound call.
func New(path string, d dialect.Dialect, payload []byte) *Record {
	return &Record{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Path:      path,
		Dialect:   d,
		Request:   string(payload),
	}
}

// ApplyDecision copies a routing decision onto the record.
func (r *Record) ApplyDecision(d routing.Decision) {
	r.Family = d.Family
	r.Model = d.Model
	r.UpstreamModel = d.UpstreamModel
	r.Route = d.Route().String()
	r.Streaming = d.Streaming
	r.ConversionRequired = d.ConversionRequired
}

// Fail marks the record failed with err.
func (r *Record) Fail(err error) {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
}

// Milliseconds returns d in fractional milliseconds, nil when d is nil.
func Milliseconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	ms := float64(*d) / float64(time.Millisecond)
	return &ms
}

// TTFT returns the record's time to first token in milliseconds.
func (r *Record) TTFT() *float64 {
	if r.Sample == nil {
		return nil
	}
	return Milliseconds(r.Sample.Metrics.TTFT)
}

// TPOT returns the record's time per output token in milliseconds.
func (r *Record) TPOT() *float64 {
	if r.Sample == nil {
		return nil
	}
	return Milliseconds(r.Sample.Metrics.TPOT)
}

// Latency returns the record's total latency in milliseconds.
func (r *Record) Latency() *float64 {
	if r.Sample == nil {
		return nil
	}
	return Milliseconds(r.Sample.Metrics.TotalLatency)
}
