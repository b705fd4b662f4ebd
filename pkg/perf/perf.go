// Package perf measures time-to-first-token, per-token generation time and
// throughput for a single provider call by observing fragment arrival.
package perf

import (
	"errors"
	"time"
)

// ErrFinalized is returned when a tracker is finalized more than once.
var ErrFinalized = errors.New("performance sample already finalized")

// Mode is how the response was delivered.
type Mode string

const (
	Buffered  Mode = "buffered"
	Streaming Mode = "streaming"
)

// Metrics are the derived measurements of a call. Every field is nil until
// the tracker is finalized, and stays nil when it cannot be computed.
type Metrics struct {
	TTFT         *time.Duration `json:"ttft_ns,omitempty"`
	TPOT         *time.Duration `json:"tpot_ns,omitempty"`
	Throughput   *float64       `json:"tokens_per_second,omitempty"`
	TotalLatency *time.Duration `json:"total_latency_ns,omitempty"`
}

// Sample is the raw timing record of one call plus its finalized metrics.
type Sample struct {
	StartedAt    time.Time   `json:"started_at"`
	FirstTokenAt *time.Time  `json:"first_token_at,omitempty"`
	TokenTimes   []time.Time `json:"-"`
	Mode         Mode        `json:"mode"`
	OutputTokens int         `json:"output_tokens"`
	Metrics      Metrics     `json:"metrics"`
}

// Tracker records timestamps for one call. It is owned by the goroutine
// serving the call and is not safe for concurrent use.
type Tracker struct {
	now       func() time.Time
	sample    Sample
	started   bool
	finalized bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker in the not-started state.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start records the moment the outbound call is issued.
func (t *Tracker) Start() {
	if t.started {
		return
	}
	t.started = true
	t.sample.StartedAt = t.now()
}

// Started reports whether Start has been called.
func (t *Tracker) Started() bool {
	return t.started
}

// Observe records the arrival of one content-bearing chunk.
func (t *Tracker) Observe() {
	if !t.started || t.finalized {
		return
	}
	ts := t.now()
	if t.sample.FirstTokenAt == nil {
		t.sample.FirstTokenAt = &ts
		return
	}
	t.sample.TokenTimes = append(t.sample.TokenTimes, ts)
}

// Finalize closes the sample and derives its metrics. outputTokenCount is
// the number of content-bearing chunks for streams, or the output token
// count for buffered calls.
func (t *Tracker) Finalize(mode Mode, outputTokenCount int) (*Sample, error) {
	if t.finalized {
		return nil, ErrFinalized
	}
	t.finalized = true

	s := t.sample
	s.Mode = mode
	s.OutputTokens = outputTokenCount
	s.TokenTimes = append([]time.Time(nil), t.sample.TokenTimes...)

	if !t.started {
		return &s, nil
	}

	end := t.now()
	total := end.Sub(s.StartedAt)
	s.Metrics.TotalLatency = &total

	switch mode {
	case Buffered:
		ttft := total
		s.Metrics.TTFT = &ttft
	case Streaming:
		if s.FirstTokenAt != nil {
			ttft := s.FirstTokenAt.Sub(s.StartedAt)
			s.Metrics.TTFT = &ttft

			if outputTokenCount > 1 {
				last := *s.FirstTokenAt
				if n := len(s.TokenTimes); n > 0 {
					last = s.TokenTimes[n-1]
				}
				tpot := last.Sub(*s.FirstTokenAt) / time.Duration(outputTokenCount-1)
				s.Metrics.TPOT = &tpot
			}
		}
	}

	if total > 0 && outputTokenCount > 0 {
		throughput := float64(outputTokenCount) / total.Seconds()
		s.Metrics.Throughput = &throughput
	}

	return &s, nil
}
