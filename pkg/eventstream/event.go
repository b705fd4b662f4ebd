package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/switchboard/pkg/calllog"
	"github.com/papercomputeco/switchboard/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeCallLogged is emitted after a proxied call is logged.
	EventTypeCallLogged = "switchboard.call.logged"
)

// CallLoggedEvent is a transport-neutral event payload for a logged call.
// It carries the call's routing and performance summary, not its content.
type CallLoggedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	RecordID      string          `json:"record_id"`
	Source        EventSource     `json:"source"`
	RequestMeta   CallRequestMeta `json:"request_meta"`
	Metrics       CallMetrics     `json:"metrics"`
	Usage         *llm.Usage      `json:"usage,omitempty"`
}

// EventSource identifies where the call was routed.
type EventSource struct {
	Dialect       string `json:"dialect"`
	Family        string `json:"family,omitempty"`
	Model         string `json:"model,omitempty"`
	UpstreamModel string `json:"upstream_model,omitempty"`
}

// CallRequestMeta captures request lifecycle metadata for the event.
type CallRequestMeta struct {
	Path               string    `json:"path"`
	StartedAt          time.Time `json:"started_at"`
	Route              string    `json:"route,omitempty"`
	Streaming          bool      `json:"streaming"`
	ConversionRequired bool      `json:"conversion_required"`
	Status             string    `json:"status"`
	Error              string    `json:"error,omitempty"`
	ChunkCount         int       `json:"chunk_count"`
	WarningCount       int       `json:"warning_count"`
}

// CallMetrics are the call's performance figures in milliseconds.
type CallMetrics struct {
	TTFTMs         *float64 `json:"ttft_ms,omitempty"`
	TPOTMs         *float64 `json:"tpot_ms,omitempty"`
	TotalLatencyMs *float64 `json:"total_latency_ms,omitempty"`
	Throughput     *float64 `json:"tokens_per_second,omitempty"`
}

// NewCallLoggedEvent builds the event for rec.
func NewCallLoggedEvent(rec *calllog.Record) *CallLoggedEvent {
	ev := &CallLoggedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeCallLogged,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		RecordID:      rec.ID,
		Source: EventSource{
			Dialect:       string(rec.Dialect),
			Family:        string(rec.Family),
			Model:         rec.Model,
			UpstreamModel: rec.UpstreamModel,
		},
		RequestMeta: CallRequestMeta{
			Path:               rec.Path,
			StartedAt:          rec.CreatedAt,
			Route:              rec.Route,
			Streaming:          rec.Streaming,
			ConversionRequired: rec.ConversionRequired,
			Status:             string(rec.Status),
			Error:              rec.Error,
			ChunkCount:         rec.ChunkCount,
			WarningCount:       len(rec.Warnings),
		},
		Metrics: CallMetrics{
			TTFTMs:         rec.TTFT(),
			TPOTMs:         rec.TPOT(),
			TotalLatencyMs: rec.Latency(),
		},
	}
	if rec.Sample != nil {
		ev.Metrics.Throughput = rec.Sample.Metrics.Throughput
	}
	if rec.Response != nil {
		ev.Usage = rec.Response.Usage
	}
	return ev
}
