package proxy

import (
	"time"

	"github.com/papercomputeco/switchboard/pkg/convert"
	"github.com/papercomputeco/switchboard/pkg/eventstream"
	"github.com/papercomputeco/switchboard/pkg/metrics"
	"github.com/papercomputeco/switchboard/pkg/routing"
	"github.com/papercomputeco/switchboard/pkg/upstream"
)

// DefaultTimeout bounds one provider call, including a stream's lifetime.
const DefaultTimeout = 30 * time.Second

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Timeout bounds each provider call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Routing resolves models to provider families. Required.
	Routing *routing.Table

	// Provider performs the outbound calls. Required.
	Provider upstream.Provider

	// Converter holds the dialect codecs. Defaults to a converter with the
	// default finish-reason table.
	Converter *convert.Converter

	// Publisher is an optional event publisher for logged calls.
	Publisher eventstream.Publisher

	// Metrics is the recorder served on /metrics. A fresh one is created
	// when nil.
	Metrics *metrics.Recorder

	// NumWorkers and QueueSize size the call-log worker pool.
	NumWorkers uint
	QueueSize  uint
}
