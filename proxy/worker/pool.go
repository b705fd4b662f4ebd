// Package worker provides an asynchronous worker pool for recording proxied
// calls: persisting each call.Record through a storage.Driver, publishing a
// call event and observing Prometheus metrics.
//
// The pool decouples logging from the proxy's HTTP hot path so that the
// client-proxy-upstream interaction is never delayed by it.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/switchboard/pkg/calllog"
	"github.com/papercomputeco/switchboard/pkg/eventstream"
	"github.com/papercomputeco/switchboard/pkg/logger"
	"github.com/papercomputeco/switchboard/pkg/metrics"
	"github.com/papercomputeco/switchboard/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 10 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Record *calllog.Record
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the optional storage backend for persisting records.
	Driver storage.Driver

	// Publisher is the optional event publisher for logged calls.
	Publisher eventstream.Publisher

	// Metrics is the optional recorder observing every logged call.
	Metrics *metrics.Recorder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided logger
	Logger *slog.Logger
}

// Pool processes call-log jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed; streams may finish after Close was called.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool. It never blocks:
// it returns false when the queue is full and the job is dropped.
func (p *Pool) Enqueue(job Job) bool {
	if job.Record == nil {
		p.logger.Error("job not queued, nil record")
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Error("job not queued, pool closed, job dropped",
			"record_id", job.Record.ID,
			"model", job.Record.Model,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"record_id", job.Record.ID,
			"model", job.Record.Model,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"record_id", job.Record.ID,
			"model", job.Record.Model,
		)
		if p.config.Metrics != nil {
			p.config.Metrics.Dropped()
		}
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the proxy HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob stores, publishes and observes one record. Each stage runs even
// when an earlier one failed; failures are logged and never retried.
func (p *Pool) processJob(job Job) {
	rec := job.Record
	ctx, cancel := context.WithTimeout(context.Background(), defaultJobTimeout)
	defer cancel()

	if p.config.Metrics != nil {
		p.config.Metrics.Observe(rec)
	}

	if p.config.Driver != nil {
		if err := p.config.Driver.Put(ctx, rec); err != nil {
			p.fail("store", rec, err)
		} else {
			p.logger.Debug("call record stored", "record_id", rec.ID)
		}
	}

	if p.config.Publisher != nil {
		if err := p.config.Publisher.PublishCall(ctx, eventstream.NewCallLoggedEvent(rec)); err != nil {
			p.fail("publish", rec, err)
		}
	}

	p.logger.Info("call logged",
		"record_id", rec.ID,
		"model", rec.Model,
		"family", rec.Family,
		"route", rec.Route,
		"status", rec.Status,
		"ttft_ms", rec.TTFT(),
		"latency_ms", rec.Latency(),
	)
}

func (p *Pool) fail(stage string, rec *calllog.Record, err error) {
	p.logger.Error("call log "+stage+" failed",
		"record_id", rec.ID,
		"model", rec.Model,
		"error", err,
	)
	if p.config.Metrics != nil {
		p.config.Metrics.WorkerError(stage)
	}
}
