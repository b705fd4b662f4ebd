// Package proxy provides an LLM inference proxy that routes each call to a
// provider family, converting between wire dialects when the caller and the
// provider speak different ones, and logs every call with its performance.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"github.com/papercomputeco/switchboard/pkg/convert"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/metrics"
	"github.com/papercomputeco/switchboard/pkg/routing"
	"github.com/papercomputeco/switchboard/pkg/storage"
	"github.com/papercomputeco/switchboard/pkg/tokens"
	"github.com/papercomputeco/switchboard/pkg/upstream"
	"github.com/papercomputeco/switchboard/proxy/header"
	"github.com/papercomputeco/switchboard/proxy/worker"
)

// Proxy is a client, LLM inference proxy. Each call is decoded, routed,
// forwarded and logged; the log record is handed to a worker pool so the
// client never waits on storage.
type Proxy struct {
	config        Config
	driver        storage.Driver
	workerPool    *worker.Pool
	logger        *slog.Logger
	server        *fiber.App
	routing       *routing.Table
	provider      upstream.Provider
	converter     *convert.Converter
	metrics       *metrics.Recorder
	tokens        *tokens.Estimator
	headerHandler *header.Handler
}

// New creates a new Proxy. The driver is optional: without one calls are
// still observed and published but not persisted.
func New(config Config, driver storage.Driver, logger *slog.Logger) (*Proxy, error) {
	if config.Routing == nil {
		return nil, errors.New("routing table is required")
	}
	if config.Provider == nil {
		return nil, errors.New("upstream provider is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Converter == nil {
		config.Converter = convert.New(convert.Config{})
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewRecorder()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	// Compress management responses. Call responses are left alone so event
	// streams reach the client frame by frame.
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodPost
		},
	}))

	wp, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Publisher:  config.Publisher,
		Metrics:    config.Metrics,
		NumWorkers: config.NumWorkers,
		QueueSize:  config.QueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		config:        config,
		driver:        driver,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		routing:       config.Routing,
		provider:      config.Provider,
		converter:     config.Converter,
		metrics:       config.Metrics,
		tokens:        tokens.NewEstimator(),
		headerHandler: header.NewHandler(),
	}

	app.Post(dialect.Messages.Path(), p.handleCall(dialect.Messages))
	app.Post(dialect.ChatCompletions.Path(), p.handleCall(dialect.ChatCompletions))
	app.Get("/v1/models", p.handleModels)
	app.Get("/health", p.handleHealth)
	app.Get("/switchboard/stats", p.handleStats)
	app.Get("/switchboard/calls", p.handleListCalls)
	app.Get("/switchboard/calls/:id", p.handleGetCall)
	app.Get("/metrics", adaptor.HTTPHandler(p.metrics.Handler()))

	return p, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"timeout", p.config.Timeout,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"timeout", p.config.Timeout,
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy and waits for the worker pool to drain
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// handleCall adapts a Fiber request to dispatch.
func (p *Proxy) handleCall(d dialect.Dialect) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// fasthttp reuses the request buffers once the handler returns, and a
		// stream outlives the handler.
		in := &call{
			Path:    strings.Clone(c.Path()),
			Dialect: d,
			Body:    bytes.Clone(c.Body()),
			Header:  p.headerHandler.UpstreamRequestHeaders(c),
		}

		resp := p.dispatch(c.UserContext(), in)

		p.headerHandler.SetClientResponseHeaders(c, resp.header)
		c.Status(resp.status)
		if resp.stream == nil {
			return c.Send(resp.body)
		}

		// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
		// SetBodyStreamWriter buffers through an internal bufio.Writer, so a
		// Flush only reaches the pipe, not the TCP socket. With io.Pipe,
		// pw.Write blocks until fasthttp's chunked body writer consumes the
		// frame and flushes it, and fails once the client is gone.
		pr, pw := io.Pipe()
		go func() {
			resp.stream(pw)
			pw.Close()
		}()

		// Unknown size (-1) triggers chunked transfer encoding.
		c.Context().Response.SetBodyStream(&streamBody{PipeReader: pr, cancel: resp.cancel}, -1)
		return nil
	}
}

// streamBody is a streamed response body. fasthttp closes it once the
// response is written or the connection write fails, and closing it cancels
// the upstream call without waiting for the next frame.
type streamBody struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (b *streamBody) Close() error {
	return b.CloseWithError(nil)
}

func (b *streamBody) CloseWithError(err error) error {
	if b.cancel != nil {
		b.cancel()
	}
	return b.PipeReader.CloseWithError(err)
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// handleModels lists the exactly configured models.
func (p *Proxy) handleModels(c *fiber.Ctx) error {
	list := modelList{Object: "list", Data: []modelEntry{}}
	for _, m := range p.routing.Models() {
		list.Data = append(list.Data, modelEntry{ID: m.Name, Object: "model", OwnedBy: string(m.Family)})
	}
	return c.JSON(list)
}

type healthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Providers      []string  `json:"providers"`
	LoggingEnabled bool      `json:"logging_enabled"`
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	providers := []string{}
	for _, f := range p.routing.Families() {
		providers = append(providers, string(f))
	}
	return c.JSON(healthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().UTC(),
		Providers:      providers,
		LoggingEnabled: p.driver != nil,
	})
}

// handleStats summarizes the persisted call log.
func (p *Proxy) handleStats(c *fiber.Ctx) error {
	if p.driver == nil {
		return loggingDisabled(c)
	}

	stats, err := p.driver.Stats(c.UserContext())
	if err != nil {
		p.logger.Error("failed to read call log stats", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read stats"})
	}
	return c.JSON(stats)
}
