package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/sjson"

	"github.com/papercomputeco/switchboard/pkg/calllog"
	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/llm/provider"
	"github.com/papercomputeco/switchboard/pkg/perf"
	"github.com/papercomputeco/switchboard/pkg/routing"
	"github.com/papercomputeco/switchboard/pkg/sse"
	"github.com/papercomputeco/switchboard/pkg/stream"
	"github.com/papercomputeco/switchboard/pkg/upstream"
	"github.com/papercomputeco/switchboard/proxy/header"
	"github.com/papercomputeco/switchboard/proxy/worker"
)

const (
	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"
)

// call is one inbound request, independent of the HTTP framework.
type call struct {
	Path    string
	Dialect dialect.Dialect
	Body    []byte

	// Header holds the client headers to forward upstream.
	Header http.Header
}

// response is what dispatch hands back to the HTTP layer. Exactly one of
// body and stream is set. stream writes frames to w as they are produced
// and returns once the call is logged; a failed write means the client is
// gone.
type response struct {
	status int
	header http.Header
	body   []byte
	stream func(w io.Writer)

	// cancel aborts the upstream side of a stream.
	cancel context.CancelFunc
}

// dispatch runs one call through decode, routing, body preparation, the
// provider call and response handling. Every call enqueues exactly one
// record, whichever way it ends.
func (p *Proxy) dispatch(ctx context.Context, in *call) *response {
	rec := calllog.New(in.Path, in.Dialect, in.Body)

	codec, err := p.converter.Codec(in.Dialect)
	if err != nil {
		rec.Fail(err)
		p.enqueue(rec)
		return &response{status: http.StatusNotFound, header: jsonHeader(rec.ID)}
	}

	req, err := codec.DecodeRequest(in.Body)
	if err != nil {
		return p.reject(rec, codec, err)
	}
	rec.Model = req.Model

	decision, err := p.routing.Decide(in.Dialect, req.Model, req.IsStream())
	if err != nil {
		return p.reject(rec, codec, err)
	}
	rec.ApplyDecision(decision)

	body, err := p.upstreamBody(in.Body, req, decision, rec)
	if err != nil {
		return p.reject(rec, codec, err)
	}

	out := &upstream.Request{Family: decision.Family, Body: body, Header: in.Header}
	tracker := perf.NewTracker()

	p.logger.Debug("dispatching call",
		"dialect", string(in.Dialect),
		"provider", string(decision.Family),
		"model", decision.Model,
		"route", decision.Route().String(),
	)

	switch route := decision.Route(); route {
	case routing.DirectBuffered, routing.ConvertBuffered:
		return p.buffered(ctx, rec, codec, decision, out, tracker)
	case routing.DirectStreaming, routing.ConvertStreaming:
		return p.streaming(ctx, rec, codec, decision, out, tracker)
	default:
		return p.reject(rec, codec, fmt.Errorf("unhandled route %s", route))
	}
}

// upstreamBody prepares the outbound payload. Passthrough keeps the client's
// bytes and only rewrites the model when an alias applies; conversion
// re-encodes the decoded request in the target dialect.
func (p *Proxy) upstreamBody(payload []byte, req *llm.ChatRequest, d routing.Decision, rec *calllog.Record) ([]byte, error) {
	if !d.ConversionRequired {
		if !d.Aliased() {
			return payload, nil
		}
		out, err := sjson.SetBytes(payload, "model", d.UpstreamModel)
		if err != nil {
			return nil, &llm.ConversionError{Field: "model", Reason: err.Error()}
		}
		return out, nil
	}

	target, err := p.converter.Codec(d.Target())
	if err != nil {
		return nil, err
	}

	req.Model = d.UpstreamModel
	out, report, err := p.converter.EncodeRequest(target, req)
	if err != nil {
		var convErr *llm.ConversionError
		if !errors.As(err, &convErr) {
			err = &llm.ConversionError{Field: "request", Reason: err.Error()}
		}
		return nil, err
	}
	rec.Warnings = append(rec.Warnings, report.Warnings...)

	for _, w := range report.Warnings {
		p.logger.Debug("conversion warning", "model", d.Model, "warning", w.String())
	}
	return out, nil
}

// buffered performs a non-streamed call.
func (p *Proxy) buffered(ctx context.Context, rec *calllog.Record, codec provider.Codec, d routing.Decision, out *upstream.Request, tracker *perf.Tracker) *response {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	tracker.Start()
	resp, err := p.provider.Send(ctx, out)
	if err != nil {
		p.finalizeFailed(rec, tracker, perf.Buffered)
		return p.upstreamFailure(rec, codec, d, err)
	}

	body := resp.Body
	var decoded *llm.ChatResponse
	if d.ConversionRequired {
		converted, parsed, report, err := p.converter.Response(d.Target(), d.Inbound, resp.Body)
		if err != nil {
			p.finalizeFailed(rec, tracker, perf.Buffered)
			return p.reject(rec, codec, err)
		}
		body, decoded = converted, parsed
		rec.Warnings = append(rec.Warnings, report.Warnings...)
	} else {
		decoded, err = codec.DecodeResponse(resp.Body)
		if err != nil {
			// The body is forwarded untouched either way.
			p.logger.Warn("failed to parse response",
				"provider", string(d.Family),
				"model", d.Model,
				"error", err,
			)
		}
	}

	sample, err := tracker.Finalize(perf.Buffered, p.outputTokens(d.UpstreamModel, decoded))
	if err != nil {
		p.logger.Error("failed to finalize performance sample", "error", err)
	}
	rec.Sample = sample
	rec.Response = decoded
	rec.Status = calllog.StatusCompleted
	p.enqueue(rec)

	h := resp.Header.Clone()
	h.Set(headerContentType, contentTypeJSON)
	h.Set(header.RequestIDHeader, rec.ID)
	return &response{status: resp.StatusCode, header: h, body: body}
}

// streaming opens the provider stream and returns a response whose stream
// function forwards it.
func (p *Proxy) streaming(ctx context.Context, rec *calllog.Record, codec provider.Codec, d routing.Decision, out *upstream.Request, tracker *perf.Tracker) *response {
	sc, err := p.converter.Stream(d.Target(), d.Inbound)
	if err != nil {
		return p.reject(rec, codec, err)
	}

	// The stream outlives the HTTP handler, so the timeout covers its whole
	// lifetime and is released by the stream function.
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)

	tracker.Start()
	events, err := p.provider.Stream(ctx, out)
	if err != nil {
		cancel()
		p.finalizeFailed(rec, tracker, perf.Streaming)
		return p.upstreamFailure(rec, codec, d, err)
	}

	h := events.Header.Clone()
	h.Set(headerContentType, contentTypeSSE)
	h.Set("Cache-Control", "no-cache")
	h.Set(header.RequestIDHeader, rec.ID)

	return &response{
		status: http.StatusOK,
		header: h,
		stream: func(w io.Writer) {
			defer cancel()
			defer events.Close()
			p.forward(ctx, cancel, w, events.Events, sc, tracker, rec)
		},
		cancel: cancel,
	}
}

// forward pumps upstream events to w. Each chunk is committed to the
// reconstruction only after its frames were written, so the record holds
// exactly what the client received. Events that convert to no frames are
// answered with a keep-alive comment so a departed client is noticed before
// the next content arrives.
func (p *Proxy) forward(ctx context.Context, cancel context.CancelFunc, w io.Writer, events *sse.Reader, sc *stream.Converter, tracker *perf.Tracker, rec *calllog.Record) {
	var failure error

	for sc.State() != stream.Completed {
		ev, err := events.Next()
		if err != nil {
			failure = upstream.Classify(ctx, err)
			break
		}

		var (
			frames []byte
			chunk  *llm.StreamChunk
		)
		if ev == nil {
			frames, chunk, err = sc.Finish()
		} else {
			frames, chunk, err = sc.Next(ev)
		}
		if err != nil {
			failure = err
			break
		}

		if len(frames) == 0 && ev != nil {
			frames = []byte(sse.KeepAlive)
		}
		if len(frames) > 0 {
			if _, err := w.Write(frames); err != nil {
				cancel()
				failure = fmt.Errorf("%w: %w", llm.ErrClientDisconnected, err)
				break
			}
		}

		if chunk != nil {
			if chunk.HasContent() {
				tracker.Observe()
			}
			sc.Commit(chunk)
		}
	}

	if failure != nil && !errors.Is(failure, llm.ErrClientDisconnected) {
		if _, err := w.Write(sc.Fail(failure)); err != nil {
			p.logger.Debug("failed to write stream error frame", "error", err)
		}
	}

	sample, err := tracker.Finalize(perf.Streaming, sc.Chunks())
	if err != nil {
		p.logger.Error("failed to finalize performance sample", "error", err)
	}
	resp, status := sc.Result()

	rec.Sample = sample
	rec.Response = resp
	rec.ChunkCount = sc.Chunks()
	if status == stream.StatusCompleted {
		rec.Status = calllog.StatusCompleted
	} else {
		rec.Status = calllog.StatusInterrupted
		if failure != nil {
			rec.Error = failure.Error()
		}
		p.logger.Warn("stream interrupted",
			"provider", string(rec.Family),
			"model", rec.Model,
			"chunks", rec.ChunkCount,
			"error", failure,
		)
	}

	p.enqueue(rec)
}

// finalizeFailed closes the sample of a call that failed after the provider
// call was issued. Nothing was delivered, so only latency is derived.
func (p *Proxy) finalizeFailed(rec *calllog.Record, tracker *perf.Tracker, mode perf.Mode) {
	if !tracker.Started() {
		return
	}
	sample, err := tracker.Finalize(mode, 0)
	if err != nil {
		p.logger.Error("failed to finalize performance sample", "error", err)
		return
	}
	rec.Sample = sample
}

// upstreamFailure answers a provider call that produced no response. On
// passthrough a provider error body is forwarded verbatim with its status.
func (p *Proxy) upstreamFailure(rec *calllog.Record, codec provider.Codec, d routing.Decision, err error) *response {
	var transport *llm.UpstreamTransportError
	if !d.ConversionRequired && errors.As(err, &transport) && transport.StatusCode != 0 {
		rec.Fail(err)
		p.logger.Warn("upstream returned error",
			"provider", string(d.Family),
			"model", d.Model,
			"status", transport.StatusCode,
		)
		p.enqueue(rec)
		return &response{status: transport.StatusCode, header: jsonHeader(rec.ID), body: transport.Body}
	}
	return p.reject(rec, codec, err)
}

// reject fails the call and renders err in the caller's dialect.
func (p *Proxy) reject(rec *calllog.Record, codec provider.Codec, err error) *response {
	apiErr := provider.Classify(err)
	rec.Fail(err)

	p.logger.Warn("call failed",
		"dialect", string(rec.Dialect),
		"provider", string(rec.Family),
		"model", rec.Model,
		"status", apiErr.Status,
		"error", err,
	)
	p.enqueue(rec)

	return &response{status: apiErr.Status, header: jsonHeader(rec.ID), body: codec.EncodeError(apiErr)}
}

// outputTokens is the buffered output token count: the provider's usage, or
// an estimate from the response text when usage is absent.
func (p *Proxy) outputTokens(model string, resp *llm.ChatResponse) int {
	if resp == nil {
		return 0
	}
	if resp.Usage != nil && resp.Usage.CompletionTokens > 0 {
		return resp.Usage.CompletionTokens
	}
	return p.tokens.Count(model, resp.Message.GetText())
}

func (p *Proxy) enqueue(rec *calllog.Record) {
	p.workerPool.Enqueue(worker.Job{Record: rec})
}

const headerContentType = "Content-Type"

func jsonHeader(id string) http.Header {
	h := make(http.Header)
	h.Set(headerContentType, contentTypeJSON)
	h.Set(header.RequestIDHeader, id)
	return h
}
