// Package upstream sends requests to provider families over HTTP.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/logger"
	"github.com/papercomputeco/switchboard/pkg/sse"
	"github.com/papercomputeco/switchboard/pkg/utils"
)

// DefaultAnthropicVersion is sent as anthropic-version when none is configured.
const DefaultAnthropicVersion = "2023-06-01"

// maxErrorBody caps how much of a non-2xx body is kept.
const maxErrorBody = 1 << 20

// maxLoggedBody caps the error body excerpt written to the log.
const maxLoggedBody = 512

// Provider is an outbound provider connection.
type Provider interface {
	// Send performs a buffered call.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Stream performs a streamed call. The caller must Close the returned
	// stream.
	Stream(ctx context.Context, req *Request) (*StreamResponse, error)
}

// Request is one outbound call.
type Request struct {
	Family dialect.Family
	Body   []byte

	// Header carries client headers to forward. Credentials are set from
	// the endpoint configuration when it has a key.
	Header http.Header
}

// Response is a buffered 2xx provider response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StreamResponse is an open 2xx event stream.
type StreamResponse struct {
	StatusCode int
	Header     http.Header
	Events     *sse.Reader

	body io.Closer
}

// Close releases the upstream connection.
func (s *StreamResponse) Close() error {
	return s.body.Close()
}

// Endpoint is where one family is reached.
type Endpoint struct {
	BaseURL string
	APIKey  string

	// Version is the anthropic-version header value (anthropic only).
	Version string
}

// Client is the HTTP Provider.
type Client struct {
	endpoints  map[dialect.Family]Endpoint
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the given endpoints.
func NewClient(endpoints map[dialect.Family]Endpoint, opts ...Option) (*Client, error) {
	c := &Client{
		endpoints: make(map[dialect.Family]Endpoint, len(endpoints)),
		// Timeouts come from the per-call context. LLM calls can be slow,
		// especially with long generations.
		httpClient: &http.Client{Timeout: 0},
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for family, ep := range endpoints {
		if _, err := dialect.ParseFamily(string(family)); err != nil {
			return nil, err
		}
		if ep.BaseURL == "" {
			return nil, fmt.Errorf("no base url for provider family %s", family)
		}
		ep.BaseURL = strings.TrimRight(ep.BaseURL, "/")
		if family == dialect.Anthropic && ep.Version == "" {
			ep.Version = DefaultAnthropicVersion
		}
		c.endpoints[family] = ep
	}
	return c, nil
}

// Families returns the configured families.
func (c *Client) Families() []dialect.Family {
	var out []dialect.Family
	for _, f := range dialect.Families() {
		if _, ok := c.endpoints[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	httpResp, err := c.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, Classify(ctx, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func (c *Client) Stream(ctx context.Context, req *Request) (*StreamResponse, error) {
	httpResp, err := c.do(ctx, req, true)
	if err != nil {
		return nil, err
	}

	return &StreamResponse{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Events:     sse.NewReader(httpResp.Body),
		body:       httpResp.Body,
	}, nil
}

// do issues the call and turns transport failures and non-2xx statuses into
// errors. On success the caller owns the response body.
func (c *Client) do(ctx context.Context, req *Request, stream bool) (*http.Response, error) {
	ep, ok := c.endpoints[req.Family]
	if !ok {
		return nil, &llm.UpstreamTransportError{Err: fmt.Errorf("no endpoint configured for provider family %s", req.Family)}
	}

	url := ep.BaseURL + req.Family.Native().Path()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &llm.UpstreamTransportError{Err: err}
	}

	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	setHeaders(httpReq.Header, req.Family, ep, stream)

	c.logger.Debug("forwarding request to upstream",
		"provider", string(req.Family),
		"url", url,
		"stream", stream,
	)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Classify(ctx, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		httpResp.Body.Close()
		c.logger.Warn("upstream returned error",
			"provider", string(req.Family),
			"status", httpResp.StatusCode,
			"duration", time.Since(start),
			"body", utils.Truncate(string(body), maxLoggedBody),
		)
		return nil, &llm.UpstreamTransportError{
			StatusCode: httpResp.StatusCode,
			Body:       body,
			Message:    errorMessage(body),
		}
	}

	return httpResp, nil
}

func setHeaders(h http.Header, family dialect.Family, ep Endpoint, stream bool) {
	h.Set("Content-Type", "application/json")
	if stream {
		h.Set("Accept", "text/event-stream")
	} else {
		h.Set("Accept", "application/json")
	}

	switch family {
	case dialect.Anthropic:
		h.Del("Authorization")
		if ep.APIKey != "" {
			h.Set("x-api-key", ep.APIKey)
		}
		if h.Get("anthropic-version") == "" {
			h.Set("anthropic-version", ep.Version)
		}
	case dialect.OpenAI:
		h.Del("x-api-key")
		h.Del("anthropic-version")
		h.Del("anthropic-beta")
		if ep.APIKey != "" {
			h.Set("Authorization", "Bearer "+ep.APIKey)
		}
	}
}

// Classify maps a transport failure, including one raised while reading a
// stream body, onto the pipeline's errors. A timeout is told apart from a
// cancelled caller by the context.
func Classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", llm.ErrTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", llm.ErrClientDisconnected, err)
	}
	return &llm.UpstreamTransportError{Err: err}
}
