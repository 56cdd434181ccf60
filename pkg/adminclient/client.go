// Package adminclient is a typed client for the proxy's admin REST API.
//
// Every operation takes a context; its deadline bounds the request and yields
// an errs.KindTimeout error when it expires. Failures are *errs.Error values
// naming the operation, e.g. "adminclient.SetMode".
package adminclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/logging"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// DefaultTimeout bounds a single request when the context has no earlier deadline.
const DefaultTimeout = 30 * time.Second

// Client talks to one proxy admin endpoint. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	decodeOpts []simulation.DecodeOption

	mu    sync.RWMutex
	token string

	closed atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTLSConfig sets the TLS configuration used for https admin URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		transport := newTransport()
		if t, ok := c.httpClient.Transport.(*http.Transport); ok {
			transport = t.Clone()
			transport.Proxy = nil
		}
		transport.TLSClientConfig = cfg
		c.httpClient.Transport = transport
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDecodeOptions sets the options used when decoding exported simulations.
func WithDecodeOptions(opts ...simulation.DecodeOption) Option {
	return func(c *Client) {
		c.decodeOpts = opts
	}
}

// New creates a client for the admin API at baseURL, e.g. "http://localhost:8888".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: newTransport(),
		},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newTransport returns a pooled transport that never consults HTTP_PROXY and
// friends: admin traffic goes straight to the proxy's admin port.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	return t
}

// BaseURL returns the admin endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the bearer token currently in use.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Close invalidates the client. Idle connections are closed and every later
// call fails with errs.KindNotStarted.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// request describes one admin API call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any    // JSON-encoded when raw is nil
	raw    []byte // pre-encoded JSON body
	// clientErr is the kind for 4xx responses; zero means errs.KindInvalidArgument.
	clientErr errs.Kind
	// badRequest, when set, overrides clientErr for 400 responses only.
	badRequest errs.Kind
}

// send performs r and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	if c.closed.Load() {
		return nil, errs.Errorf(r.op, errs.KindNotStarted, "admin client is closed")
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var reader io.Reader
	switch {
	case r.raw != nil:
		reader = bytes.NewReader(r.raw)
	case r.body != nil:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(r.body); err != nil {
			return nil, errs.E(r.op, errs.KindInvalidArgument, err)
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, reader)
	if err != nil {
		return nil, errs.E(r.op, errs.KindInvalidArgument, err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("admin request failed", "op", r.op, "method", r.method, "path", r.path, "error", err)
		return nil, transportError(ctx, r.op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, r.op, err)
	}
	c.logger.Debug("admin request",
		"op", r.op, "method", r.method, "path", r.path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, statusError(r, resp.StatusCode, body)
}

// transportError classifies a failure that produced no HTTP response.
func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errs.E(op, errs.KindTimeout, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.E(op, errs.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.E(op, errs.KindTimeout, err)
	}
	return errs.E(op, errs.KindNetwork, err)
}

// statusError classifies a non-2xx response using the proxy's {"error": ...} envelope.
func statusError(r request, status int, body []byte) error {
	var envelope types.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == "" {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return &errs.Error{
			Op:      r.op,
			Kind:    errs.KindProtocol,
			Status:  status,
			Message: fmt.Sprintf("unparseable error response %q", msg),
		}
	}

	kind := errs.KindProxy
	if status < 500 {
		kind = errs.KindInvalidArgument
		if r.clientErr != "" {
			kind = r.clientErr
		}
		if status == http.StatusBadRequest && r.badRequest != "" {
			kind = r.badRequest
		}
	}
	return &errs.Error{Op: r.op, Kind: kind, Status: status, Message: envelope.Error}
}

// decode unmarshals a 2xx body, reporting failures as protocol errors.
func decode(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errs.E(op, errs.KindProtocol, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}
