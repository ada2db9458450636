package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/carebook/pkg/logging"
)

const (
	defaultTimeout  = 15 * time.Second
	maxLoggedBody   = 300
	maxResponseBody = 1 << 20
	idempotencyHdr  = "Idempotency-Key"
	requestIDHeader = "X-Request-ID"
)

var backendTracer = otel.Tracer("carebook.internal.backend")

// CallObserver receives one observation per executed HTTP call.
type CallObserver interface {
	ObserveBackendCall(service, kind string, elapsed time.Duration)
}

// Config configures a JSON transport for one backend.
type Config struct {
	// Service names the backend in errors, logs and metrics.
	Service string
	// BaseURL is the endpoint root, e.g. https://appointments.example.
	BaseURL string
	// Timeout bounds each call. Ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	Observer   CallObserver
}

// Client executes single JSON calls against one backend. It classifies
// failures but leaves decoding to the caller.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	observer   CallObserver
}

// Request describes one call.
type Request struct {
	Method string
	Path   string
	Body   any
	// IdempotencyKey, when set, is sent as the Idempotency-Key header.
	IdempotencyKey string
}

// Response is a 2xx answer with its raw body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = "backend"
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%s: base url is required", service)
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%s: invalid base url %q", service, cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		service:    service,
		baseURL:    base,
		httpClient: httpClient,
		logger:     logger,
		observer:   cfg.Observer,
	}, nil
}

// Service returns the backend name used in errors.
func (c *Client) Service() string { return c.service }

// Do sends req and returns the raw 2xx response. Transport failures come
// back as *NetworkError and non-2xx answers as *RejectedError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	op := fmt.Sprintf("%s %s %s", c.service, req.Method, req.Path)
	ctx, span := backendTracer.Start(ctx, c.service+".call")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.route", req.Path),
	)

	start := time.Now()
	resp, err := c.do(ctx, op, req)
	if c.observer != nil {
		c.observer.ObserveBackendCall(c.service, string(Classify(err)), time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Classify(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) do(ctx context.Context, op string, req Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", c.service, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.service, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		httpReq.Header.Set(requestIDHeader, reqID)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(idempotencyHdr, req.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := truncate(string(respBody), maxLoggedBody)
		c.logger.Warn("backend non-2xx response",
			"service", c.service,
			"status", resp.StatusCode,
			"path", req.Path,
			"body", msg,
		)
		return nil, &RejectedError{Service: c.service, StatusCode: resp.StatusCode, Body: msg}
	}

	if len(respBody) > maxResponseBody {
		c.logger.Warn("backend response too large",
			"service", c.service,
			"path", req.Path,
			"limit", maxResponseBody,
		)
		return nil, &MalformedResponseError{
			Service: c.service,
			RawBody: truncate(string(respBody), maxLoggedBody),
			Err:     fmt.Errorf("response body exceeds %d bytes", maxResponseBody),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
