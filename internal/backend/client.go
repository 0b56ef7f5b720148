// Package backend is the client for the remote clinic REST API that persists
// all clinical data.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/observability/metrics"
	"github.com/automedic/clinic/internal/session"
	"github.com/automedic/clinic/pkg/circuitbreaker"
)

// DefaultBaseURL is the hosted clinic API.
const DefaultBaseURL = "https://68866870f52d34140f6c26f9.mockapi.io/projects/automedic/api"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Config holds client configuration
type Config struct {
	BaseURL string
	// Timeout bounds every request, including reading the body.
	Timeout time.Duration
}

// DefaultConfig returns defaults pointing at the hosted API.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// Client talks to the clinic REST API.
// Reads go through a circuit breaker and degrade to local data; writes never do.
type Client struct {
	baseURL  string
	http     *http.Client
	breakers *circuitbreaker.Manager
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates a client. breakers may be nil.
func New(cfg Config, breakers *circuitbreaker.Manager, m *metrics.Metrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if breakers == nil {
		breakers = circuitbreaker.NewManager(nil, logger)
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		breakers: breakers,
		metrics:  m,
		tracer:   otel.Tracer("backend"),
		logger:   logger,
	}
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

// do performs one request named op. A non-nil out receives the decoded JSON body.
// The bearer token is attached whenever sess carries one.
func (c *Client) do(ctx context.Context, sess session.Session, op, method, path string, body, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "backend."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("backend.path", path),
		))
	defer span.End()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveBackend(method, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.metrics.ObserveBackend(method, strconv.Itoa(resp.StatusCode), time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		span.SetStatus(codes.Error, resp.Status)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
