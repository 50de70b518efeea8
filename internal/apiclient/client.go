// Package apiclient talks to the remote CRM API. Reads are served from the
// session's response cache while fresh; every failure is logged, surfaced to
// the user as a notification and returned to the caller.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/cache"
	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/internal/notify"
	"github.com/pitabwire/crmdesk/internal/observability"
	"github.com/pitabwire/crmdesk/model"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 10 << 20

// Notifier receives the user-visible message of a failed request.
type Notifier interface {
	Notify(level model.Level, message string) model.Notification
}

// Options describe one request. An empty Method means GET. Headers are
// merged over the defaults, caller values winning. Body is marshalled to JSON
// unless it already is a json.RawMessage or []byte.
type Options struct {
	Method  string
	Headers map[string]string
	Body    any
}

// Client performs CRM API requests for one session.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    *cache.Cache
	breaker  *CircuitBreaker
	retry    config.RetryConfig
	notifier Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient shares a transport between sessions.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBreaker shares a circuit breaker between sessions.
func WithBreaker(b *CircuitBreaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithNotifier sets the notification sink for failures.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records upstream request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the configured base URL. A nil cache disables
// response caching.
func New(cfg config.APIConfig, c *cache.Cache, opts ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cache:   c,
		retry:   cfg.Retry,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.http == nil {
		client.http = NewHTTPClient(cfg.Timeout)
	}
	if client.breaker == nil {
		cb := cfg.CircuitBreaker
		client.breaker = NewCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout)
	}
	return client
}

// NewHTTPClient returns the pooled HTTP client used for the CRM API.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxConnsPerHost:     50,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// Cache returns the response cache, possibly nil.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Request performs a request against endpoint (a path such as "/clients" or
// "/clients?q=acme") and returns the raw JSON body. GET responses are cached
// under cache.KeyFor(endpoint); other methods never touch the cache.
func (c *Client) Request(ctx context.Context, endpoint string, opts Options) (json.RawMessage, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	cacheable := method == http.MethodGet && c.cache != nil
	key := cache.KeyFor(endpoint)
	resource := cache.FamilyOf(key)

	ctx, span := observability.StartSpan(ctx, "api.request",
		observability.AttrEndpoint.String(endpoint),
		observability.AttrResource.String(resource),
	)
	defer span.End()

	if cacheable {
		if payload, ok := c.cache.Get(key); ok {
			span.SetAttributes(observability.AttrCacheHit.Bool(true))
			observability.RequestLogger(ctx, c.logger).Debug("api: cache hit",
				zap.String("endpoint", endpoint),
			)
			return payload, nil
		}
		span.SetAttributes(observability.AttrCacheHit.Bool(false))
	}

	payload, err := c.execute(ctx, method, endpoint, resource, opts)
	if err != nil {
		observability.RecordSpanError(span, err)
		c.fail(ctx, method, endpoint, err)
		return nil, err
	}

	if cacheable {
		c.cache.Put(key, payload)
	}
	return payload, nil
}

// execute runs the request with retries for idempotent reads.
func (c *Client) execute(ctx context.Context, method, endpoint, resource string, opts Options) (json.RawMessage, error) {
	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: encode body: %w", err)
	}

	attempts := c.retry.MaxAttempts
	if method != http.MethodGet || attempts <= 1 {
		return c.executeOnce(ctx, method, endpoint, resource, opts.Headers, body)
	}

	var payload json.RawMessage
	operation := func() error {
		var opErr error
		payload, opErr = c.executeOnce(ctx, method, endpoint, resource, opts.Headers, body)
		if opErr != nil && !isRetryable(opErr) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}
	notifyRetry := func(err error, delay time.Duration) {
		c.metrics.RecordUpstreamRetry()
		observability.RequestLogger(ctx, c.logger).Debug("api: retrying read",
			zap.String("endpoint", endpoint),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, c.retryPolicy(ctx, attempts), notifyRetry); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) retryPolicy(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.retry.BackoffInitial > 0 {
		b.InitialInterval = c.retry.BackoffInitial
	}
	if c.retry.BackoffMultiplier > 0 {
		b.Multiplier = c.retry.BackoffMultiplier
	}
	if c.retry.BackoffMax > 0 {
		b.MaxInterval = c.retry.BackoffMax
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// executeOnce performs a single HTTP request with circuit breaker protection.
func (c *Client) executeOnce(
	ctx context.Context,
	method, endpoint, resource string,
	headers map[string]string,
	body []byte,
) (json.RawMessage, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, &model.TransportError{Method: method, Endpoint: endpoint, Err: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header = buildHeaders(ctx, headers)
	observability.InjectTraceHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.recordTransportFailure(ctx)
		c.metrics.RecordUpstreamRequest(method, resource, 0, time.Since(start))
		return nil, &model.TransportError{Method: method, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.RecordUpstreamRequest(method, resource, resp.StatusCode, time.Since(start))
	if err != nil {
		c.recordTransportFailure(ctx)
		return nil, &model.TransportError{Method: method, Endpoint: endpoint, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		c.breaker.RecordFailure()
	default:
		// 4xx are not infrastructure failures.
		c.breaker.RecordSuccess()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.NetworkError{
			Method:     method,
			Endpoint:   endpoint,
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
		}
	}

	respBody = bytes.TrimSpace(respBody)
	if len(respBody) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("apiclient: %s %s: response is not valid JSON", method, endpoint)
	}
	return json.RawMessage(respBody), nil
}

// recordTransportFailure counts a failed exchange against the shared
// breaker unless the caller gave up first. An abandoned page load says
// nothing about the health of the CRM API.
func (c *Client) recordTransportFailure(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.breaker.RecordFailure()
}

// fail logs a failed request and surfaces the connection notice.
func (c *Client) fail(ctx context.Context, method, endpoint string, err error) {
	logger := observability.RequestLogger(ctx, c.logger)
	logger.Warn("api: request failed",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Error(err),
	)
	if c.notifier != nil {
		c.notifier.Notify(model.LevelError, notify.ConnectionError)
	}
}

// HealthCheck reports whether the CRM API answers at all. Any HTTP response
// counts as reachable; it bypasses the cache, the breaker and notifications.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm api unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// --- request building ---

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

func buildHeaders(ctx context.Context, custom map[string]string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")

	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
	}

	// Applied last so callers can override the defaults.
	for k, v := range custom {
		h.Set(sanitizeHeader(k), sanitizeHeader(v))
	}
	return h
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

func statusText(resp *http.Response) string {
	// resp.Status is "404 Not Found".
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// --- classification helpers ---

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr *model.NetworkError
	if errors.As(err, &netErr) {
		return isRetryableStatus(netErr.Status)
	}
	var trErr *model.TransportError
	return errors.As(err, &trErr)
}
