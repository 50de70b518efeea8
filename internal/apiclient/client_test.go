package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pitabwire/crmdesk/internal/cache"
	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/internal/notify"
	"github.com/pitabwire/crmdesk/model"
)

// recordingNotifier captures notifications for assertion.
type recordingNotifier struct {
	mu    sync.Mutex
	items []model.Notification
}

func (n *recordingNotifier) Notify(level model.Level, message string) model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	item := model.Notification{Level: level, Message: message}
	n.items = append(n.items, item)
	return item
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.items)
}

// upstream is a fake CRM API that counts calls per path.
type upstream struct {
	*httptest.Server
	calls   atomic.Int64
	handler http.HandlerFunc
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{handler: h}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		u.handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func testConfig(baseURL string) config.APIConfig {
	cfg := config.Defaults().API
	cfg.BaseURL = baseURL
	cfg.Retry.BackoffInitial = time.Millisecond
	cfg.Retry.BackoffMax = 5 * time.Millisecond
	return cfg
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

func TestRequest_getIsCachedWithinTTL(t *testing.T) {
	u := newUpstream(t, jsonHandler(`[{"id":1,"name":"Acme"}]`))
	c := New(testConfig(u.URL), cache.New(30*time.Second))

	first, err := c.Request(context.Background(), "/clients", Options{})
	if err != nil {
		t.Fatalf("first Request() error = %v", err)
	}
	second, err := c.Request(context.Background(), "/clients", Options{Method: http.MethodGet})
	if err != nil {
		t.Fatalf("second Request() error = %v", err)
	}

	if got := u.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if string(first) != string(second) {
		t.Errorf("cached payload differs: %s vs %s", first, second)
	}
}

func TestRequest_refetchAfterTTL(t *testing.T) {
	u := newUpstream(t, jsonHandler(`[]`))
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	respCache := cache.New(30*time.Second, cache.WithClock(func() time.Time { return now }))
	c := New(testConfig(u.URL), respCache)

	c.Request(context.Background(), "/deals", Options{})
	now = now.Add(31 * time.Second)
	c.Request(context.Background(), "/deals", Options{})

	if got := u.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestRequest_writesBypassCache(t *testing.T) {
	u := newUpstream(t, jsonHandler(`{"id":9}`))
	respCache := cache.New(time.Minute)
	c := New(testConfig(u.URL), respCache)

	for i := 0; i < 2; i++ {
		if _, err := c.Request(context.Background(), "/clients", Options{Method: http.MethodPost, Body: map[string]string{"name": "x"}}); err != nil {
			t.Fatalf("POST error = %v", err)
		}
	}
	if got := u.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
	if respCache.Len() != 0 {
		t.Errorf("cache Len() = %d, want 0 after writes", respCache.Len())
	}
}

func TestRequest_queryVariantsCachedSeparately(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{{"q": r.URL.Query().Get("q")}})
	})
	c := New(testConfig(u.URL), cache.New(time.Minute))

	a, _ := c.Request(context.Background(), "/clients?q=a", Options{})
	b, _ := c.Request(context.Background(), "/clients?q=b", Options{})

	if string(a) == string(b) {
		t.Errorf("query variants share a payload: %s", a)
	}
	if got := u.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestRequest_non2xxReturnsNetworkError(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	n := &recordingNotifier{}
	c := New(testConfig(u.URL), cache.New(time.Minute), WithNotifier(n))

	_, err := c.Request(context.Background(), "/clients/42", Options{})

	var netErr *model.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %v, want *model.NetworkError", err)
	}
	if netErr.Status != http.StatusNotFound || netErr.StatusText != "Not Found" {
		t.Errorf("NetworkError = %+v", netErr)
	}
	if netErr.Endpoint != "/clients/42" {
		t.Errorf("Endpoint = %q", netErr.Endpoint)
	}
	if n.count() != 1 || n.items[0].Message != notify.ConnectionError || n.items[0].Level != model.LevelError {
		t.Errorf("notifications = %+v", n.items)
	}
}

func TestRequest_transportFailure(t *testing.T) {
	u := newUpstream(t, jsonHandler(`[]`))
	baseURL := u.URL
	u.Close()

	n := &recordingNotifier{}
	c := New(testConfig(baseURL), cache.New(time.Minute), WithNotifier(n))

	_, err := c.Request(context.Background(), "/clients", Options{})

	var trErr *model.TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("error = %v, want *model.TransportError", err)
	}
	if !model.IsUpstreamError(err) {
		t.Error("IsUpstreamError should be true")
	}
	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1", n.count())
	}
}

func TestRequest_mergesHeaders(t *testing.T) {
	var got http.Header
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		io.WriteString(w, `{}`)
	})
	c := New(testConfig(u.URL), nil)

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{CorrelationID: "corr-1"})
	_, err := c.Request(ctx, "/deals", Options{
		Method:  http.MethodPut,
		Headers: map[string]string{"Content-Type": "application/merge-patch+json", "X-Trace": "a\r\nb"},
		Body:    json.RawMessage(`{"title":"t"}`),
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if v := got.Get("Content-Type"); v != "application/merge-patch+json" {
		t.Errorf("Content-Type = %q, caller value should win", v)
	}
	if v := got.Get("Accept"); v != "application/json" {
		t.Errorf("Accept = %q, want default", v)
	}
	if v := got.Get("X-Correlation-Id"); v != "corr-1" {
		t.Errorf("X-Correlation-Id = %q", v)
	}
	if v := got.Get("X-Trace"); v != "ab" {
		t.Errorf("X-Trace = %q, want sanitized", v)
	}
}

func TestRequest_retriesIdempotentReads(t *testing.T) {
	var n atomic.Int64
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		if n.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `[]`)
	})
	cfg := testConfig(u.URL)
	cfg.Retry.MaxAttempts = 3
	notes := &recordingNotifier{}
	c := New(cfg, nil, WithNotifier(notes))

	if _, err := c.Request(context.Background(), "/clients", Options{}); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if got := u.calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
	if notes.count() != 0 {
		t.Errorf("notifications = %d, want 0 after a successful retry", notes.count())
	}
}

func TestRequest_doesNotRetryWritesOrClientErrors(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	cfg := testConfig(u.URL)
	cfg.Retry.MaxAttempts = 3
	c := New(cfg, nil)

	c.Request(context.Background(), "/deals", Options{Method: http.MethodPost})
	c.Request(context.Background(), "/deals", Options{})

	if got := u.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestRequest_openBreakerRejectsWithoutCall(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	breaker := NewCircuitBreaker(2, 1, time.Minute)
	c := New(testConfig(u.URL), nil, WithBreaker(breaker))

	c.Request(context.Background(), "/clients", Options{})
	c.Request(context.Background(), "/clients", Options{})
	_, err := c.Request(context.Background(), "/clients", Options{})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	var trErr *model.TransportError
	if !errors.As(err, &trErr) {
		t.Errorf("error = %T, want *model.TransportError", err)
	}
	if got := u.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestRequest_callerCancellationKeepsBreakerClosed(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	breaker := NewCircuitBreaker(1, 1, time.Minute)
	c := New(testConfig(u.URL), nil, WithBreaker(breaker))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Request(cancelled, "/clients", Options{}); err == nil {
		t.Fatal("Request(cancelled) error = nil")
	}

	timedOut, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	_, err := c.Request(timedOut, "/deals", Options{})
	var trErr *model.TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("error = %v, want *model.TransportError", err)
	}

	if got := breaker.State(); got != BreakerClosed {
		t.Errorf("breaker state = %v, want closed", got)
	}
}

func TestRequest_transportFailureTripsBreaker(t *testing.T) {
	u := newUpstream(t, jsonHandler(`[]`))
	u.Close()
	breaker := NewCircuitBreaker(1, 1, time.Minute)
	c := New(testConfig(u.URL), nil, WithBreaker(breaker))

	c.Request(context.Background(), "/clients", Options{})
	if got := breaker.State(); got != BreakerOpen {
		t.Errorf("breaker state = %v, want open", got)
	}
}

func TestRequest_invalidJSON(t *testing.T) {
	u := newUpstream(t, jsonHandler(`<html>oops</html>`))
	n := &recordingNotifier{}
	respCache := cache.New(time.Minute)
	c := New(testConfig(u.URL), respCache, WithNotifier(n))

	if _, err := c.Request(context.Background(), "/clients", Options{}); err == nil {
		t.Fatal("Request() should fail on invalid JSON")
	}
	if respCache.Len() != 0 {
		t.Error("invalid payload must not be cached")
	}
	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1", n.count())
	}
}

func TestRequest_emptyBodyIsNull(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := New(testConfig(u.URL), nil)

	got, err := c.Request(context.Background(), "/clients/1", Options{Method: http.MethodDelete})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if string(got) != "null" {
		t.Errorf("payload = %s, want null", got)
	}
}

func TestHealthCheck(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := New(testConfig(u.URL), nil)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v, any response should count as reachable", err)
	}

	u.Close()
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail when the API is down")
	}
}
