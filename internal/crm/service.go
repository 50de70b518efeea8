// Package crm is the typed facade over the CRM API: one method per resource
// operation, normalization on read, denormalization on write, and the
// derived dashboard figures.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/crmdesk/internal/apiclient"
	"github.com/pitabwire/crmdesk/internal/cache"
	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/internal/normalize"
	"github.com/pitabwire/crmdesk/internal/observability"
	"github.com/pitabwire/crmdesk/model"
)

// Requester performs raw CRM API requests. *apiclient.Client implements it.
type Requester interface {
	Request(ctx context.Context, endpoint string, opts apiclient.Options) (json.RawMessage, error)
}

// Service exposes the CRM resources to the page controllers.
type Service struct {
	api    Requester
	cache  *cache.Cache
	stats  config.StatsConfig
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now when computing statistics.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a facade. c may be nil when responses are not cached.
func NewService(api Requester, c *cache.Cache, stats config.StatsConfig, opts ...Option) *Service {
	s := &Service{
		api:    api,
		cache:  c,
		stats:  stats,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- clients ---

// ListClients returns every client with canonical status labels.
func (s *Service) ListClients(ctx context.Context) ([]model.Client, error) {
	return s.fetchClients(ctx, "/clients")
}

// SearchClients runs a free-text search. It is an ordinary cached read.
func (s *Service) SearchClients(ctx context.Context, query string) ([]model.Client, error) {
	return s.fetchClients(ctx, "/clients?q="+url.QueryEscape(query))
}

func (s *Service) fetchClients(ctx context.Context, endpoint string) ([]model.Client, error) {
	var rows []model.UpstreamClient
	if err := s.get(ctx, endpoint, &rows); err != nil {
		return nil, err
	}
	clients := normalize.Clients(rows)
	if clients == nil {
		clients = []model.Client{}
	}
	return clients, nil
}

// GetClient returns one client.
func (s *Service) GetClient(ctx context.Context, id string) (*model.Client, error) {
	var row model.UpstreamClient
	if err := s.get(ctx, "/clients/"+url.PathEscape(id), &row); err != nil {
		return nil, err
	}
	return normalize.Client(&row), nil
}

// CreateClient validates and sends a new client. The status is converted
// to the upstream enum before transmission.
func (s *Service) CreateClient(ctx context.Context, in model.ClientInput) (*model.Client, error) {
	if err := ValidateClient(in); err != nil {
		return nil, err
	}
	var row model.UpstreamClient
	if err := s.write(ctx, http.MethodPost, "/clients", normalize.ClientPayload(&in), &row); err != nil {
		return nil, err
	}
	return normalize.Client(&row), nil
}

// UpdateClient validates and replaces a client.
func (s *Service) UpdateClient(ctx context.Context, id string, in model.ClientInput) (*model.Client, error) {
	if err := ValidateClient(in); err != nil {
		return nil, err
	}
	var row model.UpstreamClient
	if err := s.write(ctx, http.MethodPut, "/clients/"+url.PathEscape(id), normalize.ClientPayload(&in), &row); err != nil {
		return nil, err
	}
	return normalize.Client(&row), nil
}

// DeleteClient removes a client.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	return s.write(ctx, http.MethodDelete, "/clients/"+url.PathEscape(id), nil, nil)
}

// --- deals ---

// ListDeals returns every deal with defaults applied.
func (s *Service) ListDeals(ctx context.Context) ([]model.Deal, error) {
	return s.fetchDeals(ctx, "/deals")
}

// SearchDeals runs a free-text search over deals.
func (s *Service) SearchDeals(ctx context.Context, query string) ([]model.Deal, error) {
	return s.fetchDeals(ctx, "/deals?q="+url.QueryEscape(query))
}

func (s *Service) fetchDeals(ctx context.Context, endpoint string) ([]model.Deal, error) {
	var rows []model.UpstreamDeal
	if err := s.get(ctx, endpoint, &rows); err != nil {
		return nil, err
	}
	deals := normalize.Deals(rows)
	if deals == nil {
		deals = []model.Deal{}
	}
	return deals, nil
}

// GetDeal returns one deal.
func (s *Service) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	var row model.UpstreamDeal
	if err := s.get(ctx, "/deals/"+url.PathEscape(id), &row); err != nil {
		return nil, err
	}
	return normalize.Deal(&row), nil
}

// CreateDeal validates and sends a new deal.
func (s *Service) CreateDeal(ctx context.Context, in model.DealInput) (*model.Deal, error) {
	if err := ValidateDeal(in); err != nil {
		return nil, err
	}
	var row model.UpstreamDeal
	if err := s.write(ctx, http.MethodPost, "/deals", in, &row); err != nil {
		return nil, err
	}
	return normalize.Deal(&row), nil
}

// UpdateDeal validates and replaces a deal.
func (s *Service) UpdateDeal(ctx context.Context, id string, in model.DealInput) (*model.Deal, error) {
	if err := ValidateDeal(in); err != nil {
		return nil, err
	}
	var row model.UpstreamDeal
	if err := s.write(ctx, http.MethodPut, "/deals/"+url.PathEscape(id), in, &row); err != nil {
		return nil, err
	}
	return normalize.Deal(&row), nil
}

// DeleteDeal removes a deal.
func (s *Service) DeleteDeal(ctx context.Context, id string) error {
	return s.write(ctx, http.MethodDelete, "/deals/"+url.PathEscape(id), nil, nil)
}

// --- stats ---

// Stats fetches clients and deals concurrently and derives the dashboard
// summary relative to the current time. It caches nothing itself.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	ctx, span := observability.StartSpan(ctx, "crm.stats")
	defer span.End()
	var clients []model.Client
	var deals []model.Deal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		clients, err = s.ListClients(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		deals, err = s.ListDeals(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		observability.RecordSpanError(span, err)
		return nil, fmt.Errorf("crm: stats: %w", err)
	}

	stats := ComputeStats(clients, deals, s.now(), s.stats)
	return &stats, nil
}

// ClearCache invalidates cached responses; see cache.Cache.Clear for the
// meaning of key.
func (s *Service) ClearCache(key string) {
	if s.cache != nil {
		s.cache.Clear(key)
	}
}

// --- plumbing ---

func (s *Service) get(ctx context.Context, endpoint string, out any) error {
	payload, err := s.api.Request(ctx, endpoint, apiclient.Options{})
	if err != nil {
		return fmt.Errorf("crm: GET %s: %w", endpoint, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("crm: decode %s: %w", endpoint, err)
	}
	return nil
}

// write sends a mutation and, on success, drops the cached family so the
// next read sees the change.
func (s *Service) write(ctx context.Context, method, endpoint string, body, out any) error {
	payload, err := s.api.Request(ctx, endpoint, apiclient.Options{Method: method, Body: body})
	if err != nil {
		return fmt.Errorf("crm: %s %s: %w", method, endpoint, err)
	}
	s.ClearCache(cache.FamilyOf(cache.KeyFor(endpoint)))

	observability.RequestLogger(ctx, s.logger).Info("crm: write accepted",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
	)

	if out == nil || len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("crm: decode %s: %w", endpoint, err)
	}
	return nil
}
