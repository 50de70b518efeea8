// Package navigation is the page state machine of a session: it keeps the
// current page and a bounded history, loads page markup and runs the page
// controller, and discards the results of navigations that were superseded
// while still loading.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/observability"
	"github.com/pitabwire/crmdesk/internal/view"
)

// LoadFailedMessage is shown inline when a page controller fails.
const LoadFailedMessage = "Не удалось загрузить страницу"

// LoadingMarkup fills the content while a page is loading.
const LoadingMarkup = `<div class="loading-content"><i class="fas fa-spinner fa-spin"></i> Загрузка...</div>`

// DefaultHistoryCapacity bounds the history when no capacity is configured.
const DefaultHistoryCapacity = 10

// Kind enumerates the navigator states.
type Kind int

const (
	Idle Kind = iota
	Loading
	Displaying
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Displaying:
		return "displaying"
	default:
		return "idle"
	}
}

// State is the navigator state. Page is set only when Kind is Displaying.
type State struct {
	Kind Kind
	Page string
}

// Entry is one history record: the page that was displayed before a
// navigation, with its parameters.
type Entry struct {
	Page   string
	Params map[string]string
}

// Navigator is safe for concurrent use.
type Navigator struct {
	registry *Registry
	loader   *Loader
	doc      *view.Document
	logger   *zap.Logger
	metrics  *observability.Metrics
	capacity int

	mu            sync.Mutex
	state         State
	current       string
	currentParams map[string]string
	history       []Entry
	generation    uint64
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithHistoryCapacity bounds the history.
func WithHistoryCapacity(n int) Option {
	return func(nv *Navigator) {
		if n > 0 {
			nv.capacity = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(nv *Navigator) { nv.logger = l }
}

// WithMetrics records navigation metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(nv *Navigator) { nv.metrics = m }
}

// New creates an idle Navigator rendering into doc.
func New(registry *Registry, loader *Loader, doc *view.Document, opts ...Option) *Navigator {
	nv := &Navigator{
		registry: registry,
		loader:   loader,
		doc:      doc,
		logger:   zap.NewNop(),
		capacity: DefaultHistoryCapacity,
	}
	for _, opt := range opts {
		opt(nv)
	}
	return nv
}

// Navigate displays page. Loading never fails: unknown pages show the
// not-found fragment. When the page controller fails, an inline error is
// shown, the previous page stays current and the error is returned. A
// navigation superseded by a newer one returns nil without committing.
func (nv *Navigator) Navigate(ctx context.Context, page string, params map[string]string) error {
	return nv.navigate(ctx, page, params, true)
}

// Back re-displays the most recent history entry without recording the
// page being left. It does nothing when the history is empty.
func (nv *Navigator) Back(ctx context.Context) error {
	nv.mu.Lock()
	if len(nv.history) == 0 {
		nv.mu.Unlock()
		return nil
	}
	prev := nv.history[len(nv.history)-1]
	nv.history = nv.history[:len(nv.history)-1]
	nv.mu.Unlock()

	if prev.Page == "" {
		return nil
	}
	return nv.navigate(ctx, prev.Page, prev.Params, false)
}

// Restore handles the browser's history signal for page. When page is the
// most recent history entry this is Back. Restoring the current page
// re-displays it without recording; any other page (the forward button) is
// an ordinary navigation.
func (nv *Navigator) Restore(ctx context.Context, page string, params map[string]string) error {
	nv.mu.Lock()
	if n := len(nv.history); n > 0 && nv.history[n-1].Page == page {
		nv.mu.Unlock()
		return nv.Back(ctx)
	}
	record := page != nv.current
	nv.mu.Unlock()
	return nv.navigate(ctx, page, params, record)
}

func (nv *Navigator) navigate(ctx context.Context, page string, params map[string]string, record bool) error {
	start := time.Now()
	params = copyParams(params)

	nv.mu.Lock()
	if record && nv.current != "" {
		nv.history = append(nv.history, Entry{Page: nv.current, Params: nv.currentParams})
		if over := len(nv.history) - nv.capacity; over > 0 {
			nv.history = append([]Entry(nil), nv.history[over:]...)
		}
	}
	nv.generation++
	gen := nv.generation
	nv.state = State{Kind: Loading}
	nv.doc.DestroyCharts()
	nv.doc.SetStylesheet(StylesheetPath(page))
	nv.doc.SetLoading(true)
	// The placeholder cannot fail to parse.
	_ = nv.doc.SetContent(LoadingMarkup)
	nv.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "navigation.navigate",
		observability.AttrPage.String(page),
		observability.AttrGeneration.Int64(int64(gen)),
	)
	defer span.End()
	logger := observability.RequestLogger(ctx, nv.logger).With(
		zap.String("page", page),
		zap.Uint64("generation", gen),
	)

	markup := nv.loader.Load(ctx, page)

	frame := &Frame{nav: nv, gen: gen, page: page, params: params, logger: logger}
	if err := frame.SetContent(markup); err != nil {
		return nv.finish(logger, page, params, gen, err, start)
	}

	var initErr error
	if p, ok := nv.registry.Lookup(page); ok && p.Controller != nil {
		initErr = p.Controller.Init(ctx, frame)
	}
	if initErr != nil && !errors.Is(initErr, ErrSuperseded) {
		observability.RecordSpanError(span, initErr)
	}
	return nv.finish(logger, page, params, gen, initErr, start)
}

// finish commits or rejects a navigation. Only the navigation that still
// owns the current generation touches the view.
func (nv *Navigator) finish(logger *zap.Logger, page string, params map[string]string, gen uint64, err error, start time.Time) error {
	nv.mu.Lock()
	defer nv.mu.Unlock()

	if gen != nv.generation {
		nv.metrics.RecordNavigation(page, "superseded", time.Since(start))
		logger.Debug("navigation: superseded")
		return nil
	}

	defer nv.doc.SetLoading(false)

	if err != nil {
		nv.doc.PrependError(LoadFailedMessage)
		if nv.current != "" {
			nv.state = State{Kind: Displaying, Page: nv.current}
		} else {
			nv.state = State{Kind: Idle}
		}
		nv.metrics.RecordNavigation(page, "failed", time.Since(start))
		logger.Warn("navigation: page failed to load", zap.Error(err))
		return fmt.Errorf("navigation: %s: %w", page, err)
	}

	if _, known := nv.registry.Lookup(page); known {
		nv.doc.SetActiveMenu(page)
	} else {
		nv.doc.SetActiveMenu("")
	}
	nv.doc.SetTitle(nv.registry.Title(page))
	nv.current = page
	nv.currentParams = params
	nv.state = State{Kind: Displaying, Page: page}
	nv.metrics.RecordNavigation(page, "displayed", time.Since(start))
	logger.Info("navigation: page displayed", zap.Duration("duration", time.Since(start)))
	return nil
}

// State returns the current state.
func (nv *Navigator) State() State {
	nv.mu.Lock()
	defer nv.mu.Unlock()
	return nv.state
}

// Current returns the displayed page and its parameters.
func (nv *Navigator) Current() (string, map[string]string) {
	nv.mu.Lock()
	defer nv.mu.Unlock()
	return nv.current, copyParams(nv.currentParams)
}

// History returns a copy of the history, oldest first.
func (nv *Navigator) History() []Entry {
	nv.mu.Lock()
	defer nv.mu.Unlock()
	out := make([]Entry, len(nv.history))
	copy(out, nv.history)
	return out
}

// Generation returns the token of the most recent navigation.
func (nv *Navigator) Generation() uint64 {
	nv.mu.Lock()
	defer nv.mu.Unlock()
	return nv.generation
}

// Menu returns the sidebar entries.
func (nv *Navigator) Menu() []MenuItem { return nv.registry.Menu() }

// Document returns the document the navigator renders into.
func (nv *Navigator) Document() *view.Document { return nv.doc }

// owns reports whether gen is still the newest navigation.
func (nv *Navigator) owns(gen uint64) bool {
	nv.mu.Lock()
	defer nv.mu.Unlock()
	return gen == nv.generation
}

func copyParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
