package navigation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/observability"
	"github.com/pitabwire/crmdesk/model"
)

// maxMarkupBytes bounds a single markup fragment.
const maxMarkupBytes = 1 << 20

// NotFoundMarkup is injected for pages that have neither an asset nor a stub.
const NotFoundMarkup = `<div class="page-error">Страница не найдена</div>`

var stubs = map[string]string{
	"dashboard": stub("fa-chart-line", "Dashboards", "Загрузка аналитики...", "dashboardContent"),
	"clients":   stub("fa-users", "Клиенты", "Загрузка списка клиентов...", "clientsContent"),
	"deals":     stub("fa-box", "Сделки", "Загрузка списка сделок...", "dealsContent"),
	"users":     stub("fa-address-book", "Пользователи", "Загрузка списка пользователей...", "usersContent"),
	"settings":  stub("fa-cog", "Настройки", "Раздел в разработке...", ""),
}

func stub(icon, title, text, contentID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="page-stub"><h3><i class="fas %s"></i> %s</h3><p>%s</p>`, icon, title, text)
	if contentID != "" {
		fmt.Fprintf(&b, `<div id="%s"></div>`, contentID)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// Source fetches a static asset by its slash-separated path, for example
// "components/clients.html".
type Source interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// FSSource serves assets from a file system.
type FSSource struct {
	FS fs.FS
}

// NewDirSource serves assets from a directory on disk.
func NewDirSource(dir string) *FSSource {
	return &FSSource{FS: os.DirFS(dir)}
}

// Fetch implements Source.
func (s *FSSource) Fetch(_ context.Context, name string) ([]byte, error) {
	f, err := s.FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxMarkupBytes))
}

// HTTPSource fetches assets relative to a base URL.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// Fetch implements Source. Any non-2xx answer is an error.
func (s *HTTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.BaseURL, "/")+"/"+name, nil)
	if err != nil {
		return nil, err
	}
	observability.InjectTraceHeaders(ctx, req.Header)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %s", name, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxMarkupBytes))
}

// Loader resolves the markup fragment of a page.
type Loader struct {
	source  Source
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewLoader creates a Loader. A nil source serves only stubs.
func NewLoader(source Source, logger *zap.Logger, metrics *observability.Metrics) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{source: source, logger: logger, metrics: metrics}
}

// MarkupPath returns the asset path of a page fragment.
func MarkupPath(page string) string {
	return path.Join("components", page+".html")
}

// StylesheetPath returns the asset path of a page stylesheet.
func StylesheetPath(page string) string {
	return path.Join("css", page+".css")
}

// Load returns the page markup. It never fails: a missing or unreadable
// asset falls back to the page stub, or to NotFoundMarkup.
func (l *Loader) Load(ctx context.Context, page string) string {
	markup, err := l.fetch(ctx, page)
	if err == nil {
		return markup
	}

	observability.RequestLogger(ctx, l.logger).Debug("navigation: page asset missing, using stub",
		zap.String("page", page),
		zap.Error(err),
	)
	l.metrics.RecordAssetFallback(page)
	return Stub(page)
}

func (l *Loader) fetch(ctx context.Context, page string) (string, error) {
	if l.source == nil {
		return "", &model.AssetMissingError{Page: page, Err: errors.New("no asset source")}
	}
	if !validPageName(page) {
		return "", &model.AssetMissingError{Page: page, Err: errors.New("invalid page name")}
	}
	data, err := l.source.Fetch(ctx, MarkupPath(page))
	if err != nil {
		return "", &model.AssetMissingError{Page: page, Err: err}
	}
	return string(data), nil
}

// Stub returns the built-in fragment for page.
func Stub(page string) string {
	if s, ok := stubs[page]; ok {
		return s
	}
	return NotFoundMarkup
}

// validPageName rejects names that could escape the components directory.
func validPageName(page string) bool {
	if page == "" || len(page) > 64 {
		return false
	}
	for _, r := range page {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
