package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/pitabwire/crmdesk/internal/view"
)

func testPages(extra ...Page) []Page {
	pages := []Page{
		{Name: "dashboard", Title: "Dashboards", Order: 1},
		{Name: "clients", Title: "Клиенты", Order: 2},
		{Name: "deals", Title: "Сделки", Order: 3},
	}
	return append(pages, extra...)
}

func newTestNavigator(t *testing.T, pages []Page, files fstest.MapFS, opts ...Option) *Navigator {
	t.Helper()
	if files == nil {
		files = fstest.MapFS{}
	}
	loader := NewLoader(&FSSource{FS: files}, nil, nil)
	return New(NewRegistry(pages...), loader, view.NewDocument(), opts...)
}

func TestNavigate_knownPage(t *testing.T) {
	files := fstest.MapFS{
		"components/clients.html": {Data: []byte(`<h2>Клиенты</h2><table><tbody id="clientsTableBody"></tbody></table>`)},
	}
	var initCalled bool
	pages := testPages()
	pages[1].Controller = ControllerFunc(func(_ context.Context, f *Frame) error {
		initCalled = true
		return f.SetInnerHTML("clientsTableBody", `<tr><td>1</td></tr>`)
	})
	nv := newTestNavigator(t, pages, files)

	if err := nv.Navigate(context.Background(), "clients", nil); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if !initCalled {
		t.Error("controller was not initialised")
	}

	s := nv.Document().Snapshot()
	if s.Title != "Клиенты" {
		t.Errorf("Title = %q", s.Title)
	}
	if s.ActiveMenu != "clients" {
		t.Errorf("ActiveMenu = %q", s.ActiveMenu)
	}
	if s.Stylesheet != "css/clients.css" {
		t.Errorf("Stylesheet = %q", s.Stylesheet)
	}
	if s.Loading {
		t.Error("loading indicator still shown")
	}
	if !strings.Contains(s.Content, "<tr><td>1</td></tr>") {
		t.Errorf("Content = %s", s.Content)
	}
	if got := nv.State(); got.Kind != Displaying || got.Page != "clients" {
		t.Errorf("State() = %+v", got)
	}
}

func TestNavigate_unknownPage(t *testing.T) {
	nv := newTestNavigator(t, testPages(), nil)

	if err := nv.Navigate(context.Background(), "reports", nil); err != nil {
		t.Fatalf("Navigate(unknown) error = %v, want nil", err)
	}
	s := nv.Document().Snapshot()
	if !strings.Contains(s.Content, "Страница не найдена") {
		t.Errorf("Content = %s, want not-found fragment", s.Content)
	}
	if s.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", s.Title, DefaultTitle)
	}
	if s.ActiveMenu != "" {
		t.Errorf("ActiveMenu = %q, want none", s.ActiveMenu)
	}
	if page, _ := nv.Current(); page != "reports" {
		t.Errorf("Current() = %q", page)
	}
}

func TestNavigate_missingAssetUsesStub(t *testing.T) {
	nv := newTestNavigator(t, testPages(), nil)
	_ = nv.Navigate(context.Background(), "deals", nil)

	if !nv.Document().Has("dealsContent") {
		t.Errorf("stub not injected: %s", nv.Document().Render())
	}
}

func TestNavigate_historyBounded(t *testing.T) {
	nv := newTestNavigator(t, testPages(), nil)
	ctx := context.Background()
	names := []string{"dashboard", "clients", "deals"}

	for i := 0; i < 15; i++ {
		if err := nv.Navigate(ctx, names[i%3], map[string]string{"n": fmt.Sprint(i)}); err != nil {
			t.Fatalf("Navigate(%d) error = %v", i, err)
		}
	}

	history := nv.History()
	if len(history) != DefaultHistoryCapacity {
		t.Fatalf("len(History()) = %d, want %d", len(history), DefaultHistoryCapacity)
	}
	// The newest entry is the page displayed before the last navigation.
	last := history[len(history)-1]
	if last.Page != names[13%3] || last.Params["n"] != "13" {
		t.Errorf("newest entry = %+v", last)
	}
	if history[0].Params["n"] != "4" {
		t.Errorf("oldest entry = %+v, want n=4", history[0])
	}
}

func TestNavigate_customCapacity(t *testing.T) {
	nv := newTestNavigator(t, testPages(), nil, WithHistoryCapacity(2))
	for i := 0; i < 5; i++ {
		_ = nv.Navigate(context.Background(), "clients", nil)
	}
	if got := len(nv.History()); got != 2 {
		t.Errorf("len(History()) = %d, want 2", got)
	}
}

func TestBack(t *testing.T) {
	nv := newTestNavigator(t, testPages(), nil)
	ctx := context.Background()

	if err := nv.Back(ctx); err != nil {
		t.Fatalf("Back() on empty history error = %v", err)
	}
	if nv.Generation() != 0 {
		t.Error("Back() on empty history started a navigation")
	}

	_ = nv.Navigate(ctx, "dashboard", nil)
	_ = nv.Navigate(ctx, "clients", map[string]string{"q": "acme"})
	_ = nv.Navigate(ctx, "deals", nil)

	if err := nv.Back(ctx); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	page, params := nv.Current()
	if page != "clients" || params["q"] != "acme" {
		t.Errorf("Current() = %q %v, want clients q=acme", page, params)
	}
	if got := len(nv.History()); got != 1 {
		t.Errorf("len(History()) = %d, want 1", got)
	}

	_ = nv.Back(ctx)
	if page, _ := nv.Current(); page != "dashboard" {
		t.Errorf("Current() = %q, want dashboard", page)
	}
	if got := len(nv.History()); got != 0 {
		t.Errorf("len(History()) = %d, want 0", got)
	}
}

func TestRestore(t *testing.T) {
	nv := newTestNavigator(t, testPages(), nil)
	ctx := context.Background()

	_ = nv.Navigate(ctx, "dashboard", nil)
	_ = nv.Navigate(ctx, "clients", nil)

	// Browser back onto the previous page pops the history.
	if err := nv.Restore(ctx, "dashboard", nil); err != nil {
		t.Fatalf("Restore(dashboard) error = %v", err)
	}
	if page, _ := nv.Current(); page != "dashboard" {
		t.Errorf("Current() = %q, want dashboard", page)
	}
	if got := len(nv.History()); got != 0 {
		t.Errorf("len(History()) = %d, want 0", got)
	}

	// Restoring the displayed page records nothing.
	_ = nv.Restore(ctx, "dashboard", nil)
	if got := len(nv.History()); got != 0 {
		t.Errorf("len(History()) after same-page restore = %d, want 0", got)
	}

	// Browser forward is a plain navigation.
	_ = nv.Restore(ctx, "clients", nil)
	history := nv.History()
	if len(history) != 1 || history[0].Page != "dashboard" {
		t.Errorf("History() after forward = %+v, want [dashboard]", history)
	}
	if page, _ := nv.Current(); page != "clients" {
		t.Errorf("Current() = %q, want clients", page)
	}
}

func TestNavigate_controllerFailure(t *testing.T) {
	pages := testPages()
	pages[2].Controller = ControllerFunc(func(context.Context, *Frame) error {
		return errors.New("boom")
	})
	nv := newTestNavigator(t, pages, nil)
	ctx := context.Background()

	_ = nv.Navigate(ctx, "dashboard", nil)
	err := nv.Navigate(ctx, "deals", nil)
	if err == nil {
		t.Fatal("Navigate() error = nil, want controller failure")
	}

	s := nv.Document().Snapshot()
	if !strings.Contains(s.Content, LoadFailedMessage) {
		t.Errorf("Content = %s, want inline error", s.Content)
	}
	if s.Title != "Dashboards" || s.ActiveMenu != "dashboard" {
		t.Errorf("failed navigation committed: title %q menu %q", s.Title, s.ActiveMenu)
	}
	if s.Loading {
		t.Error("loading indicator still shown")
	}
	if got := nv.State(); got.Kind != Displaying || got.Page != "dashboard" {
		t.Errorf("State() = %+v", got)
	}
}

func TestNavigate_supersededIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var slowErr error

	pages := testPages()
	pages[0].Controller = ControllerFunc(func(_ context.Context, f *Frame) error {
		close(started)
		<-release
		slowErr = f.SetContent(`<p id="slow">stale dashboard</p>`)
		return slowErr
	})
	pages[1].Controller = ControllerFunc(func(_ context.Context, f *Frame) error {
		return f.SetContent(`<p id="fast">clients</p>`)
	})
	nv := newTestNavigator(t, pages, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var slowResult error
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowResult = nv.Navigate(ctx, "dashboard", nil)
	}()
	<-started

	if err := nv.Navigate(ctx, "clients", nil); err != nil {
		t.Fatalf("Navigate(clients) error = %v", err)
	}
	close(release)
	wg.Wait()

	if slowResult != nil {
		t.Errorf("superseded Navigate() = %v, want nil", slowResult)
	}
	if !errors.Is(slowErr, ErrSuperseded) {
		t.Errorf("stale write error = %v, want ErrSuperseded", slowErr)
	}

	s := nv.Document().Snapshot()
	if strings.Contains(s.Content, "stale dashboard") {
		t.Errorf("stale write reached the document: %s", s.Content)
	}
	if s.Title != "Клиенты" || s.ActiveMenu != "clients" {
		t.Errorf("Title %q ActiveMenu %q, want clients committed", s.Title, s.ActiveMenu)
	}
	if s.Loading {
		t.Error("loading indicator still shown")
	}
	if page, _ := nv.Current(); page != "clients" {
		t.Errorf("Current() = %q, want clients", page)
	}
}

func TestNavigate_destroysCharts(t *testing.T) {
	files := fstest.MapFS{
		"components/dashboard.html": {Data: []byte(`<canvas id="salesChart"></canvas>`)},
	}
	pages := testPages()
	pages[0].Controller = ControllerFunc(func(_ context.Context, f *Frame) error {
		return f.SetChart("salesChart", view.Chart{Type: "line"})
	})
	nv := newTestNavigator(t, pages, files)
	ctx := context.Background()

	_ = nv.Navigate(ctx, "dashboard", nil)
	if got := nv.Document().Charts(); len(got) != 1 {
		t.Fatalf("Charts() = %v, want one handle", got)
	}
	_ = nv.Navigate(ctx, "clients", nil)
	if got := nv.Document().Charts(); len(got) != 0 {
		t.Errorf("Charts() = %v after navigating away", got)
	}
}

func TestFrame_missingElementSkipped(t *testing.T) {
	pages := testPages()
	pages[1].Controller = ControllerFunc(func(_ context.Context, f *Frame) error {
		return f.SetText("doesNotExist", "x")
	})
	nv := newTestNavigator(t, pages, nil)
	if err := nv.Navigate(context.Background(), "clients", nil); err != nil {
		t.Errorf("Navigate() error = %v, want nil", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(
		Page{Name: "settings", Title: "Настройки", Order: 5, Divider: true},
		Page{Name: "dashboard", Title: "Dashboards", Order: 1},
	)
	menu := r.Menu()
	if len(menu) != 2 || menu[0].Page != "dashboard" || !menu[1].Divider {
		t.Errorf("Menu() = %+v", menu)
	}
	if r.Title("settings") != "Настройки" {
		t.Errorf("Title(settings) = %q", r.Title("settings"))
	}
	if r.Title("nope") != DefaultTitle {
		t.Errorf("Title(nope) = %q", r.Title("nope"))
	}
}
