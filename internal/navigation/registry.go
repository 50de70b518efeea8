package navigation

import (
	"context"
	"sort"
	"sync/atomic"
)

// DefaultTitle is shown for pages without a registered title.
const DefaultTitle = "CRM"

// Controller initialises a page after its markup has been injected.
type Controller interface {
	Init(ctx context.Context, f *Frame) error
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(ctx context.Context, f *Frame) error

// Init calls fn.
func (fn ControllerFunc) Init(ctx context.Context, f *Frame) error { return fn(ctx, f) }

// Page describes one routable page and its sidebar entry.
type Page struct {
	Name       string
	Title      string
	Icon       string
	Order      int
	Divider    bool // draw a divider above the menu entry
	Controller Controller
}

// MenuItem is one sidebar entry.
type MenuItem struct {
	Page    string
	Label   string
	Icon    string
	Divider bool
}

type snapshot struct {
	pages map[string]Page
	menu  []MenuItem
}

// Registry is a read-optimized, thread-safe set of pages. Reads are lock-free
// through an atomic pointer swap.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry holding pages.
func NewRegistry(pages ...Page) *Registry {
	r := &Registry{}
	r.Replace(pages)
	return r
}

// Replace atomically swaps the registered pages.
func (r *Registry) Replace(pages []Page) {
	s := &snapshot{pages: make(map[string]Page, len(pages))}
	for _, p := range pages {
		s.pages[p.Name] = p
	}

	ordered := make([]Page, 0, len(s.pages))
	for _, p := range s.pages {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Order != ordered[j].Order {
			return ordered[i].Order < ordered[j].Order
		}
		return ordered[i].Name < ordered[j].Name
	})
	for _, p := range ordered {
		s.menu = append(s.menu, MenuItem{Page: p.Name, Label: p.Title, Icon: p.Icon, Divider: p.Divider})
	}

	r.snap.Store(s)
}

// Lookup returns the page registered under name.
func (r *Registry) Lookup(name string) (Page, bool) {
	p, ok := r.snap.Load().pages[name]
	return p, ok
}

// Title returns the page title, or DefaultTitle for unknown pages.
func (r *Registry) Title(name string) string {
	if p, ok := r.Lookup(name); ok && p.Title != "" {
		return p.Title
	}
	return DefaultTitle
}

// Menu returns the sidebar entries in display order.
func (r *Registry) Menu() []MenuItem {
	menu := r.snap.Load().menu
	out := make([]MenuItem, len(menu))
	copy(out, menu)
	return out
}
