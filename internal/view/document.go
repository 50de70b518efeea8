// Package view holds the server-side document a session renders into: the
// parsed content fragment plus the shell state around it (title, active menu
// item, page stylesheet, loading indicator and chart handles).
package view

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrElementNotFound is returned when no element carries the requested id.
var ErrElementNotFound = errors.New("view: element not found")

// ErrorPanelClass is the class of inline error panels.
const ErrorPanelClass = "error-message"

// Chart is the declarative description of a chart widget. The shell
// instantiates it from the data-chart attribute of its canvas.
type Chart struct {
	Type    string         `json:"type"`
	Labels  []string       `json:"labels"`
	Label   string         `json:"label,omitempty"`
	Values  []float64      `json:"values"`
	Options map[string]any `json:"options,omitempty"`
}

// State is a snapshot of the shell around the content.
type State struct {
	Title      string
	ActiveMenu string
	Stylesheet string
	Loading    bool
	Content    string
}

// Document is safe for concurrent use.
type Document struct {
	mu         sync.Mutex
	root       *html.Node
	title      string
	activeMenu string
	stylesheet string
	loading    bool
	charts     map[string]struct{}
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		root:   newContainer(),
		charts: make(map[string]struct{}),
	}
}

func newContainer() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
}

// SetContent replaces the whole content with markup.
func (d *Document) SetContent(markup string) error {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return fmt.Errorf("view: parse content: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = newContainer()
	for _, n := range nodes {
		d.root.AppendChild(n)
	}
	d.charts = make(map[string]struct{})
	return nil
}

// SetInnerHTML replaces the children of the element with the given id. The
// markup is parsed in the context of that element, so table rows can be
// injected into a tbody.
func (d *Document) SetInnerHTML(id, markup string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el := findByID(d.root, id)
	if el == nil {
		return fmt.Errorf("%w: #%s", ErrElementNotFound, id)
	}
	ctxNode := &html.Node{Type: html.ElementNode, Data: el.Data, DataAtom: atom.Lookup([]byte(el.Data))}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctxNode)
	if err != nil {
		return fmt.Errorf("view: parse #%s: %w", id, err)
	}
	removeChildren(el)
	for _, n := range nodes {
		el.AppendChild(n)
	}
	return nil
}

// SetText replaces the children of the element with a single text node.
func (d *Document) SetText(id, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el := findByID(d.root, id)
	if el == nil {
		return fmt.Errorf("%w: #%s", ErrElementNotFound, id)
	}
	removeChildren(el)
	el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return nil
}

// SetAttr sets an attribute on the element with the given id.
func (d *Document) SetAttr(id, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el := findByID(d.root, id)
	if el == nil {
		return fmt.Errorf("%w: #%s", ErrElementNotFound, id)
	}
	setAttr(el, key, value)
	return nil
}

// PrependError inserts an error panel at the top of the content.
func (d *Document) PrependError(message string) {
	panel := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "class", Val: ErrorPanelClass}, {Key: "role", Val: "alert"}},
	}
	panel.AppendChild(&html.Node{Type: html.TextNode, Data: message})

	d.mu.Lock()
	defer d.mu.Unlock()
	d.root.InsertBefore(panel, d.root.FirstChild)
}

// SetChart attaches a chart to the canvas with the given id and registers
// its handle. An existing chart on the same canvas is replaced.
func (d *Document) SetChart(id string, chart Chart) error {
	payload, err := json.Marshal(chart)
	if err != nil {
		return fmt.Errorf("view: encode chart: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	el := findByID(d.root, id)
	if el == nil {
		return fmt.Errorf("%w: #%s", ErrElementNotFound, id)
	}
	setAttr(el, "data-chart", string(payload))
	d.charts[id] = struct{}{}
	return nil
}

// Charts returns the ids of the live chart handles, sorted.
func (d *Document) Charts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.charts))
	for id := range d.charts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DestroyCharts detaches every registered chart and returns how many there
// were.
func (d *Document) DestroyCharts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.charts)
	for id := range d.charts {
		if el := findByID(d.root, id); el != nil {
			removeAttr(el, "data-chart")
		}
	}
	d.charts = make(map[string]struct{})
	return n
}

func (d *Document) SetTitle(title string) {
	d.mu.Lock()
	d.title = title
	d.mu.Unlock()
}

func (d *Document) SetActiveMenu(page string) {
	d.mu.Lock()
	d.activeMenu = page
	d.mu.Unlock()
}

func (d *Document) SetStylesheet(href string) {
	d.mu.Lock()
	d.stylesheet = href
	d.mu.Unlock()
}

func (d *Document) SetLoading(loading bool) {
	d.mu.Lock()
	d.loading = loading
	d.mu.Unlock()
}

// Text returns the text content of the element with the given id.
func (d *Document) Text(id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el := findByID(d.root, id)
	if el == nil {
		return "", false
	}
	var b strings.Builder
	collectText(el, &b)
	return b.String(), true
}

// Has reports whether an element with the given id exists.
func (d *Document) Has(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findByID(d.root, id) != nil
}

// Render serialises the content.
func (d *Document) Render() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renderLocked()
}

// Snapshot returns the shell state and the serialised content atomically.
func (d *Document) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Title:      d.title,
		ActiveMenu: d.activeMenu,
		Stylesheet: d.stylesheet,
		Loading:    d.loading,
		Content:    d.renderLocked(),
	}
}

func (d *Document) renderLocked() string {
	var buf bytes.Buffer
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		// Render only fails on writer errors.
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// --- tree helpers ---

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
