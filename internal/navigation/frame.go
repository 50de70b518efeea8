package navigation

import (
	"errors"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/view"
)

// ErrSuperseded is returned by Frame writes once a newer navigation has
// started. The write is discarded.
var ErrSuperseded = errors.New("navigation: superseded")

// Frame is the view of a page controller during one navigation. Every write
// checks that the navigation still owns the document; writes aimed at
// elements the markup does not contain are skipped.
type Frame struct {
	nav    *Navigator
	gen    uint64
	page   string
	params map[string]string
	logger *zap.Logger
}

// Page returns the page being displayed.
func (f *Frame) Page() string { return f.page }

// Param returns a navigation parameter.
func (f *Frame) Param(key string) string { return f.params[key] }

// Generation returns the navigation token.
func (f *Frame) Generation() uint64 { return f.gen }

// Current reports whether the navigation still owns the document.
func (f *Frame) Current() bool { return f.nav.owns(f.gen) }

// Logger returns the navigation-scoped logger.
func (f *Frame) Logger() *zap.Logger { return f.logger }

// SetContent replaces the whole content.
func (f *Frame) SetContent(markup string) error {
	return f.write("", func(d *view.Document) error { return d.SetContent(markup) })
}

// SetInnerHTML replaces the children of an element.
func (f *Frame) SetInnerHTML(id, markup string) error {
	return f.write(id, func(d *view.Document) error { return d.SetInnerHTML(id, markup) })
}

// SetText replaces the text of an element.
func (f *Frame) SetText(id, text string) error {
	return f.write(id, func(d *view.Document) error { return d.SetText(id, text) })
}

// SetAttr sets an attribute of an element.
func (f *Frame) SetAttr(id, key, value string) error {
	return f.write(id, func(d *view.Document) error { return d.SetAttr(id, key, value) })
}

// SetChart attaches a chart to a canvas and registers its handle.
func (f *Frame) SetChart(id string, chart view.Chart) error {
	return f.write(id, func(d *view.Document) error { return d.SetChart(id, chart) })
}

// ShowError prepends an inline error panel.
func (f *Frame) ShowError(message string) error {
	return f.write("", func(d *view.Document) error {
		d.PrependError(message)
		return nil
	})
}

// write holds the navigator lock so a newer navigation cannot start between
// the ownership check and the write.
func (f *Frame) write(id string, fn func(*view.Document) error) error {
	f.nav.mu.Lock()
	defer f.nav.mu.Unlock()

	if f.gen != f.nav.generation {
		return ErrSuperseded
	}
	err := fn(f.nav.doc)
	if errors.Is(err, view.ErrElementNotFound) {
		f.logger.Debug("navigation: element missing, write skipped", zap.String("id", id))
		return nil
	}
	return err
}
