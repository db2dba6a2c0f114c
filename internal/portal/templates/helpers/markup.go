package helpers

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Markup writes HTML to w and keeps the first error, so components can emit a
// sequence of writes and check once at the end.
type Markup struct {
	w   io.Writer
	err error
}

// NewMarkup wraps w.
func NewMarkup(w io.Writer) *Markup {
	return &Markup{w: w}
}

// Raw writes s unescaped.
func (m *Markup) Raw(s string) {
	if m.err != nil {
		return
	}
	_, m.err = io.WriteString(m.w, s)
}

// Text writes s as escaped text.
func (m *Markup) Text(s string) {
	m.Raw(templ.EscapeString(s))
}

// Attr writes ` name="value"` with value escaped.
func (m *Markup) Attr(name, value string) {
	m.Raw(" " + name + `="` + templ.EscapeString(value) + `"`)
}

// AttrIf writes the attribute only when value is not empty.
func (m *Markup) AttrIf(name, value string) {
	if value != "" {
		m.Attr(name, value)
	}
}

// AttrWhen writes the attribute only when on is true.
func (m *Markup) AttrWhen(on bool, name, value string) {
	if on {
		m.Attr(name, value)
	}
}

// Flag writes a boolean attribute when on is true.
func (m *Markup) Flag(name string, on bool) {
	if on {
		m.Raw(" " + name)
	}
}

// Component renders c in place.
func (m *Markup) Component(ctx context.Context, c templ.Component) {
	if m.err != nil || c == nil {
		return
	}
	m.err = c.Render(ctx, m.w)
}

// Err returns the first write or render error.
func (m *Markup) Err() error {
	return m.err
}
