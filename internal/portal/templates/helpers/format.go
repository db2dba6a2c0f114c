package helpers

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// TextComponent returns a templ component that renders escaped text.
func TextComponent(value string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(value))
		return err
	})
}

// Classes joins the non-empty class names with single spaces.
func Classes(names ...string) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}

// InputClass returns text input classes, highlighting invalid fields.
func InputClass(invalid bool) string {
	if invalid {
		return Classes("input", "input-invalid")
	}
	return "input"
}

// ButtonClass returns submit button classes; busy buttons are dimmed.
func ButtonClass(busy bool) string {
	if busy {
		return Classes("btn", "btn-busy")
	}
	return Classes("btn", "btn-primary")
}

// EnvironmentBadge maps an environment name onto its short badge label.
// Production renders no badge.
func EnvironmentBadge(environment string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "prod", "production":
		return "", false
	case "stg", "staging":
		return "STG", true
	case "dev", "development":
		return "DEV", true
	case "", "local":
		return "LOCAL", true
	default:
		return strings.ToUpper(environment), true
	}
}
