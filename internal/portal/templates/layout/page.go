// Package layout renders the page shell shared by every portal page.
package layout

import (
	"context"
	"encoding/json"
	"io"

	"github.com/a-h/templ"

	"finitefield.org/hanko-portal/internal/portal/httpserver/middleware"
	"finitefield.org/hanko-portal/internal/portal/templates/helpers"
)

const (
	htmxScript = "https://unpkg.com/htmx.org@1.9.12"
	appName    = "Hanko Portal"
)

// Title formats a page title.
func Title(page string) string {
	if page == "" {
		return appName
	}
	return page + " | " + appName
}

// Page wraps body in the document shell. The CSRF token is exposed both as a
// meta tag and through hx-headers so htmx requests carry it.
func Page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		token := middleware.CSRFTokenFromContext(ctx)
		headers, err := json.Marshal(map[string]string{middleware.CSRFHeaderFromContext(ctx): token})
		if err != nil {
			return err
		}

		m := helpers.NewMarkup(w)
		m.Raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		m.Raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		m.Raw(`<meta name="csrf-token"`)
		m.Attr("content", token)
		m.Raw(`><title>`)
		m.Text(Title(title))
		m.Raw(`</title><link rel="stylesheet" href="/public/static/portal.css">`)
		m.Raw(`<script`)
		m.Attr("src", htmxScript)
		m.Raw(` defer></script><script src="/public/static/typing.js" defer></script></head>`)

		m.Raw(`<body class="portal"`)
		m.Attr("hx-headers", string(headers))
		m.Raw(`>`)
		if label, ok := helpers.EnvironmentBadge(middleware.EnvironmentFromContext(ctx)); ok {
			m.Raw(`<div class="env-badge" data-environment-badge`)
			m.Attr("title", middleware.EnvironmentFromContext(ctx))
			m.Raw(`><span aria-hidden="true">`)
			m.Text(label)
			m.Raw(`</span></div>`)
		}
		m.Raw(`<main class="portal-main">`)
		m.Component(ctx, body)
		m.Raw(`</main></body></html>`)
		return m.Err()
	})
}
