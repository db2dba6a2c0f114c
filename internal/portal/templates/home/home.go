// Package home renders the signed-in landing page.
package home

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"finitefield.org/hanko-portal/internal/portal/templates/helpers"
	"finitefield.org/hanko-portal/internal/portal/templates/layout"
)

// PageData encapsulates the landing page state.
type PageData struct {
	Email         string
	EmailVerified bool
	LogoutURL     string
	CSRFToken     string
}

// Page renders the landing page with a sign-out form.
func Page(data PageData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		m := helpers.NewMarkup(w)
		m.Raw(`<section class="home" data-home><h1>Welcome</h1><p class="home-user" data-user-email>`)
		m.Text(data.Email)
		m.Raw(`</p>`)
		if !data.EmailVerified {
			m.Raw(`<p class="home-note" data-email-unverified>Email address not verified yet.</p>`)
		}
		m.Raw(`<form method="post" data-logout`)
		m.Attr("action", data.LogoutURL)
		m.Raw(`><input type="hidden" name="_csrf"`)
		m.Attr("value", data.CSRFToken)
		m.Raw(`><button type="submit"`)
		m.Attr("class", helpers.ButtonClass(false))
		m.Raw(`>Sign out</button></form></section>`)
		return m.Err()
	})
	return layout.Page("Home", body)
}
