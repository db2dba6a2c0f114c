// Package auth renders the sign-in and sign-up pages.
package auth

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"finitefield.org/hanko-portal/internal/portal/templates/banner"
	"finitefield.org/hanko-portal/internal/portal/templates/helpers"
	"finitefield.org/hanko-portal/internal/portal/templates/layout"
)

// FormID is the DOM id of the form; fragments swap it in place.
const FormID = "auth-form"

// StatusPollTrigger controls how soon the pending form asks for the outcome.
const StatusPollTrigger = "load delay:500ms"

const (
	iconMail    = `<svg data-icon="mail" class="h-4 w-4" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2" aria-hidden="true"><rect x="3" y="5" width="18" height="14" rx="2"/><path d="m3 7 9 6 9-6"/></svg>`
	iconEye     = `<svg data-icon="eye" class="h-4 w-4" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2" aria-hidden="true"><path d="M2 12s3.5-7 10-7 10 7 10 7-3.5 7-10 7S2 12 2 12z"/><circle cx="12" cy="12" r="3"/></svg>`
	iconEyeOff  = `<svg data-icon="eye-off" class="h-4 w-4" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2" aria-hidden="true"><path d="M3 3l18 18"/><path d="M10.6 5.1A10.9 10.9 0 0 1 12 5c6.5 0 10 7 10 7a17 17 0 0 1-3.2 4.1M6.6 6.6A17 17 0 0 0 2 12s3.5 7 10 7a10 10 0 0 0 5.4-1.6"/></svg>`
	spinnerIcon = `<span class="spinner" data-spinner aria-hidden="true"></span>`
)

// Page renders the full auth page.
func Page(data PageData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		m := helpers.NewMarkup(w)
		m.Raw(`<div class="auth-layout">`)
		m.Component(ctx, banner.Banner(data.Banner))
		m.Raw(`<div class="auth-panel">`)
		m.Component(ctx, Form(data.Form))
		m.Raw(`</div></div>`)
		return m.Err()
	})
	title := data.Title
	if title == "" {
		title = data.Form.Heading
	}
	return layout.Page(title, body)
}

// Form renders the form fragment. While a submission is pending the submit
// button shows "Please Wait" with a spinner and the fragment polls StatusURL.
func Form(data FormData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		m := helpers.NewMarkup(w)

		state := "idle"
		switch {
		case data.Submitting:
			state = "submitting"
		case data.Invalid():
			state = "invalid"
		case data.Failed || data.ErrorFragment != "":
			state = "failed"
		}

		m.Raw(`<form class="auth-form" data-auth-form method="post" novalidate hx-target="this" hx-swap="outerHTML"`)
		m.Attr("id", FormID)
		m.Attr("data-mode", data.Mode)
		m.Attr("data-state", state)
		m.Attr("action", data.Action)
		m.Attr("hx-post", data.Action)
		m.AttrWhen(data.Submitting, "aria-busy", "true")
		m.Raw(`>`)

		m.Raw(`<input type="hidden" name="_csrf"`)
		m.Attr("value", data.CSRFToken)
		m.Raw(`>`)
		if data.Next != "" {
			m.Raw(`<input type="hidden" name="next"`)
			m.Attr("value", data.Next)
			m.Raw(`>`)
		}

		m.Raw(`<h2 class="auth-heading">`)
		m.Text(data.Heading)
		m.Raw(`</h2>`)
		if data.Message != "" {
			m.Raw(`<p class="auth-message" role="status" data-auth-message>`)
			m.Text(data.Message)
			m.Raw(`</p>`)
		}

		m.Raw(`<label class="auth-label" for="email">Email</label><input id="email" name="email" type="email" autocomplete="email"`)
		m.Attr("class", helpers.InputClass(data.EmailError != ""))
		m.Attr("value", data.Email)
		m.AttrWhen(data.EmailError != "", "aria-invalid", "true")
		m.Flag("readonly", data.Submitting)
		m.Raw(`>`)
		if data.EmailError != "" {
			m.Raw(`<ul class="field-errors" data-field-errors="email"><li>`)
			m.Text(data.EmailError)
			m.Raw(`</li></ul>`)
		}

		inputType, autocomplete := "password", "current-password"
		if data.PasswordVisible {
			inputType = "text"
		}
		if data.Mode == "signup" {
			autocomplete = "new-password"
		}
		m.Raw(`<label class="auth-label" for="password">Password</label><div class="password-field">`)
		m.Raw(`<input id="password" name="password"`)
		m.Attr("type", inputType)
		m.Attr("autocomplete", autocomplete)
		m.Attr("class", helpers.InputClass(data.PasswordError != ""))
		m.AttrIf("value", data.Password)
		m.AttrWhen(data.PasswordError != "", "aria-invalid", "true")
		m.Flag("readonly", data.Submitting)
		m.Raw(`>`)

		m.Raw(`<button type="button" class="password-toggle" data-password-toggle`)
		m.Attr("hx-post", data.ToggleURL)
		m.Attr("hx-target", "#"+FormID)
		m.Attr("aria-pressed", boolString(data.PasswordVisible))
		if data.PasswordVisible {
			m.Attr("aria-label", "Hide password")
			m.Raw(`>` + iconEyeOff)
		} else {
			m.Attr("aria-label", "Show password")
			m.Raw(`>` + iconEye)
		}
		m.Raw(`</button></div>`)

		if data.PasswordError != "" || data.ErrorFragment != "" {
			m.Raw(`<ul class="field-errors" data-field-errors="password">`)
			if data.PasswordError != "" {
				m.Raw(`<li>`)
				m.Text(data.PasswordError)
				m.Raw(`</li>`)
			}
			if data.ErrorFragment != "" {
				m.Raw(`<li data-auth-error>`)
				m.Text(data.ErrorFragment)
				m.Raw(`</li>`)
			}
			m.Raw(`</ul>`)
		}

		if data.Mode == "signin" {
			m.Raw(`<label class="auth-remember"><input type="checkbox" name="remember" value="on" data-remember`)
			m.Flag("checked", data.Remember)
			m.Raw(`> Keep me signed in</label>`)
		}

		m.Raw(`<button type="submit" data-submit`)
		m.Attr("class", helpers.ButtonClass(data.Submitting))
		if data.Submitting {
			m.Raw(` disabled aria-busy="true">` + spinnerIcon + `<span data-submit-label>Please Wait</span></button>`)
			m.Raw(`<div data-status-poll hidden`)
			m.Attr("hx-get", data.StatusURL)
			m.Attr("hx-trigger", StatusPollTrigger)
			m.Attr("hx-target", "#"+FormID)
			m.Raw(`></div>`)
		} else {
			m.Raw(`>` + iconMail + `<span data-submit-label>`)
			m.Text(data.Label)
			m.Raw(`</span></button>`)
		}

		if data.SwitchURL != "" {
			m.Raw(`<p class="auth-switch"><a data-auth-switch`)
			m.Attr("href", data.SwitchURL)
			m.Raw(`>`)
			m.Text(data.SwitchTo)
			m.Raw(`</a></p>`)
		}

		m.Raw(`</form>`)
		return m.Err()
	})
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
