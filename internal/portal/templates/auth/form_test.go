package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	portalbanner "finitefield.org/hanko-portal/internal/portal/banner"
	"finitefield.org/hanko-portal/internal/portal/httpserver/middleware"
	"finitefield.org/hanko-portal/internal/portal/templates/banner"
)

func signInData() FormData {
	return FormData{
		Mode:      "signin",
		Heading:   "Sign In",
		Label:     "Sign in",
		Action:    "/signin",
		StatusURL: "/signin/status",
		ToggleURL: "/signin/password-visibility",
		SwitchURL: "/signup",
		SwitchTo:  "Sign up",
		CSRFToken: "csrf-123",
	}
}

func TestFormIdleRendersModeLabel(t *testing.T) {
	t.Parallel()

	doc := render(t, context.Background(), Form(signInData()))

	form := doc.Find("form#auth-form")
	require.Equal(t, 1, form.Length())
	require.Equal(t, "idle", form.AttrOr("data-state", ""))
	require.Equal(t, "/signin", form.AttrOr("hx-post", ""))
	require.Equal(t, "csrf-123", form.Find(`input[name="_csrf"]`).AttrOr("value", ""))

	submit := form.Find("[data-submit]")
	require.Equal(t, "Sign in", strings.TrimSpace(submit.Text()))
	require.Equal(t, 1, submit.Find(`[data-icon="mail"]`).Length(), "mail icon should render when idle")
	require.Equal(t, 0, form.Find("[data-spinner]").Length())
	require.Equal(t, 0, form.Find("[data-status-poll]").Length())

	password := form.Find("input#password")
	require.Equal(t, "password", password.AttrOr("type", ""))
	require.Equal(t, "current-password", password.AttrOr("autocomplete", ""))
	toggle := form.Find("[data-password-toggle]")
	require.Equal(t, "false", toggle.AttrOr("aria-pressed", ""))
	require.Equal(t, "/signin/password-visibility", toggle.AttrOr("hx-post", ""))
	require.Equal(t, 1, toggle.Find(`[data-icon="eye"]`).Length())

	require.Equal(t, "/signup", form.Find("[data-auth-switch]").AttrOr("href", ""))
	require.Equal(t, 1, form.Find("[data-remember]").Length(), "sign in offers remember me")
	require.Equal(t, 0, form.Find("[data-field-errors]").Length())
}

func TestFormSubmittingShowsPleaseWait(t *testing.T) {
	t.Parallel()

	data := signInData()
	data.Submitting = true
	data.Email = "a@b.com"
	doc := render(t, context.Background(), Form(data))

	form := doc.Find("form#auth-form")
	require.Equal(t, "submitting", form.AttrOr("data-state", ""))

	submit := form.Find("[data-submit]")
	require.Equal(t, "Please Wait", strings.TrimSpace(submit.Text()))
	_, disabled := submit.Attr("disabled")
	require.True(t, disabled, "submit should be disabled while pending")
	require.Equal(t, 1, submit.Find("[data-spinner]").Length(), "spinner should render while pending")
	require.Equal(t, 0, submit.Find(`[data-icon="mail"]`).Length())

	poll := form.Find("[data-status-poll]")
	require.Equal(t, "/signin/status", poll.AttrOr("hx-get", ""))
	require.Equal(t, StatusPollTrigger, poll.AttrOr("hx-trigger", ""))
	require.Equal(t, "a@b.com", form.Find("input#email").AttrOr("value", ""))
}

func TestFormRendersFieldErrorsAndFragment(t *testing.T) {
	t.Parallel()

	data := signInData()
	data.EmailError = "email must not empty"
	data.PasswordError = "password must not empty"
	doc := render(t, context.Background(), Form(data))

	form := doc.Find("form#auth-form")
	require.Equal(t, "invalid", form.AttrOr("data-state", ""))
	require.Equal(t, "email must not empty", form.Find(`[data-field-errors="email"] li`).Text())
	require.Equal(t, "password must not empty", form.Find(`[data-field-errors="password"] li`).First().Text())
	require.Equal(t, "true", form.Find("input#email").AttrOr("aria-invalid", ""))

	data = signInData()
	data.ErrorFragment = "invalid"
	doc = render(t, context.Background(), Form(data))
	form = doc.Find("form#auth-form")
	require.Equal(t, "failed", form.AttrOr("data-state", ""))
	items := form.Find(`[data-field-errors="password"] li`)
	require.Equal(t, 1, items.Length())
	require.Equal(t, "invalid", items.Filter("[data-auth-error]").Text())
}

func TestFormPasswordVisible(t *testing.T) {
	t.Parallel()

	data := signInData()
	data.Mode = "signup"
	data.PasswordVisible = true
	data.Password = "pw<1>"
	doc := render(t, context.Background(), Form(data))

	password := doc.Find("input#password")
	require.Equal(t, "text", password.AttrOr("type", ""))
	require.Equal(t, "new-password", password.AttrOr("autocomplete", ""))
	require.Equal(t, "pw<1>", password.AttrOr("value", ""))

	require.Equal(t, 0, doc.Find("[data-remember]").Length(), "sign up has no remember me")

	toggle := doc.Find("[data-password-toggle]")
	require.Equal(t, "true", toggle.AttrOr("aria-pressed", ""))
	require.Equal(t, "Hide password", toggle.AttrOr("aria-label", ""))
	require.Equal(t, 1, toggle.Find(`[data-icon="eye-off"]`).Length())
}

func TestPageRendersBannerAndForm(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/signin", nil)
	var ctx context.Context
	middleware.RequestInfoMiddleware("/", "production")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	})).ServeHTTP(httptest.NewRecorder(), req)

	doc := render(t, ctx, Page(PageData{
		Banner: banner.FromSequence(portalbanner.Default()),
		Form:   signInData(),
	}))

	require.Equal(t, "Sign In | Hanko Portal", doc.Find("title").Text())
	require.Equal(t, "Interaction", doc.Find("[data-typing-text]").Text())
	require.Equal(t, 1, doc.Find("form#auth-form").Length())
}

func render(t *testing.T, ctx context.Context, c templ.Component) *goquery.Document {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, c.Render(ctx, &buf), "component must render without error")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err, "html must parse")
	return doc
}
