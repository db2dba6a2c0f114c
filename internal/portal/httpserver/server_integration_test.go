package httpserver_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/hanko-portal/internal/portal/authclient"
	"finitefield.org/hanko-portal/internal/portal/httpserver/middleware"
	"finitefield.org/hanko-portal/internal/portal/metrics"
	"finitefield.org/hanko-portal/internal/portal/testutil"
)

func TestHomeRedirectsWithoutAuth(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	resp := testutil.NewBrowser(t, ts).Get("/")

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/signin", resp.Header.Get("Location"))
}

func TestHomeRedirectsUnderBasePath(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithBasePath("/portal"))
	browser := testutil.NewBrowser(t, ts)

	resp := browser.Get("/portal")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/portal/signin", resp.Header.Get("Location"))

	page := browser.Get("/portal/signin")
	require.Equal(t, http.StatusOK, page.StatusCode)
	doc := page.Doc(t)
	require.Equal(t, "/portal/signin", doc.Find("form#auth-form").AttrOr("action", ""))
	require.Equal(t, "/portal/signup", doc.Find("[data-auth-switch]").AttrOr("href", ""))
}

func TestSignInPageRenders(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	browser := testutil.NewBrowser(t, ts)
	resp := browser.Get("/signin")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store, max-age=0", resp.Header.Get("Cache-Control"))
	require.NotEmpty(t, browser.Cookie("portal_csrf"), "csrf cookie should be issued")
	require.NotEmpty(t, browser.Cookie("portal_session"), "session cookie should be issued")

	doc := resp.Doc(t)
	require.Equal(t, "Sign In | Hanko Portal", doc.Find("title").Text())
	require.Equal(t, "Interaction", doc.Find("[data-typing-text]").Text())
	require.Equal(t, "Sign in", strings.TrimSpace(doc.Find("[data-submit]").Text()))
	require.Equal(t, browser.Cookie("portal_csrf"), doc.Find(`input[name="_csrf"]`).AttrOr("value", ""))
}

func TestSignUpPageRenders(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	resp := testutil.NewBrowser(t, ts).Get("/signup?reason=expired")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := resp.Doc(t)
	require.Equal(t, "Sign Up | Hanko Portal", doc.Find("title").Text())
	require.Equal(t, "signup", doc.Find("form#auth-form").AttrOr("data-mode", ""))
	require.Equal(t, "Sign up", strings.TrimSpace(doc.Find("[data-submit]").Text()))
	require.Contains(t, doc.Find("[data-auth-message]").Text(), "expired")
}

func TestSubmitEmptyFieldsSkipsProvider(t *testing.T) {
	t.Parallel()

	client := newGatedClient(t, nil)
	ts := testutil.NewServer(t, testutil.WithAuthClient(client))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	resp := browser.HTMXPost("/signin", url.Values{"email": {""}, "password": {"pw123"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := resp.Doc(t)
	require.Equal(t, 0, doc.Find("title").Length(), "htmx should receive the fragment only")
	require.Equal(t, "invalid", doc.Find("form#auth-form").AttrOr("data-state", ""))
	require.Equal(t, "email must not empty", doc.Find(`[data-field-errors="email"] li`).Text())
	require.Equal(t, "password must not empty", doc.Find(`[data-field-errors="password"] li`).Text())
	require.Empty(t, client.recorded(), "provider must not be called")

	plain := browser.Post("/signin", url.Values{"email": {"a@b.com"}, "password": {"123456789"}})
	require.Equal(t, http.StatusUnprocessableEntity, plain.StatusCode)
	doc = plain.Doc(t)
	require.Equal(t, "password must be at most 8 characters", doc.Find(`[data-field-errors="password"] li`).Text())
	require.Equal(t, "a@b.com", doc.Find("input#email").AttrOr("value", ""))
	require.Empty(t, client.recorded())
}

func TestSignInHTMXFlow(t *testing.T) {
	t.Parallel()

	client := newGatedClient(t, nil)
	client.hold()
	defer client.releaseAll()
	auth := &tokenAuthenticator{Token: "id-token"}
	ts := testutil.NewServer(t, testutil.WithAuthClient(client), testutil.WithAuthenticator(auth))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin?next=/")

	resp := browser.HTMXPost("/signin", url.Values{"email": {"a@b.com"}, "password": {"pw123"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := resp.Doc(t)
	submit := doc.Find("[data-submit]")
	require.Equal(t, "Please Wait", strings.TrimSpace(submit.Text()))
	require.Equal(t, 1, submit.Find("[data-spinner]").Length())
	require.Equal(t, "/signin/status", doc.Find("[data-status-poll]").AttrOr("hx-get", ""))

	again := browser.HTMXPost("/signin", url.Values{"email": {"a@b.com"}, "password": {"pw123"}})
	require.Equal(t, "Please Wait", testutil.Text(again.Doc(t), "[data-submit]"))

	pending := browser.HTMXGet("/signin/status")
	require.Equal(t, http.StatusOK, pending.StatusCode)
	require.Equal(t, "submitting", pending.Doc(t).Find("form#auth-form").AttrOr("data-state", ""))

	client.releaseAll()

	var settled *testutil.Response
	require.Eventually(t, func() bool {
		settled = browser.HTMXGet("/signin/status")
		return settled.StatusCode == http.StatusNoContent
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "/", settled.Header.Get("HX-Redirect"))
	require.Equal(t, []authclient.Credentials{{Email: "a@b.com", Password: "pw123"}}, client.recorded(), "exactly one login call")

	home := browser.Get("/")
	require.Equal(t, http.StatusOK, home.StatusCode)
	require.Equal(t, "a@b.com", home.Doc(t).Find("[data-user-email]").Text())
}

func TestSignInPlainPostWithSeededAccount(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	resp := browser.Post("/signin", url.Values{"email": {testutil.SeedEmail}, "password": {testutil.SeedPassword}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	require.True(t, strings.HasPrefix(browser.Cookie(middleware.TokenCookieName), `"Bearer static-`) ||
		strings.HasPrefix(browser.Cookie(middleware.TokenCookieName), "Bearer static-"))

	home := browser.Get("/")
	require.Equal(t, http.StatusOK, home.StatusCode)
	require.Equal(t, testutil.SeedEmail, home.Doc(t).Find("[data-user-email]").Text())

	again := browser.Get("/signin")
	require.Equal(t, http.StatusFound, again.StatusCode, "signed-in users skip the form")
}

func cookieFrom(resp *testutil.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRememberMeExtendsSessionOnSuccess(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	resp := browser.Post("/signin", url.Values{
		"email":    {testutil.SeedEmail},
		"password": {testutil.SeedPassword},
		"remember": {"on"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	authCookie := cookieFrom(resp, middleware.TokenCookieName)
	require.NotNil(t, authCookie, "auth cookie should be set")
	require.Equal(t, int(time.Hour.Seconds()), authCookie.MaxAge, "auth cookie follows the token lifetime")

	sessionCookie := cookieFrom(resp, "portal_session")
	require.NotNil(t, sessionCookie)
	require.Greater(t, sessionCookie.MaxAge, int((24 * time.Hour).Seconds()), "remembered session outlives a day")
}

func TestRememberMeIgnoredWhenSubmissionFails(t *testing.T) {
	t.Parallel()

	client := newGatedClient(t, errors.New("Error: invalid credentials now"))
	ts := testutil.NewServer(t, testutil.WithAuthClient(client))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	invalid := browser.Post("/signin", url.Values{"email": {""}, "password": {""}, "remember": {"on"}})
	require.Equal(t, http.StatusUnprocessableEntity, invalid.StatusCode)
	sessionCookie := cookieFrom(invalid, "portal_session")
	require.NotNil(t, sessionCookie)
	require.LessOrEqual(t, sessionCookie.MaxAge, int((12 * time.Hour).Seconds()))

	failed := browser.Post("/signin", url.Values{"email": {"a@b.com"}, "password": {"pw123"}, "remember": {"on"}})
	require.Equal(t, http.StatusUnauthorized, failed.StatusCode)
	sessionCookie = cookieFrom(failed, "portal_session")
	require.NotNil(t, sessionCookie)
	require.LessOrEqual(t, sessionCookie.MaxAge, int((12 * time.Hour).Seconds()))
	require.Equal(t, 1, failed.Doc(t).Find(`input[name="remember"][checked]`).Length(), "the choice is kept for a retry")
}

func TestMissingAuthCookieIsRenewedFromSession(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")
	browser.Post("/signin", url.Values{"email": {testutil.SeedEmail}, "password": {testutil.SeedPassword}})
	require.NotEmpty(t, browser.Cookie(middleware.TokenCookieName))

	browser.DropCookie(middleware.TokenCookieName, "/")
	require.Empty(t, browser.Cookie(middleware.TokenCookieName))

	home := browser.Get("/")
	require.Equal(t, http.StatusOK, home.StatusCode)
	require.Equal(t, testutil.SeedEmail, home.Doc(t).Find("[data-user-email]").Text())
	require.NotEmpty(t, browser.Cookie(middleware.TokenCookieName), "auth cookie is reissued")
}

func TestMissingAuthCookieWithoutRefresherSignsOut(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithRefresher(nil))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")
	browser.Post("/signin", url.Values{"email": {testutil.SeedEmail}, "password": {testutil.SeedPassword}})

	browser.DropCookie(middleware.TokenCookieName, "/")
	home := browser.Get("/")
	require.Equal(t, http.StatusFound, home.StatusCode)
	require.Equal(t, "/signin", home.Header.Get("Location"))
}

func TestSignInFailureShowsFragment(t *testing.T) {
	t.Parallel()

	client := newGatedClient(t, errors.New("Error: invalid credentials now"))
	ts := testutil.NewServer(t, testutil.WithAuthClient(client))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	resp := browser.Post("/signin", url.Values{"email": {"a@b.com"}, "password": {"pw123"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	doc := resp.Doc(t)
	require.Equal(t, "failed", doc.Find("form#auth-form").AttrOr("data-state", ""))
	require.Equal(t, "invalid", doc.Find("[data-auth-error]").Text())
	require.Equal(t, "Sign in", strings.TrimSpace(doc.Find("[data-submit]").Text()))
}

func TestSignUpFailureHidesFragment(t *testing.T) {
	t.Parallel()

	client := newGatedClient(t, errors.New("Error: invalid credentials now"))
	ts := testutil.NewServer(t, testutil.WithAuthClient(client))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signup")

	resp := browser.Post("/signup", url.Values{"email": {"a@b.com"}, "password": {"pw123"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	doc := resp.Doc(t)
	require.Equal(t, "failed", doc.Find("form#auth-form").AttrOr("data-state", ""))
	require.Equal(t, 0, doc.Find("[data-auth-error]").Length())
	require.Equal(t, []string{"register"}, client.operations())
}

func TestPasswordVisibilityToggle(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	values := url.Values{"email": {"a@b.com"}, "password": {"pw123"}}
	resp := browser.HTMXPost("/signin/password-visibility", values)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := resp.Doc(t)
	password := doc.Find("input#password")
	require.Equal(t, "text", password.AttrOr("type", ""))
	require.Equal(t, "pw123", password.AttrOr("value", ""))
	require.Equal(t, "a@b.com", doc.Find("input#email").AttrOr("value", ""))

	resp = browser.HTMXPost("/signin/password-visibility", values)
	doc = resp.Doc(t)
	require.Equal(t, "password", doc.Find("input#password").AttrOr("type", ""))

	plain := browser.Post("/signup/password-visibility", nil)
	require.Equal(t, http.StatusSeeOther, plain.StatusCode)
	require.Equal(t, "/signup", plain.Header.Get("Location"))
	page := browser.Get("/signup").Doc(t)
	require.Equal(t, "text", page.Find("input#password").AttrOr("type", ""), "signup form keeps its own flag")
}

func TestStatusRequiresHTMX(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	resp := testutil.NewBrowser(t, ts).Get("/signin/status")

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostWithoutCSRFIsRejected(t *testing.T) {
	t.Parallel()

	client := newGatedClient(t, nil)
	ts := testutil.NewServer(t, testutil.WithAuthClient(client))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	resp := browser.Post("/signin", url.Values{"_csrf": {"forged"}, "email": {"a@b.com"}, "password": {"pw123"}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, client.recorded())
}

func TestLogoutRevokesAndClearsSession(t *testing.T) {
	t.Parallel()

	revoker := &recordingRevoker{}
	ts := testutil.NewServer(t, testutil.WithRevoker(revoker))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")
	browser.Post("/signin", url.Values{"email": {testutil.SeedEmail}, "password": {testutil.SeedPassword}})
	require.Equal(t, http.StatusOK, browser.Get("/").StatusCode)

	resp := browser.Post("/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/signin?status=logged_out", resp.Header.Get("Location"))
	require.Len(t, revoker.uids(), 1)
	require.Empty(t, browser.Cookie(middleware.TokenCookieName))

	after := browser.Get("/")
	require.Equal(t, http.StatusFound, after.StatusCode)

	page := browser.Get("/signin?status=logged_out").Doc(t)
	require.Equal(t, "You have been signed out.", page.Find("[data-auth-message]").Text())
}

func TestSubmitIsRateLimited(t *testing.T) {
	t.Parallel()

	limiter := middleware.NewRateLimiter(1, 1)
	ts := testutil.NewServer(t, testutil.WithRateLimiter(limiter))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	first := browser.Post("/signin", url.Values{"email": {""}, "password": {""}})
	require.Equal(t, http.StatusUnprocessableEntity, first.StatusCode)

	second := browser.Post("/signin", url.Values{"email": {""}, "password": {""}})
	require.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	require.NotEmpty(t, second.Header.Get("Retry-After"))

	require.Equal(t, http.StatusOK, browser.Get("/signin").StatusCode, "page views are not limited")
}

func TestRateLimitIgnoresForwardingHeaders(t *testing.T) {
	t.Parallel()

	limiter := middleware.NewRateLimiter(1, 1)
	ts := testutil.NewServer(t, testutil.WithRateLimiter(limiter))
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	browser.SetHeader("X-Forwarded-For", "203.0.113.1")
	first := browser.Post("/signin", url.Values{"email": {""}, "password": {""}})
	require.Equal(t, http.StatusUnprocessableEntity, first.StatusCode)

	browser.SetHeader("X-Forwarded-For", "203.0.113.2")
	browser.SetHeader("X-Real-IP", "203.0.113.3")
	second := browser.Post("/signin", url.Values{"email": {""}, "password": {""}})
	require.Equal(t, http.StatusTooManyRequests, second.StatusCode, "spoofed headers must not reset the budget")
}

func TestRateLimitTrustsForwardingHeadersBehindProxy(t *testing.T) {
	t.Parallel()

	limiter := middleware.NewRateLimiter(1, 1)
	ts := testutil.NewServer(t, testutil.WithRateLimiter(limiter), testutil.WithTrustProxy())
	browser := testutil.NewBrowser(t, ts)
	browser.Get("/signin")

	browser.SetHeader("X-Forwarded-For", "203.0.113.1")
	first := browser.Post("/signin", url.Values{"email": {""}, "password": {""}})
	require.Equal(t, http.StatusUnprocessableEntity, first.StatusCode)

	browser.SetHeader("X-Forwarded-For", "203.0.113.2")
	second := browser.Post("/signin", url.Values{"email": {""}, "password": {""}})
	require.Equal(t, http.StatusUnprocessableEntity, second.StatusCode, "each forwarded client has its own budget")
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()

	reg := metrics.New()
	ts := testutil.NewServer(t, testutil.WithMetrics(reg))
	browser := testutil.NewBrowser(t, ts)

	health := browser.Get("/healthz")
	require.Equal(t, http.StatusOK, health.StatusCode)
	require.Equal(t, "ok", string(health.Body))

	browser.Get("/signin")
	resp := browser.Get("/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), `portal_http_requests_total{method="GET",route="/signin",status="200"} 1`)
}

func TestStaticAssetsAreServed(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	browser := testutil.NewBrowser(t, ts)

	js := browser.Get("/public/static/typing.js")
	require.Equal(t, http.StatusOK, js.StatusCode)
	require.Contains(t, string(js.Body), "data-typing-frames")

	css := browser.Get("/public/static/portal.css")
	require.Equal(t, http.StatusOK, css.StatusCode)
}

type gatedClient struct {
	mu      sync.Mutex
	calls   []authclient.Credentials
	ops     []string
	err     error
	gate    chan struct{}
	release sync.Once
}

func newGatedClient(t *testing.T, err error) *gatedClient {
	c := &gatedClient{err: err}
	t.Cleanup(c.releaseAll)
	return c
}

// hold makes provider calls block until releaseAll.
func (c *gatedClient) hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
}

func (c *gatedClient) releaseAll() {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		c.release.Do(func() { close(gate) })
	}
}

func (c *gatedClient) Login(ctx context.Context, creds authclient.Credentials) (*authclient.Session, error) {
	return c.do("login", creds)
}

func (c *gatedClient) Register(ctx context.Context, creds authclient.Credentials) (*authclient.Session, error) {
	return c.do("register", creds)
}

func (c *gatedClient) do(op string, creds authclient.Credentials) (*authclient.Session, error) {
	c.mu.Lock()
	c.calls = append(c.calls, creds)
	c.ops = append(c.ops, op)
	gate := c.gate
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if c.err != nil {
		return nil, c.err
	}
	return &authclient.Session{
		UserID:       "uid-1",
		Email:        creds.Email,
		IDToken:      "id-token",
		RefreshToken: "refresh-token",
		ExpiresIn:    time.Hour,
	}, nil
}

func (c *gatedClient) recorded() []authclient.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]authclient.Credentials(nil), c.calls...)
}

func (c *gatedClient) operations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

type tokenAuthenticator struct {
	Token string
}

func (t *tokenAuthenticator) Authenticate(_ *http.Request, token string) (*middleware.User, error) {
	if token != t.Token {
		return nil, middleware.ErrUnauthorized
	}
	return &middleware.User{
		UID:   "uid-1",
		Token: token,
	}, nil
}

type recordingRevoker struct {
	mu      sync.Mutex
	revoked []string
}

func (r *recordingRevoker) Revoke(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, uid)
	return nil
}

func (r *recordingRevoker) uids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.revoked...)
}
