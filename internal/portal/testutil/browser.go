package testutil

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// Browser keeps cookies between requests and never follows redirects, so
// tests can assert on Location and HX-Redirect headers.
type Browser struct {
	t      testing.TB
	base   *url.URL
	client *http.Client
	header http.Header
}

// Response is a fully read HTTP response.
type Response struct {
	*http.Response
	Body []byte
}

// NewBrowser returns a browser bound to ts.
func NewBrowser(t testing.TB, ts *httptest.Server) *Browser {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	base, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	return &Browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		header: http.Header{},
	}
}

// SetHeader sends the header with every following request.
func (b *Browser) SetHeader(key, value string) {
	b.header.Set(key, value)
}

// DropCookie removes a cookie from the jar, as if it had expired.
func (b *Browser) DropCookie(name, path string) {
	b.client.Jar.SetCookies(b.base, []*http.Cookie{{Name: name, Path: path, MaxAge: -1}})
}

// Get issues a full page request.
func (b *Browser) Get(path string) *Response {
	return b.do(http.MethodGet, path, nil, false)
}

// HTMXGet issues a GET the way htmx does.
func (b *Browser) HTMXGet(path string) *Response {
	return b.do(http.MethodGet, path, nil, true)
}

// Post submits a plain form post with the current CSRF token.
func (b *Browser) Post(path string, values url.Values) *Response {
	return b.do(http.MethodPost, path, b.withCSRF(values), false)
}

// HTMXPost submits a form post the way htmx does.
func (b *Browser) HTMXPost(path string, values url.Values) *Response {
	return b.do(http.MethodPost, path, b.withCSRF(values), true)
}

// Cookie returns the value of a cookie stored for the server, if any.
func (b *Browser) Cookie(name string) string {
	for _, c := range b.client.Jar.Cookies(b.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *Browser) withCSRF(values url.Values) url.Values {
	out := url.Values{}
	for k, v := range values {
		out[k] = append([]string(nil), v...)
	}
	if out.Get("_csrf") == "" {
		out.Set("_csrf", b.Cookie("portal_csrf"))
	}
	return out
}

func (b *Browser) do(method, path string, form url.Values, htmx bool) *Response {
	b.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, b.base.String()+path, body)
	if err != nil {
		b.t.Fatalf("new request: %v", err)
	}
	for key, values := range b.header {
		req.Header[key] = append([]string(nil), values...)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("read body: %v", err)
	}
	return &Response{Response: resp, Body: payload}
}
