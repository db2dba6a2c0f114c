package httpserver

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	custommw "finitefield.org/hanko-portal/internal/portal/httpserver/middleware"
)

// redirectTarget is where a completed sign in lands: next when it is safe,
// the portal home otherwise.
func (h *authHandlers) redirectTarget(next string) string {
	if next = h.normalizeNext(next); next != "" {
		return next
	}
	return h.basePath
}

// normalizeNext is safeNext minus the auth pages themselves.
func (h *authHandlers) normalizeNext(raw string) string {
	next := safeNext(h.basePath, raw)
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	switch cleanPath(u.Path) {
	case cleanPath(h.loginPath), cleanPath(h.signupPath):
		return ""
	}
	return next
}

// safeNext returns raw as a cleaned local path under base, keeping its query
// and fragment, or "" if it could lead off the portal.
func safeNext(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	p, err := url.PathUnescape(u.Path)
	if err != nil || strings.Contains(p, `\`) {
		return ""
	}
	p = cleanPath(p)
	if !underBase(p, custommw.NormalizeBasePath(base)) {
		return ""
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		p += "#" + u.Fragment
	}
	return p
}

func underBase(p, base string) bool {
	return base == "/" || p == base || strings.HasPrefix(p, base+"/")
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// withNext appends next to a portal URL.
func withNext(target, next string) string {
	if next == "" {
		return target
	}
	return target + "?" + url.Values{"next": {next}}.Encode()
}

// forceLogin is set by ?force=1 and shows the form to a signed-in user.
func forceLogin(r *http.Request) bool {
	return parseCheckbox(r.URL.Query().Get("force"))
}

func parseCheckbox(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}
