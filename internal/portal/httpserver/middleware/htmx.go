package middleware

import (
	"context"
	"net/http"
	"strings"
)

type htmxContextKey struct{}

// HTMXRequest is what the portal reads from the HX-* request headers.
type HTMXRequest struct {
	// Fragment is set for htmx requests that expect a partial response.
	// History restores ask for the whole page and leave it unset.
	Fragment bool
	Target   string
}

// HTMX records the HX-* request headers in the context.
func HTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hx := HTMXRequest{
				Fragment: headerTrue(r, "HX-Request") && !headerTrue(r, "HX-History-Restore-Request"),
				Target:   r.Header.Get("HX-Target"),
			}
			w.Header().Add("Vary", "HX-Request")
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), htmxContextKey{}, hx)))
		})
	}
}

func headerTrue(r *http.Request, name string) bool {
	return strings.EqualFold(r.Header.Get(name), "true")
}

// HTMXFromContext returns the zero value outside the HTMX middleware.
func HTMXFromContext(ctx context.Context) HTMXRequest {
	hx, _ := ctx.Value(htmxContextKey{}).(HTMXRequest)
	return hx
}

// IsHTMXRequest reports whether the response should be a fragment.
func IsHTMXRequest(ctx context.Context) bool {
	return HTMXFromContext(ctx).Fragment
}

// RequireHTMX answers 404 to anything but an htmx fragment request.
func RequireHTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsHTMXRequest(r.Context()) {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HXRedirect makes htmx perform a full navigation to target.
func HXRedirect(w http.ResponseWriter, target string) {
	w.Header().Set("HX-Redirect", target)
}

// HXRefresh makes htmx reload the current page.
func HXRefresh(w http.ResponseWriter) {
	w.Header().Set("HX-Refresh", "true")
}

// NoStore disables caching of every response.
func NoStore() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store, max-age=0")
			w.Header().Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}
