package middleware

import (
	"net/http"
	"strings"
	"time"
)

// SetTokenCookie stores "Bearer <token>" for Auth under path. A zero lifetime
// makes it a browser-session cookie and an empty token clears it.
func SetTokenCookie(w http.ResponseWriter, r *http.Request, path, token string, lifetime time.Duration) {
	if strings.TrimSpace(token) == "" {
		ClearTokenCookie(w, path)
		return
	}
	c := tokenCookie(path, "Bearer "+token)
	c.Secure = r.TLS != nil
	if lifetime > 0 {
		c.MaxAge = int(lifetime.Round(time.Second) / time.Second)
		c.Expires = time.Now().Add(lifetime).UTC()
	}
	http.SetCookie(w, c)
}

// ClearTokenCookie expires the auth cookie.
func ClearTokenCookie(w http.ResponseWriter, path string) {
	c := tokenCookie(path, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func tokenCookie(path, value string) *http.Cookie {
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     TokenCookieName,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
