package httpserver

import (
	"net/http"
	"time"

	custommw "finitefield.org/hanko-portal/internal/portal/httpserver/middleware"
)

func (h *authHandlers) setAuthCookie(w http.ResponseWriter, r *http.Request, token string, lifetime time.Duration) {
	custommw.SetTokenCookie(w, r, h.basePath, token, lifetime)
}

func (h *authHandlers) clearAuthCookie(w http.ResponseWriter) {
	custommw.ClearTokenCookie(w, h.basePath)
}
