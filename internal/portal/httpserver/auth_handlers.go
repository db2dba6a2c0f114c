package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"finitefield.org/hanko-portal/internal/portal/authclient"
	"finitefield.org/hanko-portal/internal/portal/authform"
	portalbanner "finitefield.org/hanko-portal/internal/portal/banner"
	custommw "finitefield.org/hanko-portal/internal/portal/httpserver/middleware"
	"finitefield.org/hanko-portal/internal/portal/observability"
	appsession "finitefield.org/hanko-portal/internal/portal/session"
	"finitefield.org/hanko-portal/internal/portal/templates/auth"
	"finitefield.org/hanko-portal/internal/portal/templates/banner"
	"finitefield.org/hanko-portal/internal/portal/templates/home"
)

type authHandlers struct {
	forms      *authform.Store
	revoker    custommw.Revoker
	banner     banner.Data
	basePath   string
	loginPath  string
	signupPath string
}

func newAuthHandlers(forms *authform.Store, revoker custommw.Revoker, seq portalbanner.Sequence, basePath string) *authHandlers {
	if forms == nil {
		panic("auth: form store is required")
	}
	basePath = custommw.NormalizeBasePath(basePath)
	return &authHandlers{
		forms:      forms,
		revoker:    revoker,
		banner:     banner.FromSequence(seq),
		basePath:   basePath,
		loginPath:  custommw.JoinPath(basePath, "/"+authform.SignIn.Slug()),
		signupPath: custommw.JoinPath(basePath, "/"+authform.SignUp.Slug()),
	}
}

// Page renders the full sign-in or sign-up page. A submission that finished
// while the user was away completes here.
func (h *authHandlers) Page(mode authform.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := r.URL.Query().Get("next")
		if h.isAuthenticated(r) && !forceLogin(r) {
			http.Redirect(w, r, h.redirectTarget(next), http.StatusFound)
			return
		}

		form, ok := h.form(r, mode)
		if !ok {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if s := form.Session(); s != nil {
			h.completeSignIn(w, r, form, s, next)
			return
		}

		data := h.formData(r, form, next)
		data.Message = messageForQuery(r.URL.Query())
		h.renderPage(w, r, data, http.StatusOK)
	}
}

// Submit validates the posted pair and dispatches it. htmx requests get the
// pending fragment back at once and poll for the outcome; plain requests wait.
func (h *authHandlers) Submit(mode authform.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := observability.FromContext(r.Context())
		form, ok := h.form(r, mode)
		if !ok {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if err := r.ParseForm(); err != nil {
			data := h.formData(r, form, "")
			data.Message = "The form could not be submitted. Please try again."
			h.render(w, r, data, http.StatusBadRequest)
			return
		}
		next := r.PostFormValue("next")
		input := authform.Input{
			Email:    r.PostFormValue(authform.FieldEmail),
			Password: r.PostFormValue(authform.FieldPassword),
			Remember: mode == authform.SignIn && parseCheckbox(r.PostFormValue("remember")),
		}

		err := form.Submit(r.Context(), input)
		var fieldErrs validation.Errors
		switch {
		case errors.As(err, &fieldErrs):
			h.render(w, r, h.formData(r, form, next), http.StatusUnprocessableEntity)
			return
		case errors.Is(err, authform.ErrSubmissionInFlight):
			logger.Debug("submission ignored while pending", zap.String("mode", mode.Slug()))
			h.render(w, r, h.formData(r, form, next), http.StatusConflict)
			return
		case err != nil:
			logger.Error("auth submit failed", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if !custommw.IsHTMXRequest(r.Context()) {
			if err := form.Wait(r.Context()); err != nil && r.Context().Err() != nil {
				logger.Warn("auth submission still pending", zap.Error(err))
			}
		}
		h.settle(w, r, form, next)
	}
}

// Status is polled by the pending fragment until the submission settles.
func (h *authHandlers) Status(mode authform.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := h.form(r, mode)
		if !ok {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.settle(w, r, form, r.URL.Query().Get("next"))
	}
}

// TogglePassword flips password visibility and re-renders the form with the
// values the user had typed.
func (h *authHandlers) TogglePassword(mode authform.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := h.form(r, mode)
		if !ok {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		form.TogglePassword()

		if !custommw.IsHTMXRequest(r.Context()) {
			http.Redirect(w, r, h.modePath(mode), http.StatusSeeOther)
			return
		}

		_ = r.ParseForm()
		data := h.formData(r, form, r.PostFormValue("next"))
		if !data.Submitting {
			data.Email = r.PostFormValue(authform.FieldEmail)
			data.Password = r.PostFormValue(authform.FieldPassword)
		}
		h.render(w, r, data, http.StatusOK)
	}
}

// Logout revokes provider refresh tokens, drops the session and its forms and
// clears the auth cookie.
func (h *authHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())
	if sess, ok := custommw.SessionFromContext(r.Context()); ok && sess != nil {
		if user := sess.User(); user != nil && h.revoker != nil {
			if err := h.revoker.Revoke(r.Context(), user.UID); err != nil {
				logger.Warn("revoke refresh tokens failed", zap.String("uid", user.UID), zap.Error(err))
			}
		}
		h.forms.Forget(sess.ID())
		sess.Destroy()
	}
	h.clearAuthCookie(w)

	redirect := h.loginPath + "?status=logged_out"

	if custommw.IsHTMXRequest(r.Context()) {
		custommw.HXRedirect(w, redirect)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// Home is the signed-in landing page.
func (h *authHandlers) Home(w http.ResponseWriter, r *http.Request) {
	user, ok := custommw.UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, h.loginPath, http.StatusFound)
		return
	}
	data := home.PageData{
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		LogoutURL:     custommw.JoinPath(h.basePath, "/logout"),
		CSRFToken:     custommw.CSRFTokenFromContext(r.Context()),
	}
	templ.Handler(home.Page(data)).ServeHTTP(w, r)
}

// settle completes a successful submission or renders the form as it stands.
func (h *authHandlers) settle(w http.ResponseWriter, r *http.Request, form *authform.Form, next string) {
	if s := form.Session(); s != nil {
		h.completeSignIn(w, r, form, s, next)
		return
	}
	data := h.formData(r, form, next)
	status := http.StatusOK
	if data.Failed {
		status = http.StatusUnauthorized
	}
	h.render(w, r, data, status)
}

func (h *authHandlers) completeSignIn(w http.ResponseWriter, r *http.Request, form *authform.Form, s *authclient.Session, next string) {
	if sess, ok := custommw.SessionFromContext(r.Context()); ok && sess != nil {
		if form.Mode() == authform.SignIn {
			sess.SetRememberMe(form.Remember())
		}
		sess.SetUser(&appsession.User{UID: s.UserID, Email: s.Email})
		sess.SetRefreshToken(s.RefreshToken)
	}
	h.setAuthCookie(w, r, s.IDToken, s.ExpiresIn)
	form.Reset()

	observability.FromContext(r.Context()).Info("signed in",
		zap.String("uid", s.UserID),
		zap.String("mode", form.Mode().Slug()),
	)

	target := h.redirectTarget(next)
	if custommw.IsHTMXRequest(r.Context()) {
		custommw.HXRedirect(w, target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *authHandlers) rememberMe(r *http.Request) bool {
	sess, ok := custommw.SessionFromContext(r.Context())
	return ok && sess.RememberMe()
}

func (h *authHandlers) form(r *http.Request, mode authform.Mode) (*authform.Form, bool) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok || sess == nil {
		observability.FromContext(r.Context()).Error("auth form requested without session")
		return nil, false
	}
	return h.forms.Get(sess.ID(), mode), true
}

func (h *authHandlers) formData(r *http.Request, form *authform.Form, rawNext string) auth.FormData {
	mode := form.Mode()
	other := authform.SignUp
	if mode == authform.SignUp {
		other = authform.SignIn
	}
	next := h.normalizeNext(rawNext)
	fieldErrs := form.FieldErrors()
	base := h.modePath(mode)

	return auth.FormData{
		Mode:            mode.Slug(),
		Heading:         mode.String(),
		Label:           mode.Label(),
		Action:          base,
		StatusURL:       withNext(base+"/status", next),
		ToggleURL:       base + "/password-visibility",
		SwitchURL:       withNext(h.modePath(other), next),
		SwitchTo:        other.Label(),
		Email:           form.Email(),
		EmailError:      fieldErrs[authform.FieldEmail],
		PasswordError:   fieldErrs[authform.FieldPassword],
		ErrorFragment:   form.ErrorFragment(),
		Submitting:      form.Submitting(),
		Failed:          form.State() == authform.StateFailed,
		PasswordVisible: form.PasswordVisible(),
		Remember:        form.Remember() || h.rememberMe(r),
		Next:            next,
		CSRFToken:       custommw.CSRFTokenFromContext(r.Context()),
	}
}

// render answers htmx with the form fragment and everything else with the page.
// htmx only swaps 2xx responses, so fragments always go out as 200.
func (h *authHandlers) render(w http.ResponseWriter, r *http.Request, data auth.FormData, status int) {
	if custommw.IsHTMXRequest(r.Context()) {
		templ.Handler(auth.Form(data)).ServeHTTP(w, r)
		return
	}
	h.renderPage(w, r, data, status)
}

func (h *authHandlers) renderPage(w http.ResponseWriter, r *http.Request, data auth.FormData, status int) {
	page := auth.Page(auth.PageData{Banner: h.banner, Form: data})
	templ.Handler(page, templ.WithStatus(status)).ServeHTTP(w, r)
}

func (h *authHandlers) modePath(mode authform.Mode) string {
	if mode == authform.SignUp {
		return h.signupPath
	}
	return h.loginPath
}

func (h *authHandlers) isAuthenticated(r *http.Request) bool {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok || sess == nil {
		return false
	}
	user := sess.User()
	return user != nil && strings.TrimSpace(user.UID) != ""
}

func messageForQuery(q url.Values) string {
	if q == nil {
		return ""
	}
	if status := q.Get("status"); status == "logged_out" {
		return "You have been signed out."
	}
	switch q.Get("reason") {
	case custommw.ReasonTokenExpired, "expired":
		return "Your session has expired. Please sign in again."
	case custommw.ReasonMissingToken:
		return "Please sign in to continue."
	case custommw.ReasonTokenInvalid:
		return "Your sign-in could not be verified. Please sign in again."
	default:
		return ""
	}
}
