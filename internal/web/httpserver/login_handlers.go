package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"myidoru.app/web/internal/web/form"
	custommw "myidoru.app/web/internal/web/httpserver/middleware"
	"myidoru.app/web/internal/web/i18n"
	"myidoru.app/web/internal/web/identity"
	"myidoru.app/web/internal/web/identitycache"
	"myidoru.app/web/internal/web/observability"
	"myidoru.app/web/internal/web/templates/auth"
)

var (
	errSessionMissing     = errors.New("httpserver: request session missing")
	errHandshakeMissing   = errors.New("httpserver: federated handshake missing or expired")
	errFederatedCancelled = errors.New("httpserver: federated sign-in cancelled")
)

type authHandlers struct {
	provider  identity.Provider
	cache     identitycache.Store
	bundle    *i18n.Bundle
	signUp    *form.Form
	paths     routePaths
	publicURL string
}

func (h *authHandlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	data := h.buildLoginPageData(r, "", "")
	h.renderLogin(w, r, data, http.StatusOK)
}

func (h *authHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())
	printer := h.bundle.ForRequest(r)

	if err := r.ParseForm(); err != nil {
		logger.Warn("login form parse failed", zap.Error(err))
		data := h.buildLoginPageData(r, "", printer.Sprintf(i18n.LoginFailed))
		h.renderLogin(w, r, data, http.StatusBadRequest)
		return
	}

	email := r.PostFormValue(form.FieldEmail)
	password := r.PostFormValue(form.FieldPassword)

	if !form.LoginSubmittable(email, password) {
		data := h.buildLoginPageData(r, email, "")
		h.renderLogin(w, r, data, http.StatusBadRequest)
		return
	}

	id, err := h.provider.SignInWithPassword(r.Context(), email, password)
	if err != nil {
		logger.Warn("login failed",
			zap.String("classification", identity.Classify(err)),
			zap.Error(err),
		)
		data := h.buildLoginPageData(r, email, printer.Sprintf(i18n.LoginFailed))
		h.renderLogin(w, r, data, http.StatusUnauthorized)
		return
	}

	if err := h.remember(r, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.redirect(w, r, h.paths.afterLogin)
}

// LoginState re-renders the submit button so its enabled state follows typing.
func (h *authHandlers) LoginState(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	enabled := form.LoginSubmittable(r.PostFormValue(form.FieldEmail), r.PostFormValue(form.FieldPassword))
	templ.Handler(auth.LoginSubmitButton(enabled, h.bundle.ForRequest(r))).ServeHTTP(w, r)
}

func (h *authHandlers) GoogleStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		h.respondError(w, r, errSessionMissing)
		return
	}

	start, err := h.provider.BeginFederatedSignIn(r.Context(), identity.ProviderGoogle, h.absoluteURL(r, h.paths.googleCallback))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if strings.TrimSpace(start.AuthURI) == "" {
		h.respondError(w, r, identity.Unavailable("begin_federated_sign_in", errors.New("empty auth uri")))
		return
	}

	sess.BeginFederated(identity.ProviderGoogle, start.SessionID)
	http.Redirect(w, r, start.AuthURI, http.StatusFound)
}

func (h *authHandlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		h.respondError(w, r, errSessionMissing)
		return
	}

	state, ok := sess.TakeFederated()
	if !ok {
		h.respondError(w, r, errHandshakeMissing)
		return
	}
	if reason := r.URL.Query().Get("error"); reason != "" {
		h.respondError(w, r, identity.Rejected("complete_federated_sign_in", reason, errFederatedCancelled))
		return
	}

	id, err := h.provider.CompleteFederatedSignIn(r.Context(), h.absoluteURL(r, r.URL.RequestURI()), state.SessionID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.remember(r, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	http.Redirect(w, r, h.paths.afterLogin, http.StatusFound)
}

// buildLoginPageData never carries the password, so the rendered submit button starts disabled.
func (h *authHandlers) buildLoginPageData(r *http.Request, email, errorText string) auth.LoginPageData {
	return auth.LoginPageData{
		Email:     email,
		Error:     errorText,
		Paths:     h.authPaths(),
		CSRFToken: custommw.CSRFTokenFromContext(r.Context()),
		Printer:   h.bundle.ForRequest(r),
	}
}

func (h *authHandlers) renderLogin(w http.ResponseWriter, r *http.Request, data auth.LoginPageData, status int) {
	component := auth.LoginPage(data)
	if custommw.IsHTMXRequest(r.Context()) {
		component = auth.LoginForm(data)
	}
	templ.Handler(component, templ.WithStatus(status)).ServeHTTP(w, r)
}

// remember caches the identity for the requesting client.
func (h *authHandlers) remember(r *http.Request, id identity.Identity) error {
	store, err := h.cacheFor(r)
	if err != nil {
		return err
	}
	return identitycache.Put(r.Context(), store, id)
}

func (h *authHandlers) cacheFor(r *http.Request) (identitycache.Store, error) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		return nil, errSessionMissing
	}
	if h.cache != nil {
		return identitycache.Scoped(h.cache, sess.ID()), nil
	}
	return sess, nil
}

func (h *authHandlers) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if custommw.IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *authHandlers) authPaths() auth.Paths {
	return auth.Paths{
		Login:      h.paths.login,
		LoginState: h.paths.loginState,
		Google:     h.paths.google,
		SignUp:     h.paths.signUp,
		Validate:   h.paths.validate,
		Recovery:   h.paths.recovery,
		Static:     staticPrefix,
	}
}

func (h *authHandlers) absoluteURL(r *http.Request, path string) string {
	if h.publicURL != "" {
		return h.publicURL + path
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + path
}
