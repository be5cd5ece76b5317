package httpserver

import (
	"errors"
	"net/http"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	custommw "myidoru.app/web/internal/web/httpserver/middleware"
	"myidoru.app/web/internal/web/i18n"
	"myidoru.app/web/internal/web/identity"
	"myidoru.app/web/internal/web/observability"
	appsession "myidoru.app/web/internal/web/session"
	"myidoru.app/web/internal/web/templates/layout"
)

// respondError is the single place where failures that are not shown inline
// become a status code and an error page.
func (h *authHandlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	observability.FromContext(r.Context()).Error("request failed",
		zap.Int("status", status),
		zap.String("classification", identity.Classify(err)),
		zap.Error(err),
	)

	if custommw.IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Retarget", "body")
		w.Header().Set("HX-Reswap", "innerHTML")
	}

	printer := h.bundle.ForRequest(r)
	page := layout.ErrorPage(layout.PageData{
		Title:      printer.Sprintf(i18n.ErrorTitle),
		StaticPath: staticPrefix,
		CSRFToken:  custommw.CSRFTokenFromContext(r.Context()),
	}, printer.Sprintf(i18n.ErrorUnavailable))
	templ.Handler(page, templ.WithStatus(status)).ServeHTTP(w, r)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errHandshakeMissing):
		return http.StatusBadRequest
	case errors.Is(err, errSessionMissing), errors.Is(err, appsession.ErrTooLarge):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
