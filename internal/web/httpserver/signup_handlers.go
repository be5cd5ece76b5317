package httpserver

import (
	"net/http"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"myidoru.app/web/internal/web/form"
	custommw "myidoru.app/web/internal/web/httpserver/middleware"
	"myidoru.app/web/internal/web/observability"
	"myidoru.app/web/internal/web/templates/auth"
)

const touchedField = "touched"

func (h *authHandlers) SignUpForm(w http.ResponseWriter, r *http.Request) {
	data := h.buildSignUpPageData(r, "", nil, nil)
	templ.Handler(auth.SignUpPage(data)).ServeHTTP(w, r)
}

// SignUpValidate answers input changes with out-of-band error slots for the
// fields the user has touched so far.
func (h *authHandlers) SignUpValidate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	values := signUpValues(r)
	errs := h.signUp.Validate(h.bundle.ForRequest(r), values)
	touched := h.touchedFields(r)

	data := h.buildSignUpPageData(r, values[form.FieldEmail], errs.Only(touched...), touched)
	templ.Handler(auth.SignUpFeedback(data)).ServeHTTP(w, r)
}

func (h *authHandlers) SignUpSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		observability.FromContext(r.Context()).Warn("signup form parse failed", zap.Error(err))
		data := h.buildSignUpPageData(r, "", nil, nil)
		h.renderSignUp(w, r, data, http.StatusBadRequest)
		return
	}

	values := signUpValues(r)
	errs := h.signUp.Validate(h.bundle.ForRequest(r), values)
	if !errs.Valid() {
		data := h.buildSignUpPageData(r, values[form.FieldEmail], errs, h.signUp.Names())
		h.renderSignUp(w, r, data, http.StatusUnprocessableEntity)
		return
	}

	if _, err := h.provider.CreateAccount(r.Context(), values[form.FieldEmail], values[form.FieldPassword]); err != nil {
		h.respondError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).Info("account created")
	h.redirect(w, r, h.paths.login)
}

func (h *authHandlers) buildSignUpPageData(r *http.Request, email string, errs form.Errors, touched []string) auth.SignUpPageData {
	return auth.SignUpPageData{
		Email:     email,
		Errors:    errs,
		Touched:   touched,
		Paths:     h.authPaths(),
		CSRFToken: custommw.CSRFTokenFromContext(r.Context()),
		Printer:   h.bundle.ForRequest(r),
	}
}

// renderSignUp answers htmx submissions with the feedback fragment so inputs keep their values.
func (h *authHandlers) renderSignUp(w http.ResponseWriter, r *http.Request, data auth.SignUpPageData, status int) {
	component := auth.SignUpPage(data)
	if custommw.IsHTMXRequest(r.Context()) {
		component = auth.SignUpFeedback(data)
	}
	templ.Handler(component, templ.WithStatus(status)).ServeHTTP(w, r)
}

// touchedFields merges the previously touched fields with the input that
// triggered this request, in form order.
func (h *authHandlers) touchedFields(r *http.Request) []string {
	seen := make(map[string]bool)
	for _, name := range r.PostForm[touchedField] {
		seen[name] = true
	}
	if trigger := custommw.HTMXInfoFromContext(r.Context()).TriggerName; trigger != "" {
		seen[trigger] = true
	}

	touched := make([]string, 0, len(seen))
	for _, name := range h.signUp.Names() {
		if seen[name] {
			touched = append(touched, name)
		}
	}
	return touched
}

func signUpValues(r *http.Request) form.Values {
	return form.Values{
		form.FieldEmail:           r.PostFormValue(form.FieldEmail),
		form.FieldPassword:        r.PostFormValue(form.FieldPassword),
		form.FieldConfirmPassword: r.PostFormValue(form.FieldConfirmPassword),
	}
}
