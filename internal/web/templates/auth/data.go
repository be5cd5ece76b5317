package auth

import (
	"golang.org/x/text/message"

	"myidoru.app/web/internal/web/form"
	"myidoru.app/web/internal/web/i18n"
	"myidoru.app/web/internal/web/templates/helpers"
	"myidoru.app/web/internal/web/templates/layout"
)

// Paths are the routes the auth pages link and post to.
type Paths struct {
	Login      string
	LoginState string
	Google     string
	SignUp     string
	Validate   string
	Recovery   string
	Static     string
}

// LoginPageData encapsulates rendering state for the login screen.
type LoginPageData struct {
	Email         string
	Error         string
	SubmitEnabled bool
	Paths         Paths
	CSRFToken     string
	Printer       *message.Printer
}

func (d LoginPageData) page() layout.PageData {
	return layout.PageData{
		Title:      printerOrDefault(d.Printer).Sprintf(i18n.LoginTitle),
		StaticPath: d.Paths.Static,
		CSRFToken:  d.CSRFToken,
	}
}

// SignUpPageData encapsulates rendering state for the signup screen.
type SignUpPageData struct {
	Email     string
	Errors    form.Errors
	Touched   []string
	Paths     Paths
	CSRFToken string
	Printer   *message.Printer
}

func (d SignUpPageData) page() layout.PageData {
	return layout.PageData{
		Title:      printerOrDefault(d.Printer).Sprintf(i18n.SignUpTitle),
		StaticPath: d.Paths.Static,
		CSRFToken:  d.CSRFToken,
	}
}

type signUpInput struct {
	name         string
	id           string
	inputType    string
	autocomplete string
	label        string
	placeholder  string
	keepValue    bool
}

var signUpInputs = []signUpInput{
	{name: form.FieldEmail, id: "signup-email", inputType: "text", autocomplete: "email", label: i18n.FieldEmailLabel, placeholder: i18n.EmailRequired, keepValue: true},
	{name: form.FieldPassword, id: "signup-password", inputType: "password", autocomplete: "new-password", label: i18n.FieldPasswordLabel, placeholder: i18n.PasswordRequired},
	{name: form.FieldConfirmPassword, id: "signup-confirm-password", inputType: "password", autocomplete: "new-password", label: i18n.FieldConfirmPasswordLabel, placeholder: i18n.ConfirmPasswordRequired},
}

// ErrorSlotID returns the element id of a field's error message.
func ErrorSlotID(field string) string {
	return "error-" + field
}

func googleIcon(paths Paths) string {
	static := paths.Static
	if static == "" {
		static = "/public/static"
	}
	return helpers.JoinPath(static, "google.svg")
}

func printerOrDefault(p *message.Printer) *message.Printer {
	if p != nil {
		return p
	}
	return i18n.Default().Printer(i18n.Default().Fallback())
}
