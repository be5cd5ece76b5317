package i18n

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	LoginTitle          = "login.title"
	LoginSubmit         = "login.submit"
	LoginFailed         = "login.failed"
	LoginGoogle         = "login.google"
	LoginForgotPassword = "login.forgot_password"
	LoginSignUpLink     = "login.signup_link"

	SignUpTitle     = "signup.title"
	SignUpSubmit    = "signup.submit"
	SignUpLoginLink = "signup.login_link"

	FieldEmailLabel           = "field.email.label"
	FieldPasswordLabel        = "field.password.label"
	FieldConfirmPasswordLabel = "field.confirm_password.label"

	EmailRequired           = "field.email.required"
	EmailInvalid            = "field.email.invalid"
	PasswordRequired        = "field.password.required"
	PasswordTooShort        = "field.password.too_short"
	ConfirmPasswordRequired = "field.confirm_password.required"
	ConfirmPasswordMismatch = "field.confirm_password.mismatch"

	ErrorTitle       = "error.title"
	ErrorUnavailable = "error.unavailable"
)

var korean = map[string]string{
	LoginTitle:          "로그인",
	LoginSubmit:         "로그인",
	LoginFailed:         "아이디 또는 비밀번호를 입력해주세요.",
	LoginGoogle:         "구글 로그인",
	LoginForgotPassword: "비밀번호를 잊으셨나요?",
	LoginSignUpLink:     "이메일로 회원가입",

	SignUpTitle:     "회원가입",
	SignUpSubmit:    "회원가입",
	SignUpLoginLink: "이미 계정이 있으신가요? 로그인하기",

	FieldEmailLabel:           "이메일",
	FieldPasswordLabel:        "비밀번호",
	FieldConfirmPasswordLabel: "비밀번호 확인",

	EmailRequired:           "이메일을 입력해주세요.",
	EmailInvalid:            "이메일 형식이 올바르지 않습니다.",
	PasswordRequired:        "비밀번호를 입력해주세요.",
	PasswordTooShort:        "비밀번호는 6자 이상이어야 합니다.",
	ConfirmPasswordRequired: "비밀번호를 다시 입력해주세요.",
	ConfirmPasswordMismatch: "비밀번호가 일치하지 않습니다.",

	ErrorTitle:       "오류",
	ErrorUnavailable: "요청을 처리하지 못했습니다. 잠시 후 다시 시도해주세요.",
}

// Bundle holds the UI message catalog and picks a language per request.
type Bundle struct {
	catalog   *catalog.Builder
	matcher   language.Matcher
	fallback  language.Tag
	supported []language.Tag
}

// New builds the bundle with the Korean catalog as fallback.
func New() *Bundle {
	fallback := language.Korean
	b := catalog.NewBuilder(catalog.Fallback(fallback))
	for key, msg := range korean {
		if err := b.SetString(fallback, key, msg); err != nil {
			panic(err)
		}
	}
	supported := []language.Tag{fallback}
	return &Bundle{
		catalog:   b,
		matcher:   language.NewMatcher(supported),
		fallback:  fallback,
		supported: supported,
	}
}

var defaultBundle = New()

// Default returns the shared bundle.
func Default() *Bundle { return defaultBundle }

// Fallback returns the configured fallback language.
func (b *Bundle) Fallback() language.Tag { return b.fallback }

// Resolve chooses the best language from an Accept-Language header.
func (b *Bundle) Resolve(acceptLang string) language.Tag {
	prefs, _, err := language.ParseAcceptLanguage(acceptLang)
	if err != nil || len(prefs) == 0 {
		return b.fallback
	}
	_, index, confidence := b.matcher.Match(prefs...)
	if confidence == language.No {
		return b.fallback
	}
	return b.supported[index]
}

// Printer returns a message printer for the language.
func (b *Bundle) Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(b.catalog))
}

// ForRequest returns the printer matching the request's Accept-Language header.
func (b *Bundle) ForRequest(r *http.Request) *message.Printer {
	return b.Printer(b.Resolve(r.Header.Get("Accept-Language")))
}
