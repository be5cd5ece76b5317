package auth

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"myidoru.app/web/internal/web/form"
)

var testPaths = Paths{
	Login:      "/login",
	LoginState: "/login/state",
	Google:     "/login/google",
	SignUp:     "/signup",
	Validate:   "/signup/validate",
	Recovery:   "/password/edit",
	Static:     "/public/static",
}

func render(t *testing.T, c templ.Component) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	return doc
}

func TestLoginPageStructure(t *testing.T) {
	t.Parallel()

	doc := render(t, LoginPage(LoginPageData{
		Email:     "a@b.co",
		Error:     "아이디 또는 비밀번호를 입력해주세요.",
		Paths:     testPaths,
		CSRFToken: "tok",
	}))

	require.Equal(t, "로그인", doc.Find("title").Text())
	require.Equal(t, `{"X-CSRF-Token":"tok"}`, doc.Find("body").AttrOr("hx-headers", ""))

	formSel := doc.Find("form#login-form")
	require.Equal(t, 1, formSel.Length())
	require.Equal(t, "/login", formSel.AttrOr("action", ""))
	require.Equal(t, "tok", formSel.Find(`input[name="csrf_token"]`).AttrOr("value", ""))

	require.Equal(t, "a@b.co", doc.Find(`input[name="email"]`).AttrOr("value", ""))
	password := doc.Find(`input[name="password"]`)
	_, hasValue := password.Attr("value")
	require.False(t, hasValue, "password must never be echoed")
	require.Equal(t, "/login/state", password.AttrOr("hx-post", ""))

	require.Equal(t, "아이디 또는 비밀번호를 입력해주세요.", strings.TrimSpace(doc.Find(".login-notice").Text()))
	_, disabled := doc.Find("#login-submit").Attr("disabled")
	require.True(t, disabled)

	require.Equal(t, "/password/edit", doc.Find("a.link-recovery").AttrOr("href", ""))
	require.Equal(t, "비밀번호를 잊으셨나요?", doc.Find("a.link-recovery").Text())
	require.Equal(t, "/signup", doc.Find("a.link-signup").AttrOr("href", ""))
	require.Equal(t, "이메일로 회원가입", doc.Find("a.link-signup").Text())

	google := doc.Find("a.btn-google")
	require.Equal(t, "/login/google", google.AttrOr("href", ""))
	require.Equal(t, "/public/static/google.svg", google.Find("img").AttrOr("src", ""))
	require.Equal(t, "구글 로그인", google.Find("span").Text())
}

func TestLoginPageWithoutError(t *testing.T) {
	t.Parallel()

	doc := render(t, LoginPage(LoginPageData{SubmitEnabled: true, Paths: testPaths}))
	require.Equal(t, 0, doc.Find(".login-notice").Length())
	_, disabled := doc.Find("#login-submit").Attr("disabled")
	require.False(t, disabled)
}

func TestLoginFormEscapesUserInput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, LoginForm(LoginPageData{
		Email: `"><script>alert(1)</script>`,
		Error: "a & b",
		Paths: testPaths,
	}).Render(context.Background(), &buf))

	html := buf.String()
	require.NotContains(t, html, "<script>")
	require.Contains(t, html, `value="&#34;&gt;&lt;script&gt;alert(1)&lt;/script&gt;"`)
	require.Contains(t, html, "a &amp; b")
}

func TestLoginSubmitButtonFollowsState(t *testing.T) {
	t.Parallel()

	doc := render(t, LoginSubmitButton(false, nil))
	_, disabled := doc.Find("#login-submit").Attr("disabled")
	require.True(t, disabled)
	require.Equal(t, "로그인", doc.Find("#login-submit").Text())

	doc = render(t, LoginSubmitButton(true, nil))
	_, disabled = doc.Find("#login-submit").Attr("disabled")
	require.False(t, disabled)
}

func TestSignUpPageShowsErrors(t *testing.T) {
	t.Parallel()

	doc := render(t, SignUpPage(SignUpPageData{
		Email: "bad",
		Errors: form.Errors{
			form.FieldEmail: "이메일 형식이 올바르지 않습니다.",
		},
		Touched: []string{form.FieldEmail},
		Paths:   testPaths,
	}))

	require.Equal(t, "회원가입", doc.Find("title").Text())
	require.Equal(t, "bad", doc.Find(`input[name="email"]`).AttrOr("value", ""))
	require.Equal(t, "이메일 형식이 올바르지 않습니다.", doc.Find("#error-email").Text())

	_, hidden := doc.Find("#error-password").Attr("hidden")
	require.True(t, hidden)

	doc.Find(`input[type="password"]`).Each(func(_ int, s *goquery.Selection) {
		_, hasValue := s.Attr("value")
		require.False(t, hasValue)
		require.Equal(t, "/signup/validate", s.AttrOr("hx-post", ""))
	})
	require.Equal(t, 2, doc.Find(`input[type="password"]`).Length())

	require.Equal(t, "email", doc.Find(`#signup-touched input[name="touched"]`).AttrOr("value", ""))
	require.Equal(t, "/login", doc.Find("a.link-login").AttrOr("href", ""))
	require.Equal(t, "이미 계정이 있으신가요? 로그인하기", doc.Find("a.link-login").Text())
}

func TestSignUpFeedbackIsOutOfBand(t *testing.T) {
	t.Parallel()

	doc := render(t, SignUpFeedback(SignUpPageData{
		Errors:  form.Errors{form.FieldConfirmPassword: "비밀번호가 일치하지 않습니다."},
		Touched: []string{form.FieldPassword, form.FieldConfirmPassword},
	}))

	require.Equal(t, 3, doc.Find(`p.error-notice[hx-swap-oob="true"]`).Length())
	require.Equal(t, "비밀번호가 일치하지 않습니다.", doc.Find("#error-confirmPassword").Text())
	require.Equal(t, 2, doc.Find(`#signup-touched[hx-swap-oob="true"] input`).Length())
	require.Equal(t, 0, doc.Find("input[name=email]").Length())
}
