package i18n

import (
	"net/http/httptest"
	"testing"

	"golang.org/x/text/language"
)

func TestResolveFallsBackToKorean(t *testing.T) {
	b := New()
	for _, header := range []string{"", "en-US,en;q=0.9", "ko-KR,ko;q=0.8", "garbage;;"} {
		if got := b.Resolve(header); got != language.Korean {
			t.Errorf("Resolve(%q) = %s, want ko", header, got)
		}
	}
}

func TestTranslatesKnownKeys(t *testing.T) {
	printer := New().Printer(language.Korean)
	cases := map[string]string{
		LoginFailed:             "아이디 또는 비밀번호를 입력해주세요.",
		EmailInvalid:            "이메일 형식이 올바르지 않습니다.",
		PasswordTooShort:        "비밀번호는 6자 이상이어야 합니다.",
		ConfirmPasswordMismatch: "비밀번호가 일치하지 않습니다.",
		SignUpLoginLink:         "이미 계정이 있으신가요? 로그인하기",
	}
	for key, want := range cases {
		if got := printer.Sprintf(key); got != want {
			t.Errorf("Sprintf(%s) = %q, want %q", key, got, want)
		}
	}
}

func TestForRequestUsesCatalogForUnsupportedLanguage(t *testing.T) {
	req := httptest.NewRequest("GET", "/login", nil)
	req.Header.Set("Accept-Language", "fr-FR")
	if got := Default().ForRequest(req).Sprintf(LoginGoogle); got != "구글 로그인" {
		t.Fatalf("unexpected message %q", got)
	}
}
