package form

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginSubmittable(t *testing.T) {
	cases := []struct {
		email, password string
		want            bool
	}{
		{"a@b.co", "secret1", true},
		{"not-an-email", "x", true},
		{"", "secret1", false},
		{"a@b.co", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, LoginSubmittable(tc.email, tc.password), "email=%q password=%q", tc.email, tc.password)
	}
}

func TestSignUpValidation(t *testing.T) {
	cases := []struct {
		name   string
		values Values
		want   Errors
	}{
		{
			name:   "empty",
			values: Values{},
			want: Errors{
				FieldEmail:           "이메일을 입력해주세요.",
				FieldPassword:        "비밀번호를 입력해주세요.",
				FieldConfirmPassword: "비밀번호를 다시 입력해주세요.",
			},
		},
		{
			name:   "email without at sign",
			values: Values{FieldEmail: "userexample.com", FieldPassword: "secret1", FieldConfirmPassword: "secret1"},
			want:   Errors{FieldEmail: "이메일 형식이 올바르지 않습니다."},
		},
		{
			name:   "email without dot after at sign",
			values: Values{FieldEmail: "user@example", FieldPassword: "secret1", FieldConfirmPassword: "secret1"},
			want:   Errors{FieldEmail: "이메일 형식이 올바르지 않습니다."},
		},
		{
			name:   "short password",
			values: Values{FieldEmail: "a@b.co", FieldPassword: "12345", FieldConfirmPassword: "12345"},
			want:   Errors{FieldPassword: "비밀번호는 6자 이상이어야 합니다."},
		},
		{
			name:   "six multibyte characters are long enough",
			values: Values{FieldEmail: "a@b.co", FieldPassword: "비밀번호좋아", FieldConfirmPassword: "비밀번호좋아"},
			want:   Errors{},
		},
		{
			name:   "mismatched confirmation",
			values: Values{FieldEmail: "a@b.co", FieldPassword: "secret1", FieldConfirmPassword: "secret2"},
			want:   Errors{FieldConfirmPassword: "비밀번호가 일치하지 않습니다."},
		},
		{
			name:   "valid",
			values: Values{FieldEmail: "a@b.co", FieldPassword: "secret1", FieldConfirmPassword: "secret1"},
			want:   Errors{},
		},
	}

	f := SignUp()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := f.Validate(nil, tc.values)
			require.Equal(t, tc.want, got)
			require.Equal(t, len(tc.want) == 0, got.Valid())
		})
	}
}

func TestErrorsOnly(t *testing.T) {
	errs := SignUp().Validate(nil, Values{FieldEmail: "bad"})
	require.Len(t, errs, 3)

	touched := errs.Only(FieldEmail, "unknown")
	require.Equal(t, Errors{FieldEmail: "이메일 형식이 올바르지 않습니다."}, touched)
	require.Empty(t, errs.Only())
}

func TestSignUpFieldOrder(t *testing.T) {
	require.Equal(t, []string{FieldEmail, FieldPassword, FieldConfirmPassword}, SignUp().Names())
}
