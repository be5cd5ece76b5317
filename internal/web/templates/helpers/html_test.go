package helpers

import "testing"

func TestJoinPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base  string
		elems []string
		want  string
	}{
		{base: "/", elems: []string{"login"}, want: "/login"},
		{base: "/login", elems: []string{"state"}, want: "/login/state"},
		{base: "/app/", elems: []string{"/signup/", "validate"}, want: "/app/signup/validate"},
		{base: "/", elems: nil, want: "/"},
	}
	for _, tc := range tests {
		if got := JoinPath(tc.base, tc.elems...); got != tc.want {
			t.Errorf("JoinPath(%q, %v) = %q, want %q", tc.base, tc.elems, got, tc.want)
		}
	}
}

func TestHXHeaders(t *testing.T) {
	t.Parallel()

	if got := HXHeaders(map[string]string{"X-CSRF-Token": "abc"}); got != `{"X-CSRF-Token":"abc"}` {
		t.Fatalf("unexpected headers %s", got)
	}
	if HXHeaders(nil) != "" {
		t.Fatalf("expected empty headers")
	}
}
