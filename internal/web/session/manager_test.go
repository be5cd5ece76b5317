package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"myidoru.app/web/internal/web/identitycache"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func newTestManager(t *testing.T) (*Manager, *fixedClock) {
	t.Helper()

	hashKey := []byte("12345678901234567890123456789012")
	blockKey := []byte("abcdefghijklmnopqrstuv0123456789")
	clock := &fixedClock{current: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	httpOnly := true
	mgr, err := NewManager(Config{
		CookieName:     "test_session",
		HashKey:        hashKey,
		BlockKey:       blockKey,
		CookiePath:     "/",
		CookieHTTPOnly: &httpOnly,
		IdleTimeout:    10 * time.Minute,
		Lifetime:       2 * time.Hour,
		Now:            clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return mgr, clock
}

func TestManager_NewSessionLifecycle(t *testing.T) {
	mgr, clock := newTestManager(t)
	ctx := context.Background()

	req := httptest.NewRequest("GET", "/login", nil)
	sess, err := mgr.Load(req)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if sess.ID() == "" {
		t.Fatalf("expected session ID")
	}
	if !sess.CreatedAt().Equal(clock.current) {
		t.Fatalf("unexpected CreatedAt: %v", sess.CreatedAt())
	}

	token, err := sess.EnsureCSRFToken()
	if err != nil || token == "" {
		t.Fatalf("expected csrf token: %v", err)
	}
	if err := sess.Set(ctx, identitycache.Key, `{"localId":"u1"}`); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	rec := httptest.NewRecorder()
	if err := mgr.Save(rec, sess); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	cookie := findCookie(rec.Result().Cookies(), "test_session")
	if cookie == nil {
		t.Fatalf("expected session cookie to be set")
	}
	if cookie.SameSite != http.SameSiteLaxMode || !cookie.HttpOnly {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}

	clock.current = clock.current.Add(5 * time.Minute)
	req2 := httptest.NewRequest("GET", "/login", nil)
	req2.AddCookie(cookie)
	sess2, err := mgr.Load(req2)
	if err != nil {
		t.Fatalf("Load existing error: %v", err)
	}
	if sess2.ID() != sess.ID() {
		t.Fatalf("expected session id to persist")
	}
	if sess2.CSRFToken() != token {
		t.Fatalf("expected csrf token to persist")
	}
	value, err := sess2.Get(ctx, identitycache.Key)
	if err != nil || value != `{"localId":"u1"}` {
		t.Fatalf("expected cached identity, got %q (%v)", value, err)
	}
	if _, err := sess2.Get(ctx, "other"); !errors.Is(err, identitycache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_IdleTimeout(t *testing.T) {
	mgr, clock := newTestManager(t)
	sess, err := mgr.Load(httptest.NewRequest("GET", "/login", nil))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	rec := httptest.NewRecorder()
	if err := mgr.Save(rec, sess); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	cookie := findCookie(rec.Result().Cookies(), "test_session")

	clock.current = clock.current.Add(20 * time.Minute)
	req2 := httptest.NewRequest("GET", "/login", nil)
	req2.AddCookie(cookie)
	if _, err := mgr.Load(req2); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestManager_TamperedCookieStartsFresh(t *testing.T) {
	mgr, _ := newTestManager(t)
	req := httptest.NewRequest("GET", "/login", nil)
	req.AddCookie(&http.Cookie{Name: "test_session", Value: "garbage"})
	sess, err := mgr.Load(req)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !sess.Dirty() || sess.ID() == "" {
		t.Fatalf("expected fresh session")
	}
}

func TestSession_SetRejectsValuesThatOverflowTheCookie(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	sess := mgr.New()

	small := `{"localId":"u1","email":"a@b.co"}`
	if err := sess.Set(ctx, identitycache.Key, small); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	large := `{"localId":"u1","idToken":"` + strings.Repeat("x", 3000) + `"}`
	err := sess.Set(ctx, identitycache.Key, large)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if got, _ := sess.Get(ctx, identitycache.Key); got != small {
		t.Fatalf("expected previous value to be kept, got %q", got)
	}
	if err := sess.Set(ctx, "other", large); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge for new key, got %v", err)
	}
	if _, err := sess.Get(ctx, "other"); !errors.Is(err, identitycache.ErrNotFound) {
		t.Fatalf("expected rejected key to stay unset, got %v", err)
	}

	rec := httptest.NewRecorder()
	if err := mgr.Save(rec, sess); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	cookie := findCookie(rec.Result().Cookies(), "test_session")
	if cookie == nil {
		t.Fatalf("expected session cookie to be set")
	}
	req := httptest.NewRequest("GET", "/login", nil)
	req.AddCookie(cookie)
	loaded, err := mgr.Load(req)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got, _ := loaded.Get(ctx, identitycache.Key); got != small {
		t.Fatalf("expected cookie to carry the previous value, got %q", got)
	}
}

func TestSession_SetAcceptsValuesUpToTheLimit(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	sess := mgr.New()

	value := `{"localId":"u1","idToken":"` + strings.Repeat("x", 1500) + `"}`
	if err := sess.Set(ctx, identitycache.Key, value); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	rec := httptest.NewRecorder()
	if err := mgr.Save(rec, sess); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if findCookie(rec.Result().Cookies(), "test_session") == nil {
		t.Fatalf("expected session cookie to be set")
	}
}

func TestSession_FederatedHandshake(t *testing.T) {
	mgr, clock := newTestManager(t)
	sess := mgr.New()

	if _, ok := sess.TakeFederated(); ok {
		t.Fatalf("expected no pending handshake")
	}

	sess.BeginFederated("google.com", "handshake-1")
	state, ok := sess.TakeFederated()
	if !ok || state.SessionID != "handshake-1" || state.ProviderID != "google.com" {
		t.Fatalf("unexpected handshake %+v", state)
	}
	if _, ok := sess.TakeFederated(); ok {
		t.Fatalf("expected handshake to be single use")
	}

	sess.BeginFederated("google.com", "handshake-2")
	clock.current = clock.current.Add(11 * time.Minute)
	if _, ok := sess.TakeFederated(); ok {
		t.Fatalf("expected stale handshake to be discarded")
	}
}

func TestNewManagerValidatesKeys(t *testing.T) {
	if _, err := NewManager(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without hash key, got %v", err)
	}
	if _, err := NewManager(Config{HashKey: GenerateKey(32), BlockKey: []byte("short")}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for block key, got %v", err)
	}
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
