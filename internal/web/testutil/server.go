package testutil

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"go.uber.org/zap"

	"myidoru.app/web/internal/web/httpserver"
	"myidoru.app/web/internal/web/identity"
	"myidoru.app/web/internal/web/identitycache"
	appsession "myidoru.app/web/internal/web/session"
)

// DefaultIdentity is the identity document returned by the default stub provider.
const DefaultIdentity = `{"localId":"user-1","email":"tester@example.com","idToken":"token-1"}`

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithProvider overrides the identity provider.
func WithProvider(provider identity.Provider) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Provider = provider
	}
}

// WithCache stores identities in the given store instead of the session cookie.
func WithCache(store identitycache.Store) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Cache = store
	}
}

// WithSessions overrides the session manager.
func WithSessions(manager *appsession.Manager) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Sessions = manager
	}
}

// WithBasePath sets a custom base path for the auth routes.
func WithBasePath(path string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.BasePath = path
	}
}

// WithAfterLoginPath sets the redirect target of a successful sign-in.
func WithAfterLoginPath(path string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.AfterLoginPath = path
	}
}

// WithPublicURL sets the origin used to build federated callback URLs.
func WithPublicURL(url string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.PublicURL = url
	}
}

// WithLogger routes server logs to logger.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Logger = logger
	}
}

// SessionCookieName is the cookie used by NewSessionManager.
const SessionCookieName = "myidoru_session"

// NewSessionManager returns the session manager NewServer uses by default.
// Every instance shares the same keys, so any of them decodes cookies issued
// by a test server.
func NewSessionManager(t testing.TB) *appsession.Manager {
	t.Helper()

	sessions, err := appsession.NewManager(appsession.Config{
		CookieName: SessionCookieName,
		HashKey:    []byte("0123456789abcdef0123456789abcdef"),
		BlockKey:   []byte("fedcba9876543210fedcba9876543210"),
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	return sessions
}

// LoadSession decodes the session the client currently holds for target.
func LoadSession(t testing.TB, manager *appsession.Manager, client *http.Client, target string) *appsession.Session {
	t.Helper()

	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	found := false
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == SessionCookieName {
			req.AddCookie(c)
			found = true
		}
	}
	if !found {
		t.Fatalf("client holds no %s cookie for %s", SessionCookieName, target)
	}
	sess, err := manager.Load(req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return sess
}

// NewServer constructs an httptest server running the web HTTP stack with sensible defaults.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	cfg := httpserver.Config{
		Address:  ":0",
		BasePath: "/",
		Provider: NewStubProvider(DefaultIdentity),
		Sessions: NewSessionManager(t),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	srv := httpserver.New(cfg)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewClient returns a client that keeps cookies and does not follow redirects.
func NewClient(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
