package httpserver

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"myidoru.app/web/internal/web/form"
	custommw "myidoru.app/web/internal/web/httpserver/middleware"
	"myidoru.app/web/internal/web/i18n"
	"myidoru.app/web/internal/web/identity"
	"myidoru.app/web/internal/web/identitycache"
	"myidoru.app/web/internal/web/observability"
	appsession "myidoru.app/web/internal/web/session"
	"myidoru.app/web/public"
)

const staticPrefix = "/public/static"

// Config holds runtime options for the web HTTP server.
type Config struct {
	Address        string
	BasePath       string
	LoginPath      string
	SignUpPath     string
	RecoveryPath   string
	AfterLoginPath string
	// PublicURL is the externally visible origin used for federated callbacks.
	PublicURL string

	Provider identity.Provider
	Sessions *appsession.Manager
	// Cache stores identities outside the session cookie. Nil keeps them in the session.
	Cache  identitycache.Store
	Logger *zap.Logger
	Bundle *i18n.Bundle

	CSRFCookieName   string
	CSRFCookieSecure bool

	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NoopLogger()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.InjectLoggerMiddleware(logger))
	router.Use(observability.RequestLoggerMiddleware())
	router.Use(observability.RecoveryMiddleware(logger))
	router.Use(chimw.Timeout(durationOr(cfg.RequestTimeout, 60*time.Second)))

	staticContent, err := public.StaticFS()
	if err != nil {
		log.Fatalf("embed static: %v", err)
	}
	router.Handle(staticPrefix+"/*", http.StripPrefix(staticPrefix+"/", http.FileServer(http.FS(staticContent))))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	basePath := normalizeBasePath(cfg.BasePath)
	paths := resolvePaths(basePath, cfg)

	sessions := cfg.Sessions
	if sessions == nil {
		sessions = ephemeralSessions(logger)
	}

	provider := cfg.Provider
	if provider == nil {
		provider = identity.Unconfigured()
	}
	bundle := cfg.Bundle
	if bundle == nil {
		bundle = i18n.Default()
	}

	csrfCfg := custommw.CSRFConfig{
		CookieName: cfg.CSRFCookieName,
		CookiePath: basePath,
		Secure:     cfg.CSRFCookieSecure,
	}

	h := &authHandlers{
		provider:  provider,
		cache:     cfg.Cache,
		bundle:    bundle,
		signUp:    form.SignUp(),
		paths:     paths,
		publicURL: strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/"),
	}

	mountAuthRoutes(router, h, routeOptions{
		Sessions: sessions,
		CSRF:     csrfCfg,
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}
}

type routeOptions struct {
	Sessions custommw.SessionStore
	CSRF     custommw.CSRFConfig
}

func mountAuthRoutes(router chi.Router, h *authHandlers, opts routeOptions) {
	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.Session(opts.Sessions))
		r.Use(custommw.CSRF(opts.CSRF))

		r.Get(h.paths.login, h.LoginForm)
		r.Post(h.paths.login, h.LoginSubmit)
		RegisterFragment(r, h.paths.loginState, h.LoginState)
		r.Get(h.paths.google, h.GoogleStart)
		r.Get(h.paths.googleCallback, h.GoogleCallback)

		r.Get(h.paths.signUp, h.SignUpForm)
		r.Post(h.paths.signUp, h.SignUpSubmit)
		RegisterFragment(r, h.paths.validate, h.SignUpValidate)
	})
}

// RegisterFragment registers a POST handler intended for htmx fragment rendering.
func RegisterFragment(r chi.Router, pattern string, handler http.HandlerFunc) {
	r.With(custommw.RequireHTMX()).Post(pattern, handler)
}

type routePaths struct {
	login          string
	loginState     string
	google         string
	googleCallback string
	signUp         string
	validate       string
	recovery       string
	afterLogin     string
}

func resolvePaths(base string, cfg Config) routePaths {
	login := firstNonEmpty(normalizeRoute(cfg.LoginPath), joinRoute(base, "login"))
	signUp := firstNonEmpty(normalizeRoute(cfg.SignUpPath), joinRoute(base, "signup"))
	return routePaths{
		login:          login,
		loginState:     joinRoute(login, "state"),
		google:         joinRoute(login, "google"),
		googleCallback: joinRoute(login, "google/callback"),
		signUp:         signUp,
		validate:       joinRoute(signUp, "validate"),
		recovery:       firstNonEmpty(strings.TrimSpace(cfg.RecoveryPath), "/password/edit"),
		afterLogin:     firstNonEmpty(strings.TrimSpace(cfg.AfterLoginPath), login),
	}
}

func ephemeralSessions(logger *zap.Logger) *appsession.Manager {
	logger.Warn("session keys not configured: using ephemeral keys")
	manager, err := appsession.NewManager(appsession.Config{
		HashKey:  appsession.GenerateKey(32),
		BlockKey: appsession.GenerateKey(32),
	})
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}
	return manager
}

func normalizeBasePath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}

func normalizeRoute(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	return normalizeBasePath(path)
}

func joinRoute(base, leaf string) string {
	if base == "/" {
		return "/" + leaf
	}
	return strings.TrimRight(base, "/") + "/" + leaf
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
