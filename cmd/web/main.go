package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"myidoru.app/web/internal/web/config"
	"myidoru.app/web/internal/web/httpserver"
	"myidoru.app/web/internal/web/identity"
	firebaseidentity "myidoru.app/web/internal/web/identity/firebase"
	"myidoru.app/web/internal/web/identitycache"
	"myidoru.app/web/internal/web/observability"
	"myidoru.app/web/internal/web/secrets"
	appsession "myidoru.app/web/internal/web/session"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("web")
	ctx = observability.WithLogger(ctx, logger)

	resolver, err := newSecretResolver(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	provider := buildProvider(ctx, logger, cfg)

	sessions, err := buildSessions(logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}

	cache, closeCache := buildCache(ctx, logger, cfg)
	defer closeCache()

	srv := httpserver.New(httpserver.Config{
		Address:          cfg.Server.Address,
		BasePath:         cfg.Paths.Base,
		LoginPath:        cfg.Paths.Login,
		SignUpPath:       cfg.Paths.SignUp,
		RecoveryPath:     cfg.Paths.Recovery,
		AfterLoginPath:   cfg.Paths.AfterLogin,
		PublicURL:        cfg.Server.PublicURL,
		Provider:         provider,
		Sessions:         sessions,
		Cache:            cache,
		Logger:           logger,
		CSRFCookieSecure: cfg.Session.CookieSecure,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	logger.Info("web server listening",
		zap.String("addr", cfg.Server.Address),
		zap.String("login_path", cfg.Paths.Login),
		zap.String("signup_path", cfg.Paths.SignUp),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("environment", cfg.Environment),
	)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
	logger.Info("web server stopped")
}

func newSecretResolver(ctx context.Context, logger *zap.Logger) (*secrets.Resolver, error) {
	project, err := config.Lookup("WEB_SECRETS_PROJECT_ID")
	if err != nil {
		return nil, err
	}
	if project == "" {
		if project, err = config.Lookup("WEB_FIREBASE_PROJECT_ID"); err != nil {
			return nil, err
		}
	}
	return secrets.NewResolver(ctx,
		secrets.WithProject(project),
		secrets.WithLogger(logger.Named("secrets")),
	)
}

func buildProvider(ctx context.Context, logger *zap.Logger, cfg config.Config) identity.Provider {
	if cfg.Firebase.ProjectID == "" || cfg.Firebase.APIKey == "" {
		logger.Warn("firebase not configured; identity provider disabled")
		return identity.Unconfigured()
	}

	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
	if err != nil {
		logger.Fatal("failed to initialise firebase app", zap.Error(err))
	}
	accounts, err := app.Auth(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firebase auth client", zap.Error(err))
	}

	provider, err := firebaseidentity.New(ctx, firebaseidentity.Config{
		APIKey:   cfg.Firebase.APIKey,
		Timeout:  cfg.Firebase.Timeout,
		Accounts: accounts,
	})
	if err != nil {
		logger.Fatal("failed to initialise identity provider", zap.Error(err))
	}

	logger.Info("firebase identity provider enabled", zap.String("project", cfg.Firebase.ProjectID))
	return identity.Deduplicate(provider)
}

func buildSessions(logger *zap.Logger, cfg config.Config) (*appsession.Manager, error) {
	hashKey := []byte(cfg.Session.HashKey)
	blockKey := []byte(cfg.Session.BlockKey)
	if len(hashKey) == 0 {
		logger.Warn("session keys not configured; using ephemeral keys", zap.String("environment", cfg.Environment))
		hashKey = appsession.GenerateKey(32)
		blockKey = appsession.GenerateKey(32)
	}

	return appsession.NewManager(appsession.Config{
		CookieName:   cfg.Session.CookieName,
		HashKey:      hashKey,
		BlockKey:     blockKey,
		CookieSecure: cfg.Session.CookieSecure,
		IdleTimeout:  cfg.Session.IdleTimeout,
		Lifetime:     cfg.Session.Lifetime,
	})
}

// buildCache returns nil for the session backend, which keeps identities in the session cookie.
func buildCache(ctx context.Context, logger *zap.Logger, cfg config.Config) (identitycache.Store, func()) {
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		store := identitycache.NewRedis(client,
			identitycache.WithTTL(cfg.Cache.TTL),
			identitycache.WithKeyPrefix(cfg.Cache.RedisPrefix),
		)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			logger.Warn("redis ping failed", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
		return store, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}
	case config.CacheBackendSession:
		return nil, func() {}
	default:
		return identitycache.NewMemory(), func() {}
	}
}
