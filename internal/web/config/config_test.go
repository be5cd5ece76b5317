package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if cfg.Paths.Base != "/" {
		t.Errorf("expected base path /, got %s", cfg.Paths.Base)
	}
	if cfg.Paths.Login != "/login" || cfg.Paths.SignUp != "/signup" {
		t.Errorf("unexpected page paths: %+v", cfg.Paths)
	}
	if cfg.Paths.AfterLogin != "/login" {
		t.Errorf("expected after-login path to default to login path, got %s", cfg.Paths.AfterLogin)
	}
	if cfg.Paths.Recovery != defaultRecoveryPath {
		t.Errorf("unexpected recovery path %s", cfg.Paths.Recovery)
	}
	if cfg.Firebase.Timeout != defaultProviderTimeout {
		t.Errorf("unexpected provider timeout %s", cfg.Firebase.Timeout)
	}
	if cfg.Cache.Backend != CacheBackendMemory {
		t.Errorf("expected memory cache backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"WEB_HTTP_ADDR":            ":9090",
		"WEB_BASE_PATH":            "/app/",
		"WEB_AFTER_LOGIN_PATH":     "/app/home",
		"WEB_FIREBASE_PROJECT_ID":  "myidoru-prod",
		"WEB_FIREBASE_API_KEY":     "sm://firebase-api-key",
		"WEB_SESSION_HASH_KEY":     "secret://session-hash",
		"WEB_SESSION_IDLE_TIMEOUT": "45m",
		"WEB_CACHE_BACKEND":        "REDIS",
		"WEB_REDIS_ADDR":           "localhost:6379",
		"WEB_REDIS_DB":             "2",
		"WEB_ENVIRONMENT":          "prod",
	}

	var requested []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		requested = append(requested, ref)
		switch ref {
		case "secret://firebase-api-key":
			return "api-key-value", nil
		case "secret://session-hash":
			return "0123456789abcdef0123456789abcdef", nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("unexpected address %s", cfg.Server.Address)
	}
	if cfg.Paths.Base != "/app" || cfg.Paths.Login != "/app/login" || cfg.Paths.SignUp != "/app/signup" {
		t.Errorf("unexpected paths %+v", cfg.Paths)
	}
	if cfg.Paths.AfterLogin != "/app/home" {
		t.Errorf("unexpected after-login path %s", cfg.Paths.AfterLogin)
	}
	if cfg.Firebase.APIKey != "api-key-value" {
		t.Errorf("expected resolved api key, got %q", cfg.Firebase.APIKey)
	}
	if cfg.Session.HashKey != "0123456789abcdef0123456789abcdef" {
		t.Errorf("expected resolved hash key, got %q", cfg.Session.HashKey)
	}
	if cfg.Session.IdleTimeout != 45*time.Minute {
		t.Errorf("unexpected idle timeout %s", cfg.Session.IdleTimeout)
	}
	if cfg.Cache.Backend != CacheBackendRedis || cfg.Cache.RedisDB != 2 {
		t.Errorf("unexpected cache config %+v", cfg.Cache)
	}
	if cfg.Secrets.ProjectID != "myidoru-prod" {
		t.Errorf("expected secrets project to default to firebase project, got %s", cfg.Secrets.ProjectID)
	}
	if len(requested) != 2 {
		t.Errorf("expected two secret lookups, got %v", requested)
	}
}

func TestLoadSecretFailure(t *testing.T) {
	env := map[string]string{
		"WEB_FIREBASE_API_KEY": "sm://missing",
	}
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Fatalf("unexpected ref %s", secretErr.Ref)
	}
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"WEB_ENVIRONMENT":       "prod",
		"WEB_CACHE_BACKEND":     "redis",
		"WEB_SESSION_BLOCK_KEY": "short",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := map[string]bool{
		"Cache.RedisAddr":    true,
		"Firebase.APIKey":    true,
		"Firebase.ProjectID": true,
		"Session.BlockKey":   true,
		"Session.HashKey":    true,
	}
	fields := validationErr.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields %v", fields)
	}
	for _, field := range fields {
		if !want[field] {
			t.Errorf("unexpected field %s", field)
		}
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nWEB_HTTP_ADDR=:7070\nWEB_FIREBASE_PROJECT_ID=\"from-dotenv\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"WEB_HTTP_ADDR": ":6060"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Address != ":6060" {
		t.Errorf("expected env map to win over dotenv, got %s", cfg.Server.Address)
	}
	if cfg.Firebase.ProjectID != "from-dotenv" {
		t.Errorf("expected dotenv project id, got %s", cfg.Firebase.ProjectID)
	}

	value, err := Lookup("WEB_FIREBASE_PROJECT_ID", WithEnvFile(path), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if value != "from-dotenv" {
		t.Errorf("unexpected lookup value %q", value)
	}
}
