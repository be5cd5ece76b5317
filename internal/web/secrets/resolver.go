package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	tracerName          = "myidoru.app/web/internal/web/secrets"
)

// ErrNotFound reports that neither Secret Manager nor the local fallback holds the secret.
var ErrNotFound = errors.New("secrets: secret not found")

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver resolves secret:// references against Google Secret Manager, caching
// successful lookups and falling back to a local dotenv-style file.
type Resolver struct {
	client     secretManagerClient
	ownsClient bool
	projectID  string
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string

	mu    sync.RWMutex
	cache map[string]string
}

type resolverConfig struct {
	projectID    string
	logger       *zap.Logger
	client       secretManagerClient
	clientOpts   []option.ClientOption
	fallbackPath string
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

// WithProject sets the project that owns unqualified secret names.
func WithProject(projectID string) Option {
	return func(cfg *resolverConfig) {
		cfg.projectID = strings.TrimSpace(projectID)
	}
}

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *resolverConfig) {
		cfg.logger = logger
	}
}

// WithSecretManagerClient injects a preconfigured Secret Manager client (primarily for tests).
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *resolverConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *resolverConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *resolverConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// NewResolver builds a Resolver. A Secret Manager client that cannot be
// created leaves the resolver in fallback-only mode.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := resolverConfig{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	r := &Resolver{
		projectID:    cfg.projectID,
		logger:       cfg.logger,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
	}

	switch {
	case cfg.client != nil:
		r.client = cfg.client
	case cfg.projectID != "":
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}

	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "secrets.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("secret.name", parsed.Secret))

	key := parsed.resourceName(r.projectID)
	if value, ok := r.lookupCache(key); ok {
		span.SetAttributes(attribute.String("secret.source", "cache"))
		return value, nil
	}

	if r.client != nil && key != "" {
		value, fetchErr := r.fetchRemote(ctx, key)
		if fetchErr == nil {
			r.storeCache(key, value)
			span.SetAttributes(attribute.String("secret.source", "remote"))
			return value, nil
		}
		if !isFallbackError(fetchErr) {
			span.RecordError(fetchErr)
			span.SetStatus(codes.Error, "fetch failed")
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.Secret, fetchErr)
		}
		r.logger.Debug("secrets: falling back to local secrets", zap.String("secret", parsed.Secret), zap.Error(fetchErr))
	}

	value, ok := r.lookupFallback(parsed.Secret)
	if !ok {
		span.SetStatus(codes.Error, "not found")
		return "", fmt.Errorf("%w: %s", ErrNotFound, parsed.Secret)
	}
	if key != "" {
		r.storeCache(key, value)
	}
	span.SetAttributes(attribute.String("secret.source", "fallback"))
	return value, nil
}

func (r *Resolver) fetchRemote(ctx context.Context, name string) (string, error) {
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) lookupCache(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.cache[key]
	return value, ok
}

func (r *Resolver) storeCache(key, value string) {
	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
}

func (r *Resolver) lookupFallback(secret string) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallbackVals = map[string]string{}
		if r.fallbackPath == "" {
			return
		}
		values, err := godotenv.Read(r.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("secrets: unable to read fallback file", zap.String("path", r.fallbackPath), zap.Error(err))
			}
			return
		}
		r.fallbackVals = values
	})
	value, ok := r.fallbackVals[secret]
	return value, ok
}

func isFallbackError(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case grpccodes.NotFound, grpccodes.PermissionDenied, grpccodes.Unauthenticated, grpccodes.Unavailable:
		return true
	}
	return false
}

type parsedReference struct {
	Secret  string
	Project string
	Version string
}

// resourceName returns the Secret Manager version name, or "" when no project is known.
func (p parsedReference) resourceName(defaultProject string) string {
	project := p.Project
	if project == "" {
		project = defaultProject
	}
	if project == "" {
		return ""
	}
	version := p.Version
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, p.Secret, version)
}

func parseReference(ref string) (parsedReference, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	if strings.HasPrefix(trimmed, "sm://") {
		trimmed = "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}

	path := strings.Trim(u.Host+u.Path, "/")
	parsed := parsedReference{Version: strings.TrimSpace(u.Query().Get("version"))}

	// secret://projects/{project}/secrets/{name}[/versions/{version}]
	segments := strings.Split(path, "/")
	if len(segments) >= 4 && segments[0] == "projects" && segments[2] == "secrets" {
		parsed.Project = segments[1]
		parsed.Secret = segments[3]
		if len(segments) >= 6 && segments[4] == "versions" && parsed.Version == "" {
			parsed.Version = segments[5]
		}
	} else {
		parsed.Secret = path
	}

	if parsed.Secret == "" || strings.Contains(parsed.Secret, "/") {
		return parsedReference{}, fmt.Errorf("secrets: missing or malformed secret name in %q", ref)
	}
	return parsed, nil
}
