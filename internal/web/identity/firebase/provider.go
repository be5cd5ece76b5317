package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/errorutils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"myidoru.app/web/internal/web/identity"
)

const (
	defaultTimeout = 10 * time.Second
	tracerName     = "myidoru.app/web/internal/web/identity/firebase"
)

// AccountCreator abstracts the Firebase Admin SDK client for testability.
type AccountCreator interface {
	CreateUser(ctx context.Context, user *firebaseauth.UserToCreate) (*firebaseauth.UserRecord, error)
}

// Config configures the Firebase-backed identity provider.
type Config struct {
	// APIKey is the web API key used for Identity Toolkit calls.
	APIKey string
	// Timeout bounds every provider call.
	Timeout time.Duration
	// Accounts creates users through the Admin SDK.
	Accounts AccountCreator
	// ClientOptions are forwarded to the Identity Toolkit service.
	ClientOptions []option.ClientOption
}

// Provider implements identity.Provider on Firebase Authentication.
type Provider struct {
	relyingparty *identitytoolkit.RelyingpartyService
	accounts     AccountCreator
	timeout      time.Duration
	tracer       trace.Tracer
}

var _ identity.Provider = (*Provider)(nil)

// New constructs the provider. The Identity Toolkit service is authenticated with the API key.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" && len(cfg.ClientOptions) == 0 {
		return nil, errors.New("firebase: api key is required")
	}
	if cfg.Accounts == nil {
		return nil, errors.New("firebase: account creator is required")
	}

	opts := make([]option.ClientOption, 0, len(cfg.ClientOptions)+1)
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	opts = append(opts, cfg.ClientOptions...)

	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: identity toolkit service: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Provider{
		relyingparty: svc.Relyingparty,
		accounts:     cfg.Accounts,
		timeout:      timeout,
		tracer:       otel.Tracer(tracerName),
	}, nil
}

// SignInWithPassword verifies an email/password pair via relyingparty.verifyPassword.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (identity.Identity, error) {
	const op = "signInWithPassword"
	ctx, span, cancel := p.start(ctx, op)
	defer cancel()
	defer span.End()

	resp, err := p.relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return identity.Identity{}, p.fail(span, classifyToolkitError(op, err))
	}
	return p.identityFrom(span, op, resp)
}

// BeginFederatedSignIn asks Identity Toolkit for the provider authorization URI.
func (p *Provider) BeginFederatedSignIn(ctx context.Context, providerID, continueURI string) (identity.FederatedStart, error) {
	const op = "beginFederatedSignIn"
	ctx, span, cancel := p.start(ctx, op)
	defer cancel()
	defer span.End()
	span.SetAttributes(attribute.String("identity.provider_id", providerID))

	resp, err := p.relyingparty.CreateAuthUri(&identitytoolkit.IdentitytoolkitRelyingpartyCreateAuthUriRequest{
		ProviderId:  providerID,
		ContinueUri: continueURI,
	}).Context(ctx).Do()
	if err != nil {
		return identity.FederatedStart{}, p.fail(span, classifyToolkitError(op, err))
	}
	if resp == nil || resp.AuthUri == "" {
		return identity.FederatedStart{}, p.fail(span, identity.Unavailable(op, errors.New("empty auth uri")))
	}
	return identity.FederatedStart{AuthURI: resp.AuthUri, SessionID: resp.SessionId}, nil
}

// CompleteFederatedSignIn exchanges the provider callback for an identity via relyingparty.verifyAssertion.
func (p *Provider) CompleteFederatedSignIn(ctx context.Context, requestURI, sessionID string) (identity.Identity, error) {
	const op = "completeFederatedSignIn"
	ctx, span, cancel := p.start(ctx, op)
	defer cancel()
	defer span.End()

	resp, err := p.relyingparty.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		RequestUri:        requestURI,
		SessionId:         sessionID,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return identity.Identity{}, p.fail(span, classifyToolkitError(op, err))
	}
	if resp != nil && resp.ErrorMessage != "" {
		return identity.Identity{}, p.fail(span, identity.Rejected(op, resp.ErrorMessage, nil))
	}
	if resp != nil && resp.NeedConfirmation {
		return identity.Identity{}, p.fail(span, identity.Rejected(op, "NEED_CONFIRMATION", nil))
	}
	return p.identityFrom(span, op, resp)
}

// CreateAccount registers a new email/password user through the Admin SDK.
func (p *Provider) CreateAccount(ctx context.Context, email, password string) (identity.Identity, error) {
	const op = "createAccount"
	ctx, span, cancel := p.start(ctx, op)
	defer cancel()
	defer span.End()

	record, err := p.accounts.CreateUser(ctx, (&firebaseauth.UserToCreate{}).Email(email).Password(password))
	if err != nil {
		return identity.Identity{}, p.fail(span, classifyAdminError(op, err))
	}
	return p.identityFrom(span, op, record)
}

func (p *Provider) start(ctx context.Context, op string) (context.Context, trace.Span, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	ctx, span := p.tracer.Start(ctx, "identity.firebase."+op)
	return ctx, span, cancel
}

func (p *Provider) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, identity.Classify(err))
	return err
}

func (p *Provider) identityFrom(span trace.Span, op string, payload any) (identity.Identity, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return identity.Identity{}, p.fail(span, identity.Unavailable(op, fmt.Errorf("encode response: %w", err)))
	}
	id, err := identity.NewIdentity(raw)
	if err != nil || string(raw) == "null" {
		return identity.Identity{}, p.fail(span, identity.Unavailable(op, errors.New("empty response")))
	}
	return id, nil
}

func classifyToolkitError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= http.StatusBadRequest && apiErr.Code < http.StatusInternalServerError && apiErr.Code != http.StatusTooManyRequests {
			return identity.Rejected(op, apiErr.Message, err)
		}
		return identity.Unavailable(op, err)
	}
	return identity.Unavailable(op, err)
}

func classifyAdminError(op string, err error) error {
	switch {
	case firebaseauth.IsEmailAlreadyExists(err):
		return identity.Rejected(op, "EMAIL_EXISTS", err)
	case errorutils.IsInvalidArgument(err), errorutils.IsAlreadyExists(err):
		return identity.Rejected(op, "INVALID_ARGUMENT", err)
	default:
		return identity.Unavailable(op, err)
	}
}
