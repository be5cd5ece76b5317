package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ProviderGoogle is the provider identifier used for federated Google sign-in.
const ProviderGoogle = "google.com"

var (
	// ErrProviderRejected reports that the provider refused the request (bad credentials, duplicate account, ...).
	ErrProviderRejected = errors.New("identity provider rejected the request")
	// ErrProviderUnavailable reports transport failures, timeouts and provider-side outages.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrNotConfigured is returned by the placeholder provider used when no provider is wired.
	ErrNotConfigured = errors.New("identity provider not configured")
)

// Identity is the provider's description of an authenticated user. The pages
// never look inside it; it is cached verbatim.
type Identity struct {
	raw json.RawMessage
}

// NewIdentity wraps a provider JSON document. The document must be valid JSON.
func NewIdentity(raw []byte) (Identity, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Identity{}, errors.New("identity: empty document")
	}
	if !json.Valid(trimmed) {
		return Identity{}, errors.New("identity: invalid json document")
	}
	cp := make([]byte, len(trimmed))
	copy(cp, trimmed)
	return Identity{raw: cp}, nil
}

// IsZero reports whether the identity carries no document.
func (i Identity) IsZero() bool {
	return len(i.raw) == 0
}

// MarshalJSON returns the provider document unchanged.
func (i Identity) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return i.raw, nil
}

// String returns the JSON document, the form stored in the identity cache.
func (i Identity) String() string {
	if i.IsZero() {
		return ""
	}
	return string(i.raw)
}

// FederatedStart describes the redirect that begins a federated sign-in.
type FederatedStart struct {
	// AuthURI is where the browser must be sent.
	AuthURI string
	// SessionID is the handshake id the completion step needs back.
	SessionID string
}

// Provider is the external identity service the pages delegate to.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Identity, error)
	BeginFederatedSignIn(ctx context.Context, providerID, continueURI string) (FederatedStart, error)
	CompleteFederatedSignIn(ctx context.Context, requestURI, sessionID string) (Identity, error)
	CreateAccount(ctx context.Context, email, password string) (Identity, error)
}

// ProviderError wraps a provider failure with the operation that produced it.
type ProviderError struct {
	Op     string
	Reason string
	Kind   error
	Err    error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("identity: %s", e.Op)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Rejected builds a ProviderError classified as ErrProviderRejected.
func Rejected(op, reason string, err error) error {
	return &ProviderError{Op: op, Reason: reason, Kind: ErrProviderRejected, Err: err}
}

// Unavailable builds a ProviderError classified as ErrProviderUnavailable.
func Unavailable(op string, err error) error {
	return &ProviderError{Op: op, Kind: ErrProviderUnavailable, Err: err}
}

// Classify returns the log label for a provider error.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProviderRejected):
		return "rejected"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

type unconfigured struct{}

// Unconfigured returns a Provider that fails every call with ErrNotConfigured.
func Unconfigured() Provider { return unconfigured{} }

func (unconfigured) SignInWithPassword(context.Context, string, string) (Identity, error) {
	return Identity{}, ErrNotConfigured
}

func (unconfigured) BeginFederatedSignIn(context.Context, string, string) (FederatedStart, error) {
	return FederatedStart{}, ErrNotConfigured
}

func (unconfigured) CompleteFederatedSignIn(context.Context, string, string) (Identity, error) {
	return Identity{}, ErrNotConfigured
}

func (unconfigured) CreateAccount(context.Context, string, string) (Identity, error) {
	return Identity{}, ErrNotConfigured
}
