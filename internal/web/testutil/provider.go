package testutil

import (
	"context"
	"sync"

	"myidoru.app/web/internal/web/identity"
)

// Provider operation names recorded by StubProvider.
const (
	OpSignIn            = "sign_in_with_password"
	OpBeginFederated    = "begin_federated_sign_in"
	OpCompleteFederated = "complete_federated_sign_in"
	OpCreateAccount     = "create_account"
)

// ProviderCall captures the arguments of one provider call.
type ProviderCall struct {
	Op          string
	Email       string
	Password    string
	ProviderID  string
	ContinueURI string
	RequestURI  string
	SessionID   string
}

// StubProvider is an in-memory identity.Provider that records calls and
// returns the configured outcome.
type StubProvider struct {
	mu sync.Mutex

	Identity identity.Identity
	Err      error
	// FederatedErr overrides Err for the federated operations when set.
	FederatedErr error
	Start        identity.FederatedStart
	// Gate, when set, holds password sign-ins until it is closed or the
	// caller's context ends.
	Gate chan struct{}

	calls []ProviderCall
}

var _ identity.Provider = (*StubProvider)(nil)

// NewStubProvider returns a provider that succeeds with the given identity document.
func NewStubProvider(rawIdentity string) *StubProvider {
	id, err := identity.NewIdentity([]byte(rawIdentity))
	if err != nil {
		panic(err)
	}
	return &StubProvider{
		Identity: id,
		Start: identity.FederatedStart{
			AuthURI:   "https://accounts.example.com/o/oauth2/auth?client_id=test",
			SessionID: "handshake-1",
		},
	}
}

// SetResult swaps the identity returned by subsequent calls.
func (s *StubProvider) SetResult(rawIdentity string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
	if rawIdentity == "" {
		s.Identity = identity.Identity{}
		return
	}
	id, parseErr := identity.NewIdentity([]byte(rawIdentity))
	if parseErr != nil {
		panic(parseErr)
	}
	s.Identity = id
}

func (s *StubProvider) SignInWithPassword(ctx context.Context, email, password string) (identity.Identity, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ProviderCall{Op: OpSignIn, Email: email, Password: password})
	id, err, gate := s.Identity, s.Err, s.Gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return identity.Identity{}, ctx.Err()
		}
	}
	if err != nil {
		return identity.Identity{}, err
	}
	return id, nil
}

func (s *StubProvider) BeginFederatedSignIn(_ context.Context, providerID, continueURI string) (identity.FederatedStart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ProviderCall{Op: OpBeginFederated, ProviderID: providerID, ContinueURI: continueURI})
	if err := s.federatedErr(); err != nil {
		return identity.FederatedStart{}, err
	}
	return s.Start, nil
}

func (s *StubProvider) CompleteFederatedSignIn(_ context.Context, requestURI, sessionID string) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ProviderCall{Op: OpCompleteFederated, RequestURI: requestURI, SessionID: sessionID})
	if err := s.federatedErr(); err != nil {
		return identity.Identity{}, err
	}
	return s.Identity, nil
}

func (s *StubProvider) CreateAccount(_ context.Context, email, password string) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ProviderCall{Op: OpCreateAccount, Email: email, Password: password})
	if s.Err != nil {
		return identity.Identity{}, s.Err
	}
	return s.Identity, nil
}

// Calls returns the recorded calls for op, or every call when op is empty.
func (s *StubProvider) Calls(op string) []ProviderCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProviderCall, 0, len(s.calls))
	for _, c := range s.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *StubProvider) federatedErr() error {
	if s.FederatedErr != nil {
		return s.FederatedErr
	}
	return s.Err
}
