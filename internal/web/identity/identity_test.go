package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewIdentityKeepsDocumentVerbatim(t *testing.T) {
	id, err := NewIdentity([]byte(`  {"localId":"u1","email":"a@b.co"}` + "\n"))
	if err != nil {
		t.Fatalf("NewIdentity returned error: %v", err)
	}
	if id.String() != `{"localId":"u1","email":"a@b.co"}` {
		t.Fatalf("unexpected document %s", id.String())
	}

	wrapped, err := json.Marshal(map[string]Identity{"user": id})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(wrapped) != `{"user":{"localId":"u1","email":"a@b.co"}}` {
		t.Fatalf("unexpected marshal %s", wrapped)
	}
}

func TestNewIdentityRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "{not json"} {
		if _, err := NewIdentity([]byte(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
	if !(Identity{}).IsZero() {
		t.Fatalf("zero identity should report IsZero")
	}
}

func TestProviderErrorClassification(t *testing.T) {
	cause := errors.New("INVALID_PASSWORD")
	err := Rejected("signInWithPassword", "INVALID_PASSWORD", cause)

	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected rejected classification")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if Classify(err) != "rejected" {
		t.Fatalf("unexpected label %s", Classify(err))
	}

	var providerErr *ProviderError
	if !errors.As(Unavailable("createAccount", context.DeadlineExceeded), &providerErr) {
		t.Fatalf("expected ProviderError")
	}
	if providerErr.Op != "createAccount" {
		t.Fatalf("unexpected op %s", providerErr.Op)
	}
	if Classify(providerErr) != "unavailable" {
		t.Fatalf("unexpected label %s", Classify(providerErr))
	}
	if Classify(ErrNotConfigured) != "not_configured" {
		t.Fatalf("unexpected label for not configured")
	}
}

func TestUnconfiguredProviderFails(t *testing.T) {
	p := Unconfigured()
	if _, err := p.SignInWithPassword(context.Background(), "a@b.co", "secret1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := p.CreateAccount(context.Background(), "a@b.co", "secret1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

type blockingProvider struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingProvider) SignInWithPassword(ctx context.Context, email, password string) (Identity, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	}
	return NewIdentity([]byte(`{"email":"` + email + `"}`))
}

func (b *blockingProvider) BeginFederatedSignIn(context.Context, string, string) (FederatedStart, error) {
	b.calls.Add(1)
	return FederatedStart{AuthURI: "https://accounts.example.com", SessionID: "s1"}, nil
}

func (b *blockingProvider) CompleteFederatedSignIn(context.Context, string, string) (Identity, error) {
	return Identity{}, errors.New("unused")
}

func (b *blockingProvider) CreateAccount(context.Context, string, string) (Identity, error) {
	b.calls.Add(1)
	<-b.release
	return Identity{}, Rejected("createAccount", "EMAIL_EXISTS", nil)
}

func TestDeduplicateCollapsesConcurrentSubmissions(t *testing.T) {
	stub := &blockingProvider{release: make(chan struct{})}
	p := Deduplicate(stub)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Identity, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.SignInWithPassword(context.Background(), "a@b.co", "secret1")
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for stub.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(stub.release)
	wg.Wait()

	if got := stub.calls.Load(); got != 1 {
		t.Fatalf("expected one provider call, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d got error %v", i, errs[i])
		}
		if results[i].String() != `{"email":"a@b.co"}` {
			t.Fatalf("caller %d got %s", i, results[i].String())
		}
	}
}

func TestDeduplicateSurvivesFirstCallerCancelling(t *testing.T) {
	stub := &blockingProvider{release: make(chan struct{})}
	p := Deduplicate(stub)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.SignInWithPassword(firstCtx, "a@b.co", "secret1")
		firstErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for stub.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	type result struct {
		id  Identity
		err error
	}
	second := make(chan result, 1)
	go func() {
		id, err := p.SignInWithPassword(context.Background(), "a@b.co", "secret1")
		second <- result{id, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancelled caller to get context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled caller kept waiting")
	}

	close(stub.release)
	select {
	case res := <-second:
		if res.err != nil {
			t.Fatalf("expected remaining caller to succeed, got %v", res.err)
		}
		if res.id.String() != `{"email":"a@b.co"}` {
			t.Fatalf("unexpected identity %s", res.id.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("remaining caller did not finish")
	}
	if got := stub.calls.Load(); got != 1 {
		t.Fatalf("expected one provider call, got %d", got)
	}
}

func TestDeduplicateKeepsDistinctCredentialsApart(t *testing.T) {
	stub := &blockingProvider{release: make(chan struct{})}
	close(stub.release)
	p := Deduplicate(stub)

	if _, err := p.SignInWithPassword(context.Background(), "a@b.co", "secret1"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := p.SignInWithPassword(context.Background(), "a@b.co", "secret2"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := p.CreateAccount(context.Background(), "a@b.co", "secret1"); !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected rejected error to pass through, got %v", err)
	}
	if got := stub.calls.Load(); got != 3 {
		t.Fatalf("expected three provider calls, got %d", got)
	}
	if Deduplicate(p) != p {
		t.Fatalf("expected Deduplicate to be idempotent")
	}
}
