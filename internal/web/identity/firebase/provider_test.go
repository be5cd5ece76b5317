package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"myidoru.app/web/internal/web/identity"
)

type toolkitServer struct {
	t        *testing.T
	requests map[string]map[string]any
	handlers map[string]http.HandlerFunc
}

func newToolkitServer(t *testing.T) (*toolkitServer, *httptest.Server) {
	t.Helper()
	ts := &toolkitServer{t: t, requests: map[string]map[string]any{}, handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		ts.requests[method] = body
		handler, ok := ts.handlers[method]
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return ts, srv
}

func jsonResponse(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

type stubAccounts struct {
	user   *firebaseauth.UserToCreate
	record *firebaseauth.UserRecord
	err    error
}

func (s *stubAccounts) CreateUser(_ context.Context, user *firebaseauth.UserToCreate) (*firebaseauth.UserRecord, error) {
	s.user = user
	return s.record, s.err
}

func newTestProvider(t *testing.T, srv *httptest.Server, accounts AccountCreator) *Provider {
	t.Helper()
	if accounts == nil {
		accounts = &stubAccounts{}
	}
	p, err := New(context.Background(), Config{
		Accounts: accounts,
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return p
}

func TestSignInWithPasswordReturnsProviderDocument(t *testing.T) {
	ts, srv := newToolkitServer(t)
	ts.handlers["verifyPassword"] = jsonResponse(http.StatusOK, `{"kind":"identitytoolkit#VerifyPasswordResponse","localId":"u1","email":"a@b.co","idToken":"tok","registered":true}`)

	p := newTestProvider(t, srv, nil)
	id, err := p.SignInWithPassword(context.Background(), "a@b.co", "secret1")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(id.String()), &doc); err != nil {
		t.Fatalf("identity is not json: %v", err)
	}
	if doc["localId"] != "u1" || doc["idToken"] != "tok" {
		t.Fatalf("unexpected identity %s", id.String())
	}

	req := ts.requests["verifyPassword"]
	if req["email"] != "a@b.co" || req["password"] != "secret1" || req["returnSecureToken"] != true {
		t.Fatalf("unexpected request body %v", req)
	}
}

func TestSignInWithPasswordRejected(t *testing.T) {
	ts, srv := newToolkitServer(t)
	ts.handlers["verifyPassword"] = jsonResponse(http.StatusBadRequest, `{"error":{"code":400,"message":"INVALID_PASSWORD","errors":[{"message":"INVALID_PASSWORD","domain":"global","reason":"invalid"}]}}`)

	p := newTestProvider(t, srv, nil)
	_, err := p.SignInWithPassword(context.Background(), "a@b.co", "wrong")
	if !errors.Is(err, identity.ErrProviderRejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	var providerErr *identity.ProviderError
	if !errors.As(err, &providerErr) || providerErr.Reason != "INVALID_PASSWORD" {
		t.Fatalf("expected INVALID_PASSWORD reason, got %v", err)
	}
}

func TestSignInWithPasswordUnavailable(t *testing.T) {
	ts, srv := newToolkitServer(t)
	ts.handlers["verifyPassword"] = jsonResponse(http.StatusServiceUnavailable, `{"error":{"code":503,"message":"backend"}}`)

	p := newTestProvider(t, srv, nil)
	_, err := p.SignInWithPassword(context.Background(), "a@b.co", "secret1")
	if !errors.Is(err, identity.ErrProviderUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestFederatedSignInRoundTrip(t *testing.T) {
	ts, srv := newToolkitServer(t)
	ts.handlers["createAuthUri"] = jsonResponse(http.StatusOK, `{"authUri":"https://accounts.google.com/o/oauth2/auth?x=1","sessionId":"handshake-1","providerId":"google.com"}`)
	ts.handlers["verifyAssertion"] = jsonResponse(http.StatusOK, `{"localId":"g1","email":"g@b.co","providerId":"google.com","idToken":"gtok"}`)

	p := newTestProvider(t, srv, nil)
	start, err := p.BeginFederatedSignIn(context.Background(), identity.ProviderGoogle, "https://myidoru.app/login/google/callback")
	if err != nil {
		t.Fatalf("BeginFederatedSignIn returned error: %v", err)
	}
	if start.SessionID != "handshake-1" || !strings.HasPrefix(start.AuthURI, "https://accounts.google.com/") {
		t.Fatalf("unexpected start %+v", start)
	}
	if ts.requests["createAuthUri"]["providerId"] != "google.com" {
		t.Fatalf("unexpected createAuthUri body %v", ts.requests["createAuthUri"])
	}

	id, err := p.CompleteFederatedSignIn(context.Background(), "https://myidoru.app/login/google/callback?code=abc", start.SessionID)
	if err != nil {
		t.Fatalf("CompleteFederatedSignIn returned error: %v", err)
	}
	if !strings.Contains(id.String(), `"localId":"g1"`) {
		t.Fatalf("unexpected identity %s", id.String())
	}
	body := ts.requests["verifyAssertion"]
	if body["sessionId"] != "handshake-1" || body["requestUri"] != "https://myidoru.app/login/google/callback?code=abc" {
		t.Fatalf("unexpected verifyAssertion body %v", body)
	}
}

func TestCompleteFederatedSignInErrorMessage(t *testing.T) {
	ts, srv := newToolkitServer(t)
	ts.handlers["verifyAssertion"] = jsonResponse(http.StatusOK, `{"errorMessage":"INVALID_IDP_RESPONSE"}`)

	p := newTestProvider(t, srv, nil)
	_, err := p.CompleteFederatedSignIn(context.Background(), "https://myidoru.app/cb", "handshake-1")
	if !errors.Is(err, identity.ErrProviderRejected) {
		t.Fatalf("expected rejected error, got %v", err)
	}
}

func TestCreateAccount(t *testing.T) {
	_, srv := newToolkitServer(t)
	accounts := &stubAccounts{record: &firebaseauth.UserRecord{UserInfo: &firebaseauth.UserInfo{UID: "new-user", Email: "a@b.co"}}}

	p := newTestProvider(t, srv, accounts)
	id, err := p.CreateAccount(context.Background(), "a@b.co", "secret1")
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if accounts.user == nil {
		t.Fatalf("expected CreateUser to be called")
	}
	if !strings.Contains(id.String(), "new-user") {
		t.Fatalf("unexpected identity %s", id.String())
	}
}

func TestCreateAccountFailure(t *testing.T) {
	_, srv := newToolkitServer(t)
	accounts := &stubAccounts{err: errors.New("connection reset")}

	p := newTestProvider(t, srv, accounts)
	_, err := p.CreateAccount(context.Background(), "a@b.co", "secret1")
	if !errors.Is(err, identity.ErrProviderUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestNewRequiresAccountCreator(t *testing.T) {
	if _, err := New(context.Background(), Config{APIKey: "key"}); err == nil {
		t.Fatalf("expected error without account creator")
	}
	if _, err := New(context.Background(), Config{Accounts: &stubAccounts{}}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
