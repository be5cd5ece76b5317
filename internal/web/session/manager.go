package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"myidoru.app/web/internal/web/identitycache"
)

const (
	defaultCookieName  = "myidoru_session"
	defaultCookiePath  = "/"
	defaultLifetime    = 30 * 24 * time.Hour
	defaultIdleTimeout = 7 * 24 * time.Hour
	federatedStateTTL  = 10 * time.Minute

	// securecookie rejects encoded values longer than this.
	maxEncodedLength = 4096
	// Save rewrites timestamps, which can grow the encoding slightly.
	encodeHeadroom = 64
)

// ErrExpired indicates the stored session is no longer valid due to idle or absolute expiry.
var ErrExpired = errors.New("session expired")

// ErrInvalidConfig indicates the manager was initialised with missing or invalid options.
var ErrInvalidConfig = errors.New("session: invalid config")

// ErrTooLarge indicates a value would push the encoded session past the cookie size limit.
var ErrTooLarge = errors.New("session: value too large for cookie")

// FederatedState tracks an in-flight federated sign-in handshake.
type FederatedState struct {
	ProviderID string    `json:"providerId"`
	SessionID  string    `json:"sessionId"`
	StartedAt  time.Time `json:"startedAt"`
}

// Data represents the full persisted session payload.
type Data struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"createdAt"`
	LastActive time.Time         `json:"lastActive"`
	ExpiresAt  time.Time         `json:"expiresAt,omitempty"`
	CSRFToken  string            `json:"csrfToken,omitempty"`
	Federated  *FederatedState   `json:"federated,omitempty"`
	Values     map[string]string `json:"values,omitempty"`
}

// Session holds mutable state for the current request lifecycle.
type Session struct {
	data  Data
	dirty bool
	cfg   *Config
	now   func() time.Time
	fits  func(Data) error
}

var _ identitycache.Store = (*Session)(nil)

// Config controls cookie encoding and lifecycle limits for the session manager.
type Config struct {
	CookieName     string
	HashKey        []byte
	BlockKey       []byte
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieHTTPOnly *bool
	CookieSameSite http.SameSite

	IdleTimeout time.Duration
	Lifetime    time.Duration
	Now         func() time.Time
}

// Manager decodes and persists session state via signed (and optionally encrypted) cookies.
type Manager struct {
	cfg      Config
	codec    *securecookie.SecureCookie
	sizer    *securecookie.SecureCookie
	now      func() time.Time
	httpOnly bool
}

// NewManager constructs a Manager using the provided configuration.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}

	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = defaultCookiePath
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.CookieSameSite == 0 || cfg.CookieSameSite == http.SameSiteDefaultMode {
		// Lax keeps the cookie on the top-level redirect back from the federated provider.
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.Lifetime.Seconds()))

	sizer := securecookie.New(cfg.HashKey, cfg.BlockKey)
	sizer.SetSerializer(securecookie.JSONEncoder{})
	sizer.MaxLength(maxEncodedLength - encodeHeadroom)

	httpOnly := true
	if cfg.CookieHTTPOnly != nil {
		httpOnly = *cfg.CookieHTTPOnly
	}

	return &Manager{
		cfg:      cfg,
		codec:    codec,
		sizer:    sizer,
		now:      nowFn,
		httpOnly: httpOnly,
	}, nil
}

// GenerateKey returns random key material for development sessions.
func GenerateKey(length int) []byte {
	return securecookie.GenerateRandomKey(length)
}

// Load retrieves the session from the incoming request or creates a new one.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return m.newSession(m.now()), nil
	}

	var stored Data
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &stored); err != nil {
		return m.newSession(m.now()), nil
	}

	sess := m.sessionFromData(stored)
	if expired := m.isExpired(sess, m.now()); expired {
		return nil, ErrExpired
	}
	return sess, nil
}

// Save writes the session back to the response as a cookie.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}

	sess.Touch(m.now())

	encoded, err := m.codec.Encode(m.cfg.CookieName, sess.data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	cookie := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    encoded,
		Path:     m.cfg.CookiePath,
		Domain:   m.cfg.CookieDomain,
		Secure:   m.cfg.CookieSecure,
		HttpOnly: m.httpOnly,
		SameSite: m.cfg.CookieSameSite,
	}

	if !sess.data.ExpiresAt.IsZero() {
		expiry := sess.data.ExpiresAt.UTC()
		cookie.Expires = expiry
		remaining := expiry.Sub(m.now())
		if remaining <= 0 {
			cookie.MaxAge = -1
		} else {
			cookie.MaxAge = int(remaining.Round(time.Second).Seconds())
		}
	}

	http.SetCookie(w, cookie)
	return nil
}

// New returns a new empty session instance using the manager configuration.
func (m *Manager) New() *Session {
	return m.newSession(m.now())
}

func (m *Manager) newSession(now time.Time) *Session {
	data := Data{
		ID:         mustGenerateToken(32),
		CreatedAt:  now.UTC(),
		LastActive: now.UTC(),
		Values:     make(map[string]string),
	}
	data.ExpiresAt = m.cfg.computeExpiry(now)

	return &Session{
		data:  data,
		dirty: true,
		cfg:   &m.cfg,
		now:   m.now,
		fits:  m.fits,
	}
}

func (m *Manager) sessionFromData(d Data) *Session {
	if d.Values == nil {
		d.Values = make(map[string]string)
	}
	if d.ID == "" {
		d.ID = mustGenerateToken(32)
		d.CreatedAt = m.now().UTC()
		d.LastActive = d.CreatedAt
		d.ExpiresAt = m.cfg.computeExpiry(d.CreatedAt)
	}
	return &Session{
		data: d,
		cfg:  &m.cfg,
		now:  m.now,
		fits: m.fits,
	}
}

// fits reports whether the data still encodes into a cookie.
func (m *Manager) fits(d Data) error {
	if _, err := m.sizer.Encode(m.cfg.CookieName, d); err != nil {
		return fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	return nil
}

func (m *Manager) isExpired(sess *Session, now time.Time) bool {
	if sess == nil {
		return true
	}
	now = now.UTC()

	if !sess.data.ExpiresAt.IsZero() && now.After(sess.data.ExpiresAt.UTC()) {
		return true
	}

	if m.cfg.IdleTimeout > 0 {
		last := sess.data.LastActive
		if last.IsZero() {
			last = sess.data.CreatedAt
		}
		if !last.IsZero() && now.Sub(last) > m.cfg.IdleTimeout {
			return true
		}
	}
	return false
}

// ID returns the stable session identifier.
func (s *Session) ID() string {
	return s.data.ID
}

// CreatedAt returns the session creation timestamp.
func (s *Session) CreatedAt() time.Time {
	return s.data.CreatedAt
}

// LastActive returns the last access timestamp.
func (s *Session) LastActive() time.Time {
	return s.data.LastActive
}

// ExpiresAt returns the absolute expiry timestamp for the session.
func (s *Session) ExpiresAt() time.Time {
	return s.data.ExpiresAt
}

// EnsureCSRFToken returns the existing CSRF token or generates a new one on demand.
func (s *Session) EnsureCSRFToken() (string, error) {
	if s.data.CSRFToken != "" {
		return s.data.CSRFToken, nil
	}
	token, err := generateToken(32)
	if err != nil {
		return "", err
	}
	s.data.CSRFToken = token
	s.dirty = true
	return token, nil
}

// CSRFToken returns the stored CSRF token value.
func (s *Session) CSRFToken() string {
	return s.data.CSRFToken
}

// BeginFederated records the handshake id of a federated sign-in that is starting.
func (s *Session) BeginFederated(providerID, sessionID string) {
	s.data.Federated = &FederatedState{
		ProviderID: providerID,
		SessionID:  sessionID,
		StartedAt:  s.clock().UTC(),
	}
	s.dirty = true
}

// TakeFederated returns and clears the pending handshake. Handshakes older
// than ten minutes are discarded.
func (s *Session) TakeFederated() (FederatedState, bool) {
	state := s.data.Federated
	if state == nil {
		return FederatedState{}, false
	}
	s.data.Federated = nil
	s.dirty = true
	if state.SessionID == "" || s.clock().Sub(state.StartedAt) > federatedStateTTL {
		return FederatedState{}, false
	}
	return *state, true
}

// Set stores a value in the session, making the session usable as an identity cache.
// A value that would not fit in the cookie is rejected with ErrTooLarge and the
// previous value is kept.
func (s *Session) Set(_ context.Context, key, value string) error {
	if s.data.Values == nil {
		s.data.Values = make(map[string]string)
	}
	previous, had := s.data.Values[key]
	if had && previous == value {
		return nil
	}
	s.data.Values[key] = value
	if s.fits != nil {
		if err := s.fits(s.data); err != nil {
			if had {
				s.data.Values[key] = previous
			} else {
				delete(s.data.Values, key)
			}
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	s.dirty = true
	return nil
}

// Get returns a value previously stored with Set.
func (s *Session) Get(_ context.Context, key string) (string, error) {
	value, ok := s.data.Values[key]
	if !ok {
		return "", identitycache.ErrNotFound
	}
	return value, nil
}

// Touch updates the last active timestamp.
func (s *Session) Touch(now time.Time) {
	now = now.UTC()
	if now.After(s.data.LastActive) {
		s.data.LastActive = now
		s.dirty = true
	}
}

// Dirty indicates whether the session contents have changed during this request.
func (s *Session) Dirty() bool {
	return s.dirty
}

func (s *Session) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (cfg *Config) computeExpiry(from time.Time) time.Time {
	if cfg == nil || cfg.Lifetime <= 0 {
		return time.Time{}
	}
	return from.UTC().Add(cfg.Lifetime).UTC()
}

func mustGenerateToken(length int) string {
	token, err := generateToken(length)
	if err != nil {
		panic(err)
	}
	return token
}

func generateToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
