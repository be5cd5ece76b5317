package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/sync/singleflight"
)

// Deduplicate collapses concurrent identical calls (same operation and
// credentials) into a single provider request. Every caller receives the
// shared result. Federated starts are not collapsed since each needs its own
// handshake id.
//
// The shared call runs detached from the caller that started it, so one client
// disconnecting does not fail the others; each caller stops waiting when its
// own context ends.
func Deduplicate(p Provider) Provider {
	if p == nil {
		return Unconfigured()
	}
	if d, ok := p.(*deduplicated); ok {
		return d
	}
	return &deduplicated{next: p}
}

type deduplicated struct {
	next  Provider
	group singleflight.Group
}

func (d *deduplicated) SignInWithPassword(ctx context.Context, email, password string) (Identity, error) {
	return d.do(ctx, "signin", email, password, func(ctx context.Context) (Identity, error) {
		return d.next.SignInWithPassword(ctx, email, password)
	})
}

func (d *deduplicated) BeginFederatedSignIn(ctx context.Context, providerID, continueURI string) (FederatedStart, error) {
	return d.next.BeginFederatedSignIn(ctx, providerID, continueURI)
}

func (d *deduplicated) CompleteFederatedSignIn(ctx context.Context, requestURI, sessionID string) (Identity, error) {
	return d.do(ctx, "federated", sessionID, requestURI, func(ctx context.Context) (Identity, error) {
		return d.next.CompleteFederatedSignIn(ctx, requestURI, sessionID)
	})
}

func (d *deduplicated) CreateAccount(ctx context.Context, email, password string) (Identity, error) {
	return d.do(ctx, "signup", email, password, func(ctx context.Context) (Identity, error) {
		return d.next.CreateAccount(ctx, email, password)
	})
}

func (d *deduplicated) do(ctx context.Context, op, subject, secret string, fn func(context.Context) (Identity, error)) (Identity, error) {
	shared := context.WithoutCancel(ctx)
	ch := d.group.DoChan(flightKey(op, subject, secret), func() (any, error) {
		return fn(shared)
	})
	select {
	case res := <-ch:
		id, _ := res.Val.(Identity)
		return id, res.Err
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	}
}

func flightKey(op, subject, secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return op + "\x00" + subject + "\x00" + hex.EncodeToString(sum[:])
}
