// Package site manages tenant identities. Each site gets its own Ed25519
// keypair at onboarding; tokens are signed per-site so one leaked key
// never crosses tenants. The private key is stored server-side only and
// is never part of any response payload.
package site

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/CerberHQ/cerber/lib/store"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("site: no such site")
	ErrInactive = errors.New("site: site is deactivated")
)

// identityTTL bounds how long a registered identity lives in the store.
// Long on purpose: identities are durable tenant state, not ephemeral
// protocol state, and every write refreshes the clock.
const identityTTL = 365 * 24 * time.Hour

// Identity is one tenant's signing material and status.
type Identity struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Active     bool               `json:"active"`
	CreatedAt  time.Time          `json:"created_at"`
	SigningKey ed25519.PrivateKey `json:"signing_key"`
	VerifyKey  ed25519.PublicKey  `json:"verify_key"`
}

// Registry looks up and onboards site identities.
type Registry struct {
	identities *store.JSON[Identity]
}

func NewRegistry(backend store.Interface) *Registry {
	return &Registry{
		identities: &store.JSON[Identity]{Underlying: backend, Prefix: "site:"},
	}
}

// Register onboards a new site with a freshly generated keypair. The
// identity starts active.
func (r *Registry) Register(ctx context.Context, name string) (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("site: can't generate keypair: %w", err)
	}

	result := Identity{
		ID:         uuid.NewString(),
		Name:       name,
		Active:     true,
		CreatedAt:  time.Now(),
		SigningKey: priv,
		VerifyKey:  pub,
	}

	if err := r.identities.Set(ctx, result.ID, result, identityTTL); err != nil {
		return Identity{}, fmt.Errorf("site: can't persist identity: %w", err)
	}

	return result, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Identity, error) {
	result, err := r.identities.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Identity{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case err != nil:
		return Identity{}, err
	}

	return result, nil
}

// Active returns the identity only if it may take new verification work.
func (r *Registry) Active(ctx context.Context, id string) (Identity, error) {
	result, err := r.Get(ctx, id)
	if err != nil {
		return Identity{}, err
	}

	if !result.Active {
		return Identity{}, fmt.Errorf("%w: %s", ErrInactive, id)
	}

	return result, nil
}

// Deactivate flips the active flag off. Existing tokens stay redeemable
// until they expire; no new challenges or tokens are issued for the site.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	err := r.identities.Swap(ctx, id, func(old Identity, found bool) (Identity, time.Duration, error) {
		if !found {
			return Identity{}, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		old.Active = false
		return old, identityTTL, nil
	})

	return err
}
