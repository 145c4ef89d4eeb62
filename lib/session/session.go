// Package session runs the low-friction checkbox path: a nonce-bound
// ephemeral session that can be verified exactly once. A failed
// verification leaves the session redeemable until it expires; only
// success consumes it.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/site"
	"github.com/CerberHQ/cerber/lib/store"
	"github.com/CerberHQ/cerber/lib/token"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("session: unknown nonce")
	ErrExpired         = errors.New("session: expired")
	ErrAlreadyVerified = errors.New("session: already verified")
	ErrBelowFloor      = errors.New("session: score below pass floor")
)

// recordGrace keeps expired sessions readable past their expiry so a
// late redemption rejects as expired, not as unknown.
const recordGrace = 5 * time.Minute

// Session is one checkbox-widget session.
type Session struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Nonce     string    `json:"nonce"`
	Verified  bool      `json:"verified"`
	TokenID   string    `json:"token_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager creates and redeems checkbox sessions.
type Manager struct {
	sessions  *store.JSON[Session]
	sites     *site.Registry
	authority *token.Authority
	cfg       config.Sessions
}

func NewManager(backend store.Interface, sites *site.Registry, authority *token.Authority, cfg config.Sessions) *Manager {
	return &Manager{
		sessions:  &store.JSON[Session]{Underlying: backend, Prefix: "session:"},
		sites:     sites,
		authority: authority,
		cfg:       cfg,
	}
}

// Init opens a session for a site and returns it with a fresh single-use
// nonce.
func (m *Manager) Init(ctx context.Context, siteID string) (Session, error) {
	if _, err := m.sites.Active(ctx, siteID); err != nil {
		return Session{}, err
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Session{}, fmt.Errorf("session: can't generate nonce: %w", err)
	}

	now := time.Now()
	ttl := time.Duration(m.cfg.TTLSeconds) * time.Second

	result := Session{
		ID:        uuid.NewString(),
		SiteID:    siteID,
		Nonce:     hex.EncodeToString(nonce),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := m.sessions.Set(ctx, result.Nonce, result, ttl+recordGrace); err != nil {
		return Session{}, fmt.Errorf("session: can't persist: %w", err)
	}

	return result, nil
}

// Redeem verifies a session against the behavior and device sub-scores.
// The pass gate is a weighted blend against the policy floor. On pass the
// verified flag flips exactly once and a verify token is minted with the
// session as subject; exactly one of two concurrent redemptions can win
// the flip. On fail the session is left untouched and stays redeemable.
func (m *Manager) Redeem(ctx context.Context, nonce, origin string, behaviorScore, deviceScore int) (Session, string, int, error) {
	blended := int(math.Round(m.cfg.BehaviorWeight*float64(behaviorScore) + m.cfg.DeviceWeight*float64(deviceScore)))

	var result Session

	err := m.sessions.Swap(ctx, nonce, func(old Session, found bool) (Session, time.Duration, error) {
		if !found {
			return Session{}, 0, ErrNotFound
		}
		if time.Now().After(old.ExpiresAt) {
			return Session{}, 0, fmt.Errorf("%w: %s", ErrExpired, old.ID)
		}
		if old.Verified {
			return Session{}, 0, fmt.Errorf("%w: %s", ErrAlreadyVerified, old.ID)
		}
		if blended < m.cfg.PassFloor {
			return Session{}, 0, fmt.Errorf("%w: %d < %d", ErrBelowFloor, blended, m.cfg.PassFloor)
		}

		old.Verified = true
		result = old

		return old, time.Until(old.ExpiresAt) + recordGrace, nil
	})
	if err != nil {
		return Session{}, "", blended, err
	}

	identity, err := m.sites.Get(ctx, result.SiteID)
	if err != nil {
		m.releaseFlip(ctx, nonce)
		return Session{}, "", blended, err
	}

	bearer, record, err := m.authority.Issue(ctx, identity, result.ID, blended, origin)
	if err != nil {
		m.releaseFlip(ctx, nonce)
		return Session{}, "", blended, err
	}

	// Best-effort backlink; the token record is authoritative either way.
	result.TokenID = record.TokenID
	_ = m.sessions.Set(ctx, nonce, result, time.Until(result.ExpiresAt)+recordGrace)

	return result, bearer, blended, nil
}

// releaseFlip reverts a verification flip whose token never minted, so an
// internal failure after the swap does not burn the session.
func (m *Manager) releaseFlip(ctx context.Context, nonce string) {
	err := m.sessions.Swap(ctx, nonce, func(old Session, found bool) (Session, time.Duration, error) {
		if !found {
			return Session{}, 0, ErrNotFound
		}

		old.Verified = false
		old.TokenID = ""

		return old, time.Until(old.ExpiresAt) + recordGrace, nil
	})
	if err != nil {
		slog.Error("can't release session verification flip", "nonce", nonce, "err", err)
	}
}
