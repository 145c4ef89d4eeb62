package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CerberHQ/cerber/lib/audit"
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/site"
	"github.com/CerberHQ/cerber/lib/store/memory"
	"github.com/golang-jwt/jwt/v5"
)

func testAuthority(t *testing.T) (*Authority, site.Identity) {
	t.Helper()

	backend := memory.New(t.Context())
	sites := site.NewRegistry(backend)

	identity, err := sites.Register(t.Context(), "example.com")
	if err != nil {
		t.Fatal(err)
	}

	authority := NewAuthority(backend, sites, audit.NewRecorder(backend), config.Default().Tokens)

	return authority, identity
}

func TestIssueAndRedeem(t *testing.T) {
	authority, identity := testAuthority(t)

	bearer, record, err := authority.Issue(t.Context(), identity, "challenge-1", 87, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	redemption, err := authority.Redeem(t.Context(), bearer, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	if redemption.TokenID != record.TokenID {
		t.Errorf("want token id %s, got %s", record.TokenID, redemption.TokenID)
	}
	if redemption.SubjectID != "challenge-1" {
		t.Errorf("want subject challenge-1, got %s", redemption.SubjectID)
	}
	if redemption.Score != 87 {
		t.Errorf("want score 87, got %d", redemption.Score)
	}
}

func TestSingleUse(t *testing.T) {
	authority, identity := testAuthority(t)

	bearer, _, err := authority.Issue(t.Context(), identity, "challenge-1", 87, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := authority.Redeem(t.Context(), bearer, "203.0.113.7"); err != nil {
		t.Fatal(err)
	}

	if _, err := authority.Redeem(t.Context(), bearer, "203.0.113.7"); !errors.Is(err, ErrAlreadyUsed) {
		t.Errorf("want ErrAlreadyUsed, got %v", err)
	}
}

func TestConcurrentRedemption(t *testing.T) {
	authority, identity := testAuthority(t)

	bearer, _, err := authority.Issue(t.Context(), identity, "challenge-1", 87, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	const workers = 16

	var succeeded atomic.Int64
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := authority.Redeem(context.Background(), bearer, "203.0.113.7"); err == nil {
				succeeded.Add(1)
			}
		}()
	}

	wg.Wait()

	if got := succeeded.Load(); got != 1 {
		t.Errorf("want exactly 1 successful redemption, got %d", got)
	}
}

func TestOriginBinding(t *testing.T) {
	authority, identity := testAuthority(t)

	bearer, _, err := authority.Issue(t.Context(), identity, "challenge-1", 87, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := authority.Redeem(t.Context(), bearer, "198.51.100.9"); !errors.Is(err, ErrOriginMismatch) {
		t.Errorf("want ErrOriginMismatch, got %v", err)
	}

	// The failed binding check must not consume the token.
	if _, err := authority.Redeem(t.Context(), bearer, "203.0.113.7"); err != nil {
		t.Errorf("token consumed by a rejected redemption: %v", err)
	}
}

func TestRedeemUnknownBearer(t *testing.T) {
	authority, identity := testAuthority(t)

	if _, err := authority.Redeem(t.Context(), "not a token", ""); !errors.Is(err, ErrNoRecord) {
		t.Errorf("want ErrNoRecord, got %v", err)
	}

	// A well-formed bearer with no persisted record is indistinguishable
	// from a forgery.
	bearer, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"jti": "never-issued",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(identity.SigningKey)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := authority.Redeem(t.Context(), bearer, ""); !errors.Is(err, ErrNoRecord) {
		t.Errorf("want ErrNoRecord, got %v", err)
	}
}

func TestRedeemExpired(t *testing.T) {
	authority, identity := testAuthority(t)

	record := Record{
		TokenID:   "expired-token",
		SubjectID: "challenge-1",
		SiteID:    identity.ID,
		Score:     87,
		IssuedAt:  time.Now().Add(-5 * time.Minute),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := authority.records.Set(t.Context(), record.TokenID, record, time.Minute); err != nil {
		t.Fatal(err)
	}

	bearer, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"jti": record.TokenID,
	}).SignedString(identity.SigningKey)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := authority.Redeem(t.Context(), bearer, ""); !errors.Is(err, ErrExpired) {
		t.Errorf("want ErrExpired, got %v", err)
	}
}

func TestRedeemForeignSignature(t *testing.T) {
	authority, identity := testAuthority(t)

	_, record, err := authority.Issue(t.Context(), identity, "challenge-1", 87, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	// Re-sign the same claims with a key the site registry has never
	// seen. The record exists, so the rejection must name the signature.
	otherBackend := memory.New(t.Context())
	otherSites := site.NewRegistry(otherBackend)
	impostor, err := otherSites.Register(t.Context(), "impostor.example")
	if err != nil {
		t.Fatal(err)
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"jti":   record.TokenID,
		"sub":   record.SubjectID,
		"site":  record.SiteID,
		"score": record.Score,
		"exp":   record.ExpiresAt.Unix(),
	}).SignedString(impostor.SigningKey)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := authority.Redeem(t.Context(), forged, "203.0.113.7"); !errors.Is(err, ErrBadSignature) {
		t.Errorf("want ErrBadSignature, got %v", err)
	}
}

func TestRedeemPayloadMismatch(t *testing.T) {
	authority, identity := testAuthority(t)

	_, record, err := authority.Issue(t.Context(), identity, "challenge-1", 87, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}

	// Validly signed, but claims a different subject than the record.
	substituted, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"jti":   record.TokenID,
		"sub":   "some-other-challenge",
		"site":  record.SiteID,
		"score": record.Score,
		"exp":   record.ExpiresAt.Unix(),
	}).SignedString(identity.SigningKey)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := authority.Redeem(t.Context(), substituted, "203.0.113.7"); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("want ErrPayloadMismatch, got %v", err)
	}
}

func TestChallengeToken(t *testing.T) {
	_, identity := testAuthority(t)

	bearer, err := IssueChallengeToken(identity, "challenge-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if err := VerifyChallengeToken(identity, bearer, "challenge-1"); err != nil {
		t.Errorf("fresh challenge token rejected: %v", err)
	}

	if err := VerifyChallengeToken(identity, bearer, "challenge-2"); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("want ErrPayloadMismatch, got %v", err)
	}

	expired, err := IssueChallengeToken(identity, "challenge-1", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if err := VerifyChallengeToken(identity, expired, "challenge-1"); !errors.Is(err, ErrExpired) {
		t.Errorf("want ErrExpired, got %v", err)
	}
}

func TestReasonFor(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want string
	}{
		{err: ErrNoRecord, want: "no-record"},
		{err: ErrAlreadyUsed, want: "already-used"},
		{err: ErrExpired, want: "expired"},
		{err: ErrBadSignature, want: "bad-signature"},
		{err: ErrPayloadMismatch, want: "payload-mismatch"},
		{err: ErrOriginMismatch, want: "origin-mismatch"},
		{err: errors.New("database on fire"), want: "internal"},
	} {
		if got := ReasonFor(tt.err); got != tt.want {
			t.Errorf("ReasonFor(%v): want %s, got %s", tt.err, tt.want, got)
		}
	}
}
