package session

import (
	"errors"
	"testing"
	"time"

	"github.com/CerberHQ/cerber/lib/audit"
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/site"
	"github.com/CerberHQ/cerber/lib/store/memory"
	"github.com/CerberHQ/cerber/lib/token"
)

func testManager(t *testing.T) (*Manager, *token.Authority, site.Identity) {
	t.Helper()

	cfg := config.Default()

	backend := memory.New(t.Context())
	sites := site.NewRegistry(backend)

	identity, err := sites.Register(t.Context(), "example.com")
	if err != nil {
		t.Fatal(err)
	}

	authority := token.NewAuthority(backend, sites, audit.NewRecorder(backend), cfg.Tokens)

	return NewManager(backend, sites, authority, cfg.Sessions), authority, identity
}

func TestInitAndRedeem(t *testing.T) {
	m, authority, identity := testManager(t)

	sess, err := m.Init(t.Context(), identity.ID)
	if err != nil {
		t.Fatal(err)
	}

	if sess.Nonce == "" {
		t.Fatal("session has no nonce")
	}
	if sess.Verified {
		t.Fatal("fresh session already verified")
	}

	// 0.6×90 + 0.4×70 = 82, over the floor of 60.
	got, bearer, score, err := m.Redeem(t.Context(), sess.Nonce, "203.0.113.7", 90, 70)
	if err != nil {
		t.Fatal(err)
	}

	if score != 82 {
		t.Errorf("want blended score 82, got %d", score)
	}
	if !got.Verified {
		t.Error("redeemed session not marked verified")
	}
	if bearer == "" {
		t.Fatal("no verify token minted")
	}

	redemption, err := authority.Redeem(t.Context(), bearer, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}
	if redemption.SubjectID != sess.ID {
		t.Errorf("token subject %s is not the session id %s", redemption.SubjectID, sess.ID)
	}
}

func TestInitInactiveSite(t *testing.T) {
	m, _, identity := testManager(t)

	if err := m.sites.Deactivate(t.Context(), identity.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Init(t.Context(), identity.ID); !errors.Is(err, site.ErrInactive) {
		t.Errorf("want ErrInactive, got %v", err)
	}
}

func TestRedeemUnknownNonce(t *testing.T) {
	m, _, _ := testManager(t)

	if _, _, _, err := m.Redeem(t.Context(), "bogus", "", 100, 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestRedeemTwice(t *testing.T) {
	m, _, identity := testManager(t)

	sess, err := m.Init(t.Context(), identity.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := m.Redeem(t.Context(), sess.Nonce, "", 90, 90); err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := m.Redeem(t.Context(), sess.Nonce, "", 90, 90); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("want ErrAlreadyVerified, got %v", err)
	}
}

func TestFailedRedeemLeavesSessionRedeemable(t *testing.T) {
	m, _, identity := testManager(t)

	sess, err := m.Init(t.Context(), identity.ID)
	if err != nil {
		t.Fatal(err)
	}

	// 0.6×40 + 0.4×40 = 40, under the floor.
	if _, _, score, err := m.Redeem(t.Context(), sess.Nonce, "", 40, 40); !errors.Is(err, ErrBelowFloor) {
		t.Fatalf("want ErrBelowFloor, got %v (score %d)", err, score)
	}

	// A later, better attempt on the same nonce still works.
	if _, _, _, err := m.Redeem(t.Context(), sess.Nonce, "", 90, 90); err != nil {
		t.Errorf("session consumed by a failed redemption: %v", err)
	}
}

func TestIssueFailureLeavesSessionRedeemable(t *testing.T) {
	cfg := config.Default()

	backend := memory.New(t.Context())
	sites := site.NewRegistry(backend)

	identity, err := sites.Register(t.Context(), "example.com")
	if err != nil {
		t.Fatal(err)
	}

	authority := token.NewAuthority(backend, sites, audit.NewRecorder(backend), cfg.Tokens)
	m := NewManager(backend, sites, authority, cfg.Sessions)

	sess, err := m.Init(t.Context(), identity.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Break token issuance by making the site record unreadable, then
	// redeem with passing scores. The flip must not stick.
	siteKey := "site:" + identity.ID
	raw, err := backend.Get(t.Context(), siteKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := backend.Delete(t.Context(), siteKey); err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := m.Redeem(t.Context(), sess.Nonce, "", 90, 90); err == nil {
		t.Fatal("redemption succeeded without a site record")
	}

	if err := backend.Set(t.Context(), siteKey, raw, time.Minute); err != nil {
		t.Fatal(err)
	}

	got, bearer, _, err := m.Redeem(t.Context(), sess.Nonce, "", 90, 90)
	if err != nil {
		t.Fatalf("session burned by a failed token issue: %v", err)
	}
	if !got.Verified || bearer == "" {
		t.Errorf("retry did not fully verify: verified=%v bearer=%q", got.Verified, bearer)
	}
}

func TestRedeemExpired(t *testing.T) {
	m, _, identity := testManager(t)

	sess := Session{
		ID:        "stale",
		SiteID:    identity.ID,
		Nonce:     "stale-nonce",
		CreatedAt: time.Now().Add(-10 * time.Minute),
		ExpiresAt: time.Now().Add(-5 * time.Minute),
	}
	if err := m.sessions.Set(t.Context(), sess.Nonce, sess, time.Minute); err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := m.Redeem(t.Context(), sess.Nonce, "", 100, 100); !errors.Is(err, ErrExpired) {
		t.Errorf("want ErrExpired, got %v", err)
	}
}
