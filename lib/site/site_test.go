package site

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/CerberHQ/cerber/lib/store/memory"
)

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry(memory.New(t.Context()))

	identity, err := reg.Register(t.Context(), "example.com")
	if err != nil {
		t.Fatal(err)
	}

	if identity.ID == "" {
		t.Error("identity has no ID")
	}
	if !identity.Active {
		t.Error("fresh identity is not active")
	}

	got, err := reg.Get(t.Context(), identity.ID)
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("sign me")
	sig := ed25519.Sign(got.SigningKey, msg)
	if !ed25519.Verify(got.VerifyKey, msg, sig) {
		t.Error("stored keypair does not verify its own signatures")
	}
}

func TestGetUnknown(t *testing.T) {
	reg := NewRegistry(memory.New(t.Context()))

	if _, err := reg.Get(t.Context(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestDeactivate(t *testing.T) {
	reg := NewRegistry(memory.New(t.Context()))

	identity, err := reg.Register(t.Context(), "example.com")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Active(t.Context(), identity.ID); err != nil {
		t.Fatalf("fresh identity not active: %v", err)
	}

	if err := reg.Deactivate(t.Context(), identity.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Active(t.Context(), identity.ID); !errors.Is(err, ErrInactive) {
		t.Errorf("want ErrInactive, got %v", err)
	}

	// The identity itself is still readable for token verification.
	if _, err := reg.Get(t.Context(), identity.ID); err != nil {
		t.Errorf("deactivated identity vanished: %v", err)
	}

	if err := reg.Deactivate(t.Context(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}
