package settings

import (
	"context"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sweeney/coin-pulser/internal/logger"
)

func TestPlainCredential(t *testing.T) {
	c := PlainCredential{}
	if !c.Verify("admin", "admin") {
		t.Error("equal strings should verify")
	}
	if c.Verify("admin", "admin ") {
		t.Error("different strings should not verify")
	}
	sealed, _ := c.Seal("pw")
	if sealed != "pw" {
		t.Errorf("Seal: got %q, want pw", sealed)
	}
	if c.NeedsReseal("anything") {
		t.Error("plain credential never needs reseal")
	}
}

func TestBcryptCredential(t *testing.T) {
	c := BcryptCredential{Cost: bcrypt.MinCost}
	sealed, err := c.Seal("pw")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(sealed, "$2") {
		t.Errorf("expected bcrypt hash, got %q", sealed)
	}
	if !c.Verify(sealed, "pw") {
		t.Error("hash should verify original password")
	}
	if c.Verify(sealed, "other") {
		t.Error("hash should not verify other password")
	}
	if c.NeedsReseal(sealed) {
		t.Error("hash should not need reseal")
	}
	if !c.NeedsReseal("admin") {
		t.Error("plaintext should need reseal")
	}
}

func TestBcryptLoadUpgradesPlaintext(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	store.PutString(ctx, KeyAdminPassword, "legacy")

	g := Load(ctx, store, DefaultValues(), BcryptCredential{Cost: bcrypt.MinCost}, logger.Nop())
	if !g.Verify("legacy") {
		t.Error("upgraded password should verify")
	}
	raw, _ := store.Raw(KeyAdminPassword)
	if !strings.HasPrefix(raw, "$2") {
		t.Errorf("stored value not upgraded: %q", raw)
	}
}

func TestBcryptUpdateStoresHash(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	g := Load(ctx, store, DefaultValues(), BcryptCredential{Cost: bcrypt.MinCost}, logger.Nop())

	if _, err := g.ApplyUpdate(ctx, "admin", Update{AdminPassword: "next"}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	raw, _ := store.Raw(KeyAdminPassword)
	if raw == "next" || !strings.HasPrefix(raw, "$2") {
		t.Errorf("stored value should be a hash, got %q", raw)
	}
	if !g.Verify("next") {
		t.Error("new password should verify")
	}
}

func TestCredentialFor(t *testing.T) {
	for _, name := range []string{"", "plain"} {
		c, err := CredentialFor(name)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if _, ok := c.(PlainCredential); !ok {
			t.Errorf("%q: got %T, want PlainCredential", name, c)
		}
	}
	c, err := CredentialFor("bcrypt")
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, ok := c.(BcryptCredential); !ok {
		t.Errorf("bcrypt: got %T", c)
	}
	if _, err := CredentialFor("md5"); err == nil {
		t.Error("expected error for unknown hash")
	}
}
