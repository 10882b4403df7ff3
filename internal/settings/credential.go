package settings

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Credential checks submitted admin passwords and produces the value to
// persist when the password is replaced.
type Credential interface {
	// Verify reports whether candidate matches stored.
	Verify(stored, candidate string) bool
	// Seal converts a new plaintext password into its persisted form.
	Seal(password string) (string, error)
	// NeedsReseal reports whether a value loaded from the store is not in
	// this credential's persisted form.
	NeedsReseal(stored string) bool
}

// PlainCredential stores the password as-is and compares in constant time.
type PlainCredential struct{}

func (PlainCredential) Verify(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

func (PlainCredential) Seal(password string) (string, error) { return password, nil }

func (PlainCredential) NeedsReseal(string) bool { return false }

// BcryptCredential stores a bcrypt hash of the password.
type BcryptCredential struct {
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

func (b BcryptCredential) Verify(stored, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
}

func (b BcryptCredential) Seal(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (b BcryptCredential) NeedsReseal(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err != nil
}

// CredentialFor maps a config name ("plain" or "bcrypt") to a Credential.
func CredentialFor(name string) (Credential, error) {
	switch name {
	case "", "plain":
		return PlainCredential{}, nil
	case "bcrypt":
		return BcryptCredential{}, nil
	default:
		return nil, fmt.Errorf("unknown admin hash %q", name)
	}
}
