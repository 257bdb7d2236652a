package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	digest, err := h.Hash("p@ssw0rd1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if digest == "p@ssw0rd1" {
		t.Fatalf("expected password to be hashed")
	}
	if !h.Verify("p@ssw0rd1", digest) {
		t.Fatalf("expected password to verify")
	}
	if h.Verify("wrong", digest) {
		t.Fatalf("expected wrong password to fail")
	}
}

func TestBcryptHasher_EmptyDigestNeverMatches(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	if h.Verify("", "") {
		t.Fatalf("empty digest must not verify")
	}
}

func TestNewBcryptHasher_FallsBackToDefaultCost(t *testing.T) {
	if h := NewBcryptHasher(0); h.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", h.cost)
	}
	if h := NewBcryptHasher(99); h.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", h.cost)
	}
}
