package security

import (
	"strings"
	"testing"
)

func TestArgon2HasherRoundTrip(t *testing.T) {
	hasher := NewArgon2Hasher(Argon2Params{})

	encoded, err := hasher.Hash("s3cret-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.Contains(encoded, ":") {
		t.Fatalf("expected salt:hash encoding, got %q", encoded)
	}

	ok, err := hasher.Verify("s3cret-password", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected matching password to verify")
	}

	ok, err = hasher.Verify("wrong-password", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched password to fail verification")
	}
}

func TestArgon2HasherSaltsAreUnique(t *testing.T) {
	hasher := NewArgon2Hasher(Argon2Params{})

	first, err := hasher.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct hashes for the same input")
	}
}

func TestArgon2HasherRejectsMalformedHash(t *testing.T) {
	hasher := NewArgon2Hasher(Argon2Params{})

	if _, err := hasher.Verify("secret", "not-a-valid-hash"); err == nil {
		t.Fatal("expected error for malformed encoded hash")
	}

	ok, err := hasher.Verify("", "")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("empty inputs must never verify")
	}
}
