package security

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestTOTPProviderGenerateSecret(t *testing.T) {
	provider := NewTOTPProvider("Zaed")

	secret, uri, err := provider.GenerateSecret("donor@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret returned error: %v", err)
	}
	if secret == "" {
		t.Fatal("expected non-empty secret")
	}
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Errorf("uri = %q, want otpauth://totp/ prefix", uri)
	}
	if !strings.Contains(uri, "Zaed") {
		t.Errorf("uri %q should carry the issuer", uri)
	}
}

func TestTOTPProviderValidate(t *testing.T) {
	provider := NewTOTPProvider("Zaed")

	secret, _, err := provider.GenerateSecret("donor@example.com")
	if err != nil {
		t.Fatalf("GenerateSecret returned error: %v", err)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode returned error: %v", err)
	}

	if !provider.Validate(code, secret) {
		t.Error("expected current code to validate")
	}
	if provider.Validate("000000", secret) && code != "000000" {
		t.Error("expected bogus code to fail validation")
	}
}

func TestGenerateRecoveryCodes(t *testing.T) {
	codes, err := GenerateRecoveryCodes(10)
	if err != nil {
		t.Fatalf("GenerateRecoveryCodes returned error: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("got %d codes, want 10", len(codes))
	}

	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c == "" {
			t.Fatal("recovery code must not be empty")
		}
		if _, dup := seen[c]; dup {
			t.Fatalf("duplicate recovery code %q", c)
		}
		seen[c] = struct{}{}
	}
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	if err != nil {
		t.Fatalf("GenerateNumericCode returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("code %q contains non-digit", code)
		}
	}

	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("refresh-token-value")
	b := HashToken("refresh-token-value")
	if a != b {
		t.Fatal("hash must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(a))
	}
	if HashToken("other") == a {
		t.Fatal("distinct inputs must hash differently")
	}
}
