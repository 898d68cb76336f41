package security

import (
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPProvider generates and validates time-based one-time passwords for
// the authenticator-app second factor.
type TOTPProvider struct {
	issuer string
}

func NewTOTPProvider(issuer string) *TOTPProvider {
	return &TOTPProvider{issuer: issuer}
}

// GenerateSecret creates a new TOTP secret for the account and returns the
// base32 secret together with the otpauth:// provisioning URI encoded into
// authenticator QR codes.
func (p *TOTPProvider) GenerateSecret(accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: accountName,
		SecretSize:  20,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

// Validate checks a 6-digit code against the secret using the standard
// 30-second period with one step of clock skew tolerance.
func (p *TOTPProvider) Validate(code, secret string) bool {
	return totp.Validate(code, secret)
}

// GenerateRecoveryCodes produces count single-use recovery codes. Each code
// is shown to the user once; only hashes are persisted.
func GenerateRecoveryCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := GenerateSecureToken(6)
		if err != nil {
			return nil, fmt.Errorf("generate recovery code: %w", err)
		}
		codes = append(codes, code)
	}

	return codes, nil
}
