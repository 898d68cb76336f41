package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// GenerateNumericCode produces a random numeric code of the given length,
// suitable for one-time passwords sent over SMS.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive")
	}

	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate digit: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}

	return sb.String(), nil
}

// GenerateSecureToken returns a URL-safe random token with the given number
// of bytes of entropy.
func GenerateSecureToken(numBytes int) (string, error) {
	if numBytes <= 0 {
		return "", fmt.Errorf("token size must be positive")
	}

	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex-encoded SHA-256 digest of a token. Refresh
// tokens are stored hashed so a database leak does not expose live sessions.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
