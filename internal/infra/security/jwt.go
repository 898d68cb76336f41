package security

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type discriminators carried in the "type" claim.
const (
	TokenTypeAccess           = "access"
	TokenTypeRefresh          = "refresh"
	TokenTypeTemp             = "temp"
	TokenTypeTwoFactorPending = "2fa_pending"
)

var (
	// ErrExpiredToken indicates the token signature verified but the token
	// is past its expiry.
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidToken indicates the token failed verification for any other
	// reason (bad signature, wrong issuer, malformed, wrong type).
	ErrInvalidToken = errors.New("token is invalid")
)

// Claims is the JWT payload minted by the identity service. Optional claims
// are omitted from token types that do not carry them.
type Claims struct {
	TokenType    string   `json:"type"`
	Email        string   `json:"email,omitempty"`
	Role         string   `json:"role,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	PartnerID    string   `json:"partnerId,omitempty"`
	DeviceID     string   `json:"deviceId,omitempty"`
	Context      string   `json:"context,omitempty"`
	ReferenceID  string   `json:"referenceId,omitempty"`
	TrackingCode string   `json:"trackingCode,omitempty"`
	jwt.RegisteredClaims
}

// Signer abstracts the signing algorithm and key material so the token
// service does not care whether tokens are HMAC or asymmetrically signed.
type Signer interface {
	Method() jwt.SigningMethod
	SignKey() any
	VerifyKey() any
}

// HMACSigner signs and verifies tokens with a shared HS256 secret.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (s *HMACSigner) Method() jwt.SigningMethod { return jwt.SigningMethodHS256 }
func (s *HMACSigner) SignKey() any              { return s.secret }
func (s *HMACSigner) VerifyKey() any            { return s.secret }

// TokenService mints and verifies every token class issued by the service.
type TokenService struct {
	signer     Signer
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	tempTTL    time.Duration
	pendingTTL time.Duration
	now        func() time.Time
}

func NewTokenService(signer Signer, issuer string, accessTTL, refreshTTL, tempTTL, pendingTTL time.Duration) *TokenService {
	return &TokenService{
		signer:     signer,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		tempTTL:    tempTTL,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source, used in tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// AccessTokenTTL reports the configured access token lifetime.
func (s *TokenService) AccessTokenTTL() time.Duration { return s.accessTTL }

// RefreshTokenTTL reports the configured refresh token lifetime.
func (s *TokenService) RefreshTokenTTL() time.Duration { return s.refreshTTL }

// TempTokenTTL reports the configured temp token lifetime.
func (s *TokenService) TempTokenTTL() time.Duration { return s.tempTTL }

// AccessClaims describes the identity embedded in an access token.
type AccessClaims struct {
	UserID      string
	Email       string
	Role        string
	Permissions []string
	PartnerID   string
}

// MintAccess issues a short-lived access token carrying the caller's role
// and permission set.
func (s *TokenService) MintAccess(c AccessClaims) (string, error) {
	claims := Claims{
		TokenType:   TokenTypeAccess,
		Email:       c.Email,
		Role:        c.Role,
		Permissions: c.Permissions,
		PartnerID:   c.PartnerID,
	}
	return s.mint(c.UserID, s.accessTTL, claims)
}

// MintRefresh issues a refresh token bound to a session record via its jti.
// The caller supplies the jti so the persisted session row and the token
// share an identifier.
func (s *TokenService) MintRefresh(userID, jti, deviceID string) (string, error) {
	claims := Claims{
		TokenType: TokenTypeRefresh,
		DeviceID:  deviceID,
	}
	return s.mintWithID(userID, jti, s.refreshTTL, claims)
}

// MintTemp issues a scoped temporary token after successful OTP
// verification. It grants only the permissions implied by the context.
func (s *TokenService) MintTemp(phone string, otpContext string, referenceID string, trackingCode string, permissions []string) (string, error) {
	claims := Claims{
		TokenType:    TokenTypeTemp,
		Context:      otpContext,
		ReferenceID:  referenceID,
		TrackingCode: trackingCode,
		Permissions:  permissions,
	}
	return s.mint("phone:"+phone, s.tempTTL, claims)
}

// MintTwoFactorPending issues the intermediate token handed back when a
// password login requires a second factor.
func (s *TokenService) MintTwoFactorPending(userID string) (string, error) {
	claims := Claims{TokenType: TokenTypeTwoFactorPending}
	return s.mint(userID, s.pendingTTL, claims)
}

func (s *TokenService) mint(subject string, ttl time.Duration, claims Claims) (string, error) {
	return s.mintWithID(subject, uuid.NewString(), ttl, claims)
}

func (s *TokenService) mintWithID(subject, jti string, ttl time.Duration, claims Claims) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(s.signer.Method(), claims)
	signed, err := token.SignedString(s.signer.SignKey())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a token, requiring it to carry the expected
// type claim. Expired tokens are reported as ErrExpiredToken so callers can
// distinguish them from tampered ones.
func (s *TokenService) Verify(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != s.signer.Method().Alg() {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return s.signer.VerifyKey(), nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.TokenType != expectedType {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// UnsafeExtractSubject pulls the subject out of a token without verifying
// the signature. Used only for audit logging of rejected tokens.
func UnsafeExtractSubject(tokenString string) string {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return ""
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}

	var body struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}

	return body.Sub
}
