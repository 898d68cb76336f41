package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zaedhealth/identity-service/internal/infra/security"
)

const (
	// AuthorizationHeader is the header carrying the bearer access token.
	AuthorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	// ClaimsKey is the gin context key holding the verified access token claims.
	ClaimsKey = "auth_claims"
	// RoleKey is the gin context key holding the authenticated user's role.
	RoleKey = "auth_role"
	// PermissionsKey is the gin context key holding the granted permissions.
	PermissionsKey = "auth_permissions"
)

// RequireAuth verifies the bearer access token and stores the authenticated
// identity in the request context. Requests without a valid access token are
// rejected with 401.
func RequireAuth(tokens *security.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthorizationHeader)
		if header == "" || !strings.HasPrefix(header, bearerPrefix) {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		raw := strings.TrimPrefix(header, bearerPrefix)
		claims, err := tokens.Verify(raw, security.TokenTypeAccess)
		if err != nil {
			if errors.Is(err, security.ErrExpiredToken) {
				abortUnauthorized(c, "access token expired")
				return
			}
			abortUnauthorized(c, "invalid access token")
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(ClaimsKey, claims)
		c.Set(RoleKey, claims.Role)
		c.Set(PermissionsKey, claims.Permissions)
		c.Next()
	}
}

// RequireRole allows the request through only when the authenticated user's
// role is one of the provided roles. Must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		role, ok := c.Get(RoleKey)
		if !ok {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		roleName, _ := role.(string)
		if _, ok := allowed[roleName]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// GetAuthenticatedUserID returns the user ID stored by RequireAuth.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	value, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	userID, ok := value.(string)
	return userID, ok && userID != ""
}

// GetAuthenticatedClaims returns the verified claims stored by RequireAuth.
func GetAuthenticatedClaims(c *gin.Context) (*security.Claims, bool) {
	value, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*security.Claims)
	return claims, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="identity"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}
