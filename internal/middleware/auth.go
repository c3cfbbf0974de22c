package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dpatel-io/clinicbook/internal/domain"
	"github.com/dpatel-io/clinicbook/pkg/auth"
)

const claimsContextKey = "auth_claims"

// Authenticate validates the Bearer token and stores the claims in the request
// context. Requests without a valid access token are rejected.
func Authenticate(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// RequireRole allows the request through only if the authenticated user has
// one of the given roles. Must run after Authenticate.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}

func ClaimsFrom(c *gin.Context) (*domain.Claims, bool) {
	v, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*domain.Claims)
	return claims, ok
}

// MustClaims returns the authenticated claims. It panics if called on a route
// that is not behind Authenticate, which is a programming error.
func MustClaims(c *gin.Context) *domain.Claims {
	claims, ok := ClaimsFrom(c)
	if !ok {
		panic("middleware: claims requested on unauthenticated route")
	}
	return claims
}
