package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"attendsheets/internal/model"
)

const identityKey = "identity"

// Identity is the authenticated caller.
type Identity struct {
	Email string
	Role  model.Role
}

// Authenticate enforces bearer JWT tokens signed with HS256 and stores the
// caller's Identity on the context.
func Authenticate(iss *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := iss.Parse(tokenStr)
		if err != nil {
			msg := "Could not validate credentials"
			if errors.Is(err, ErrExpired) {
				msg = "Token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Set(identityKey, Identity{Email: claims.Subject, Role: claims.Role})
		c.Next()
	}
}

// RequireRole rejects callers whose role differs with 403 and message.
// It must run after Authenticate.
func RequireRole(role model.Role, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": message})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
