package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	contextUserID = "userID"
	contextClaims = "claims"
)

// Middleware rejects requests without a valid token with
// 401 {"message":"Unauthorized"}. The token is read from the session cookie
// or an "Authorization: Bearer" header.
func Middleware(tokens *Tokens, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Verify(tokenFromRequest(c, cookieName))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		c.Set(contextUserID, claims.ID)
		c.Set(contextClaims, claims)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(contextUserID)
}

// ClaimsFrom returns the verified claims set by Middleware.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(contextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func tokenFromRequest(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
