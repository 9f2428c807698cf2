package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	UserIDHeader = "X-User-ID"
	UserIDKey    = "user_id"
)

// Identity resolves the acting user of a request.
type Identity interface {
	CurrentUserID(c *gin.Context) (string, bool)
}

// HeaderIdentity trusts the user id set by the upstream auth gateway.
type HeaderIdentity struct{}

func (HeaderIdentity) CurrentUserID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(UserIDHeader))
	return id, id != ""
}

// RequireUser aborts requests without an identity and stores the user id on the context.
func RequireUser(identity Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := identity.CurrentUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}
