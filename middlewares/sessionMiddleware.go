package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
)

const (
	HeaderUserId = "X-User-Id"
	HeaderToken  = "token"
)

// SessionMiddleware resolves the acting user. A session token is looked up in
// redis (Token:<token> -> user id); otherwise X-User-Id is taken as is.
// Requests without either pass through anonymously.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if token := strings.TrimSpace(c.Request.Header.Get(HeaderToken)); token != "" {
			raw, exists, err := config.GetRedisValue(utils.SessionTokenKey(token))
			if err != nil || !exists {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			userId, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			ctx = utils.SetUserIdInContext(ctx, userId)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		if raw := strings.TrimSpace(c.Request.Header.Get(HeaderUserId)); raw != "" {
			userId, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + HeaderUserId})
				c.Abort()
				return
			}
			ctx = utils.SetUserIdInContext(ctx, userId)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequireUser rejects requests without an acting user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user id is required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
