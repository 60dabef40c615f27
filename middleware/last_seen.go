package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/utils"
)

// LastSeen stamps the session user's last_seen before the handler runs.
func LastSeen(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, ok := CurrentUser(c); ok {
			now := time.Now().UTC()
			if err := models.TouchLastSeen(db, user.ID, now); err != nil {
				utils.Sugar.Warnw("update last_seen failed", "user_id", user.ID, "error", err)
			} else {
				user.LastSeen = now
			}
		}
		c.Next()
	}
}
