package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/utils"
)

const (
	// ContextUserIDKey is the key used to store the session user's ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUserKey stores the loaded *models.User inside Gin context.
	ContextUserKey = "current_user"
)

// SessionAuth resolves the session cookie to a user and stores it in the context.
// Anonymous requests pass through untouched.
func SessionAuth(db *gorm.DB, sessions *utils.SessionStore) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		uid, ok := sessions.UserID(ctx)
		if !ok {
			ctx.Next()
			return
		}
		user, err := models.FindUserByID(db, uid)
		switch {
		case err == nil:
			ctx.Set(ContextUserIDKey, user.ID)
			ctx.Set(ContextUserKey, user)
		case errors.Is(err, gorm.ErrRecordNotFound):
			// account is gone; drop the stale session
			sessions.Destroy(ctx)
		default:
			utils.Sugar.Errorw("load session user failed", "user_id", uid, "error", err)
		}
		ctx.Next()
	}
}

// LoginRequired rejects requests without an authenticated session.
func LoginRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if _, ok := CurrentUser(ctx); !ok {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "please log in to access this page")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// CurrentUser returns the session user set by SessionAuth.
func CurrentUser(ctx *gin.Context) (*models.User, bool) {
	v, ok := ctx.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}
