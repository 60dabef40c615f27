package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/utils"
)

const avatarSize = 128

// currentUser returns the session user. Routes using it sit behind LoginRequired.
func currentUser(ctx *gin.Context) *models.User {
	u, _ := middleware.CurrentUser(ctx)
	return u
}

func pageFromQuery(ctx *gin.Context) utils.Page {
	return utils.ParsePage(ctx.Query("page"), config.Get().PostsPerPage)
}

func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// lookupUser loads the user named in the path and writes a 404 when absent.
func lookupUser(ctx *gin.Context, db *gorm.DB, username string) (*models.User, bool) {
	u, err := models.FindUserByUsername(db, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return nil, false
	}
	if err != nil {
		internalError(ctx, 50001, "failed to load user", err)
		return nil, false
	}
	return u, true
}

// respondModelError maps validation and storage errors to responses.
func respondModelError(ctx *gin.Context, err error, code int, msg string) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusBadRequest
		if verr.Conflict {
			status = http.StatusConflict
		}
		utils.Respond(ctx, status, 40002, verr.Message, gin.H{"field": verr.Field})
		return
	}
	internalError(ctx, code, msg, err)
}

func internalError(ctx *gin.Context, code int, msg string, err error) {
	utils.Sugar.Errorw(msg, "path", ctx.Request.URL.Path, "error", err)
	utils.Error(ctx, http.StatusInternalServerError, code, msg)
}

// redirectHome answers unauthorized edits without touching anything.
func redirectHome(ctx *gin.Context) {
	ctx.Redirect(http.StatusSeeOther, "/")
}

func userSummary(u *models.User) gin.H {
	return gin.H{
		"id":        u.ID,
		"username":  u.Username,
		"about_me":  u.AboutMe,
		"last_seen": u.LastSeen,
		"avatar":    u.Avatar(avatarSize),
		"is_admin":  u.IsAdmin(),
	}
}

func postView(p models.Post) gin.H {
	return gin.H{
		"id":        p.ID,
		"body":      p.Body,
		"timestamp": p.PostedAt,
		"author": gin.H{
			"id":       p.Author.ID,
			"username": p.Author.Username,
			"avatar":   p.Author.Avatar(36),
		},
	}
}

func postViews(posts []models.Post) []gin.H {
	out := make([]gin.H, 0, len(posts))
	for _, p := range posts {
		out = append(out, postView(p))
	}
	return out
}

func messageView(m models.Message) gin.H {
	return gin.H{
		"id":           m.ID,
		"body":         m.Body,
		"timestamp":    m.SentAt,
		"recipient_id": m.RecipientID,
		"author": gin.H{
			"id":       m.Sender.ID,
			"username": m.Sender.Username,
			"avatar":   m.Sender.Avatar(36),
		},
	}
}
