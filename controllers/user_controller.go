package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/utils"
)

// UserController serves profiles and follow edges.
type UserController struct {
	db *gorm.DB
}

// NewUserController creates a new UserController.
func NewUserController(db *gorm.DB) *UserController {
	return &UserController{db: db}
}

type profileRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	AboutMe  string `json:"about_me" binding:"max=140"`
}

// profile gathers the counters shown on a profile card.
func (u *UserController) profile(viewer, user *models.User) (gin.H, error) {
	followers, err := user.FollowersCount(u.db)
	if err != nil {
		return nil, err
	}
	following, err := user.FollowingCount(u.db)
	if err != nil {
		return nil, err
	}
	isFollowing, err := viewer.IsFollowing(u.db, user)
	if err != nil {
		return nil, err
	}
	view := userSummary(user)
	view["followers_count"] = followers
	view["following_count"] = following
	view["is_following"] = isFollowing
	view["is_self"] = viewer.ID == user.ID
	return view, nil
}

// Profile shows a user with their posts, newest first.
func (u *UserController) Profile(ctx *gin.Context) {
	user, ok := lookupUser(ctx, u.db, ctx.Param("username"))
	if !ok {
		return
	}
	view, err := u.profile(currentUser(ctx), user)
	if err != nil {
		internalError(ctx, 50010, "failed to load profile", err)
		return
	}
	page := pageFromQuery(ctx)
	posts, total, err := models.PagePosts(user.Posts(u.db), page)
	if err != nil {
		internalError(ctx, 50011, "failed to list posts", err)
		return
	}
	utils.Success(ctx, gin.H{
		"user":       view,
		"items":      postViews(posts),
		"pagination": page.Meta(total),
	})
}

// Popup is the small hover card for a user.
func (u *UserController) Popup(ctx *gin.Context) {
	user, ok := lookupUser(ctx, u.db, ctx.Param("username"))
	if !ok {
		return
	}
	view, err := u.profile(currentUser(ctx), user)
	if err != nil {
		internalError(ctx, 50010, "failed to load profile", err)
		return
	}
	utils.Success(ctx, view)
}

// GetProfile returns the editable fields of the session user.
func (u *UserController) GetProfile(ctx *gin.Context) {
	me := currentUser(ctx)
	utils.Success(ctx, gin.H{"username": me.Username, "about_me": me.AboutMe})
}

// EditProfile changes the session user's username and about_me.
func (u *UserController) EditProfile(ctx *gin.Context) {
	var req profileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}
	me := currentUser(ctx)
	if err := me.UpdateProfile(u.db, req.Username, req.AboutMe); err != nil {
		respondModelError(ctx, err, 50012, "failed to update profile")
		return
	}
	utils.Respond(ctx, http.StatusOK, 0, "your changes have been saved", userSummary(me))
}

// Follow makes the session user follow the user in the path.
func (u *UserController) Follow(ctx *gin.Context) {
	u.changeFollow(ctx, true)
}

// Unfollow removes the session user's edge to the user in the path.
func (u *UserController) Unfollow(ctx *gin.Context) {
	u.changeFollow(ctx, false)
}

func (u *UserController) changeFollow(ctx *gin.Context, follow bool) {
	target, ok := lookupUser(ctx, u.db, ctx.Param("username"))
	if !ok {
		return
	}
	me := currentUser(ctx)
	var err error
	msg := "you are following " + target.Username
	if follow {
		err = me.Follow(u.db, target)
	} else {
		err = me.Unfollow(u.db, target)
		msg = "you are not following " + target.Username
	}
	if errors.Is(err, models.ErrSelfFollow) {
		utils.Error(ctx, http.StatusBadRequest, 40011, "you cannot follow yourself")
		return
	}
	if err != nil {
		internalError(ctx, 50013, "failed to update follow", err)
		return
	}
	view, err := u.profile(me, target)
	if err != nil {
		internalError(ctx, 50010, "failed to load profile", err)
		return
	}
	utils.Respond(ctx, http.StatusOK, 0, msg, view)
}
