package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/search"
	"github.com/cppla/microblog/utils"
)

// PostController serves the feed, explore, post editing and search.
type PostController struct {
	db    *gorm.DB
	index search.Index
}

// NewPostController creates a new PostController. index may be nil when search is disabled.
func NewPostController(db *gorm.DB, index search.Index) *PostController {
	return &PostController{db: db, index: index}
}

type postRequest struct {
	Body string `json:"body" binding:"required"`
}

// Feed lists the session user's own posts and the posts of everyone they follow.
func (p *PostController) Feed(ctx *gin.Context) {
	p.listPosts(ctx, currentUser(ctx).FollowedPosts(p.db))
}

// Explore lists every post.
func (p *PostController) Explore(ctx *gin.Context) {
	p.listPosts(ctx, models.AllPosts(p.db))
}

func (p *PostController) listPosts(ctx *gin.Context, q *gorm.DB) {
	page := pageFromQuery(ctx)
	posts, total, err := models.PagePosts(q, page)
	if err != nil {
		internalError(ctx, 50020, "failed to list posts", err)
		return
	}
	utils.Paginated(ctx, postViews(posts), page, total)
}

// CreatePost publishes a post as the session user.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	post, err := models.CreatePost(p.db, currentUser(ctx), req.Body)
	if err != nil {
		respondModelError(ctx, err, 50021, "failed to create post")
		return
	}
	p.reindex(ctx, post)
	utils.Respond(ctx, http.StatusCreated, 0, "your post is now live", postView(*post))
}

// loadOwnPost loads the post in the path. Missing posts get a 404; posts owned by someone
// other than the session user get a redirect home.
func (p *PostController) loadOwnPost(ctx *gin.Context) (*models.Post, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid post id")
		return nil, false
	}
	post, err := models.FindPost(p.db, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
		return nil, false
	}
	if err != nil {
		internalError(ctx, 50022, "failed to load post", err)
		return nil, false
	}
	if post.UserID != currentUser(ctx).ID {
		redirectHome(ctx)
		return nil, false
	}
	return post, true
}

// GetPost returns a post for editing.
func (p *PostController) GetPost(ctx *gin.Context) {
	post, ok := p.loadOwnPost(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, postView(*post))
}

// EditPost replaces the body of the session user's post.
func (p *PostController) EditPost(ctx *gin.Context) {
	post, ok := p.loadOwnPost(ctx)
	if !ok {
		return
	}
	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	err := models.EditPost(p.db, post, currentUser(ctx).ID, req.Body)
	if errors.Is(err, models.ErrNotAuthor) {
		redirectHome(ctx)
		return
	}
	if err != nil {
		respondModelError(ctx, err, 50023, "failed to update post")
		return
	}
	p.reindex(ctx, post)
	utils.Respond(ctx, http.StatusOK, 0, "your changes have been saved", postView(*post))
}

// DeletePost removes the session user's post.
func (p *PostController) DeletePost(ctx *gin.Context) {
	post, ok := p.loadOwnPost(ctx)
	if !ok {
		return
	}
	err := models.DeletePost(p.db, post, currentUser(ctx).ID)
	if errors.Is(err, models.ErrNotAuthor) {
		redirectHome(ctx)
		return
	}
	if err != nil {
		internalError(ctx, 50024, "failed to delete post", err)
		return
	}
	if p.index != nil {
		ictx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
		defer cancel()
		if err := p.index.Remove(ictx, post.ID); err != nil {
			utils.Sugar.Warnw("remove post from index failed", "post_id", post.ID, "error", err)
		}
	}
	utils.Respond(ctx, http.StatusOK, 0, "post deleted", gin.H{"id": post.ID})
}

// Search runs a full-text query over post bodies.
func (p *PostController) Search(ctx *gin.Context) {
	if p.index == nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "search disabled")
		return
	}
	q := strings.TrimSpace(ctx.Query("q"))
	if q == "" {
		utils.Error(ctx, http.StatusBadRequest, 40024, "missing search query")
		return
	}
	page := pageFromQuery(ctx)
	ictx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()
	ids, total, err := p.index.Query(ictx, q, page.Offset(), page.Size)
	if err != nil {
		internalError(ctx, 50025, "search failed", err)
		return
	}
	posts, err := models.PostsByIDs(p.db, ids)
	if err != nil {
		internalError(ctx, 50026, "failed to load posts", err)
		return
	}
	utils.Paginated(ctx, postViews(posts), page, total)
}

// reindex pushes the post body to the search index. Index failures do not fail the request.
func (p *PostController) reindex(ctx *gin.Context, post *models.Post) {
	if p.index == nil {
		return
	}
	ictx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()
	if err := p.index.Add(ictx, post.ID, post.Body); err != nil {
		utils.Sugar.Warnw("index post failed", "post_id", post.ID, "error", err)
	}
}
