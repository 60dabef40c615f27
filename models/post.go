package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/microblog/utils"
)

// MaxBodyLen bounds post and message bodies, in characters.
const MaxBodyLen = 140

// Post is a short status update. Only Body and PostedAt change after creation.
type Post struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Body     string    `gorm:"size:140;not null" json:"body"`
	PostedAt time.Time `gorm:"index;not null" json:"timestamp"`
	UserID   uint      `gorm:"index;not null" json:"user_id"`
	Author   User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
}

// BeforeCreate stamps PostedAt when the caller did not.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.PostedAt.IsZero() {
		p.PostedAt = time.Now().UTC()
	}
	return nil
}

func cleanBody(body string) (string, error) {
	body = utils.SanitizeText(body)
	if body == "" {
		return "", invalid("body", "body must not be empty")
	}
	if len([]rune(body)) > MaxBodyLen {
		return "", invalid("body", fmt.Sprintf("body must be at most %d characters", MaxBodyLen))
	}
	return body, nil
}

// CreatePost publishes body as author.
func CreatePost(db *gorm.DB, author *User, body string) (*Post, error) {
	body, err := cleanBody(body)
	if err != nil {
		return nil, err
	}
	p := &Post{Body: body, UserID: author.ID}
	if err := db.Create(p).Error; err != nil {
		return nil, err
	}
	p.Author = *author
	return p, nil
}

// FindPost loads a post with its author.
func FindPost(db *gorm.DB, id uint) (*Post, error) {
	var p Post
	if err := db.Preload("Author").First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// EditPost replaces the body and moves the post to now. Only the author may edit.
func EditPost(db *gorm.DB, p *Post, editorID uint, body string) error {
	if p.UserID != editorID {
		return ErrNotAuthor
	}
	body, err := cleanBody(body)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := db.Model(p).Updates(map[string]interface{}{"body": body, "posted_at": now}).Error; err != nil {
		return err
	}
	p.Body, p.PostedAt = body, now
	return nil
}

// DeletePost removes the post. Only the author may delete.
func DeletePost(db *gorm.DB, p *Post, userID uint) error {
	if p.UserID != userID {
		return ErrNotAuthor
	}
	return db.Delete(&Post{}, p.ID).Error
}

func newestFirst(q *gorm.DB) *gorm.DB {
	return q.Order("posted_at DESC").Order("id DESC").Session(&gorm.Session{})
}

// Posts is the query of the user's own posts, newest first.
func (u *User) Posts(db *gorm.DB) *gorm.DB {
	return newestFirst(db.Model(&Post{}).Where("user_id = ?", u.ID))
}

// FollowedPosts is the user's feed: their own posts together with the posts of everyone
// they follow, newest first. Ties on PostedAt are broken by id.
func (u *User) FollowedPosts(db *gorm.DB) *gorm.DB {
	followed := db.Model(&Follower{}).Select("followed_id").Where("follower_id = ?", u.ID)
	return newestFirst(db.Model(&Post{}).Where("user_id = ? OR user_id IN (?)", u.ID, followed))
}

// AllPosts is the query of every post, newest first.
func AllPosts(db *gorm.DB) *gorm.DB {
	return newestFirst(db.Model(&Post{}))
}

// PostsByIDs loads posts with the given ids, in the order of ids. Unknown ids are skipped.
func PostsByIDs(db *gorm.DB, ids []uint) ([]Post, error) {
	if len(ids) == 0 {
		return []Post{}, nil
	}
	var found []Post
	if err := db.Preload("Author").Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]Post, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	posts := make([]Post, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

// PagePosts counts q and loads the requested page with authors.
func PagePosts(q *gorm.DB, page utils.Page) ([]Post, int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var posts []Post
	err := q.Preload("Author").Offset(page.Offset()).Limit(page.Size).Find(&posts).Error
	return posts, total, err
}
