package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/microblog/utils"
)

const (
	RoleUser  = 0
	RoleAdmin = 1
)

const (
	MaxUsernameLen = 64
	MaxEmailLen    = 128
	MaxAboutMeLen  = 140
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

// neverRead is the read marker of users who never opened their inbox.
var neverRead = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// User is a registered account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Username            string     `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email               string     `gorm:"size:128;not null;uniqueIndex" json:"-"`
	PasswordHash        string     `gorm:"size:255" json:"-"`
	Role                int        `gorm:"not null;default:0" json:"role"`
	AboutMe             string     `gorm:"size:140" json:"about_me"`
	LastSeen            time.Time  `json:"last_seen"`
	LastMessageReadTime *time.Time `json:"-"`
	Provider            string     `gorm:"size:32;index:idx_users_provider" json:"-"`
	ProviderID          string     `gorm:"size:255;index:idx_users_provider" json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"-"`
}

// BeforeCreate stamps LastSeen for new accounts.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now().UTC()
	}
	return nil
}

// SetPassword replaces the stored hash with a hash of password.
func (u *User) SetPassword(password string) error {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return utils.CheckPassword(u.PasswordHash, password)
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Avatar returns the user's Gravatar URL.
func (u *User) Avatar(size int) string {
	return utils.AvatarURL(u.Email, size)
}

// FindUserByID loads a user by primary key.
func FindUserByID(db *gorm.DB, id uint) (*User, error) {
	var u User
	if err := db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByUsername loads a user by exact username.
func FindUserByUsername(db *gorm.DB, username string) (*User, error) {
	var u User
	if err := db.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByEmail loads a user by email, ignoring case.
func FindUserByEmail(db *gorm.DB, email string) (*User, error) {
	var u User
	if err := db.Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func usernameTaken(db *gorm.DB, username string, exceptID uint) (bool, error) {
	var count int64
	q := db.Model(&User{}).Where("username = ?", username)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func emailTaken(db *gorm.DB, email string) (bool, error) {
	var count int64
	if err := db.Model(&User{}).Where("LOWER(email) = ?", strings.ToLower(email)).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func validUsername(s string) bool {
	if s == "" || len([]rune(s)) > MaxUsernameLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}

// UpdateProfile changes username and about_me. A username already used by someone else is rejected.
func (u *User) UpdateProfile(db *gorm.DB, username, aboutMe string) error {
	username = strings.TrimSpace(username)
	aboutMe = utils.SanitizeText(aboutMe)
	if !validUsername(username) {
		return invalid("username", "username must be 1-64 letters, digits, '.', '-' or '_'")
	}
	if len([]rune(aboutMe)) > MaxAboutMeLen {
		return invalid("about_me", fmt.Sprintf("about me must be at most %d characters", MaxAboutMeLen))
	}
	if username != u.Username {
		taken, err := usernameTaken(db, username, u.ID)
		if err != nil {
			return err
		}
		if taken {
			return conflict("username", "please use a different username")
		}
	}
	err := db.Model(u).Updates(map[string]interface{}{"username": username, "about_me": aboutMe}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conflict("username", "please use a different username")
	}
	if err != nil {
		return err
	}
	u.Username, u.AboutMe = username, aboutMe
	return nil
}

// TouchLastSeen records activity for the user with the given id.
func TouchLastSeen(db *gorm.DB, userID uint, at time.Time) error {
	return db.Model(&User{}).Where("id = ?", userID).UpdateColumn("last_seen", at.UTC()).Error
}

// lastRead is the moment up to which the user has read their messages.
func (u *User) lastRead() time.Time {
	if u.LastMessageReadTime == nil {
		return neverRead
	}
	return *u.LastMessageReadTime
}
