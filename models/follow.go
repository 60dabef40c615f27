package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Follower is a directed follow edge. The pair is the primary key, so an edge exists at most once.
type Follower struct {
	FollowerID uint      `gorm:"primaryKey;autoIncrement:false" json:"follower_id"`
	FollowedID uint      `gorm:"primaryKey;autoIncrement:false;index;check:chk_followers_not_self,follower_id <> followed_id" json:"followed_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Follower) TableName() string { return "followers" }

// Follow makes u follow other. Following someone already followed is a no-op.
func (u *User) Follow(db *gorm.DB, other *User) error {
	if u.ID == other.ID {
		return ErrSelfFollow
	}
	edge := Follower{FollowerID: u.ID, FollowedID: other.ID}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error
}

// Unfollow removes the edge u -> other if present.
func (u *User) Unfollow(db *gorm.DB, other *User) error {
	if u.ID == other.ID {
		return ErrSelfFollow
	}
	return db.Where("follower_id = ? AND followed_id = ?", u.ID, other.ID).Delete(&Follower{}).Error
}

// IsFollowing reports whether u follows other.
func (u *User) IsFollowing(db *gorm.DB, other *User) (bool, error) {
	var n int64
	err := db.Model(&Follower{}).
		Where("follower_id = ? AND followed_id = ?", u.ID, other.ID).
		Count(&n).Error
	return n > 0, err
}

// FollowersCount counts users following u.
func (u *User) FollowersCount(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&Follower{}).Where("followed_id = ?", u.ID).Count(&n).Error
	return n, err
}

// FollowingCount counts users u follows.
func (u *User) FollowingCount(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&Follower{}).Where("follower_id = ?", u.ID).Count(&n).Error
	return n, err
}
