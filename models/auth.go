package models

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/utils"
)

// DefaultResetTokenTTL is how long a password reset link stays valid.
const DefaultResetTokenTTL = 600 * time.Second

// RegisterUser creates a local account. Usernames listed as admins get the admin role.
func RegisterUser(db *gorm.DB, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if !validUsername(username) {
		return nil, invalid("username", "username must be 1-64 letters, digits, '.', '-' or '_'")
	}
	if _, err := mail.ParseAddress(email); err != nil || len(email) > MaxEmailLen {
		return nil, invalid("email", "invalid email address")
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	taken, err := usernameTaken(db, username, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, conflict("username", "please use a different username")
	}
	if taken, err = emailTaken(db, email); err != nil {
		return nil, err
	}
	if taken {
		return nil, conflict("email", "please use a different email address")
	}

	u := &User{Username: username, Email: email, Role: RoleUser}
	if config.Get().IsAdminUsername(username) {
		u.Role = RoleAdmin
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	if err := db.Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict("username", "please use a different username or email")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate checks a username/password pair.
func Authenticate(db *gorm.DB, username, password string) (*User, error) {
	u, err := FindUserByUsername(db, strings.TrimSpace(username))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func checkPassword(password string) error {
	if password == "" {
		return invalid("password", "password must not be empty")
	}
	if len(password) > MaxPasswordBytes {
		return invalid("password", fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	return nil
}

// GetResetPasswordToken issues a signed token authorizing one password change for u.
// A zero ttl means DefaultResetTokenTTL.
func (u *User) GetResetPasswordToken(secret []byte, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = DefaultResetTokenTTL
	}
	return utils.IssueResetToken(secret, u.ID, ttl)
}

func verifyResetToken(db *gorm.DB, secret []byte, token string) (*User, *utils.ResetClaims, utils.TokenStatus) {
	claims, status := utils.ParseResetToken(secret, token)
	if status != utils.TokenValid {
		return nil, nil, status
	}
	u, err := FindUserByID(db, claims.UserID)
	if err != nil {
		return nil, nil, utils.TokenUnknownUser
	}
	return u, claims, utils.TokenValid
}

// VerifyResetPasswordToken resolves a reset token to its user. The user is nil unless the
// status is TokenValid.
func VerifyResetPasswordToken(db *gorm.DB, secret []byte, token string) (*User, utils.TokenStatus) {
	u, _, status := verifyResetToken(db, secret, token)
	return u, status
}

// CheckResetPasswordToken is VerifyResetPasswordToken that also reports tokens already used.
func CheckResetPasswordToken(db *gorm.DB, kv *utils.KVStore, secret []byte, token string) (*User, utils.TokenStatus) {
	u, claims, status := verifyResetToken(db, secret, token)
	if status != utils.TokenValid {
		return nil, status
	}
	if utils.ResetTokenConsumed(kv, claims) {
		return nil, utils.TokenConsumed
	}
	return u, status
}

// ResetPassword sets a new password for the token's user and burns the token. The user is
// returned only for TokenValid. The error is set for an unacceptable password, in which
// case the token stays usable, and for storage failures.
func ResetPassword(db *gorm.DB, kv *utils.KVStore, secret []byte, token, password string) (*User, utils.TokenStatus, error) {
	u, claims, status := verifyResetToken(db, secret, token)
	if status != utils.TokenValid {
		return nil, status, nil
	}
	if err := checkPassword(password); err != nil {
		return nil, status, err
	}
	if err := u.SetPassword(password); err != nil {
		return nil, status, err
	}
	if !utils.ConsumeResetToken(kv, claims) {
		return nil, utils.TokenConsumed, nil
	}
	if err := db.Model(u).UpdateColumn("password_hash", u.PasswordHash).Error; err != nil {
		return nil, status, fmt.Errorf("update password: %w", err)
	}
	return u, utils.TokenValid, nil
}
