package models

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ExternalIdentity is what an OAuth provider tells us about a user.
type ExternalIdentity struct {
	Provider   string
	ProviderID string
	Login      string
	Email      string
}

// FindOrCreateOAuthUser returns the account linked to id, linking an existing account with the
// same email or creating a new one on first login.
func FindOrCreateOAuthUser(db *gorm.DB, id ExternalIdentity) (*User, error) {
	if id.Provider == "" || id.ProviderID == "" {
		return nil, errors.New("incomplete external identity")
	}
	var u User
	err := db.Where("provider = ? AND provider_id = ?", id.Provider, id.ProviderID).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email != "" {
		existing, err := FindUserByEmail(db, email)
		if err == nil {
			updates := map[string]interface{}{"provider": id.Provider, "provider_id": id.ProviderID}
			if err := db.Model(existing).Updates(updates).Error; err != nil {
				return nil, err
			}
			existing.Provider, existing.ProviderID = id.Provider, id.ProviderID
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else {
		// providers may withhold the address; the column is unique and required
		email = fmt.Sprintf("%s-%s@users.noreply.local", id.Provider, id.ProviderID)
	}

	username, err := ensureUniqueUsername(db, id.Login, id.Provider, id.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("pick username: %w", err)
	}
	u = User{
		Username:   username,
		Email:      email,
		Role:       RoleUser,
		Provider:   id.Provider,
		ProviderID: id.ProviderID,
	}
	if err := db.Create(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if at := strings.IndexByte(input, '@'); at > 0 {
		input = input[:at]
	}
	var b strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > MaxUsernameLen-8 {
		out = out[:MaxUsernameLen-8]
	}
	return out
}

func ensureUniqueUsername(db *gorm.DB, base, provider, id string) (string, error) {
	base = sanitizeUsername(base)
	if base == "" {
		base = sanitizeUsername(provider + "_" + id)
		if base == "" {
			base = "user_" + id
		}
	}
	candidate := base
	for suffix := 1; ; suffix++ {
		taken, err := usernameTaken(db, candidate, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}
