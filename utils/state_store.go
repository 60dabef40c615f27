package utils

import (
	"time"

	"github.com/google/uuid"
)

// NewOAuthState issues a single-use state token for an OAuth round trip.
func NewOAuthState(kv *KVStore, provider string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	state := uuid.NewString()
	if err := kv.Set("oauth:state:"+state, provider, ttl); err != nil {
		return "", err
	}
	return state, nil
}

// ConsumeOAuthState validates and removes a state token issued for provider.
func ConsumeOAuthState(kv *KVStore, provider, state string) bool {
	if state == "" {
		return false
	}
	v, ok := kv.GetDel("oauth:state:" + state)
	return ok && v == provider
}

// CooldownTry starts a cooldown for scope/id and reports false if one is already running.
func CooldownTry(kv *KVStore, scope, id string, d time.Duration) bool {
	if d <= 0 || id == "" {
		return true
	}
	return kv.SetNX("cooldown:"+scope+":"+id, "1", d)
}
