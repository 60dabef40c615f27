package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// getDelScript emulates GETDEL on Redis servers older than 6.2.
const getDelScript = `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`

type kvEntry struct {
	value     string
	expiresAt time.Time
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// KVStore holds short-lived keys: sessions, OAuth state, captcha answers, consumed
// reset tokens and cooldowns. Redis is preferred; without it the store lives in memory
// and is only valid for a single instance.
type KVStore struct {
	rc *redis.Client

	mu  sync.Mutex
	mem map[string]kvEntry
	// expired entries are dropped on writes at most once per sweepEvery
	sweepEvery time.Duration
	lastSweep  time.Time
}

// NewKVStore returns a store backed by rc, or by memory when rc is nil.
func NewKVStore(rc *redis.Client) *KVStore {
	return &KVStore{rc: rc, mem: map[string]kvEntry{}, sweepEvery: time.Minute, lastSweep: time.Now()}
}

// sweepLocked drops expired entries. s.mu must be held.
func (s *KVStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.sweepEvery {
		return
	}
	s.lastSweep = now
	for k, e := range s.mem {
		if e.expired(now) {
			delete(s.mem, k)
		}
	}
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// Set stores value under key. A zero ttl keeps the key until deleted.
func (s *KVStore) Set(key, value string, ttl time.Duration) error {
	if s.rc != nil {
		ctx, cancel := opCtx()
		defer cancel()
		return s.rc.Set(ctx, key, value, ttl).Err()
	}
	s.mu.Lock()
	s.sweepLocked(time.Now())
	s.mem[key] = kvEntry{value: value, expiresAt: expiry(ttl)}
	s.mu.Unlock()
	return nil
}

// SetNX stores value only if key is absent and reports whether it did.
func (s *KVStore) SetNX(key, value string, ttl time.Duration) bool {
	if s.rc != nil {
		ctx, cancel := opCtx()
		defer cancel()
		ok, err := s.rc.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			Sugar.Warnf("kv setnx %s: %v", key, err)
			return false
		}
		return ok
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	if e, ok := s.mem[key]; ok && !e.expired(now) {
		return false
	}
	s.mem[key] = kvEntry{value: value, expiresAt: expiry(ttl)}
	return true
}

// Get returns the value stored under key.
func (s *KVStore) Get(key string) (string, bool) {
	if s.rc != nil {
		ctx, cancel := opCtx()
		defer cancel()
		v, err := s.rc.Get(ctx, key).Result()
		if err != nil {
			return "", false
		}
		return v, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.mem[key]
	if !ok {
		return "", false
	}
	if e.expired(time.Now()) {
		delete(s.mem, key)
		return "", false
	}
	return e.value, true
}

// GetDel returns and removes the value under key atomically.
func (s *KVStore) GetDel(key string) (string, bool) {
	if s.rc != nil {
		ctx, cancel := opCtx()
		defer cancel()
		v, err := s.rc.GetDel(ctx, key).Result()
		if err == nil {
			return v, true
		}
		if err == redis.Nil {
			return "", false
		}
		res, err := s.rc.Eval(ctx, getDelScript, []string{key}).Result()
		if err != nil || res == nil {
			return "", false
		}
		str, ok := res.(string)
		return str, ok
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.mem[key]
	if !ok {
		return "", false
	}
	delete(s.mem, key)
	if e.expired(time.Now()) {
		return "", false
	}
	return e.value, true
}

// Exists reports whether key is present. Redis errors count as absent.
func (s *KVStore) Exists(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Delete removes key.
func (s *KVStore) Delete(key string) {
	if s.rc != nil {
		ctx, cancel := opCtx()
		defer cancel()
		if err := s.rc.Del(ctx, key).Err(); err != nil {
			Sugar.Warnf("kv del %s: %v", key, err)
		}
		return
	}
	s.mu.Lock()
	delete(s.mem, key)
	s.mu.Unlock()
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
