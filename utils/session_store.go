package utils

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the opaque session id.
const SessionCookieName = "session"

// SessionStore maps opaque cookie ids to user ids in the KV store.
type SessionStore struct {
	kv          *KVStore
	ttl         time.Duration
	rememberTTL time.Duration
	secure      bool
}

// NewSessionStore builds a store. ttl applies to browser-session logins, rememberTTL to "remember me".
func NewSessionStore(kv *KVStore, ttl, rememberTTL time.Duration, secure bool) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if rememberTTL <= 0 {
		rememberTTL = 30 * 24 * time.Hour
	}
	return &SessionStore{kv: kv, ttl: ttl, rememberTTL: rememberTTL, secure: secure}
}

func sessionKey(id string) string { return "session:" + id }

func revokedKey(userID uint) string {
	return "session:revoked:" + strconv.FormatUint(uint64(userID), 10)
}

// Create starts a session for userID and sets the cookie. With remember the cookie
// persists across browser restarts; otherwise it is a browser-session cookie.
func (s *SessionStore) Create(ctx *gin.Context, userID uint, remember bool) error {
	id := uuid.NewString()
	ttl := s.ttl
	maxAge := 0
	if remember {
		ttl = s.rememberTTL
		maxAge = int(ttl.Seconds())
	}
	// value is "<user id>|<created unix nanos>"
	value := strconv.FormatUint(uint64(userID), 10) + "|" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := s.kv.Set(sessionKey(id), value, ttl); err != nil {
		return err
	}
	// state-changing GET routes rely on the cookie never riding cross-site navigations
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(SessionCookieName, id, maxAge, "/", "", s.secure, true)
	return nil
}

// UserID resolves the session cookie on the request to a user id.
func (s *SessionStore) UserID(ctx *gin.Context) (uint, bool) {
	id, err := ctx.Cookie(SessionCookieName)
	if err != nil || id == "" {
		return 0, false
	}
	v, ok := s.kv.Get(sessionKey(id))
	if !ok {
		return 0, false
	}
	rawUID, rawCreated, found := strings.Cut(v, "|")
	if !found {
		return 0, false
	}
	uid, err := strconv.ParseUint(rawUID, 10, 64)
	if err != nil || uid == 0 {
		return 0, false
	}
	created, err := strconv.ParseInt(rawCreated, 10, 64)
	if err != nil {
		return 0, false
	}
	if revoked, ok := s.kv.Get(revokedKey(uint(uid))); ok {
		if at, err := strconv.ParseInt(revoked, 10, 64); err == nil && created < at {
			return 0, false
		}
	}
	return uint(uid), true
}

// RevokeUser invalidates every session userID holds right now. Sessions created
// afterwards are unaffected.
func (s *SessionStore) RevokeUser(userID uint) error {
	// the marker only has to outlive the longest session
	return s.kv.Set(revokedKey(userID), strconv.FormatInt(time.Now().UnixNano(), 10), s.rememberTTL)
}

// Destroy ends the current session. It is a no-op for anonymous requests.
func (s *SessionStore) Destroy(ctx *gin.Context) {
	if id, err := ctx.Cookie(SessionCookieName); err == nil && id != "" {
		s.kv.Delete(sessionKey(id))
	}
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(SessionCookieName, "", -1, "/", "", s.secure, true)
}
