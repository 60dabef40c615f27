package utils

import (
	"time"

	"github.com/mojocn/base64Captcha"
)

// kvCaptchaStore implements base64Captcha.Store on top of KVStore so captchas work
// behind a load balancer when Redis is configured.
type kvCaptchaStore struct {
	kv  *KVStore
	ttl time.Duration
}

// NewCaptchaStore adapts kv to the base64Captcha store interface.
func NewCaptchaStore(kv *KVStore, ttl time.Duration) base64Captcha.Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &kvCaptchaStore{kv: kv, ttl: ttl}
}

func (s *kvCaptchaStore) key(id string) string {
	return "captcha:" + id
}

func (s *kvCaptchaStore) Set(id string, value string) error {
	return s.kv.Set(s.key(id), value, s.ttl)
}

func (s *kvCaptchaStore) Get(id string, clear bool) string {
	var (
		v  string
		ok bool
	)
	if clear {
		v, ok = s.kv.GetDel(s.key(id))
	} else {
		v, ok = s.kv.Get(s.key(id))
	}
	if !ok {
		return ""
	}
	return v
}

func (s *kvCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}

// Captcha issues and checks digit captchas.
type Captcha struct {
	store base64Captcha.Store
}

// NewCaptcha builds a captcha service over store.
func NewCaptcha(store base64Captcha.Store) *Captcha {
	return &Captcha{store: store}
}

// Generate creates a captcha and returns its id and a data URI image for display.
func (c *Captcha) Generate() (string, string, error) {
	// 5 digits in a 120x40 image
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	id, b64, _, err := base64Captcha.NewCaptcha(driver, c.store).Generate()
	return id, b64, err
}

// Verify checks the answer and consumes the captcha either way.
func (c *Captcha) Verify(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return c.store.Verify(id, answer, true)
}
