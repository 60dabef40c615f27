package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Secrets have no defaults inside code and must come from config.json, a .env file or the environment.
type AppConfig struct {
	AppPort   string
	SecretKey string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for sessions and short-lived state
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// SMTP for password reset mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool
	MailSender   string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Gin framework configuration
	GinMode string
	GinPath string
	// Blog behaviour
	PostsPerPage     int
	ResetTokenTTLSec int
	SessionTTLHours  int
	RememberTTLDays  int
	BaseURL          string
	AdminUsernames   []string
	// HTTP hardening
	RateLimitPerMinute     int
	AllowedOrigins         []string
	RegisterCaptchaEnabled bool
	// OAuth providers
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	// Optional full-text search
	ElasticsearchURL   string
	ElasticsearchIndex string
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.RWMutex
)

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	mu.Lock()
	defer mu.Unlock()
	if loaded {
		return cfg
	}

	// Precedence: .env -> config/config.json -> defaults -> environment variable overrides
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("invalid config/config.json: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.SecretKey == "" {
		log.Fatal("SECRET_KEY must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()
	return Load()
}

// Override replaces the cached configuration. Zero-valued fields receive defaults.
func Override(c AppConfig) AppConfig {
	applyDefaults(&c)
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
	return c
}

// IsAdminUsername reports whether the username is listed in AdminUsernames (case-insensitive).
func (c AppConfig) IsAdminUsername(username string) bool {
	uname := strings.TrimSpace(username)
	if uname == "" {
		return false
	}
	for _, u := range c.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}

// loadJSONConfig reads grouped sections from a JSON file into out. A missing file is not an error.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if f, ok := m[key].(float64); ok {
			return int(f)
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}
	section := func(name string) map[string]any {
		m, _ := raw[name].(map[string]any)
		return m
	}

	if app := section("app"); app != nil {
		out.AppPort = getString(app, "AppPort")
		out.SecretKey = getString(app, "SecretKey")
		out.BaseURL = getString(app, "BaseURL")
		out.PostsPerPage = getInt(app, "PostsPerPage")
		out.ResetTokenTTLSec = getInt(app, "ResetTokenTTLSec")
		out.SessionTTLHours = getInt(app, "SessionTTLHours")
		out.RememberTTLDays = getInt(app, "RememberTTLDays")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.AdminUsernames = getStringSlice(app, "AdminUsernames")
		out.RegisterCaptchaEnabled = getBool(app, "RegisterCaptchaEnabled")
	}

	if dbs := section("database"); dbs != nil {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds := section("redis"); rds != nil {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if sm := section("smtp"); sm != nil {
		out.SMTPHost = getString(sm, "SMTPHost")
		out.SMTPPort = getInt(sm, "SMTPPort")
		out.SMTPUsername = getString(sm, "SMTPUsername")
		out.SMTPPassword = getString(sm, "SMTPPassword")
		out.SMTPTLS = getBool(sm, "SMTPTLS")
		out.MailSender = getString(sm, "Sender")
	}

	if lg := section("log"); lg != nil {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.GinMode = getString(lg, "GinMode")
		out.GinPath = getString(lg, "GinPath")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if oa := section("oauth"); oa != nil {
		out.GitHubClientID = getString(oa, "GitHubClientID")
		out.GitHubClientSecret = getString(oa, "GitHubClientSecret")
		out.GoogleClientID = getString(oa, "GoogleClientID")
		out.GoogleClientSecret = getString(oa, "GoogleClientSecret")
	}

	if sr := section("search"); sr != nil {
		out.ElasticsearchURL = getString(sr, "ElasticsearchURL")
		out.ElasticsearchIndex = getString(sr, "Index")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "microblog"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.PostsPerPage == 0 {
		c.PostsPerPage = 25
	}
	if c.ResetTokenTTLSec == 0 {
		c.ResetTokenTTLSec = 600
	}
	if c.SessionTTLHours == 0 {
		c.SessionTTLHours = 24
	}
	if c.RememberTTLDays == 0 {
		c.RememberTTLDays = 30
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:" + c.AppPort
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.ElasticsearchIndex == "" {
		c.ElasticsearchIndex = "posts"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			*dst = mustParseInt(v)
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitAndTrim(v)
		}
	}

	str("APP_PORT", &c.AppPort)
	str("SECRET_KEY", &c.SecretKey)
	str("BASE_URL", &c.BaseURL)

	str("DB_DRIVER", &c.DBDriver)
	str("DATABASE_URI", &c.DatabaseURI)
	str("DB_HOST", &c.DBHost)
	str("DB_PORT", &c.DBPort)
	str("DB_USER", &c.DBUser)
	str("DB_PASSWORD", &c.DBPassword)
	str("DB_NAME", &c.DBName)

	str("REDIS_HOST", &c.RedisHost)
	num("REDIS_PORT", &c.RedisPort)
	num("REDIS_DB", &c.RedisDB)
	str("REDIS_PASSWORD", &c.RedisPassword)

	str("SMTP_HOST", &c.SMTPHost)
	num("SMTP_PORT", &c.SMTPPort)
	str("SMTP_USERNAME", &c.SMTPUsername)
	str("SMTP_PASSWORD", &c.SMTPPassword)
	flag("SMTP_TLS", &c.SMTPTLS)
	str("MAIL_SENDER", &c.MailSender)

	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_PATH", &c.LogPath)
	num("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	num("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	num("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	flag("LOG_COMPRESS", &c.LogCompress)
	str("GIN_MODE", &c.GinMode)
	str("GIN_PATH", &c.GinPath)

	num("POSTS_PER_PAGE", &c.PostsPerPage)
	num("RESET_TOKEN_TTL_SEC", &c.ResetTokenTTLSec)
	num("SESSION_TTL_HOURS", &c.SessionTTLHours)
	num("REMEMBER_TTL_DAYS", &c.RememberTTLDays)
	list("ADMIN_USERNAMES", &c.AdminUsernames)

	num("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	list("CORS_ALLOWED_ORIGINS", &c.AllowedOrigins)
	flag("REGISTER_CAPTCHA_ENABLED", &c.RegisterCaptchaEnabled)

	str("GITHUB_CLIENT_ID", &c.GitHubClientID)
	str("GITHUB_CLIENT_SECRET", &c.GitHubClientSecret)
	str("GOOGLE_CLIENT_ID", &c.GoogleClientID)
	str("GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret)

	str("ELASTICSEARCH_URL", &c.ElasticsearchURL)
	str("ELASTICSEARCH_INDEX", &c.ElasticsearchIndex)
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
