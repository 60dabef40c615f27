package routes

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/utils"
)

type discardTransport struct{}

func (discardTransport) Send(utils.Mail) error { return nil }

func TestMain(m *testing.M) {
	config.Override(config.AppConfig{SecretKey: "test", GinMode: "test", RateLimitPerMinute: 600})
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := config.OpenDatabase(config.AppConfig{DBDriver: "sqlite", DatabaseURI: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db, models.Tables()...))
	kv := utils.NewKVStore(nil)
	return SetupRouter(Deps{
		DB:        db,
		KV:        kv,
		Sessions:  utils.NewSessionStore(kv, time.Hour, time.Hour, false),
		Mailer:    utils.NewMailer(discardTransport{}, "noreply@blog.test"),
		Metrics:   middleware.NewMetrics(),
		AccessLog: zap.NewNop(),
	})
}

func serve(r *gin.Engine, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)
	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	serve(r, http.MethodGet, "/explore", "")
	w = serve(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `microblog_http_requests_total{method="GET",path="/explore",status="401"} 1`)
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	r := newTestRouter(t)
	for _, path := range []string{"/", "/index", "/explore", "/messages", "/edit_profile", "/user/john", "/auth/me"} {
		w := serve(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := serve(r, http.MethodGet, "/no/such/route", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterLoginAndPost(t *testing.T) {
	r := newTestRouter(t)
	w := serve(r, http.MethodPost, "/auth/register",
		`{"username":"john","email":"john@example.com","password":"cat","password2":"cat"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(r, http.MethodPost, "/auth/login", `{"username":"john","password":"cat"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	w = serve(r, http.MethodPost, "/index", `{"body":"hello world"}`, cookies...)
	require.Equal(t, http.StatusCreated, w.Code)

	w = serve(r, http.MethodGet, "/", "", cookies...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "hello world"))

	w = serve(r, http.MethodGet, "/search?q=hello", "", cookies...)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
