package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/search"
	"github.com/cppla/microblog/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.Override(config.AppConfig{SecretKey: "test", BaseURL: "http://blog.test", PostsPerPage: 3})
	os.Exit(m.Run())
}

type chanTransport struct{ ch chan utils.Mail }

func (c *chanTransport) Send(m utils.Mail) error {
	c.ch <- m
	return nil
}

// memIndex matches documents containing every query word.
type memIndex struct {
	mu   sync.Mutex
	docs map[uint]string
}

func (m *memIndex) Add(_ context.Context, id uint, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = body
	return nil
}

func (m *memIndex) Remove(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memIndex) Query(_ context.Context, q string, from, size int) ([]uint, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []uint
	for id, body := range m.docs {
		if strings.Contains(strings.ToLower(body), strings.ToLower(q)) {
			hits = append(hits, id)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i] > hits[j] })
	total := int64(len(hits))
	if from >= len(hits) {
		return []uint{}, total, nil
	}
	return hits[from:min(from+size, len(hits))], total, nil
}

type testApp struct {
	db     *gorm.DB
	kv     *utils.KVStore
	mail   chan utils.Mail
	engine *gin.Engine
}

func newTestApp(t *testing.T, index search.Index) *testApp {
	t.Helper()
	db, err := config.OpenDatabase(config.AppConfig{DBDriver: "sqlite", DatabaseURI: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db, models.Tables()...))

	kv := utils.NewKVStore(nil)
	sessions := utils.NewSessionStore(kv, time.Hour, 24*time.Hour, false)
	mail := make(chan utils.Mail, 4)
	mailer := utils.NewMailer(&chanTransport{ch: mail}, "noreply@blog.test")

	auth := NewAuthController(db, kv, sessions, mailer, utils.NewCaptcha(utils.NewCaptchaStore(kv, time.Minute)))
	posts := NewPostController(db, index)
	users := NewUserController(db)
	msgs := NewMessageController(db)

	r := gin.New()
	r.Use(middleware.SessionAuth(db, sessions), middleware.LastSeen(db))
	r.POST("/auth/register", auth.Register)
	r.POST("/auth/login", auth.Login)
	r.POST("/auth/logout", auth.Logout)
	r.GET("/auth/captcha", auth.Captcha)
	r.POST("/auth/reset_password_request", auth.ResetPasswordRequest)
	r.GET("/auth/reset_password/:token", auth.CheckResetToken)
	r.POST("/auth/reset_password/:token", auth.ResetPassword)
	r.GET("/auth/oauth/:provider/login", auth.OAuthRedirect)
	r.GET("/auth/oauth/:provider/callback", auth.OAuthCallback)

	p := r.Group("", middleware.LoginRequired())
	p.GET("/auth/me", auth.Me)
	p.GET("/", posts.Feed)
	p.POST("/", posts.CreatePost)
	p.GET("/explore", posts.Explore)
	p.GET("/search", posts.Search)
	p.GET("/edit_post/:username/:id", posts.GetPost)
	p.POST("/edit_post/:username/:id", posts.EditPost)
	p.GET("/delete/:username/:id", posts.DeletePost)
	p.GET("/user/:username", users.Profile)
	p.GET("/user/:username/popup", users.Popup)
	p.GET("/edit_profile", users.GetProfile)
	p.POST("/edit_profile", users.EditProfile)
	p.POST("/follow/:username", users.Follow)
	p.POST("/unfollow/:username", users.Unfollow)
	p.GET("/send_message/:username", msgs.Recipient)
	p.POST("/send_message/:username", msgs.Send)
	p.GET("/messages", msgs.Inbox)
	p.GET("/edit_message/:username/:id", msgs.GetMessage)
	p.POST("/edit_message/:username/:id", msgs.EditMessage)

	return &testApp{db: db, kv: kv, mail: mail, engine: r}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type listData struct {
	Items []struct {
		ID     uint   `json:"id"`
		Body   string `json:"body"`
		Unread bool   `json:"unread"`
		Author struct {
			Username string `json:"username"`
		} `json:"author"`
	} `json:"items"`
	Pagination struct {
		Total    int64 `json:"total"`
		NextPage int   `json:"next_page"`
	} `json:"pagination"`
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (a *testApp) register(t *testing.T, username string) {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/auth/register", gin.H{
		"username": username, "email": username + "@example.com", "password": "cat", "password2": "cat",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
}

func (a *testApp) login(t *testing.T, username string) *http.Cookie {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/auth/login", gin.H{"username": username, "password": "cat"}, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	for _, c := range w.Result().Cookies() {
		if c.Name == utils.SessionCookieName {
			return c
		}
	}
	t.Fatalf("no session cookie for %s", username)
	return nil
}

func (a *testApp) signup(t *testing.T, username string) *http.Cookie {
	t.Helper()
	a.register(t, username)
	return a.login(t, username)
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestRegisterAndLogin(t *testing.T) {
	app := newTestApp(t, nil)
	app.register(t, "john")

	w, env := app.do(t, http.MethodPost, "/auth/register", gin.H{
		"username": "john", "email": "other@example.com", "password": "x", "password2": "x",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "please use a different username", env.Message)

	w, _ = app.do(t, http.MethodPost, "/auth/register", gin.H{
		"username": "susan", "email": "susan@example.com", "password": "a", "password2": "b",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, long := range []string{strings.Repeat("x", 80), strings.Repeat("é", 40)} {
		w, _ = app.do(t, http.MethodPost, "/auth/register", gin.H{
			"username": "susan", "email": "susan@example.com", "password": long, "password2": long,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	w, env = app.do(t, http.MethodPost, "/auth/login", gin.H{"username": "john", "password": "dog"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid username or password", env.Message)

	w, _ = app.do(t, http.MethodGet, "/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookie := app.login(t, "john")
	assert.Zero(t, cookie.MaxAge)
	w, env = app.do(t, http.MethodGet, "/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]interface{}](t, env)
	assert.Equal(t, "john", me["username"])
	assert.Equal(t, float64(0), me["unread_messages"])

	w, _ = app.do(t, http.MethodPost, "/auth/logout", nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = app.do(t, http.MethodGet, "/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRememberMe(t *testing.T) {
	app := newTestApp(t, nil)
	app.register(t, "john")
	w, _ := app.do(t, http.MethodPost, "/auth/login", gin.H{"username": "john", "password": "cat", "remember_me": true}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, int((24 * time.Hour).Seconds()), cookies[0].MaxAge)
}

func TestFeedFollowAndExplore(t *testing.T) {
	app := newTestApp(t, nil)
	john := app.signup(t, "john")
	susan := app.signup(t, "susan")

	w, _ := app.do(t, http.MethodPost, "/", gin.H{"body": "post from john"}, john)
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = app.do(t, http.MethodPost, "/", gin.H{"body": "post from susan"}, susan)
	require.Equal(t, http.StatusCreated, w.Code)
	w, env := app.do(t, http.MethodPost, "/", gin.H{"body": "   "}, susan)
	assert.Equal(t, http.StatusBadRequest, w.Code, env.Message)

	_, env = app.do(t, http.MethodGet, "/", nil, john)
	feed := decode[listData](t, env)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "post from john", feed.Items[0].Body)

	w, _ = app.do(t, http.MethodPost, "/follow/nobody", nil, john)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = app.do(t, http.MethodPost, "/follow/john", nil, john)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, env = app.do(t, http.MethodPost, "/follow/susan", nil, john)
	require.Equal(t, http.StatusOK, w.Code)
	card := decode[map[string]interface{}](t, env)
	assert.Equal(t, true, card["is_following"])
	assert.Equal(t, float64(1), card["followers_count"])

	_, env = app.do(t, http.MethodGet, "/", nil, john)
	feed = decode[listData](t, env)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "post from susan", feed.Items[0].Body)
	assert.Equal(t, "susan", feed.Items[0].Author.Username)

	w, _ = app.do(t, http.MethodPost, "/unfollow/susan", nil, john)
	require.Equal(t, http.StatusOK, w.Code)
	_, env = app.do(t, http.MethodGet, "/", nil, john)
	assert.Len(t, decode[listData](t, env).Items, 1)

	_, env = app.do(t, http.MethodGet, "/explore", nil, john)
	assert.Len(t, decode[listData](t, env).Items, 2)
}

func TestPagination(t *testing.T) {
	app := newTestApp(t, nil)
	john := app.signup(t, "john")
	for i := 0; i < 5; i++ {
		w, _ := app.do(t, http.MethodPost, "/", gin.H{"body": fmt.Sprintf("post %d", i)}, john)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	_, env := app.do(t, http.MethodGet, "/", nil, john)
	first := decode[listData](t, env)
	assert.Len(t, first.Items, 3)
	assert.Equal(t, int64(5), first.Pagination.Total)
	assert.Equal(t, 2, first.Pagination.NextPage)
	assert.Equal(t, "post 4", first.Items[0].Body)

	_, env = app.do(t, http.MethodGet, "/?page=2", nil, john)
	second := decode[listData](t, env)
	assert.Len(t, second.Items, 2)
	assert.Zero(t, second.Pagination.NextPage)
	assert.Equal(t, "post 0", second.Items[1].Body)
}

func TestProfileAndEditProfile(t *testing.T) {
	app := newTestApp(t, nil)
	app.register(t, "susan")
	john := app.signup(t, "john")
	app.do(t, http.MethodPost, "/", gin.H{"body": "hello"}, john)

	w, env := app.do(t, http.MethodGet, "/user/john", nil, john)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[struct {
		User struct {
			Username string `json:"username"`
			Avatar   string `json:"avatar"`
			IsSelf   bool   `json:"is_self"`
		} `json:"user"`
		Items []json.RawMessage `json:"items"`
	}](t, env)
	assert.Equal(t, "john", profile.User.Username)
	assert.True(t, profile.User.IsSelf)
	assert.Contains(t, profile.User.Avatar, "https://www.gravatar.com/avatar/")
	assert.Len(t, profile.Items, 1)

	w, _ = app.do(t, http.MethodGet, "/user/ghost/popup", nil, john)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = app.do(t, http.MethodPost, "/edit_profile", gin.H{"username": "susan", "about_me": "hi"}, john)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = app.do(t, http.MethodPost, "/edit_profile", gin.H{"username": "johnny", "about_me": "<b>hi</b> there"}, john)
	require.Equal(t, http.StatusOK, w.Code)
	_, env = app.do(t, http.MethodGet, "/edit_profile", nil, john)
	fields := decode[map[string]string](t, env)
	assert.Equal(t, "johnny", fields["username"])
	assert.Equal(t, "hi there", fields["about_me"])
}

func TestEditAndDeletePost(t *testing.T) {
	index := &memIndex{docs: map[uint]string{}}
	app := newTestApp(t, index)
	john := app.signup(t, "john")
	susan := app.signup(t, "susan")

	w, env := app.do(t, http.MethodPost, "/", gin.H{"body": "first draft"}, john)
	require.Equal(t, http.StatusCreated, w.Code)
	id := uint(decode[map[string]interface{}](t, env)["id"].(float64))
	path := fmt.Sprintf("/edit_post/john/%d", id)

	w, _ = app.do(t, http.MethodPost, path, gin.H{"body": "hijacked"}, susan)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	post, err := models.FindPost(app.db, id)
	require.NoError(t, err)
	assert.Equal(t, "first draft", post.Body)

	w, _ = app.do(t, http.MethodPost, path, gin.H{"body": "final text"}, john)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "final text", index.docs[id])

	w, _ = app.do(t, http.MethodGet, "/edit_post/john/999", nil, john)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = app.do(t, http.MethodGet, fmt.Sprintf("/delete/john/%d", id), nil, susan)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	w, _ = app.do(t, http.MethodGet, fmt.Sprintf("/delete/john/%d", id), nil, john)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, index.docs, id)
	_, err = models.FindPost(app.db, id)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSearch(t *testing.T) {
	app := newTestApp(t, nil)
	john := app.signup(t, "john")
	w, env := app.do(t, http.MethodGet, "/search?q=go", nil, john)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "search disabled", env.Message)

	app = newTestApp(t, &memIndex{docs: map[uint]string{}})
	john = app.signup(t, "john")
	app.do(t, http.MethodPost, "/", gin.H{"body": "learning Go today"}, john)
	app.do(t, http.MethodPost, "/", gin.H{"body": "coffee break"}, john)
	app.do(t, http.MethodPost, "/", gin.H{"body": "more go code"}, john)

	w, _ = app.do(t, http.MethodGet, "/search", nil, john)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, env = app.do(t, http.MethodGet, "/search?q=go", nil, john)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[listData](t, env)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "more go code", res.Items[0].Body)
	assert.Equal(t, int64(2), res.Pagination.Total)
}

func TestMessages(t *testing.T) {
	app := newTestApp(t, nil)
	john := app.signup(t, "john")
	susan := app.signup(t, "susan")

	w, _ := app.do(t, http.MethodPost, "/send_message/ghost", gin.H{"message": "hi"}, john)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, env := app.do(t, http.MethodPost, "/send_message/susan", gin.H{"message": "hi susan"}, john)
	require.Equal(t, http.StatusCreated, w.Code)
	msgID := uint(decode[map[string]interface{}](t, env)["id"].(float64))
	editPath := fmt.Sprintf("/edit_message/john/%d", msgID)

	// someone else's message: redirected home, nothing changes
	w, _ = app.do(t, http.MethodPost, editPath, gin.H{"message": "not mine"}, susan)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	w, _ = app.do(t, http.MethodGet, editPath, nil, susan)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	// the username segment does not grant access
	w, _ = app.do(t, http.MethodPost, fmt.Sprintf("/edit_message/susan/%d", msgID), gin.H{"message": "not mine"}, susan)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	w, env = app.do(t, http.MethodGet, editPath, nil, john)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hi susan", decode[map[string]interface{}](t, env)["body"])

	w, _ = app.do(t, http.MethodPost, editPath, gin.H{"message": "hi susan!"}, john)
	require.Equal(t, http.StatusOK, w.Code)

	_, env = app.do(t, http.MethodGet, "/auth/me", nil, susan)
	assert.Equal(t, float64(1), decode[map[string]interface{}](t, env)["unread_messages"])

	_, env = app.do(t, http.MethodGet, "/messages", nil, susan)
	inbox := decode[listData](t, env)
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, "hi susan!", inbox.Items[0].Body)
	assert.True(t, inbox.Items[0].Unread)
	assert.Equal(t, "john", inbox.Items[0].Author.Username)

	_, env = app.do(t, http.MethodGet, "/auth/me", nil, susan)
	assert.Equal(t, float64(0), decode[map[string]interface{}](t, env)["unread_messages"])

	w, env = app.do(t, http.MethodPost, editPath, gin.H{"message": "too late"}, john)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "message has already been read", env.Message)
}

func TestPasswordReset(t *testing.T) {
	app := newTestApp(t, nil)
	app.register(t, "john")

	w, _ := app.do(t, http.MethodPost, "/auth/reset_password_request", gin.H{"email": "nobody@example.com"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	select {
	case m := <-app.mail:
		t.Fatalf("unexpected mail to %v", m.To)
	case <-time.After(50 * time.Millisecond):
	}

	w, _ = app.do(t, http.MethodPost, "/auth/reset_password_request", gin.H{"email": "John@Example.com"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mail utils.Mail
	select {
	case mail = <-app.mail:
	case <-time.After(2 * time.Second):
		t.Fatal("reset mail not sent")
	}
	assert.Equal(t, []string{"john@example.com"}, mail.To)
	const prefix = "http://blog.test/auth/reset_password/"
	start := strings.Index(mail.Text, prefix)
	require.GreaterOrEqual(t, start, 0)
	token := strings.Fields(mail.Text[start+len(prefix):])[0]

	// a second request inside the cooldown sends nothing
	w, _ = app.do(t, http.MethodPost, "/auth/reset_password_request", gin.H{"email": "john@example.com"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	select {
	case <-app.mail:
		t.Fatal("cooldown ignored")
	case <-time.After(50 * time.Millisecond):
	}

	w, _ = app.do(t, http.MethodGet, "/auth/reset_password/"+token, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env := app.do(t, http.MethodGet, "/auth/reset_password/garbage", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid or expired token", env.Message)

	oldSession := app.login(t, "john")
	w, _ = app.do(t, http.MethodGet, "/auth/me", nil, oldSession)
	require.Equal(t, http.StatusOK, w.Code)

	// over the bcrypt limit in bytes while under it in characters
	long := strings.Repeat("é", 40)
	w, env = app.do(t, http.MethodPost, "/auth/reset_password/"+token, gin.H{"password": long, "password2": long}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "password", decode[map[string]interface{}](t, env)["field"])
	w, _ = app.do(t, http.MethodGet, "/auth/reset_password/"+token, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, "rejected password must not burn the token")

	w, _ = app.do(t, http.MethodPost, "/auth/reset_password/"+token, gin.H{"password": "dog", "password2": "dog"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = app.do(t, http.MethodGet, "/auth/me", nil, oldSession)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "sessions from before the reset are revoked")
	w, _ = app.do(t, http.MethodPost, "/auth/login", gin.H{"username": "john", "password": "dog"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = app.do(t, http.MethodPost, "/auth/reset_password/"+token, gin.H{"password": "x", "password2": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCaptcha(t *testing.T) {
	app := newTestApp(t, nil)
	w, env := app.do(t, http.MethodGet, "/auth/captcha", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode[map[string]string](t, env)
	assert.NotEmpty(t, data["captcha_id"])
	assert.True(t, strings.HasPrefix(data["image"], "data:image/png;base64,"))
}

func TestOAuthRejectsBadRequests(t *testing.T) {
	app := newTestApp(t, nil)
	w, _ := app.do(t, http.MethodGet, "/auth/oauth/myspace/login", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = app.do(t, http.MethodGet, "/auth/oauth/github/login", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unconfigured provider")
	w, _ = app.do(t, http.MethodGet, "/auth/oauth/github/callback?code=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, env := app.do(t, http.MethodGet, "/auth/oauth/github/callback?code=x&state=forged", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid or expired state", env.Message)
}

func TestFetchIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/user":
			fmt.Fprint(w, `{"id": 42, "login": "octocat", "email": ""}`)
		case "/user/emails":
			fmt.Fprint(w, `[{"email":"old@example.com","primary":false,"verified":true},{"email":"octo@example.com","primary":true,"verified":true}]`)
		case "/userinfo":
			fmt.Fprint(w, `{"id": "g-7", "email": "g@example.com", "verified_email": true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	oldGitHub, oldGoogle := githubAPIBase, googleUserInfoURL
	githubAPIBase, googleUserInfoURL = srv.URL, srv.URL+"/userinfo"
	defer func() { githubAPIBase, googleUserInfoURL = oldGitHub, oldGoogle }()

	id, err := fetchIdentity(context.Background(), "github", srv.Client())
	require.NoError(t, err)
	assert.Equal(t, models.ExternalIdentity{Provider: "github", ProviderID: "42", Login: "octocat", Email: "octo@example.com"}, *id)

	id, err = fetchIdentity(context.Background(), "google", srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "g-7", id.ProviderID)
	assert.Equal(t, "g@example.com", id.Email)

	_, err = fetchIdentity(context.Background(), "myspace", srv.Client())
	assert.Error(t, err)
}

func TestOAuthConfigRedirectURL(t *testing.T) {
	prev := config.Get()
	config.Override(config.AppConfig{SecretKey: "test", BaseURL: "http://blog.test/", GitHubClientID: "id", GitHubClientSecret: "secret"})
	defer config.Override(prev)

	cfg, err := oauthConfig("github")
	require.NoError(t, err)
	assert.Equal(t, "http://blog.test/auth/oauth/github/callback", cfg.RedirectURL)
	assert.Contains(t, cfg.AuthCodeURL("s"), "github.com/login/oauth/authorize")
}
