package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/utils"
)

const (
	oauthStateTTL        = 10 * time.Minute
	resetRequestCooldown = 60 * time.Second
)

// AuthController handles registration, sessions, password reset and third-party login.
type AuthController struct {
	db       *gorm.DB
	kv       *utils.KVStore
	sessions *utils.SessionStore
	mailer   *utils.Mailer
	captcha  *utils.Captcha
}

// NewAuthController creates a new AuthController. captcha may be nil when registration
// does not require one.
func NewAuthController(db *gorm.DB, kv *utils.KVStore, sessions *utils.SessionStore, mailer *utils.Mailer, captcha *utils.Captcha) *AuthController {
	return &AuthController{db: db, kv: kv, sessions: sessions, mailer: mailer, captcha: captcha}
}

type registerRequest struct {
	Username      string `json:"username" binding:"required,max=64"`
	Email         string `json:"email" binding:"required,email,max=128"`
	Password      string `json:"password" binding:"required,max=72"`
	Password2     string `json:"password2" binding:"required,eqfield=Password"`
	CaptchaID     string `json:"captcha_id"`
	CaptchaAnswer string `json:"captcha_answer"`
}

type loginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

type resetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Password  string `json:"password" binding:"required,max=72"`
	Password2 string `json:"password2" binding:"required,eqfield=Password"`
}

// Register creates a local account.
func (a *AuthController) Register(ctx *gin.Context) {
	var req registerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	if config.Get().RegisterCaptchaEnabled && a.captcha != nil {
		if !a.captcha.Verify(req.CaptchaID, req.CaptchaAnswer) {
			utils.Error(ctx, http.StatusBadRequest, 40003, "invalid captcha")
			return
		}
	}
	user, err := models.RegisterUser(a.db, req.Username, req.Email, req.Password)
	if err != nil {
		respondModelError(ctx, err, 50002, "failed to create user")
		return
	}
	utils.Sugar.Infow("user registered", "user_id", user.ID, "username", user.Username)
	utils.Respond(ctx, http.StatusCreated, 0, "congratulations, you are now a registered user", userSummary(user))
}

// Login checks credentials and starts a session.
func (a *AuthController) Login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	user, err := models.Authenticate(a.db, req.Username, req.Password)
	if errors.Is(err, models.ErrInvalidCredentials) {
		utils.Error(ctx, http.StatusUnauthorized, 40102, models.ErrInvalidCredentials.Error())
		return
	}
	if err != nil {
		internalError(ctx, 50003, "failed to authenticate", err)
		return
	}
	a.startSession(ctx, user, req.RememberMe)
}

func (a *AuthController) startSession(ctx *gin.Context, user *models.User, remember bool) {
	if err := a.sessions.Create(ctx, user.ID, remember); err != nil {
		internalError(ctx, 50004, "failed to create session", err)
		return
	}
	utils.Success(ctx, a.me(user))
}

// Logout ends the current session.
func (a *AuthController) Logout(ctx *gin.Context) {
	a.sessions.Destroy(ctx)
	utils.Respond(ctx, http.StatusOK, 0, "logged out", nil)
}

func (a *AuthController) me(user *models.User) gin.H {
	view := userSummary(user)
	view["email"] = user.Email
	unread, err := user.UnreadMessageCount(a.db)
	if err != nil {
		utils.Sugar.Warnw("count unread messages failed", "user_id", user.ID, "error", err)
	}
	view["unread_messages"] = unread
	return view
}

// Me returns the session user with their unread message count.
func (a *AuthController) Me(ctx *gin.Context) {
	utils.Success(ctx, a.me(currentUser(ctx)))
}

// Captcha issues a new image captcha for registration.
func (a *AuthController) Captcha(ctx *gin.Context) {
	if a.captcha == nil {
		utils.Error(ctx, http.StatusNotFound, 40404, "captcha disabled")
		return
	}
	id, b64, err := a.captcha.Generate()
	if err != nil {
		internalError(ctx, 50005, "failed to generate captcha", err)
		return
	}
	utils.Success(ctx, gin.H{"captcha_id": id, "image": b64})
}

// ResetPasswordRequest mails a reset link when the address belongs to an account. The
// response is the same either way.
func (a *AuthController) ResetPasswordRequest(ctx *gin.Context) {
	var req resetRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	const done = "check your email for the instructions to reset your password"
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := models.FindUserByEmail(a.db, email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Sugar.Errorw("lookup reset email failed", "error", err)
		}
		utils.Respond(ctx, http.StatusOK, 0, done, nil)
		return
	}
	if !utils.CooldownTry(a.kv, "reset", email, resetRequestCooldown) {
		utils.Respond(ctx, http.StatusOK, 0, done, nil)
		return
	}
	cfg := config.Get()
	token, err := user.GetResetPasswordToken([]byte(cfg.SecretKey), time.Duration(cfg.ResetTokenTTLSec)*time.Second)
	if err != nil {
		internalError(ctx, 50006, "failed to issue reset token", err)
		return
	}
	link := strings.TrimRight(cfg.BaseURL, "/") + "/auth/reset_password/" + token
	a.mailer.SendAsync(a.mailer.PasswordResetMail(user.Email, user.Username, link))
	utils.Respond(ctx, http.StatusOK, 0, done, nil)
}

// CheckResetToken tells whether the link in the path can still be used.
func (a *AuthController) CheckResetToken(ctx *gin.Context) {
	user, status := models.CheckResetPasswordToken(a.db, a.kv, []byte(config.Get().SecretKey), ctx.Param("token"))
	if status != utils.TokenValid {
		a.rejectToken(ctx, status)
		return
	}
	utils.Success(ctx, gin.H{"username": user.Username})
}

// ResetPassword sets a new password using the token in the path.
func (a *AuthController) ResetPassword(ctx *gin.Context) {
	var req resetPasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	user, status, err := models.ResetPassword(a.db, a.kv, []byte(config.Get().SecretKey), ctx.Param("token"), req.Password)
	if err != nil {
		respondModelError(ctx, err, 50007, "failed to reset password")
		return
	}
	if status != utils.TokenValid {
		a.rejectToken(ctx, status)
		return
	}
	if err := a.sessions.RevokeUser(user.ID); err != nil {
		utils.Sugar.Errorw("revoke sessions after reset failed", "user", user.ID, "error", err)
	}
	utils.Respond(ctx, http.StatusOK, 0, "your password has been reset", nil)
}

func (a *AuthController) rejectToken(ctx *gin.Context, status utils.TokenStatus) {
	utils.Sugar.Infow("reset token rejected", "status", string(status), "ip", ctx.ClientIP())
	utils.Error(ctx, http.StatusBadRequest, 40005, "invalid or expired token")
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40006, err.Error())
		return
	}
	state, err := utils.NewOAuthState(a.kv, provider, oauthStateTTL)
	if err != nil {
		internalError(ctx, 50008, "failed to save oauth state", err)
		return
	}
	utils.Success(ctx, gin.H{"authorization_url": cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), "state": state})
}

// OAuthCallback exchanges the authorization code for an identity and starts a session.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40007, "missing code or state")
		return
	}
	if !utils.ConsumeOAuthState(a.kv, provider, state) {
		utils.Error(ctx, http.StatusBadRequest, 40008, "invalid or expired state")
		return
	}
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40006, err.Error())
		return
	}
	token, err := cfg.Exchange(ctx.Request.Context(), code)
	if err != nil {
		utils.Sugar.Warnw("oauth exchange failed", "provider", provider, "error", err)
		utils.Error(ctx, http.StatusBadRequest, 40009, "failed to exchange code")
		return
	}
	identity, err := fetchIdentity(ctx.Request.Context(), provider, cfg.Client(ctx.Request.Context(), token))
	if err != nil {
		internalError(ctx, 50009, "failed to fetch user info", err)
		return
	}
	user, err := models.FindOrCreateOAuthUser(a.db, *identity)
	if err != nil {
		internalError(ctx, 50010, "failed to persist user", err)
		return
	}
	a.startSession(ctx, user, false)
}
