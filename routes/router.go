package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/controllers"
	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/search"
	"github.com/cppla/microblog/utils"
)

// Deps are the long-lived services the handlers share.
type Deps struct {
	DB       *gorm.DB
	KV       *utils.KVStore
	Sessions *utils.SessionStore
	Mailer   *utils.Mailer
	Captcha  *utils.Captcha
	// Index is nil when search is disabled.
	Index   search.Index
	Metrics *middleware.Metrics
	// AccessLog receives one line per request; gin.Recovery is used when nil.
	AccessLog *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if d.AccessLog != nil {
		r.Use(ginzap.Ginzap(d.AccessLog, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(d.AccessLog, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	r.Use(middleware.SessionAuth(d.DB, d.Sessions), middleware.LastSeen(d.DB))

	authController := controllers.NewAuthController(d.DB, d.KV, d.Sessions, d.Mailer, d.Captcha)
	postController := controllers.NewPostController(d.DB, d.Index)
	userController := controllers.NewUserController(d.DB)
	messageController := controllers.NewMessageController(d.DB)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	authGroup := r.Group("/auth")
	authGroup.Use(limiter.Middleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/captcha", authController.Captcha)
	authGroup.POST("/reset_password_request", authController.ResetPasswordRequest)
	authGroup.GET("/reset_password/:token", authController.CheckResetToken)
	authGroup.POST("/reset_password/:token", authController.ResetPassword)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", authController.Logout)
	authGroup.GET("/me", middleware.LoginRequired(), authController.Me)

	protected := r.Group("")
	protected.Use(middleware.LoginRequired())
	for _, path := range []string{"/", "/index"} {
		protected.GET(path, postController.Feed)
		protected.POST(path, postController.CreatePost)
	}
	protected.GET("/explore", postController.Explore)
	protected.GET("/search", postController.Search)
	protected.GET("/edit_post/:username/:id", postController.GetPost)
	protected.POST("/edit_post/:username/:id", postController.EditPost)
	protected.GET("/delete/:username/:id", postController.DeletePost)

	protected.GET("/user/:username", userController.Profile)
	protected.GET("/user/:username/popup", userController.Popup)
	protected.GET("/edit_profile", userController.GetProfile)
	protected.POST("/edit_profile", userController.EditProfile)
	protected.POST("/follow/:username", userController.Follow)
	protected.POST("/unfollow/:username", userController.Unfollow)

	protected.GET("/send_message/:username", messageController.Recipient)
	protected.POST("/send_message/:username", messageController.Send)
	protected.GET("/messages", messageController.Inbox)
	protected.GET("/edit_message/:username/:id", messageController.GetMessage)
	protected.POST("/edit_message/:username/:id", messageController.EditMessage)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
