package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/routes"
	"github.com/cppla/microblog/search"
	"github.com/cppla/microblog/utils"
)

var rootCmd = &cobra.Command{
	Use:   "microblog",
	Short: "Microblog - posts, followers and private messages over JSON",
	// serving is the default so the bare binary behaves like `microblog serve`
	RunE: func(cmd *cobra.Command, args []string) error { return runServe() },
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the schema and start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigrate() error {
	cfg := config.Load()
	if err := utils.InitLogger(cfg); err != nil {
		return err
	}
	conn, err := config.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	if err := config.Migrate(conn, models.Tables()...); err != nil {
		return err
	}
	utils.Sugar.Infow("schema up to date", "driver", cfg.DBDriver)
	return nil
}

func runServe() error {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		return err
	}
	defer utils.Logger.Sync()

	db := config.InitDatabase(models.Tables()...)

	rc := utils.NewRedisClient(cfg)
	kv := utils.NewKVStore(rc)
	sessions := utils.NewSessionStore(kv,
		time.Duration(cfg.SessionTTLHours)*time.Hour,
		time.Duration(cfg.RememberTTLDays)*24*time.Hour,
		strings.HasPrefix(cfg.BaseURL, "https://"))

	var captcha *utils.Captcha
	if cfg.RegisterCaptchaEnabled {
		captcha = utils.NewCaptcha(utils.NewCaptchaStore(kv, 5*time.Minute))
	}

	index, err := search.New(cfg)
	if err != nil {
		utils.Sugar.Warnw("search disabled", "error", err)
		index = nil
	}

	accessLog, err := utils.NewRollingFileLogger(cfg, cfg.GinPath)
	if err != nil {
		utils.Sugar.Warnw("gin access log unavailable", "path", cfg.GinPath, "error", err)
		accessLog = nil
	}

	r := routes.SetupRouter(routes.Deps{
		DB:        db,
		KV:        kv,
		Sessions:  sessions,
		Mailer:    utils.NewMailer(utils.NewSMTPTransport(cfg), cfg.MailSender),
		Captcha:   captcha,
		Index:     index,
		Metrics:   middleware.NewMetrics(),
		AccessLog: accessLog,
	})

	onShutdown := func() {
		if rc != nil {
			_ = rc.Close()
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	return utils.GraceServer(":"+cfg.AppPort, r, onShutdown)
}
