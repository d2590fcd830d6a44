package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendsheets/internal/auth"
	"attendsheets/internal/config"
	"attendsheets/internal/contact"
	"attendsheets/internal/handler"
	"attendsheets/internal/httpmiddleware"
	"attendsheets/internal/identity"
	"attendsheets/internal/kv"
	"attendsheets/internal/mail"
	"attendsheets/internal/qr"
	"attendsheets/internal/roster"
	"attendsheets/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func newLogger(cfg config.App) *slog.Logger {
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func runHTTP(cfg config.App) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := store.Open(startCtx, cfg.DBDriver, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return pkgerrors.Wrap(err, "db not reachable")
	}
	defer func() { _ = db.Close() }()

	var codes interface {
		kv.ExpiringStore
		handler.HealthChecker
	}
	if cfg.RedisAddr != "" {
		rdb := kv.NewRedis(cfg.RedisAddr, cfg.RedisPassword, "attendsheets:")
		defer func() { _ = rdb.Close() }()
		codes = rdb
	} else {
		logger.Warn("REDIS_ADDR not set, verification codes are kept in memory")
		codes = kv.NewMemory()
	}

	var sender mail.Sender
	if cfg.SendGridAPIKey != "" {
		sender = mail.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFrom)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, emails are logged instead of sent")
		sender = mail.NewConsole(logger)
	}

	tokens := auth.NewIssuer(cfg.JWTSigningKey, cfg.JWTIssuer).WithDefaultTTL(cfg.TokenTTL)
	ids := roster.NewIDGen(time.Now)

	h := &handler.Handler{
		Identity: identity.NewService(db, codes, sender, tokens, identity.Config{
			SessionTTL:    cfg.SessionTTL,
			SignupCodeTTL: cfg.SignupCodeTTL,
			ResetCodeTTL:  cfg.ResetCodeTTL,
		}, logger.With("component", "identity")),
		Teachers: roster.NewTeacherService(db, ids, time.Now, logger.With("component", "roster")),
		Students: roster.NewStudentService(db, ids, time.Now, logger.With("component", "roster")),
		QR:       qr.NewEngine(db, qr.Config{DefaultRotation: cfg.DefaultQRRotationSec}, logger.With("component", "qr")),
		Contact:  contact.NewService(db, sender, cfg.SupportEmail, time.Now, logger.With("component", "contact")),
		Store:    db,
		Tokens:   tokens,
		KV:       codes,
		Database: db.Engine(),
		Logger:   logger,

		AuthLimit:   httpmiddleware.NewSimpleTokenBucket("auth", cfg.AuthRateLimitPerMin, cfg.AuthRateLimitPerMin).GinMiddleware(),
		PublicLimit: httpmiddleware.NewSimpleTokenBucket("contact", 5, 5).GinMiddleware(),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.NewSimpleTokenBucket("global", cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort, "database", db.Engine())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// outstanding requests get 10 seconds
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "err", err)
	}

	logger.Info("server exited")
	return nil
}
