package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-dialer/internal/audit"
	"crm-dialer/internal/auth"
	"crm-dialer/internal/calls"
	"crm-dialer/internal/config"
	"crm-dialer/internal/httpapi"
	"crm-dialer/internal/metrics"
	"crm-dialer/internal/reporting"
	"crm-dialer/internal/telephony"
	"crm-dialer/pkg/logger"
	"crm-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New("crm-dialer-api", cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{
		ConnectAttempts: cfg.DB.ConnectAttempts,
	})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.ApplySchema {
		schema := append(append([]string{}, calls.Schema...), audit.Schema...)
		if err := utils.ApplySchema(rootCtx, db, schema...); err != nil {
			log.Error("schema apply failed", "err", err)
			os.Exit(1)
		}
		log.Info("database schema applied", "statements", len(schema))
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	records := calls.NewPostgresRepo(db)
	activity := audit.NewService(audit.NewPostgresRepo(db))

	sync := calls.NewSynchronizer(records)
	sync.Pending = calls.NewRedisPending(rdb, cfg.Webhook.PendingTTL)
	sync.Dedupe = calls.NewRedisDeduper(rdb, cfg.Webhook.DedupeTTL)
	met := metrics.New()
	sync.Activity = met.Activity(activity)

	// Provider credentials are checked per request; a missing key only
	// disables /v1/credentials.
	issuer := auth.NewRealtimeIssuer(cfg.Voice.ApplicationID, cfg.Voice.CredentialTTL, cfg.Voice.PrivateKey)
	if key, err := cfg.Voice.PrivateKey(); err != nil || len(key) == 0 || cfg.Voice.ApplicationID == "" {
		log.Warn("voice credentials incomplete; /v1/credentials will fail",
			"err", err, "private_key_set", len(key) > 0, "application_id_set", cfg.Voice.ApplicationID != "")
	}

	d := deps{
		env:     cfg.App.Env,
		metrics: met,
		authMW:  auth.RequireAccessToken(authManager),
		limiter: auth.NewIPRateLimiter(cfg.Webhook.CredentialsRatePerSec, cfg.Webhook.CredentialsBurst),
		ready:   readiness(db, rdb),
		webhooks: telephony.WebhookHandler{
			Calls: sync,
			Defaults: telephony.AnswerDefaults{
				From:     cfg.Voice.DefaultFrom,
				Language: cfg.Voice.DefaultLanguage,
				BaseURL:  cfg.Voice.PublicBaseURL,
			},
			LinkTimeout: 5 * time.Second,
		},
		api: httpapi.Handlers{
			Auth:        authManager,
			Calls:       sync,
			Records:     records,
			Credentials: issuer,
			Reports:     reporting.NewService(records),
			Audit:       activity,
		},
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(met.Middleware())
	registerRoutes(r, d)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
