package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"jiralite/api/internal/ai"
	"jiralite/api/internal/aicache"
	"jiralite/api/internal/app"
	"jiralite/api/internal/config"
	"jiralite/api/internal/email"
	"jiralite/api/internal/logger"
	"jiralite/api/internal/objectstore"
	"jiralite/api/internal/ratelimit"
	"jiralite/api/internal/search"
	"jiralite/api/internal/session"
	"jiralite/api/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.Pool{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.Fatal("migrations failed", "error", err, "applied", applied)
	}
	if len(applied) > 0 {
		log.Info("migrations applied", "versions", applied)
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Dependencies{Log: log}

	// Redis holds refresh sessions and the AI rate windows; without it both
	// fall back to Postgres.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", "error", err)
		}
		defer redisStore.Close()
		redisClient = redisStore.Client()
		deps.Sessions = redisStore
		log.Info("using redis for sessions and ai rate limit")
	}
	policy := app.PolicyFromConfig(cfg)
	if redisClient != nil {
		deps.Limiter = ratelimit.NewRedisLimiter(redisClient, policy.RateLimitPerMinute, aicache.RateWindow)
	} else {
		deps.Limiter = ratelimit.NewQuotaLimiter(dataStore, policy.RateLimitPerMinute, aicache.RateWindow)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, log)
	deps.Search = searchService
	if meiliClient != nil {
		go func() {
			if err := searchService.ReindexAllFromPG(ctx); err != nil {
				log.Warn("search reindex failed", "error", err)
			}
		}()
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := objectstore.NewMinioStore(ctx, objectstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			log.Fatal("object storage init failed", "error", err)
		}
		deps.Objects = objects
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gen, err := ai.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal("ai generator init failed", "error", err)
		}
		deps.Generator = gen
		log.Info("ai generation enabled", "generator", gen.Name())
	} else {
		deps.Generator = ai.Disabled{}
		log.Warn("GEMINI_API_KEY not set, ai generation disabled")
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Warn("SMTP not configured, verification and reset tokens are returned in responses")
	}
	deps.Mailer = mailer

	service := app.New(cfg, dataStore, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("jira lite api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	searchService.Wait()
}

