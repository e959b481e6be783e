package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"playground-llm/internal/config"
	"playground-llm/internal/db"
	apihttp "playground-llm/internal/http"
	"playground-llm/internal/llm"
	"playground-llm/internal/repository"
	"playground-llm/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	codeRepo := repository.NewPgAccessCodeRepository(pool)
	usageRepo := repository.NewPgUsageRepository(pool)

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	if cfg.LLMAPIKey == "" {
		logger.Warn("llm api key not configured")
	}

	var visitorLimiter service.VisitorRateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			visitorLimiter = service.NewRedisVisitorRateLimiter(
				redisClient,
				time.Duration(cfg.VisitorBurstWindowSeconds)*time.Second,
				cfg.VisitorBurstMax,
			)
		}
		cancel()
	}

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}
	if cfg.AdminPasswordHash == "" {
		logger.Warn("admin password not configured")
	}

	accessSvc := service.NewAccessService(logger, codeRepo, cfg.AdminPasswordHash, cfg.DefaultMaxUses)
	genSvc := service.NewGenerationService(logger, llmClient, accessSvc, usageRepo, visitorLimiter, cfg.LLMModel)

	authHandler := apihttp.NewAuthHandler(logger, accessSvc, jwtSvc)
	generateHandler := apihttp.NewGenerateHandler(logger, genSvc)
	adminHandler := apihttp.NewAdminHandler(logger, accessSvc, usageRepo)
	router := apihttp.NewRouter(logger, authHandler, generateHandler, adminHandler, jwtSvc, func(ctx context.Context) error {
		return db.Ping(ctx, pool)
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
