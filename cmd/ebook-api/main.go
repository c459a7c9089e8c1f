// Package main 电子书生成 API 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ebook-factory-api/internal/application/bookgen"
	"ebook-factory-api/internal/application/bookstore"
	"ebook-factory-api/internal/config"
	"ebook-factory-api/internal/infrastructure/llm"
	"ebook-factory-api/internal/infrastructure/persistence/postgres"
	"ebook-factory-api/internal/infrastructure/persistence/redis"
	"ebook-factory-api/internal/interfaces/http/handler"
	"ebook-factory-api/internal/interfaces/http/router"
	"ebook-factory-api/internal/workflow/pipeline"
	"ebook-factory-api/internal/workflow/prompt"
	"ebook-factory-api/pkg/logger"
	"ebook-factory-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting ebook-api",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 基础设施
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to connect postgres", err)
	}
	defer pgClient.Close()

	if err := pgClient.Migrate(); err != nil {
		logger.Fatal(ctx, "failed to migrate database", err)
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to connect redis", err)
	}
	defer redisClient.Close()

	// 补全网关：每个配置的提供商各建一个，按请求选用
	if _, _, ok := cfg.LLM.Provider(""); !ok {
		logger.Fatal(ctx, "default llm provider not configured", fmt.Errorf("provider %q not found", cfg.LLM.DefaultProvider))
	}
	gateways := make(map[string]llm.Gateway, len(cfg.LLM.Providers))
	for name, providerCfg := range cfg.LLM.Providers {
		gateways[name] = llm.NewClient(name, providerCfg, cfg.Generation)
	}

	// 仓储与事务
	bookRepo := postgres.NewBookRepository(pgClient)
	analyticsRepo := postgres.NewAnalyticsRepository(pgClient)
	salesRepo := postgres.NewSalesRepository(pgClient)
	txManager := postgres.NewTxManager(pgClient)

	// Redis 旁路组件
	cache := redis.NewCache(redisClient)
	limiter := redis.NewRateLimiter(redisClient)
	progressStore := redis.NewProgressStore(redisClient, cfg.Generation.ProgressTTL)

	// 应用服务
	store := bookstore.NewStore(bookRepo, analyticsRepo, salesRepo, txManager, cache)
	pipe := pipeline.NewPipeline(gateways, prompt.NewRegistry(), cfg.Generation, cfg.LLM, progressStore)
	genService := bookgen.NewService(pipe, store, progressStore)

	// HTTP 层
	handlers := router.Handlers{
		Health:    handler.NewHealthHandler(pgClient, redisClient),
		Book:      handler.NewBookHandler(genService, store, progressStore),
		Analytics: handler.NewAnalyticsHandler(store, cache),
	}
	r := router.New(cfg, handlers, limiter)

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
