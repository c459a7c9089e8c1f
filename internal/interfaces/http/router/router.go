// Package router 提供 HTTP 路由配置
package router

import (
	"ebook-factory-api/internal/config"
	"ebook-factory-api/internal/interfaces/http/handler"
	"ebook-factory-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由依赖的处理器集合
type Handlers struct {
	Health    *handler.HealthHandler
	Book      *handler.BookHandler
	Analytics *handler.AnalyticsHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	// 系统端点
	r.engine.GET("/health", r.handlers.Health.Health)
	r.engine.GET("/ready", r.handlers.Health.Ready)
	r.engine.GET("/live", r.handlers.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	auth := middleware.Auth(middleware.AuthConfig{
		Enabled:   r.cfg.Security.JWT.Enabled,
		Secret:    r.cfg.Security.JWT.Secret,
		Issuer:    r.cfg.Security.JWT.Issuer,
		SkipPaths: []string{"/health", "/ready", "/live", "/metrics"},
	})

	v1 := r.engine.Group("/v1")
	v1.Use(auth)
	{
		books := v1.Group("/books")
		{
			// 生成是唯一的写入口，单独限流
			books.POST("/generate",
				middleware.RateLimit(middleware.RateLimitConfig{
					Enabled:           r.cfg.Security.RateLimit.Enabled,
					RequestsPerMinute: r.cfg.Security.RateLimit.RequestsPerMinute,
				}, r.limiter),
				r.handlers.Book.Generate,
			)
			books.GET("", r.handlers.Book.List)
			books.GET("/:id", r.handlers.Book.Get)
			books.GET("/:id/sales", r.handlers.Book.Sales)
		}

		runs := v1.Group("/runs")
		{
			runs.GET("/:id/progress", r.handlers.Book.Progress)
		}

		analytics := v1.Group("/analytics")
		{
			analytics.GET("/me", r.handlers.Analytics.Me)
		}
	}
}
