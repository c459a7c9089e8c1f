// Package handler 提供 HTTP 请求处理器
package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"ebook-factory-api/internal/application/bookstore"
	"ebook-factory-api/internal/infrastructure/persistence/redis"
	"ebook-factory-api/internal/interfaces/http/dto"
	"ebook-factory-api/internal/interfaces/http/middleware"
	"ebook-factory-api/pkg/logger"
)

// analyticsCacheTTL 统计缓存时长；保存书籍时会主动失效
const analyticsCacheTTL = 5 * time.Minute

// AnalyticsHandler 用户统计处理器
type AnalyticsHandler struct {
	store *bookstore.Store
	cache *redis.Cache
}

// NewAnalyticsHandler 创建用户统计处理器
func NewAnalyticsHandler(store *bookstore.Store, cache *redis.Cache) *AnalyticsHandler {
	return &AnalyticsHandler{
		store: store,
		cache: cache,
	}
}

// Me 获取当前用户的创作统计
// @Summary 用户统计
// @Description 获取当前用户的累计书籍数、字数与预估收益
// @Tags Analytics
// @Produce json
// @Success 200 {object} dto.Response[dto.AnalyticsResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/analytics/me [get]
func (h *AnalyticsHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID := middleware.OwnerID(c)

	load := func() (interface{}, error) {
		analytics, err := h.store.GetAnalytics(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		return dto.ToAnalyticsResponse(analytics), nil
	}

	// 缓存不可用时直接回源
	if h.cache == nil {
		data, err := load()
		if err != nil {
			logger.Error(ctx, "failed to get analytics", err, "owner_id", ownerID)
			dto.InternalError(c, "failed to get analytics")
			return
		}
		dto.Success(c, data.(*dto.AnalyticsResponse))
		return
	}

	bytes, err := h.cache.GetOrLoadSafe(ctx, redis.BuildAnalyticsKey(ownerID), analyticsCacheTTL, load)
	if err != nil {
		logger.Error(ctx, "failed to get analytics", err, "owner_id", ownerID)
		dto.InternalError(c, "failed to get analytics")
		return
	}

	var resp dto.AnalyticsResponse
	if err := json.Unmarshal(bytes, &resp); err != nil {
		logger.Error(ctx, "failed to decode cached analytics", err, "owner_id", ownerID)
		dto.InternalError(c, "failed to get analytics")
		return
	}
	dto.Success(c, &resp)
}
