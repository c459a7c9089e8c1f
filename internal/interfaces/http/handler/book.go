// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"ebook-factory-api/internal/application/bookgen"
	"ebook-factory-api/internal/application/bookstore"
	"ebook-factory-api/internal/domain/repository"
	"ebook-factory-api/internal/infrastructure/persistence/redis"
	"ebook-factory-api/internal/interfaces/http/dto"
	"ebook-factory-api/internal/interfaces/http/middleware"
	"ebook-factory-api/internal/workflow/model"
	apperrors "ebook-factory-api/pkg/errors"
	"ebook-factory-api/pkg/logger"
)

// BookHandler 书籍处理器
type BookHandler struct {
	gen      *bookgen.Service
	store    *bookstore.Store
	progress *redis.ProgressStore
}

// NewBookHandler 创建书籍处理器
func NewBookHandler(gen *bookgen.Service, store *bookstore.Store, progress *redis.ProgressStore) *BookHandler {
	return &BookHandler{
		gen:      gen,
		store:    store,
		progress: progress,
	}
}

// Generate 同步生成一本书
// @Summary 生成电子书
// @Description 按主题同步生成完整电子书并持久化，模型失败时各阶段自动降级为兜底内容
// @Tags Books
// @Accept json
// @Produce json
// @Param body body dto.GenerateBookRequest true "生成参数"
// @Success 201 {object} dto.Response[dto.GenerateBookResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/books/generate [post]
func (h *BookHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID := middleware.OwnerID(c)

	var req dto.GenerateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.gen.Generate(ctx, model.GenerateBookInput{
		OwnerID:      ownerID,
		Topic:        req.Topic,
		Niche:        req.Niche,
		ChapterCount: req.ChapterCount,
		Provider:     req.Provider,
		Model:        req.Model,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyTopic) || errors.Is(err, apperrors.ErrMissingCredential) || errors.Is(err, apperrors.ErrUnknownProvider) {
			appErr := apperrors.AsAppError(err)
			dto.UnprocessableEntity(c, appErr.Message, &dto.ErrorDetail{
				ErrorCode: string(appErr.Code),
			})
			return
		}
		logger.Error(ctx, "failed to generate book", err)
		dto.InternalError(c, "failed to generate book")
		return
	}

	dto.Created(c, dto.GenerateBookResponse{
		RunID: result.RunID,
		Book:  dto.ToBookResponse(result.Book, true),
	})
}

// List 获取当前用户的书籍列表
// @Summary 书籍列表
// @Description 分页获取当前用户的书籍，按创建时间倒序
// @Tags Books
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[[]dto.BookSummaryResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/books [get]
func (h *BookHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID := middleware.OwnerID(c)

	var req dto.ListBooksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		dto.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	result, err := h.store.ListBooks(ctx, ownerID, repository.NewPagination(req.Page, req.PageSize))
	if err != nil {
		logger.Error(ctx, "failed to list books", err)
		dto.InternalError(c, "failed to list books")
		return
	}

	summaries := make([]dto.BookSummaryResponse, 0, len(result.Items))
	for _, book := range result.Items {
		summaries = append(summaries, dto.ToBookSummary(book))
	}

	meta := dto.NewPageMeta(result.Page, result.PageSize, int(result.Total))
	dto.SuccessWithPage(c, summaries, meta)
}

// Get 获取一本书的完整内容
// @Summary 书籍详情
// @Description 获取一本书的大纲、正文、营销物料与全文
// @Tags Books
// @Produce json
// @Param id path string true "书籍 ID"
// @Success 200 {object} dto.Response[dto.BookResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	book, err := h.store.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrBookNotFound) {
			dto.NotFound(c, "book not found")
			return
		}
		logger.Error(ctx, "failed to get book", err, "book_id", id)
		dto.InternalError(c, "failed to get book")
		return
	}

	dto.Success(c, dto.ToBookResponse(book, true))
}

// Sales 获取一本书的销售推演
// @Summary 销售推演
// @Description 获取一本书的 12 个月销售推演
// @Tags Books
// @Produce json
// @Param id path string true "书籍 ID"
// @Success 200 {object} dto.Response[dto.SalesResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/books/{id}/sales [get]
func (h *BookHandler) Sales(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	rows, err := h.store.GetSales(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrBookNotFound) {
			dto.NotFound(c, "book not found")
			return
		}
		logger.Error(ctx, "failed to get sales projections", err, "book_id", id)
		dto.InternalError(c, "failed to get sales projections")
		return
	}

	dto.Success(c, dto.ToSalesResponse(id, rows))
}

// Progress 查询生成运行的进度
// @Summary 运行进度
// @Description 查询一次生成运行的状态与进度；进度单调递增，1.0 表示已持久化
// @Tags Books
// @Produce json
// @Param id path string true "运行 ID"
// @Success 200 {object} dto.Response[dto.ProgressResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/runs/{id}/progress [get]
func (h *BookHandler) Progress(c *gin.Context) {
	ctx := c.Request.Context()
	runID := c.Param("id")

	record, err := h.progress.Get(ctx, runID)
	if err != nil {
		logger.Error(ctx, "failed to get run progress", err, "run_id", runID)
		dto.InternalError(c, "failed to get run progress")
		return
	}
	if record == nil {
		dto.NotFound(c, "generation run not found")
		return
	}

	dto.Success(c, dto.ToProgressResponse(record))
}
