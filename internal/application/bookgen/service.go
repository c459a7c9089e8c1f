// Package bookgen 编排书籍生成运行
package bookgen

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"ebook-factory-api/internal/application/bookstore"
	"ebook-factory-api/internal/domain/entity"
	"ebook-factory-api/internal/workflow/model"
	"ebook-factory-api/internal/workflow/pipeline"
	"ebook-factory-api/pkg/logger"
	"ebook-factory-api/pkg/metrics"
)

var tracer = otel.Tracer("bookgen")

// Runner 生成流水线接口
type Runner interface {
	Run(ctx context.Context, input model.GenerateBookInput) (*model.GenerateBookOutput, error)
}

// Service 书籍生成服务：运行流水线、合成推演、原子落库、发布终态进度
type Service struct {
	pipeline Runner
	store    *bookstore.Store
	sink     pipeline.ProgressSink
}

// NewService 创建生成服务
func NewService(runner Runner, store *bookstore.Store, sink pipeline.ProgressSink) *Service {
	if sink == nil {
		sink = pipeline.NopSink{}
	}
	return &Service{
		pipeline: runner,
		store:    store,
		sink:     sink,
	}
}

// GenerateResult 一次生成请求的结果
type GenerateResult struct {
	RunID string
	Book  *entity.Book
	Sales []*entity.SalesProjection
}

// Generate 同步执行一次完整生成：流水线 → 推演 → 落库
// 流水线中止（前置条件失败）时直接返回错误；落库失败时书稿丢弃，不产生部分写入。
func (s *Service) Generate(ctx context.Context, input model.GenerateBookInput) (*GenerateResult, error) {
	ctx, span := tracer.Start(ctx, "bookgen.Generate")
	defer span.End()

	if input.RunID == "" {
		input.RunID = uuid.NewString()
	}
	ctx = logger.WithContext(ctx, logger.RunIDKey, input.RunID)
	ctx = logger.WithContext(ctx, logger.OwnerIDKey, input.OwnerID)

	start := time.Now()

	output, err := s.pipeline.Run(ctx, input)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	book := output.Book
	// ID 提前分配：销售推演以书籍 ID 为种子，必须在落库前确定
	book.ID = uuid.NewString()
	rows := bookstore.ProjectSales(book)

	if err := s.store.Save(ctx, book, rows); err != nil {
		span.RecordError(err)
		metrics.BookGenerationTotal.WithLabelValues("save_failed").Inc()
		s.publish(ctx, input.RunID, model.StateAborted, "", pipeline.PersistPendingProgress)
		return nil, err
	}

	s.publish(ctx, input.RunID, model.StatePersisted, "", 1.0)

	logger.Info(ctx, "generation run persisted",
		"book_id", book.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &GenerateResult{
		RunID: input.RunID,
		Book:  book,
		Sales: rows,
	}, nil
}

func (s *Service) publish(ctx context.Context, runID string, state model.RunState, stage model.Stage, progress float64) {
	if err := s.sink.Publish(ctx, runID, string(state), string(stage), progress); err != nil {
		logger.Warn(ctx, "failed to publish final progress", "run_id", runID, "error", err)
	}
}
