// Package bookstore 负责书稿及其派生数据的持久化
package bookstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"ebook-factory-api/internal/domain/entity"
	"ebook-factory-api/internal/domain/repository"
	"ebook-factory-api/internal/infrastructure/persistence/redis"
	apperrors "ebook-factory-api/pkg/errors"
	"ebook-factory-api/pkg/logger"
)

var tracer = otel.Tracer("bookstore")

// CacheInvalidator 统计缓存失效接口
type CacheInvalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// Store 书籍存储服务
// Save 是唯一的写路径：书稿、销售推演与用户统计在同一事务内落库，
// 统计行用行锁串行化同一用户的并发保存。
type Store struct {
	books     repository.BookRepository
	analytics repository.AnalyticsRepository
	sales     repository.SalesRepository
	tx        repository.Transactor
	cache     CacheInvalidator
}

// NewStore 创建书籍存储服务
func NewStore(
	books repository.BookRepository,
	analytics repository.AnalyticsRepository,
	sales repository.SalesRepository,
	tx repository.Transactor,
	cache CacheInvalidator,
) *Store {
	return &Store{
		books:     books,
		analytics: analytics,
		sales:     sales,
		tx:        tx,
		cache:     cache,
	}
}

// Save 原子持久化一本书及其推演行，并累加用户统计
// 事务失败时不留任何部分写入；统计的预估收益取推演行收入合计。
func (s *Store) Save(ctx context.Context, book *entity.Book, rows []*entity.SalesProjection) error {
	ctx, span := tracer.Start(ctx, "bookstore.Save")
	defer span.End()

	if book == nil {
		return fmt.Errorf("book is nil")
	}

	earnings := TotalRevenue(rows)

	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.books.Create(txCtx, book); err != nil {
			return err
		}
		if err := s.sales.CreateBatch(txCtx, rows); err != nil {
			return err
		}

		analytics, err := s.analytics.GetForUpdate(txCtx, book.OwnerID)
		if err != nil {
			return err
		}
		analytics.RecordBook(book.WordCount, earnings)
		return s.analytics.Save(txCtx, analytics)
	})
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save book")
	}

	// 统计已变更，失效只读缓存；失败不影响保存结果
	if s.cache != nil {
		if cerr := s.cache.Delete(ctx, redis.BuildAnalyticsKey(book.OwnerID)); cerr != nil {
			logger.Warn(ctx, "failed to invalidate analytics cache", "owner_id", book.OwnerID, "error", cerr)
		}
	}

	logger.Info(ctx, "book saved",
		"book_id", book.ID,
		"owner_id", book.OwnerID,
		"word_count", book.WordCount,
		"projected_revenue", earnings,
	)
	return nil
}

// GetBook 获取一本书
func (s *Store) GetBook(ctx context.Context, id string) (*entity.Book, error) {
	ctx, span := tracer.Start(ctx, "bookstore.GetBook")
	defer span.End()

	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get book")
	}
	if book == nil {
		return nil, apperrors.ErrBookNotFound
	}
	return book, nil
}

// ListBooks 分页获取某用户的书
func (s *Store) ListBooks(ctx context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Book], error) {
	ctx, span := tracer.Start(ctx, "bookstore.ListBooks")
	defer span.End()

	result, err := s.books.ListByOwner(ctx, ownerID, pagination)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list books")
	}
	return result, nil
}

// GetSales 获取某本书的销售推演
func (s *Store) GetSales(ctx context.Context, bookID string) ([]*entity.SalesProjection, error) {
	ctx, span := tracer.Start(ctx, "bookstore.GetSales")
	defer span.End()

	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get book")
	}
	if book == nil {
		return nil, apperrors.ErrBookNotFound
	}

	rows, err := s.sales.ListByBook(ctx, bookID)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list sales projections")
	}
	return rows, nil
}

// GetAnalytics 获取用户统计；从未保存过书的用户返回零值
func (s *Store) GetAnalytics(ctx context.Context, ownerID string) (*entity.UserAnalytics, error) {
	ctx, span := tracer.Start(ctx, "bookstore.GetAnalytics")
	defer span.End()

	analytics, err := s.analytics.GetByOwner(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get analytics")
	}
	if analytics == nil {
		return &entity.UserAnalytics{OwnerID: ownerID}, nil
	}
	return analytics, nil
}
