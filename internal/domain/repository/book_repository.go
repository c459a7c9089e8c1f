// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"ebook-factory-api/internal/domain/entity"
)

// BookRepository 书籍仓储接口
type BookRepository interface {
	// Create 写入一本新书
	Create(ctx context.Context, book *entity.Book) error
	// GetByID 根据 ID 获取书籍，未找到时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.Book, error)
	// ListByOwner 分页获取某用户的书籍，按创建时间倒序
	ListByOwner(ctx context.Context, ownerID string, pagination Pagination) (*PagedResult[*entity.Book], error)
}

// AnalyticsRepository 用户统计仓储接口
type AnalyticsRepository interface {
	// GetForUpdate 行锁读取统计行；不存在时创建零值行
	// 锁的生命周期跟随当前事务，用于串行化同一用户的并发保存。
	GetForUpdate(ctx context.Context, ownerID string) (*entity.UserAnalytics, error)
	// Save 写回统计行
	Save(ctx context.Context, analytics *entity.UserAnalytics) error
	// GetByOwner 只读获取统计行，未找到时返回 (nil, nil)
	GetByOwner(ctx context.Context, ownerID string) (*entity.UserAnalytics, error)
}

// SalesRepository 销售推演仓储接口
type SalesRepository interface {
	// CreateBatch 批量写入推演行
	CreateBatch(ctx context.Context, rows []*entity.SalesProjection) error
	// ListByBook 获取某本书的推演行，按月份升序
	ListByBook(ctx context.Context, bookID string) ([]*entity.SalesProjection, error)
}
