// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"ebook-factory-api/internal/domain/entity"
)

// SalesRepository 销售推演仓储实现
type SalesRepository struct {
	client *Client
}

// NewSalesRepository 创建销售推演仓储
func NewSalesRepository(client *Client) *SalesRepository {
	return &SalesRepository{client: client}
}

// CreateBatch 批量写入推演行
func (r *SalesRepository) CreateBatch(ctx context.Context, rows []*entity.SalesProjection) error {
	ctx, span := tracer.Start(ctx, "postgres.SalesRepository.CreateBatch")
	defer span.End()

	if len(rows) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	if err := db.CreateInBatches(rows, 100).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create sales projections: %w", err)
	}
	return nil
}

// ListByBook 获取某本书的推演行
func (r *SalesRepository) ListByBook(ctx context.Context, bookID string) ([]*entity.SalesProjection, error) {
	ctx, span := tracer.Start(ctx, "postgres.SalesRepository.ListByBook")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []*entity.SalesProjection
	if err := db.Where("book_id = ?", bookID).
		Order("month ASC").
		Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list sales projections: %w", err)
	}
	return rows, nil
}
