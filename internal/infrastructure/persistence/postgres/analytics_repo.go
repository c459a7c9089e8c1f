// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ebook-factory-api/internal/domain/entity"
)

// AnalyticsRepository 用户统计仓储实现
type AnalyticsRepository struct {
	client *Client
}

// NewAnalyticsRepository 创建用户统计仓储
func NewAnalyticsRepository(client *Client) *AnalyticsRepository {
	return &AnalyticsRepository{client: client}
}

// GetForUpdate 行锁读取统计行，不存在时先插入零值行再锁定
// 必须在事务上下文中调用，否则行锁立即释放，失去串行化语义。
func (r *AnalyticsRepository) GetForUpdate(ctx context.Context, ownerID string) (*entity.UserAnalytics, error) {
	ctx, span := tracer.Start(ctx, "postgres.AnalyticsRepository.GetForUpdate")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var analytics entity.UserAnalytics
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&analytics, "owner_id = ?", ownerID).Error
	if err == nil {
		return &analytics, nil
	}
	if err != gorm.ErrRecordNotFound {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to lock analytics row: %w", err)
	}

	// 零值行；并发首插由主键冲突兜底
	zero := entity.UserAnalytics{OwnerID: ownerID, LastActive: time.Now().UTC()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&zero).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create analytics row: %w", err)
	}

	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&analytics, "owner_id = ?", ownerID).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to lock analytics row after insert: %w", err)
	}
	return &analytics, nil
}

// Save 写回统计行
func (r *AnalyticsRepository) Save(ctx context.Context, analytics *entity.UserAnalytics) error {
	ctx, span := tracer.Start(ctx, "postgres.AnalyticsRepository.Save")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(analytics).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save analytics: %w", err)
	}
	return nil
}

// GetByOwner 只读获取统计行
func (r *AnalyticsRepository) GetByOwner(ctx context.Context, ownerID string) (*entity.UserAnalytics, error) {
	ctx, span := tracer.Start(ctx, "postgres.AnalyticsRepository.GetByOwner")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var analytics entity.UserAnalytics
	if err := db.First(&analytics, "owner_id = ?", ownerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get analytics: %w", err)
	}
	return &analytics, nil
}
