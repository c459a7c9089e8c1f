// Package entity 定义领域实体
package entity

import (
	"time"
)

// SalesPhase 销售推演阶段
type SalesPhase string

const (
	SalesPhaseLaunch SalesPhase = "launch"
	SalesPhaseGrowth SalesPhase = "growth"
	SalesPhaseSteady SalesPhase = "steady"
)

// SalesProjection 单月销售推演行，按 BookID 归属
// 纯派生数据：保存后不回读进生成逻辑。
type SalesProjection struct {
	ID        string     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BookID    string     `json:"book_id" gorm:"type:uuid;index;not null"`
	Month     int        `json:"month" gorm:"not null"`
	Units     int        `json:"units" gorm:"not null"`
	Revenue   float64    `json:"revenue" gorm:"not null"`
	Channel   string     `json:"channel" gorm:"type:varchar(64)"`
	Phase     SalesPhase `json:"phase" gorm:"type:varchar(32)"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (SalesProjection) TableName() string {
	return "sales_projections"
}
