// Package entity 定义领域实体
package entity

import (
	"time"
)

// UserAnalytics 用户维度的创作统计
// 仅在书籍保存成功时由同一事务更新；计数单调不减。
type UserAnalytics struct {
	OwnerID           string    `json:"owner_id" gorm:"type:varchar(128);primaryKey"`
	TotalBooks        int64     `json:"total_books" gorm:"default:0"`
	TotalWords        int64     `json:"total_words" gorm:"default:0"`
	EstimatedEarnings float64   `json:"estimated_earnings" gorm:"default:0"`
	LastActive        time.Time `json:"last_active"`
}

// TableName 指定表名
func (UserAnalytics) TableName() string {
	return "user_analytics"
}

// RecordBook 累加一本新书的统计量
func (a *UserAnalytics) RecordBook(wordCount int, earnings float64) {
	a.TotalBooks++
	a.TotalWords += int64(wordCount)
	a.EstimatedEarnings += earnings
	a.LastActive = time.Now().UTC()
}
