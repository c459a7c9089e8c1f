package dto

import (
	"ebook-factory-api/internal/domain/entity"
	"ebook-factory-api/internal/infrastructure/persistence/redis"
)

// GenerateBookRequest 生成请求
type GenerateBookRequest struct {
	Topic        string `json:"topic" binding:"required,max=255"`
	Niche        string `json:"niche" binding:"max=128"`
	ChapterCount int    `json:"chapter_count" binding:"omitempty,min=1,max=20"`
	Provider     string `json:"provider" binding:"max=32"`
	Model        string `json:"model" binding:"max=64"`
}

// ListBooksRequest 列表查询参数
type ListBooksRequest struct {
	Page     int `form:"page,default=1" binding:"omitempty,min=1"`
	PageSize int `form:"page_size,default=20" binding:"omitempty,min=1,max=100"`
}

// BookResponse 完整书籍响应
type BookResponse struct {
	ID           string                     `json:"id"`
	OwnerID      string                     `json:"owner_id"`
	Topic        string                     `json:"topic"`
	Niche        string                     `json:"niche,omitempty"`
	Outline      *entity.Outline            `json:"outline"`
	Introduction string                     `json:"introduction,omitempty"`
	Sections     []entity.ChapterBody       `json:"sections"`
	Conclusion   string                     `json:"conclusion,omitempty"`
	Marketing    *entity.MarketingPackage   `json:"marketing,omitempty"`
	FullText     string                     `json:"full_text,omitempty"`
	WordCount    int                        `json:"word_count"`
	Metadata     *entity.GenerationMetadata `json:"metadata,omitempty"`
	CreatedAt    string                     `json:"created_at"`
}

// BookSummaryResponse 列表项响应，不含正文
type BookSummaryResponse struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Niche     string `json:"niche,omitempty"`
	Title     string `json:"title,omitempty"`
	Chapters  int    `json:"chapters"`
	WordCount int    `json:"word_count"`
	CreatedAt string `json:"created_at"`
}

// GenerateBookResponse 生成响应
type GenerateBookResponse struct {
	RunID string        `json:"run_id"`
	Book  *BookResponse `json:"book"`
}

// SalesProjectionResponse 单月推演响应
type SalesProjectionResponse struct {
	Month   int     `json:"month"`
	Units   int     `json:"units"`
	Revenue float64 `json:"revenue"`
	Channel string  `json:"channel"`
	Phase   string  `json:"phase"`
}

// SalesResponse 推演列表响应
type SalesResponse struct {
	BookID       string                    `json:"book_id"`
	TotalUnits   int                       `json:"total_units"`
	TotalRevenue float64                   `json:"total_revenue"`
	Months       []SalesProjectionResponse `json:"months"`
}

// AnalyticsResponse 用户统计响应
type AnalyticsResponse struct {
	OwnerID           string  `json:"owner_id"`
	TotalBooks        int64   `json:"total_books"`
	TotalWords        int64   `json:"total_words"`
	EstimatedEarnings float64 `json:"estimated_earnings"`
	LastActive        string  `json:"last_active,omitempty"`
}

// ProgressResponse 运行进度响应
type ProgressResponse struct {
	RunID     string  `json:"run_id"`
	State     string  `json:"state"`
	Stage     string  `json:"stage,omitempty"`
	Progress  float64 `json:"progress"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

// ToBookResponse 实体转完整响应
func ToBookResponse(book *entity.Book, includeFullText bool) *BookResponse {
	resp := &BookResponse{
		ID:           book.ID,
		OwnerID:      book.OwnerID,
		Topic:        book.Topic,
		Niche:        book.Niche,
		Outline:      book.Outline,
		Introduction: book.Introduction,
		Sections:     book.Sections,
		Conclusion:   book.Conclusion,
		Marketing:    book.Marketing,
		WordCount:    book.WordCount,
		Metadata:     book.Metadata,
		CreatedAt:    book.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if includeFullText {
		resp.FullText = book.FullText()
	}
	return resp
}

// ToBookSummary 实体转列表项
func ToBookSummary(book *entity.Book) BookSummaryResponse {
	summary := BookSummaryResponse{
		ID:        book.ID,
		Topic:     book.Topic,
		Niche:     book.Niche,
		WordCount: book.WordCount,
		CreatedAt: book.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if book.Outline != nil {
		summary.Title = book.Outline.Title
		summary.Chapters = len(book.Outline.Chapters)
	}
	return summary
}

// ToSalesResponse 推演行转响应
func ToSalesResponse(bookID string, rows []*entity.SalesProjection) *SalesResponse {
	resp := &SalesResponse{
		BookID: bookID,
		Months: make([]SalesProjectionResponse, 0, len(rows)),
	}
	for _, row := range rows {
		resp.TotalUnits += row.Units
		resp.TotalRevenue += row.Revenue
		resp.Months = append(resp.Months, SalesProjectionResponse{
			Month:   row.Month,
			Units:   row.Units,
			Revenue: row.Revenue,
			Channel: row.Channel,
			Phase:   string(row.Phase),
		})
	}
	return resp
}

// ToAnalyticsResponse 统计实体转响应
func ToAnalyticsResponse(a *entity.UserAnalytics) *AnalyticsResponse {
	resp := &AnalyticsResponse{
		OwnerID:           a.OwnerID,
		TotalBooks:        a.TotalBooks,
		TotalWords:        a.TotalWords,
		EstimatedEarnings: a.EstimatedEarnings,
	}
	if !a.LastActive.IsZero() {
		resp.LastActive = a.LastActive.UTC().Format("2006-01-02T15:04:05Z")
	}
	return resp
}

// ToProgressResponse 进度快照转响应
func ToProgressResponse(record *redis.ProgressRecord) *ProgressResponse {
	resp := &ProgressResponse{
		RunID:    record.RunID,
		State:    record.State,
		Stage:    record.Stage,
		Progress: record.Progress,
	}
	if !record.UpdatedAt.IsZero() {
		resp.UpdatedAt = record.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	return resp
}
