// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
	"time"
)

// SectionPlan 章节内小节规划
type SectionPlan struct {
	Title     string   `json:"title"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// ChapterPlan 大纲中的单章规划
type ChapterPlan struct {
	Number    int           `json:"number"`
	Title     string        `json:"title"`
	Summary   string        `json:"summary,omitempty"`
	KeyPoints []string      `json:"key_points,omitempty"`
	Sections  []SectionPlan `json:"sections,omitempty"`
}

// Outline 书籍大纲
// 不变式：Chapters 非空，且 Number 为与顺序一致的 1..N 连续序列。
type Outline struct {
	Title          string        `json:"title"`
	Subtitle       string        `json:"subtitle,omitempty"`
	Tagline        string        `json:"tagline,omitempty"`
	Description    string        `json:"description,omitempty"`
	TargetAudience string        `json:"target_audience,omitempty"`
	Chapters       []ChapterPlan `json:"chapters"`
}

// Validate 校验大纲不变式
func (o *Outline) Validate() error {
	if o == nil {
		return fmt.Errorf("outline is nil")
	}
	if strings.TrimSpace(o.Title) == "" {
		return fmt.Errorf("outline title is empty")
	}
	if len(o.Chapters) == 0 {
		return fmt.Errorf("outline has no chapters")
	}
	for i, ch := range o.Chapters {
		if ch.Number != i+1 {
			return fmt.Errorf("chapter number %d at position %d breaks 1..N sequence", ch.Number, i)
		}
		if strings.TrimSpace(ch.Title) == "" {
			return fmt.Errorf("chapter %d title is empty", i+1)
		}
	}
	return nil
}

// Renumber 将章节编号规整为与顺序一致的 1..N
func (o *Outline) Renumber() {
	for i := range o.Chapters {
		o.Chapters[i].Number = i + 1
	}
}

// ChapterBody 单章正文，按章节编号对齐大纲
type ChapterBody struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// MarketingPackage 营销物料包
type MarketingPackage struct {
	EmailTemplates []string `json:"email_templates,omitempty"`
	SocialPosts    []string `json:"social_posts,omitempty"`
	SalesPage      string   `json:"sales_page,omitempty"`
}

// GenerationMetadata 生成元数据
type GenerationMetadata struct {
	Provider         string   `json:"provider,omitempty"`
	Model            string   `json:"model,omitempty"`
	PromptTokens     int      `json:"prompt_tokens,omitempty"`
	CompletionTokens int      `json:"completion_tokens,omitempty"`
	FallbackStages   []string `json:"fallback_stages,omitempty"`
	GeneratedAt      string   `json:"generated_at,omitempty"`
}

// Book 书籍聚合根
// 不变式：len(Sections) == len(Outline.Chapters)；WordCount 由 RecountWords 重算，不做陈旧缓存。
type Book struct {
	ID           string              `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerID      string              `json:"owner_id" gorm:"type:varchar(128);index;not null"`
	Topic        string              `json:"topic" gorm:"type:varchar(255);not null"`
	Niche        string              `json:"niche,omitempty" gorm:"type:varchar(128)"`
	Outline      *Outline            `json:"outline" gorm:"type:jsonb;serializer:json"`
	Introduction string              `json:"introduction,omitempty" gorm:"type:text"`
	Sections     []ChapterBody       `json:"sections" gorm:"type:jsonb;serializer:json"`
	Conclusion   string              `json:"conclusion,omitempty" gorm:"type:text"`
	Marketing    *MarketingPackage   `json:"marketing,omitempty" gorm:"type:jsonb;serializer:json"`
	WordCount    int                 `json:"word_count" gorm:"default:0"`
	Metadata     *GenerationMetadata `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time           `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Book) TableName() string {
	return "books"
}

// FullText 按阶段顺序拼接全文，供渲染方消费
func (b *Book) FullText() string {
	var sb strings.Builder
	if strings.TrimSpace(b.Introduction) != "" {
		sb.WriteString("Introduction\n\n")
		sb.WriteString(strings.TrimSpace(b.Introduction))
		sb.WriteString("\n\n")
	}
	for _, ch := range b.Sections {
		sb.WriteString(fmt.Sprintf("Chapter %d: %s\n\n", ch.Number, ch.Title))
		sb.WriteString(strings.TrimSpace(ch.Content))
		sb.WriteString("\n\n")
	}
	if strings.TrimSpace(b.Conclusion) != "" {
		sb.WriteString("Conclusion\n\n")
		sb.WriteString(strings.TrimSpace(b.Conclusion))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RecountWords 重新统计全文字数并写回 WordCount
func (b *Book) RecountWords() int {
	b.WordCount = CountWords(b.FullText())
	return b.WordCount
}

// CountWords 统计以空白分隔的词数
func CountWords(s string) int {
	return len(strings.Fields(s))
}
