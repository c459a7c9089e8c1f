package model

import (
	"ebook-factory-api/internal/domain/entity"
)

// Stage 生成阶段，按固定顺序执行
type Stage string

const (
	StageOutline      Stage = "outline"
	StageIntroduction Stage = "introduction"
	StageChapters     Stage = "chapters"
	StageConclusion   Stage = "conclusion"
	StageMarketing    Stage = "marketing"
)

// RunState 生成运行状态机，只能前进不能回退
type RunState string

const (
	StateIdle       RunState = "IDLE"
	StateOutlining  RunState = "OUTLINING"
	StateWriting    RunState = "WRITING"
	StateConcluding RunState = "CONCLUDING"
	StateMarketing  RunState = "MARKETING"
	StatePersisted  RunState = "PERSISTED"
	StateAborted    RunState = "ABORTED"
)

// GenerateBookInput 一次书籍生成运行的输入
type GenerateBookInput struct {
	RunID   string
	OwnerID string

	Topic        string
	Niche        string
	ChapterCount int

	// Provider/Model 为空时使用配置默认值
	Provider string
	Model    string
}

// GenerateBookOutput 一次书籍生成运行的产物
type GenerateBookOutput struct {
	Book *entity.Book

	// FallbackStages 使用了兜底内容的阶段名
	FallbackStages []string

	Meta LLMUsageMeta
}

// LLMUsageMeta 模型调用用量汇总
type LLMUsageMeta struct {
	Provider         string
	Model            string
	Calls            int
	PromptTokens     int
	CompletionTokens int
}

// Add 累加一次调用的用量
func (m *LLMUsageMeta) Add(promptTokens, completionTokens int) {
	m.Calls++
	m.PromptTokens += promptTokens
	m.CompletionTokens += completionTokens
}
