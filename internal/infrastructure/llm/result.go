// Package llm 提供补全服务网关
package llm

import (
	"fmt"
	"strings"
)

// FailureKind 补全失败分类
type FailureKind string

const (
	FailureAuth        FailureKind = "auth"
	FailureRateLimited FailureKind = "rate_limited"
	FailureTokenLimit  FailureKind = "token_limit"
	FailureTimeout     FailureKind = "timeout"
	FailureConnection  FailureKind = "connection"
	FailureMalformed   FailureKind = "malformed"
	FailureUnknown     FailureKind = "unknown"
)

// Failure 分类后的补全失败
type Failure struct {
	Kind   FailureKind
	Detail string
}

// Error 实现 error 接口
func (f *Failure) Error() string {
	return fmt.Sprintf("completion failure (%s): %s", f.Kind, f.Detail)
}

// CompletionRequest 单次补全请求，发出后不再修改
// 例外：重试策略可在 TokenLimit 时折半 MaxTokens（见 retryPolicy）。
type CompletionRequest struct {
	SystemPrompt     string
	UserPrompt       string
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Validate 本地前置校验，违反时不发起网络调用
func (r *CompletionRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("request is nil")
	}
	if strings.TrimSpace(r.SystemPrompt) == "" {
		return fmt.Errorf("system prompt is empty")
	}
	if strings.TrimSpace(r.UserPrompt) == "" {
		return fmt.Errorf("user prompt is empty")
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", r.MaxTokens)
	}
	return nil
}

// Usage 补全调用的 Token 用量
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResult 终态补全结果：成功文本或分类失败，二者必居其一
type CompletionResult struct {
	Text    string
	Usage   Usage
	Failure *Failure
}

// Ok 是否为成功结果
func (r CompletionResult) Ok() bool {
	return r.Failure == nil
}

// success 构造成功结果
func success(text string, usage Usage) CompletionResult {
	return CompletionResult{Text: text, Usage: usage}
}

// failure 构造失败结果
func failure(kind FailureKind, format string, args ...any) CompletionResult {
	return CompletionResult{Failure: &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}}
}
