// Package llm 提供补全服务网关
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"ebook-factory-api/internal/config"
	"ebook-factory-api/pkg/logger"
	"ebook-factory-api/pkg/metrics"
)

var tracer = otel.Tracer("llm")

// Gateway 补全网关接口
type Gateway interface {
	// Configured 凭证是否就绪；未就绪时调用方应在发起任何请求前中止
	Configured() bool
	// Send 发送一组提示词，返回终态结果；error 仅用于本地误用（前置校验失败）
	Send(ctx context.Context, req *CompletionRequest) (CompletionResult, error)
}

// Client OpenAI 兼容补全端点的 HTTP 客户端
// 除注入的凭证外不在调用间保留任何状态。
type Client struct {
	provider   string
	cfg        config.ProviderConfig
	policy     retryPolicy
	httpClient *http.Client
}

// NewClient 创建补全客户端
func NewClient(provider string, providerCfg config.ProviderConfig, genCfg config.GenerationConfig) *Client {
	timeout := providerCfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	budget := genCfg.RetryBudget
	if budget < 1 {
		budget = 3
	}
	floor := genCfg.TokenFloor
	if floor < 1 {
		floor = 256
	}
	return &Client{
		provider: provider,
		cfg:      providerCfg,
		policy: retryPolicy{
			budget:     budget,
			backoff:    genCfg.BackoffDelay,
			tokenFloor: floor,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured 凭证是否就绪
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Send 发送补全请求
// 保证：最多 budget 次尝试后返回终态 CompletionResult，不会悬挂超过 尝试次数×超时。
func (c *Client) Send(ctx context.Context, req *CompletionRequest) (CompletionResult, error) {
	ctx, span := tracer.Start(ctx, "llm.Send")
	defer span.End()

	if err := req.Validate(); err != nil {
		return CompletionResult{}, fmt.Errorf("invalid completion request: %w", err)
	}
	if !c.Configured() {
		return CompletionResult{}, fmt.Errorf("api key not configured")
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	var result CompletionResult
	halved := false
	for attempt := 1; ; attempt++ {
		start := time.Now()
		result = c.doOnce(ctx, req, model)
		metrics.LLMCallDuration.WithLabelValues(c.provider, model).Observe(time.Since(start).Seconds())

		if result.Ok() {
			metrics.LLMCallTotal.WithLabelValues(c.provider, model, "success").Inc()
			metrics.LLMTokensUsed.WithLabelValues(c.provider, model, "prompt").Add(float64(result.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.provider, model, "completion").Add(float64(result.Usage.CompletionTokens))
			return result, nil
		}

		metrics.LLMCallTotal.WithLabelValues(c.provider, model, string(result.Failure.Kind)).Inc()

		d := c.policy.decide(attempt, result.Failure.Kind, req, &halved)
		if !d.retry {
			return result, nil
		}

		metrics.LLMRetryTotal.WithLabelValues(c.provider, string(result.Failure.Kind)).Inc()
		logger.Warn(ctx, "completion call failed, retrying",
			"provider", c.provider,
			"model", model,
			"attempt", attempt,
			"kind", string(result.Failure.Kind),
			"wait_ms", d.wait.Milliseconds(),
			"max_tokens", req.MaxTokens,
		)

		if d.wait > 0 {
			select {
			case <-time.After(d.wait):
			case <-ctx.Done():
				return failure(FailureTimeout, "context canceled during backoff: %v", ctx.Err()), nil
			}
		}
	}
}

// chatRequest OpenAI 兼容请求体
type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens"`
	Temperature      float64       `json:"temperature,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse OpenAI 兼容响应体
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// doOnce 发起单次 HTTP 调用并分类结果
func (c *Client) doOnce(ctx context.Context, req *CompletionRequest, model string) CompletionResult {
	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return failure(FailureUnknown, "failed to marshal request: %v", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return failure(FailureUnknown, "failed to build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(FailureConnection, "failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return failure(FailureMalformed, "undecodable response body: %v", err)
	}
	if parsed.Error != nil {
		return failure(FailureUnknown, "api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return failure(FailureMalformed, "empty choices in response")
	}

	return success(parsed.Choices[0].Message.Content, Usage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	})
}

// classifyTransportError 分类传输层错误
func classifyTransportError(err error) CompletionResult {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failure(FailureTimeout, "request timed out: %v", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return failure(FailureTimeout, "request timed out: %v", err)
	default:
		return failure(FailureConnection, "request failed: %v", err)
	}
}

// classifyStatus 按状态码分类非 2xx 响应
func classifyStatus(status int, body []byte) CompletionResult {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 512 {
		detail = detail[:512]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return failure(FailureAuth, "status %d: %s", status, detail)
	case status == http.StatusTooManyRequests:
		return failure(FailureRateLimited, "status %d: %s", status, detail)
	case status == http.StatusBadRequest && looksLikeTokenLimit(detail):
		return failure(FailureTokenLimit, "status %d: %s", status, detail)
	default:
		return failure(FailureUnknown, "status %d: %s", status, detail)
	}
}

// looksLikeTokenLimit 400 响应中是否带有 Token/长度超限的提示
func looksLikeTokenLimit(body string) bool {
	msg := strings.ToLower(body)
	switch {
	case strings.Contains(msg, "max_tokens"):
		return true
	case strings.Contains(msg, "token") && strings.Contains(msg, "limit"):
		return true
	case strings.Contains(msg, "context length"):
		return true
	case strings.Contains(msg, "too long"):
		return true
	default:
		return false
	}
}
