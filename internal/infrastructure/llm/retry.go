package llm

import (
	"time"
)

// retryPolicy 有界重试策略
// 按失败分类决定动作：限流线性退避、超时/连接立即重试、
// 认证永不重试、Token 超限折半一次（受下限约束）。
type retryPolicy struct {
	// budget 最大尝试次数（含首次）
	budget int
	// backoff 限流退避基础时长，第 n 次尝试等待 n*backoff
	backoff time.Duration
	// tokenFloor 折半后 MaxTokens 的下限
	tokenFloor int
}

// decision 单次失败后的重试决策
type decision struct {
	retry bool
	wait  time.Duration
}

// decide 根据失败分类给出下一步动作
// attempt 为刚完成的尝试序号（从 1 开始）。TokenLimit 会就地修改 req.MaxTokens；
// halved 由调用方持有，保证折半只发生一次。
func (p retryPolicy) decide(attempt int, kind FailureKind, req *CompletionRequest, halved *bool) decision {
	if attempt >= p.budget {
		return decision{}
	}

	switch kind {
	case FailureRateLimited:
		return decision{retry: true, wait: time.Duration(attempt) * p.backoff}
	case FailureTimeout, FailureConnection:
		return decision{retry: true}
	case FailureTokenLimit:
		if *halved {
			return decision{}
		}
		next := req.MaxTokens / 2
		if next < p.tokenFloor {
			return decision{}
		}
		req.MaxTokens = next
		*halved = true
		return decision{retry: true}
	default:
		// Auth/Malformed/Unknown 重试无益，直接终态
		return decision{}
	}
}
