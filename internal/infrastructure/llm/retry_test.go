package llm

import (
	"testing"
	"time"
)

func TestRetryPolicyDecide(t *testing.T) {
	policy := retryPolicy{budget: 3, backoff: 2 * time.Second, tokenFloor: 256}

	t.Run("rate limited backs off linearly", func(t *testing.T) {
		req := &CompletionRequest{MaxTokens: 4096}
		halved := false

		d := policy.decide(1, FailureRateLimited, req, &halved)
		if !d.retry || d.wait != 2*time.Second {
			t.Errorf("attempt 1: got retry=%v wait=%v, want retry wait=2s", d.retry, d.wait)
		}

		d = policy.decide(2, FailureRateLimited, req, &halved)
		if !d.retry || d.wait != 4*time.Second {
			t.Errorf("attempt 2: got retry=%v wait=%v, want retry wait=4s", d.retry, d.wait)
		}
	})

	t.Run("timeout and connection retry immediately", func(t *testing.T) {
		req := &CompletionRequest{MaxTokens: 4096}
		halved := false

		for _, kind := range []FailureKind{FailureTimeout, FailureConnection} {
			d := policy.decide(1, kind, req, &halved)
			if !d.retry || d.wait != 0 {
				t.Errorf("%s: got retry=%v wait=%v, want immediate retry", kind, d.retry, d.wait)
			}
		}
	})

	t.Run("terminal kinds never retry", func(t *testing.T) {
		req := &CompletionRequest{MaxTokens: 4096}
		halved := false

		for _, kind := range []FailureKind{FailureAuth, FailureMalformed, FailureUnknown} {
			d := policy.decide(1, kind, req, &halved)
			if d.retry {
				t.Errorf("%s: expected terminal, got retry", kind)
			}
		}
	})

	t.Run("token limit halves once", func(t *testing.T) {
		req := &CompletionRequest{MaxTokens: 4096}
		halved := false

		d := policy.decide(1, FailureTokenLimit, req, &halved)
		if !d.retry {
			t.Fatal("expected retry after first token limit")
		}
		if req.MaxTokens != 2048 {
			t.Errorf("MaxTokens = %d, want 2048", req.MaxTokens)
		}
		if !halved {
			t.Error("halved flag not set")
		}

		d = policy.decide(2, FailureTokenLimit, req, &halved)
		if d.retry {
			t.Error("expected terminal after second token limit")
		}
		if req.MaxTokens != 2048 {
			t.Errorf("MaxTokens mutated again: %d", req.MaxTokens)
		}
	})

	t.Run("token limit respects floor", func(t *testing.T) {
		req := &CompletionRequest{MaxTokens: 300}
		halved := false

		d := policy.decide(1, FailureTokenLimit, req, &halved)
		if d.retry {
			t.Error("expected terminal when halving would go below floor")
		}
		if req.MaxTokens != 300 {
			t.Errorf("MaxTokens mutated: %d", req.MaxTokens)
		}
	})

	t.Run("budget exhaustion is terminal for every kind", func(t *testing.T) {
		req := &CompletionRequest{MaxTokens: 4096}
		halved := false

		for _, kind := range []FailureKind{FailureRateLimited, FailureTimeout, FailureConnection, FailureTokenLimit} {
			d := policy.decide(3, kind, req, &halved)
			if d.retry {
				t.Errorf("%s at budget: expected terminal, got retry", kind)
			}
		}
	})
}
