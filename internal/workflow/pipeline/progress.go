// Package pipeline 实现书籍生成流水线
package pipeline

import (
	"context"

	"ebook-factory-api/internal/workflow/model"
	"ebook-factory-api/pkg/logger"
)

// ProgressSink 进度发布接口
type ProgressSink interface {
	Publish(ctx context.Context, runID, state, stage string, progress float64) error
}

// NopSink 丢弃进度的空实现
type NopSink struct{}

func (NopSink) Publish(_ context.Context, _, _, _ string, _ float64) error { return nil }

// progressTracker 单次运行的进度跟踪器
// 进度单调不减：回退写入被钳制为当前值，保证观察方永远看不到倒退。
type progressTracker struct {
	runID   string
	sink    ProgressSink
	current float64
	state   model.RunState
}

func newProgressTracker(runID string, sink ProgressSink) *progressTracker {
	if sink == nil {
		sink = NopSink{}
	}
	return &progressTracker{runID: runID, sink: sink, state: model.StateIdle}
}

// publish 推进状态与进度并发布快照
// 发布失败只记日志：进度是旁路观测，不能让它中断生成。
func (t *progressTracker) publish(ctx context.Context, state model.RunState, stage model.Stage, progress float64) {
	if progress < t.current {
		progress = t.current
	}
	if progress > 1.0 {
		progress = 1.0
	}
	t.current = progress
	t.state = state

	if err := t.sink.Publish(ctx, t.runID, string(state), string(stage), progress); err != nil {
		logger.Warn(ctx, "failed to publish progress",
			"run_id", t.runID,
			"state", string(state),
			"error", err,
		)
	}
}
