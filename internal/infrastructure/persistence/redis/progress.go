// Package redis 提供生成进度存储实现
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProgressRecord 单次生成运行的进度快照
type ProgressRecord struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	Stage     string    `json:"stage"`
	Progress  float64   `json:"progress"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressStore 生成进度存储
// 进度只增不减，写入方保证单调性；记录带 TTL，过期即视为运行结束且不可查。
type ProgressStore struct {
	client *Client
	ttl    time.Duration
}

// NewProgressStore 创建进度存储
func NewProgressStore(client *Client, ttl time.Duration) *ProgressStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProgressStore{client: client, ttl: ttl}
}

func progressKey(runID string) string {
	return fmt.Sprintf("run:%s:progress", runID)
}

// Publish 写入进度快照
func (s *ProgressStore) Publish(ctx context.Context, runID, state, stage string, progress float64) error {
	ctx, span := tracer.Start(ctx, "progress.Publish",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.state", state),
			attribute.Float64("run.progress", progress),
		))
	defer span.End()

	key := progressKey(runID)
	now := time.Now().UTC()

	pipe := s.client.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"state":      state,
		"stage":      stage,
		"progress":   strconv.FormatFloat(progress, 'f', 4, 64),
		"updated_at": now.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish progress: %w", err)
	}
	return nil
}

// Get 读取进度快照，运行不存在时返回 (nil, nil)
func (s *ProgressStore) Get(ctx context.Context, runID string) (*ProgressRecord, error) {
	ctx, span := tracer.Start(ctx, "progress.Get",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	fields, err := s.client.rdb.HGetAll(ctx, progressKey(runID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	record := &ProgressRecord{
		RunID: runID,
		State: fields["state"],
		Stage: fields["stage"],
	}
	if v, err := strconv.ParseFloat(fields["progress"], 64); err == nil {
		record.Progress = v
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		record.UpdatedAt = t
	}
	return record, nil
}
