package history

import (
	"context"
	"time"
)

// Record 归档的监控事件
type Record struct {
	ID         string                 `json:"id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Sink 事件归档目标, 实现必须并发安全
type Sink interface {
	Send(ctx context.Context, r Record) error
	Close() error
}
