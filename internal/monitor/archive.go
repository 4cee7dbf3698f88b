package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lancaster971/pilotproOS-sub003/internal/history"
	"github.com/lancaster971/pilotproOS-sub003/internal/model"
)

const archiveTimeout = 2 * time.Second

// Archive 将之后记录的每个事件写入 sink; 写入失败只记录日志
func (m *Monitor) Archive(sink history.Sink) {
	m.OnEvent(func(e model.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := sink.Send(ctx, toRecord(e)); err != nil {
			m.logger.Warn("failed to archive event", zap.String("event", e.ID), zap.Error(err))
		}
	})
}

func toRecord(e model.Event) history.Record {
	return history.Record{
		ID:         e.ID,
		OccurredAt: e.Timestamp,
		Level:      e.Level.String(),
		Message:    e.Message,
		Data:       e.Data,
	}
}
