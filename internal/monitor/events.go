package monitor

import (
	"sync"

	"github.com/lancaster971/pilotproOS-sub003/internal/model"
)

// DefaultEventCapacity 事件日志默认容量
const DefaultEventCapacity = 100

// EventLog 有界 FIFO 环形缓冲, 满时丢弃最旧的事件
type EventLog struct {
	mu    sync.RWMutex
	buf   []model.Event
	start int
	size  int
}

// NewEventLog 创建容量为 capacity 的事件日志
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &EventLog{buf: make([]model.Event, capacity)}
}

// Add 追加事件
func (l *EventLog) Add(e model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = e
		l.size++
		return
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % len(l.buf)
}

// Recent 返回最近的 limit 条事件, 最新的在前; limit <= 0 返回全部
func (l *EventLog) Recent(limit int) []model.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.start + l.size - 1 - i) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// Len 当前事件数量
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Cap 容量
func (l *EventLog) Cap() int {
	return len(l.buf)
}
