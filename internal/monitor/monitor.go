package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lancaster971/pilotproOS-sub003/internal/metrics"
	"github.com/lancaster971/pilotproOS-sub003/internal/model"
	"github.com/lancaster971/pilotproOS-sub003/internal/registry"
)

// DefaultPollInterval 默认轮询间隔
const DefaultPollInterval = 30 * time.Second

// Inspector 监控器依赖的容器检查能力
type Inspector interface {
	GetAllStatuses(ctx context.Context) map[string]model.ServiceState
	Restart(ctx context.Context, serviceID string) model.RestartResult
}

// EventFunc 接收新记录的事件
type EventFunc func(model.Event)

type Options struct {
	PollInterval  time.Duration
	EventCapacity int
	// DisableRecovery 只观察不重启, 用于一次性检查
	DisableRecovery bool
}

// Monitor 周期性轮询服务状态, 检测状态变化, 执行有限次数的自动恢复
// ServiceState 与 restart 计数只由 Monitor 持有, 外部通过访问方法读取副本
type Monitor struct {
	registry  *registry.Registry
	inspector Inspector
	logger    *zap.Logger
	interval  time.Duration
	recovery  bool
	events    *EventLog
	now       func() time.Time

	pollMu sync.Mutex

	mu        sync.RWMutex
	states    map[string]model.ServiceState
	restarts  map[string]int
	lastAlert map[string]alertMark
	snapshot  model.Snapshot
	listeners []EventFunc
}

type alertMark struct {
	level model.EventLevel
	at    time.Time
}

// New 创建监控器
func New(reg *registry.Registry, insp Inspector, logger *zap.Logger, opts Options) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	m := &Monitor{
		registry:  reg,
		inspector: insp,
		logger:    logger,
		interval:  opts.PollInterval,
		recovery:  !opts.DisableRecovery,
		events:    NewEventLog(opts.EventCapacity),
		now:       time.Now,
		states:    make(map[string]model.ServiceState, reg.Len()),
		restarts:  make(map[string]int, reg.Len()),
		lastAlert: make(map[string]alertMark),
	}
	for _, key := range reg.Keys() {
		m.states[key] = model.ServiceState{}
	}
	m.snapshot = m.buildSnapshot(time.Time{})
	return m
}

// Run 立即执行一次轮询, 然后按固定间隔轮询直到 ctx 结束
func (m *Monitor) Run(ctx context.Context) {
	m.safePoll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.safePoll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// safePoll 在轮询边界捕获 panic, 保证调度循环不退出
func (m *Monitor) safePoll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("poll panicked", zap.Any("panic", r))
		}
	}()
	m.Poll(ctx)
}

// Poll 执行一次完整轮询: 刷新状态, 记录状态变化, 阈值告警, 自动恢复, 更新快照
func (m *Monitor) Poll(ctx context.Context) model.Snapshot {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	started := m.now()
	observed := m.inspector.GetAllStatuses(ctx)

	type transition struct {
		def      model.ServiceDefinition
		from, to model.Status
	}
	var changes []transition

	defs := m.registry.Services()
	m.mu.Lock()
	for _, def := range defs {
		state, ok := observed[def.Key]
		if !ok {
			continue
		}
		prev := m.states[def.Key]
		m.states[def.Key] = state
		if prev.Status != state.Status {
			changes = append(changes, transition{def: def, from: prev.Status, to: state.Status})
		}
	}
	m.mu.Unlock()

	for _, c := range changes {
		m.logTransition(c.def, c.from, c.to)
	}

	var unhealthy []model.ServiceDefinition
	for _, def := range defs {
		state, ok := observed[def.Key]
		if !ok {
			continue
		}
		metrics.SetServiceState(def.Key, state.Status == model.StatusRunning, state.Health == model.HealthHealthy,
			state.Metrics.CPUPercent, state.Metrics.MemoryPercent)
		if state.Status == model.StatusRunning {
			m.checkThresholds(def, state.Metrics)
		}
		if state.Unhealthy() {
			unhealthy = append(unhealthy, def)
		}
	}

	if m.recovery {
		m.autoRecover(ctx, unhealthy)
	}

	m.mu.Lock()
	m.snapshot = m.buildSnapshot(m.now())
	snapshot := copySnapshot(m.snapshot)
	m.mu.Unlock()

	metrics.ObservePollDuration(m.now().Sub(started).Seconds())
	m.logger.Debug("poll completed",
		zap.Int("services", len(defs)),
		zap.String("overall", snapshot.Overall.String()),
		zap.Duration("duration", m.now().Sub(started)))
	return snapshot
}

func (m *Monitor) logTransition(def model.ServiceDefinition, from, to model.Status) {
	metrics.RecordTransition(def.Key, from.String(), to.String())
	data := map[string]interface{}{"service": def.Key, "from": from.String(), "to": to.String()}
	switch to {
	case model.StatusRunning:
		m.LogEvent(model.LevelSuccess, fmt.Sprintf("%s is running", def.DisplayName), data)
	case model.StatusStopped:
		m.LogEvent(model.LevelError, fmt.Sprintf("%s stopped", def.DisplayName), data)
	default:
		m.LogEvent(model.LevelWarning, fmt.Sprintf("%s changed status from %s to %s", def.DisplayName, from, to), data)
	}
}

// autoRecover 对不健康的关键服务并发执行自动重启; 达到 MaxRestarts 后只记录 critical 事件
func (m *Monitor) autoRecover(ctx context.Context, unhealthy []model.ServiceDefinition) {
	g := new(errgroup.Group)
	for _, def := range unhealthy {
		def := def
		data := map[string]interface{}{"service": def.Key}

		if !def.Critical {
			metrics.IncRecovery(def.Key, "skipped")
			m.LogEvent(model.LevelInfo, fmt.Sprintf("%s is unhealthy; automatic restart is disabled for non-critical services", def.DisplayName), data)
			continue
		}

		count := m.RestartCount(def.Key)
		if count >= def.MaxRestarts {
			metrics.IncRecovery(def.Key, "exhausted")
			data["restarts"] = count
			data["max_restarts"] = def.MaxRestarts
			m.LogEvent(model.LevelCritical, fmt.Sprintf("%s exceeded max restarts (%d/%d); manual intervention required", def.DisplayName, count, def.MaxRestarts), data)
			continue
		}

		metrics.IncRecovery(def.Key, "restarted")
		m.LogEvent(model.LevelSystemCheck, fmt.Sprintf("Auto-restarting %s (attempt %d/%d)", def.DisplayName, count+1, def.MaxRestarts), data)
		g.Go(func() error {
			result := m.inspector.Restart(ctx, def.Key)
			resultData := map[string]interface{}{"service": def.Key, "message": result.Message}
			if result.Success {
				m.LogEvent(model.LevelSuccess, fmt.Sprintf("%s auto-restarted", def.DisplayName), resultData)
			} else {
				m.LogEvent(model.LevelError, fmt.Sprintf("Auto-restart of %s failed: %s", def.DisplayName, result.Message), resultData)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// checkThresholds 比较资源使用与告警阈值; critical 优先于 warning
func (m *Monitor) checkThresholds(def model.ServiceDefinition, rm model.ResourceMetrics) {
	t := m.registry.Thresholds()
	m.alert(def, "cpu", "CPU", rm.CPUPercent, t.CPUWarning, t.CPUCritical, t.AlertCooldown)
	m.alert(def, "memory", "memory", rm.MemoryPercent, t.MemoryWarning, t.MemoryCritical, t.AlertCooldown)
}

// alert 阈值为 0 表示关闭该级别的告警
func (m *Monitor) alert(def model.ServiceDefinition, metric, label string, value, warning, critical float64, cooldown time.Duration) {
	var level model.EventLevel
	switch {
	case critical > 0 && value >= critical:
		level = model.LevelCritical
	case warning > 0 && value >= warning:
		level = model.LevelWarning
	default:
		return
	}

	key := def.Key + "/" + metric
	now := m.now()
	if cooldown > 0 {
		m.mu.Lock()
		last, ok := m.lastAlert[key]
		if ok && last.level == level && now.Sub(last.at) < cooldown {
			m.mu.Unlock()
			return
		}
		m.lastAlert[key] = alertMark{level: level, at: now}
		m.mu.Unlock()
	}

	m.LogEvent(level, fmt.Sprintf("High %s usage on %s: %.1f%%", label, def.DisplayName, value), map[string]interface{}{
		"service": def.Key,
		"metric":  metric,
		"value":   value,
	})
}

// LogEvent 记录事件并通知监听者
func (m *Monitor) LogEvent(level model.EventLevel, message string, data map[string]interface{}) model.Event {
	e := model.Event{
		ID:        uuid.NewString(),
		Timestamp: m.now(),
		Level:     level,
		Message:   message,
		Data:      data,
	}
	m.events.Add(e)
	metrics.IncEvent(level.String())

	m.logger.Info("event",
		zap.String("level", level.String()),
		zap.String("message", message))

	m.mu.RLock()
	listeners := append([]EventFunc(nil), m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(e)
	}
	return e
}

// OnEvent 注册事件监听
func (m *Monitor) OnEvent(fn EventFunc) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// RecentEvents 最近的事件, 最新的在前
func (m *Monitor) RecentEvents(limit int) []model.Event {
	return m.events.Recent(limit)
}

// RecordRestart 递增 restart 计数, 由 Inspector 在每次 restart 尝试时调用
func (m *Monitor) RecordRestart(serviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts[serviceID]++
	return m.restarts[serviceID]
}

// RestartCount 当前 restart 计数
func (m *Monitor) RestartCount(serviceID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restarts[serviceID]
}

// State 最近一次记录的服务状态
func (m *Monitor) State(serviceID string) (model.ServiceState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[serviceID]
	return s, ok
}

// Snapshot 最近一次轮询计算出的快照副本
func (m *Monitor) Snapshot() model.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySnapshot(m.snapshot)
}

// buildSnapshot 调用方需持有 m.mu
func (m *Monitor) buildSnapshot(at time.Time) model.Snapshot {
	defs := m.registry.Services()
	services := make([]model.ServiceSnapshot, 0, len(defs))
	states := make([]model.ServiceState, 0, len(defs))
	for _, def := range defs {
		state := m.states[def.Key]
		states = append(states, state)
		services = append(services, model.ServiceSnapshot{
			Definition:   def,
			State:        state,
			RestartCount: m.restarts[def.Key],
		})
	}
	return model.Snapshot{
		Services:  services,
		Overall:   model.Aggregate(states),
		Timestamp: at,
	}
}

func copySnapshot(s model.Snapshot) model.Snapshot {
	out := s
	out.Services = append([]model.ServiceSnapshot(nil), s.Services...)
	return out
}
