package inspector

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lancaster971/pilotproOS-sub003/internal/docker"
	"github.com/lancaster971/pilotproOS-sub003/internal/model"
	"github.com/lancaster971/pilotproOS-sub003/internal/registry"
)

// ErrRestartInProgress 同一服务已有 restart 在执行
var ErrRestartInProgress = errors.New("restart already in progress")

// Runtime 容器运行时能力
type Runtime interface {
	Inspect(ctx context.Context, ref string) (docker.ContainerInfo, error)
	Stats(ctx context.Context, ref string) (docker.ContainerStats, error)
	Start(ctx context.Context, ref string) error
	Stop(ctx context.Context, ref string) error
	Restart(ctx context.Context, ref string) error
}

// RestartRecorder 记录 restart 尝试次数, 返回递增后的计数
type RestartRecorder interface {
	RecordRestart(serviceID string) int
}

// ProgressFunc 接收 restart 进度
type ProgressFunc func(model.RestartProgress)

// Options restart 健康检查参数
type Options struct {
	HealthCheckAttempts int
	HealthCheckInterval time.Duration
	// MaxConcurrency 限制一次轮询中并发的状态查询数, 0 表示不限制
	MaxConcurrency int
}

const (
	DefaultHealthCheckAttempts = 5
	DefaultHealthCheckInterval = 2 * time.Second
)

// Inspector 查询容器运行时并执行生命周期操作
type Inspector struct {
	registry *registry.Registry
	runtime  Runtime
	logger   *zap.Logger
	opts     Options
	now      func() time.Time

	mu        sync.RWMutex
	recorder  RestartRecorder
	listeners []ProgressFunc

	// 每个服务一把锁, 保证同一服务的 restart 互斥
	locks map[string]*sync.Mutex
}

// New 创建 Inspector
func New(reg *registry.Registry, runtime Runtime, logger *zap.Logger, opts Options) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HealthCheckAttempts <= 0 {
		opts.HealthCheckAttempts = DefaultHealthCheckAttempts
	}
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = DefaultHealthCheckInterval
	}
	locks := make(map[string]*sync.Mutex, reg.Len())
	for _, key := range reg.Keys() {
		locks[key] = &sync.Mutex{}
	}
	return &Inspector{
		registry: reg,
		runtime:  runtime,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		locks:    locks,
	}
}

// SetRestartRecorder 设置 restart 计数的持有者
func (i *Inspector) SetRestartRecorder(r RestartRecorder) {
	i.mu.Lock()
	i.recorder = r
	i.mu.Unlock()
}

// OnProgress 注册 restart 进度监听
func (i *Inspector) OnProgress(fn ProgressFunc) {
	i.mu.Lock()
	i.listeners = append(i.listeners, fn)
	i.mu.Unlock()
}

// GetStatus 查询单个服务状态
// 运行时不可达不会返回错误, 而是得到 status=error, health=unknown
func (i *Inspector) GetStatus(ctx context.Context, serviceID string) (model.ServiceState, error) {
	def, err := i.registry.Get(serviceID)
	if err != nil {
		return model.ServiceState{}, err
	}
	return i.status(ctx, def), nil
}

// GetAllStatuses 并发查询全部服务; 单个服务失败不影响其他服务
func (i *Inspector) GetAllStatuses(ctx context.Context) map[string]model.ServiceState {
	defs := i.registry.Services()
	states := make([]model.ServiceState, len(defs))

	g := new(errgroup.Group)
	if i.opts.MaxConcurrency > 0 {
		g.SetLimit(i.opts.MaxConcurrency)
	}
	for idx, def := range defs {
		idx, def := idx, def
		g.Go(func() error {
			states[idx] = i.status(ctx, def)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]model.ServiceState, len(defs))
	for idx, def := range defs {
		out[def.Key] = states[idx]
	}
	return out
}

// Start 直接启动服务容器, 错误返回给调用方
func (i *Inspector) Start(ctx context.Context, serviceID string) error {
	def, err := i.registry.Get(serviceID)
	if err != nil {
		return err
	}
	return i.runtime.Start(ctx, def.ContainerRef)
}

// Stop 直接停止服务容器, 错误返回给调用方
func (i *Inspector) Stop(ctx context.Context, serviceID string) error {
	def, err := i.registry.Get(serviceID)
	if err != nil {
		return err
	}
	return i.runtime.Stop(ctx, def.ContainerRef)
}

func (i *Inspector) status(ctx context.Context, def model.ServiceDefinition) (state model.ServiceState) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("panic while inspecting service", zap.String("service", def.Key), zap.Any("panic", r))
			state = model.ServiceState{Status: model.StatusError, Health: model.HealthUnknown, LastCheck: i.now()}
		}
	}()

	now := i.now()
	info, err := i.runtime.Inspect(ctx, def.ContainerRef)
	if err != nil {
		i.logger.Warn("container runtime unreachable",
			zap.String("service", def.Key),
			zap.String("container", def.ContainerRef),
			zap.Error(err))
		return model.ServiceState{
			Status:    model.StatusError,
			Health:    model.HealthUnknown,
			LastCheck: now,
			Error:     err.Error(),
		}
	}

	if !info.Running {
		return model.ServiceState{
			Status:    model.StatusStopped,
			Health:    model.HealthStopped,
			LastCheck: now,
		}
	}

	state = model.ServiceState{
		Status:    model.StatusRunning,
		Health:    probeHealth(info.Health),
		LastCheck: now,
	}
	if !info.StartedAt.IsZero() && now.After(info.StartedAt) {
		state.Uptime = now.Sub(info.StartedAt)
	}

	stats, err := i.runtime.Stats(ctx, def.ContainerRef)
	if err != nil {
		i.logger.Debug("container stats unavailable", zap.String("service", def.Key), zap.Error(err))
		return state
	}
	state.Metrics = resourceMetrics(stats)
	return state
}

// probeHealth 没有健康检查的运行中容器视为 healthy
func probeHealth(probe string) model.Health {
	switch probe {
	case docker.ProbeHealthy, docker.ProbeNone:
		return model.HealthHealthy
	case docker.ProbeUnhealthy:
		return model.HealthUnhealthy
	case docker.ProbeStarting:
		return model.HealthStarting
	default:
		return model.HealthUnknown
	}
}

const bytesPerMB = 1024 * 1024

func resourceMetrics(stats docker.ContainerStats) model.ResourceMetrics {
	return model.ResourceMetrics{
		CPUPercent:    stats.CPUPercent,
		MemoryUsedMB:  float64(stats.MemoryUsageBytes) / bytesPerMB,
		MemoryLimitMB: float64(stats.MemoryLimitBytes) / bytesPerMB,
		MemoryPercent: stats.MemoryPercent,
	}
}
