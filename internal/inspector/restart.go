package inspector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lancaster971/pilotproOS-sub003/internal/docker"
	"github.com/lancaster971/pilotproOS-sub003/internal/metrics"
	"github.com/lancaster971/pilotproOS-sub003/internal/model"
)

// restart 各阶段的进度; health-check 在 50 到 90 之间线性插值
const (
	progressStarting         = 10
	progressStopping         = 25
	progressRestarted        = 40
	progressHealthCheckFirst = 50
	progressHealthCheckLast  = 90
	progressCompleted        = 100
)

// Restart 重启服务:
// 先启动未运行的依赖, 然后依次发出 starting, stopping, restarted,
// health-check(最多 HealthCheckAttempts 次) 和 completed 进度.
// 健康检查超时只记录警告, 操作仍视为完成. 失败通过返回值表达, 不会 panic.
func (i *Inspector) Restart(ctx context.Context, serviceID string) (result model.RestartResult) {
	def, err := i.registry.Get(serviceID)
	if err != nil {
		return model.RestartResult{Success: false, Message: err.Error()}
	}

	lock := i.locks[def.Key]
	if !lock.TryLock() {
		i.logger.Warn("restart rejected", zap.String("service", def.Key), zap.Error(ErrRestartInProgress))
		return model.RestartResult{Success: false, Message: ErrRestartInProgress.Error()}
	}
	defer lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("panic during restart", zap.String("service", def.Key), zap.Any("panic", r))
			result = model.RestartResult{Success: false, Message: fmt.Sprintf("restart of %s failed: %v", def.DisplayName, r)}
		}
		metrics.ObserveRestart(def.Key, result.Success)
	}()

	if err := i.ensureDependencies(ctx, def.Key, map[string]bool{}); err != nil {
		i.logger.Error("dependency start failed", zap.String("service", def.Key), zap.Error(err))
		return model.RestartResult{Success: false, Message: err.Error()}
	}

	i.emit(def.Key, model.PhaseStarting, progressStarting, fmt.Sprintf("Restarting %s", def.DisplayName))
	i.emit(def.Key, model.PhaseStopping, progressStopping, fmt.Sprintf("Stopping %s", def.DisplayName))

	err = i.runtime.Restart(ctx, def.ContainerRef)
	count := i.recordRestart(def.Key)
	if err != nil {
		i.logger.Error("restart failed",
			zap.String("service", def.Key),
			zap.Int("restart_count", count),
			zap.Error(err))
		return model.RestartResult{Success: false, Message: fmt.Sprintf("restart of %s failed: %v", def.DisplayName, err)}
	}
	i.emit(def.Key, model.PhaseRestarted, progressRestarted, fmt.Sprintf("%s restarted", def.DisplayName))

	healthy := i.waitHealthy(ctx, def.Key, def.ContainerRef, def.DisplayName)
	message := fmt.Sprintf("%s restarted successfully", def.DisplayName)
	if !healthy {
		i.logger.Warn("health check timed out after restart",
			zap.String("service", def.Key),
			zap.Int("attempts", i.opts.HealthCheckAttempts))
		message = fmt.Sprintf("%s restarted, health not confirmed", def.DisplayName)
	}
	i.emit(def.Key, model.PhaseCompleted, progressCompleted, message)

	i.logger.Info("restart completed",
		zap.String("service", def.Key),
		zap.Int("restart_count", count),
		zap.Bool("healthy", healthy))
	return model.RestartResult{Success: true, Message: message}
}

// ensureDependencies 递归启动未运行的依赖; 依赖图在加载时已保证无环
func (i *Inspector) ensureDependencies(ctx context.Context, key string, visited map[string]bool) error {
	def, err := i.registry.Get(key)
	if err != nil {
		return err
	}
	for _, depKey := range def.Dependencies {
		if visited[depKey] {
			continue
		}
		visited[depKey] = true

		dep, err := i.registry.Get(depKey)
		if err != nil {
			return err
		}
		if i.status(ctx, dep).Status == model.StatusRunning {
			continue
		}
		if err := i.ensureDependencies(ctx, depKey, visited); err != nil {
			return err
		}
		i.logger.Info("starting dependency",
			zap.String("service", key),
			zap.String("dependency", depKey))
		if err := i.runtime.Start(ctx, dep.ContainerRef); err != nil {
			return fmt.Errorf("failed to start dependency %s: %w", dep.DisplayName, err)
		}
	}
	return nil
}

// waitHealthy 轮询健康状态; 显式 healthy 或无健康检查的 running 视为成功
func (i *Inspector) waitHealthy(ctx context.Context, key, ref, name string) bool {
	attempts := i.opts.HealthCheckAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		if !sleepContext(ctx, i.opts.HealthCheckInterval) {
			return false
		}
		i.emit(key, model.PhaseHealthCheck, healthCheckProgress(attempt, attempts),
			fmt.Sprintf("Health check %d/%d for %s", attempt, attempts, name))

		info, err := i.runtime.Inspect(ctx, ref)
		if err != nil {
			i.logger.Debug("health check failed", zap.String("service", key), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if info.Health == docker.ProbeHealthy || (info.Running && info.Health == docker.ProbeNone) {
			return true
		}
	}
	return false
}

func healthCheckProgress(attempt, attempts int) int {
	if attempts <= 1 {
		return progressHealthCheckLast
	}
	span := progressHealthCheckLast - progressHealthCheckFirst
	return progressHealthCheckFirst + span*(attempt-1)/(attempts-1)
}

func (i *Inspector) recordRestart(key string) int {
	i.mu.RLock()
	recorder := i.recorder
	i.mu.RUnlock()
	if recorder == nil {
		return 0
	}
	return recorder.RecordRestart(key)
}

func (i *Inspector) emit(key string, phase model.Phase, progress int, message string) {
	i.mu.RLock()
	listeners := append([]ProgressFunc(nil), i.listeners...)
	i.mu.RUnlock()

	p := model.RestartProgress{ServiceID: key, Phase: phase, Progress: progress, Message: message}
	for _, fn := range listeners {
		fn(p)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
