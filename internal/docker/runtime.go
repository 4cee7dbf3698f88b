package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// composeServiceLabel docker compose 为容器打上的服务名标签
const composeServiceLabel = "com.docker.compose.service"

// Runtime 基于 Docker Engine API 的容器运行时
type Runtime struct {
	client *client.Client
	logger *zap.Logger
}

// NewRuntime 创建新的 Docker 运行时
func NewRuntime(cli *client.Client, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{client: cli, logger: logger}
}

// NewRuntimeFromEnv 使用环境变量(DOCKER_HOST 等)创建 Docker 运行时
func NewRuntimeFromEnv(logger *zap.Logger) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return NewRuntime(cli, logger), nil
}

// Ping 检查 Docker daemon 是否可达
func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Inspect 查询容器状态
// ref 可以是容器名、容器ID或 compose 服务名
func (r *Runtime) Inspect(ctx context.Context, ref string) (ContainerInfo, error) {
	inspect, err := r.inspect(ctx, ref)
	if err != nil {
		return ContainerInfo{}, err
	}
	return containerInfo(inspect), nil
}

// Stats 采样一次容器资源使用
// Docker 在非流式请求中同时返回 cpu_stats 与 precpu_stats 两次累计采样
func (r *Runtime) Stats(ctx context.Context, ref string) (ContainerStats, error) {
	id, err := r.resolve(ctx, ref)
	if err != nil {
		return ContainerStats{}, err
	}
	resp, err := r.client.ContainerStats(ctx, id, false)
	if err != nil {
		return ContainerStats{}, fmt.Errorf("failed to get stats for %s: %w", ref, err)
	}
	defer resp.Body.Close()

	var raw types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return ContainerStats{}, fmt.Errorf("failed to decode stats for %s: %w", ref, err)
	}
	return statsFromJSON(raw), nil
}

// Start 启动容器
func (r *Runtime) Start(ctx context.Context, ref string) error {
	id, err := r.resolve(ctx, ref)
	if err != nil {
		return err
	}
	if err := r.client.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start %s: %w", ref, err)
	}
	r.logger.Info("container started", zap.String("container", ref))
	return nil
}

// Stop 停止容器
func (r *Runtime) Stop(ctx context.Context, ref string) error {
	id, err := r.resolve(ctx, ref)
	if err != nil {
		return err
	}
	if err := r.client.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop %s: %w", ref, err)
	}
	r.logger.Info("container stopped", zap.String("container", ref))
	return nil
}

// Restart 重启容器
func (r *Runtime) Restart(ctx context.Context, ref string) error {
	id, err := r.resolve(ctx, ref)
	if err != nil {
		return err
	}
	if err := r.client.ContainerRestart(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to restart %s: %w", ref, err)
	}
	r.logger.Info("container restarted", zap.String("container", ref))
	return nil
}

// Close 关闭 Docker 客户端连接
func (r *Runtime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Runtime) inspect(ctx context.Context, ref string) (types.ContainerJSON, error) {
	inspect, err := r.client.ContainerInspect(ctx, ref)
	if err == nil {
		return inspect, nil
	}
	if !client.IsErrNotFound(err) {
		return types.ContainerJSON{}, fmt.Errorf("failed to inspect %s: %w", ref, err)
	}

	id, lookupErr := r.containerIDByService(ctx, ref)
	if lookupErr != nil {
		return types.ContainerJSON{}, lookupErr
	}
	inspect, err = r.client.ContainerInspect(ctx, id)
	if err != nil {
		return types.ContainerJSON{}, fmt.Errorf("failed to inspect %s: %w", ref, err)
	}
	return inspect, nil
}

// resolve 将 ref 解析为完整容器ID
func (r *Runtime) resolve(ctx context.Context, ref string) (string, error) {
	inspect, err := r.inspect(ctx, ref)
	if err != nil {
		return "", err
	}
	return inspect.ID, nil
}

// containerIDByService 通过 compose 服务名查找容器ID
func (r *Runtime) containerIDByService(ctx context.Context, service string) (string, error) {
	containers, err := r.client.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", composeServiceLabel+"="+service)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return "", fmt.Errorf("container not found: %s", service)
	}
	return containers[0].ID, nil
}

func containerInfo(inspect types.ContainerJSON) ContainerInfo {
	info := ContainerInfo{}
	if inspect.ContainerJSONBase == nil {
		return info
	}
	info.ID = inspect.ID
	info.Name = strings.TrimPrefix(inspect.Name, "/")
	info.RestartCount = inspect.RestartCount
	if inspect.State == nil {
		return info
	}
	info.State = inspect.State.Status
	info.Running = inspect.State.Running
	if inspect.State.Health != nil {
		info.Health = inspect.State.Health.Status
	}
	if started, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt); err == nil {
		info.StartedAt = started
	}
	return info
}
