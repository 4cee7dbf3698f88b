package docker

import (
	"time"

	"github.com/docker/docker/api/types"
)

// 健康检查状态(与 Docker HEALTHCHECK 一致); 空字符串表示容器没有定义健康检查
const (
	ProbeNone      = ""
	ProbeStarting  = "starting"
	ProbeHealthy   = "healthy"
	ProbeUnhealthy = "unhealthy"
)

// ContainerInfo 容器的实时状态
type ContainerInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	State        string    `json:"state"`
	Running      bool      `json:"running"`
	Health       string    `json:"health"`
	StartedAt    time.Time `json:"started_at"`
	RestartCount int       `json:"restart_count"`
}

// ContainerStats 容器资源使用
type ContainerStats struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryUsageBytes uint64  `json:"memory_usage_bytes"`
	MemoryLimitBytes uint64  `json:"memory_limit_bytes"`
	MemoryPercent    float64 `json:"memory_percent"`
}

// CPUSample 一次累计 CPU 用量采样
type CPUSample struct {
	TotalUsage  uint64
	SystemUsage uint64
}

// CalculateCPUPercent 根据两次累计采样计算 CPU 使用率:
// (cpuDelta / systemDelta) * onlineCPUs * 100
func CalculateCPUPercent(prev, cur CPUSample, onlineCPUs uint32) float64 {
	cpuDelta := float64(cur.TotalUsage) - float64(prev.TotalUsage)
	systemDelta := float64(cur.SystemUsage) - float64(prev.SystemUsage)
	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}
	if onlineCPUs == 0 {
		onlineCPUs = 1
	}
	return cpuDelta / systemDelta * float64(onlineCPUs) * 100
}

// CalculateMemoryPercent usedBytes / limitBytes * 100
func CalculateMemoryPercent(used, limit uint64) float64 {
	if limit == 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}

func statsFromJSON(raw types.StatsJSON) ContainerStats {
	online := raw.CPUStats.OnlineCPUs
	if online == 0 {
		online = uint32(len(raw.CPUStats.CPUUsage.PercpuUsage))
	}
	cpu := CalculateCPUPercent(
		CPUSample{TotalUsage: raw.PreCPUStats.CPUUsage.TotalUsage, SystemUsage: raw.PreCPUStats.SystemUsage},
		CPUSample{TotalUsage: raw.CPUStats.CPUUsage.TotalUsage, SystemUsage: raw.CPUStats.SystemUsage},
		online,
	)
	return ContainerStats{
		CPUPercent:       cpu,
		MemoryUsageBytes: raw.MemoryStats.Usage,
		MemoryLimitBytes: raw.MemoryStats.Limit,
		MemoryPercent:    CalculateMemoryPercent(raw.MemoryStats.Usage, raw.MemoryStats.Limit),
	}
}
