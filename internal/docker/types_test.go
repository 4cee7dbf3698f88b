package docker

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
)

func TestCalculateCPUPercent(t *testing.T) {
	tests := []struct {
		name   string
		prev   CPUSample
		cur    CPUSample
		online uint32
		want   float64
	}{
		{"two cpus", CPUSample{100, 1000}, CPUSample{300, 2000}, 2, 40},
		{"single cpu", CPUSample{0, 0}, CPUSample{50, 100}, 1, 50},
		{"zero online cpus treated as one", CPUSample{0, 0}, CPUSample{50, 100}, 0, 50},
		{"no cpu delta", CPUSample{100, 1000}, CPUSample{100, 2000}, 4, 0},
		{"no system delta", CPUSample{100, 1000}, CPUSample{200, 1000}, 4, 0},
		{"counter reset", CPUSample{500, 5000}, CPUSample{100, 1000}, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateCPUPercent(tt.prev, tt.cur, tt.online), 0.0001)
		})
	}
}

func TestCalculateMemoryPercent(t *testing.T) {
	assert.InDelta(t, 25.0, CalculateMemoryPercent(256, 1024), 0.0001)
	assert.Equal(t, 0.0, CalculateMemoryPercent(256, 0))
}

func TestStatsFromJSON_PercpuFallback(t *testing.T) {
	var raw types.StatsJSON
	raw.PreCPUStats.CPUUsage.TotalUsage = 0
	raw.PreCPUStats.SystemUsage = 0
	raw.CPUStats.CPUUsage.TotalUsage = 100
	raw.CPUStats.CPUUsage.PercpuUsage = []uint64{50, 50, 0, 0}
	raw.CPUStats.SystemUsage = 1000
	raw.MemoryStats.Usage = 512
	raw.MemoryStats.Limit = 2048

	stats := statsFromJSON(raw)
	assert.InDelta(t, 40.0, stats.CPUPercent, 0.0001)
	assert.Equal(t, uint64(512), stats.MemoryUsageBytes)
	assert.InDelta(t, 25.0, stats.MemoryPercent, 0.0001)
}

func TestContainerInfo(t *testing.T) {
	assert.Equal(t, ContainerInfo{}, containerInfo(types.ContainerJSON{}))

	inspect := types.ContainerJSON{ContainerJSONBase: &types.ContainerJSONBase{
		ID:           "abc",
		Name:         "/pilotpros-redis-dev",
		RestartCount: 2,
		State: &types.ContainerState{
			Status:    "running",
			Running:   true,
			StartedAt: "2024-01-02T03:04:05.123456789Z",
			Health:    &types.Health{Status: ProbeUnhealthy},
		},
	}}
	info := containerInfo(inspect)
	assert.Equal(t, "pilotpros-redis-dev", info.Name)
	assert.True(t, info.Running)
	assert.Equal(t, ProbeUnhealthy, info.Health)
	assert.Equal(t, 2, info.RestartCount)
	assert.Equal(t, 2024, info.StartedAt.Year())

	inspect.State.StartedAt = "0001-01-01T00:00:00Z"
	inspect.State.Health = nil
	info = containerInfo(inspect)
	assert.Equal(t, ProbeNone, info.Health)
	assert.True(t, info.StartedAt.IsZero())
}
