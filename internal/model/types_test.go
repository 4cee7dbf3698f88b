package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	healthy := ServiceState{Status: StatusRunning, Health: HealthHealthy}
	starting := ServiceState{Status: StatusRunning, Health: HealthStarting}
	stopped := ServiceState{Status: StatusStopped, Health: HealthStopped}
	unhealthy := ServiceState{Status: StatusRunning, Health: HealthUnhealthy}
	unknown := ServiceState{}

	tests := []struct {
		name   string
		states []ServiceState
		want   Overall
	}{
		{"empty", nil, OverallOperational},
		{"all healthy", []ServiceState{healthy, healthy}, OverallOperational},
		{"one starting", []ServiceState{healthy, starting}, OverallPartial},
		{"unknown counts as warning", []ServiceState{healthy, unknown}, OverallPartial},
		{"stopped wins over warning", []ServiceState{starting, stopped, healthy}, OverallDegraded},
		{"unhealthy", []ServiceState{unhealthy}, OverallDegraded},
		{"runtime error is warning", []ServiceState{{Status: StatusError, Health: HealthUnknown}}, OverallPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.states))
		})
	}
}

func TestServiceState_Unhealthy(t *testing.T) {
	assert.False(t, ServiceState{Status: StatusRunning, Health: HealthHealthy}.Unhealthy())
	assert.False(t, ServiceState{Status: StatusRunning, Health: HealthStarting}.Unhealthy())
	assert.True(t, ServiceState{Status: StatusRunning, Health: HealthUnhealthy}.Unhealthy())
	assert.True(t, ServiceState{Status: StatusStopped, Health: HealthStopped}.Unhealthy())
	assert.False(t, ServiceState{Status: StatusError, Health: HealthUnknown}.Unhealthy())
}

func TestEnumsValid(t *testing.T) {
	for _, s := range Statuses() {
		assert.True(t, s.Valid(), s.String())
	}
	for _, h := range Healths() {
		assert.True(t, h.Valid(), h.String())
	}
	assert.False(t, Status(-1).Valid())
	assert.False(t, Status(len(Statuses())).Valid())
	assert.False(t, Health(len(Healths())).Valid())

	assert.Equal(t, "unknown", Status(42).String())
	assert.Equal(t, "unknown", EventLevel(42).String())
	assert.Equal(t, "system_check", LevelSystemCheck.String())
	assert.Equal(t, "health-check", PhaseHealthCheck.String())
}

func TestSnapshot_Service(t *testing.T) {
	snap := Snapshot{Services: []ServiceSnapshot{
		{Definition: ServiceDefinition{Key: "db"}},
		{Definition: ServiceDefinition{Key: "engine"}, RestartCount: 2},
	}}

	s, ok := snap.Service("engine")
	assert.True(t, ok)
	assert.Equal(t, 2, s.RestartCount)

	_, ok = snap.Service("missing")
	assert.False(t, ok)
}
