package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lancaster971/pilotproOS-sub003/internal/model"
)

func assertInjective(t *testing.T, labels []string) {
	t.Helper()
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		assert.False(t, seen[l], "duplicate label %q", l)
		seen[l] = true
	}
}

func TestLabels(t *testing.T) {
	var statuses []string
	for _, s := range model.Statuses() {
		statuses = append(statuses, StatusLabel(s))
	}
	assert.Equal(t, []string{"unknown", "running", "stopped", "error"}, statuses)

	var healths []string
	for _, h := range model.Healths() {
		healths = append(healths, HealthLabel(h))
	}
	assert.Equal(t, []string{"unknown", "healthy", "unhealthy", "starting", "stopped"}, healths)

	var levels []string
	for _, l := range model.Levels() {
		levels = append(levels, LevelLabel(l))
	}
	assert.Equal(t, []string{"success", "error", "warning", "critical", "info", "system_check"}, levels)

	var phases []string
	for _, p := range model.Phases() {
		phases = append(phases, PhaseLabel(p))
	}
	assert.Equal(t, []string{"starting", "stopping", "restarted", "health-check", "completed"}, phases)

	assertInjective(t, statuses)
	assertInjective(t, healths)
	assertInjective(t, levels)
	assertInjective(t, phases)

	assert.Equal(t, "degraded", OverallLabel(model.OverallDegraded))
	assert.Equal(t, "unknown", StatusLabel(model.Status(-1)))
	assert.Equal(t, "unknown", LevelLabel(model.EventLevel(99)))
}

func TestLabelsMatchStringers(t *testing.T) {
	for _, s := range model.Statuses() {
		assert.Equal(t, s.String(), StatusLabel(s))
	}
	for _, h := range model.Healths() {
		assert.Equal(t, h.String(), HealthLabel(h))
	}
	for _, l := range model.Levels() {
		assert.Equal(t, l.String(), LevelLabel(l))
	}
	for _, p := range model.Phases() {
		assert.Equal(t, p.String(), PhaseLabel(p))
	}
}

func TestNewSystemStatus_ZeroTimestamp(t *testing.T) {
	view := NewSystemStatus(model.Snapshot{})
	assert.Nil(t, view.Timestamp)
	assert.Equal(t, "operational", view.Overall)
	assert.NotNil(t, view.Services)
}

func TestNewProgressView(t *testing.T) {
	view := NewProgressView(model.RestartProgress{ServiceID: "db", Phase: model.PhaseCompleted, Progress: 100, Message: "done"})
	assert.Equal(t, ProgressView{ServiceID: "db", Phase: "completed", Progress: 100, Message: "done"}, view)

	e := NewEventView(model.Event{ID: "1", Timestamp: time.Unix(0, 0), Level: model.LevelSystemCheck})
	assert.Equal(t, "system_check", e.Level)
}
