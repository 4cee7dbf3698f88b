package web

import (
	"time"

	"github.com/lancaster971/pilotproOS-sub003/internal/history"
	"github.com/lancaster971/pilotproOS-sub003/internal/model"
)

// 枚举到对外标签的映射; 下标即枚举值, 顺序与枚举一致
var (
	statusLabels = [...]string{
		model.StatusUnknown: "unknown",
		model.StatusRunning: "running",
		model.StatusStopped: "stopped",
		model.StatusError:   "error",
	}
	healthLabels = [...]string{
		model.HealthUnknown:   "unknown",
		model.HealthHealthy:   "healthy",
		model.HealthUnhealthy: "unhealthy",
		model.HealthStarting:  "starting",
		model.HealthStopped:   "stopped",
	}
	levelLabels = [...]string{
		model.LevelSuccess:     "success",
		model.LevelError:       "error",
		model.LevelWarning:     "warning",
		model.LevelCritical:    "critical",
		model.LevelInfo:        "info",
		model.LevelSystemCheck: "system_check",
	}
	phaseLabels = [...]string{
		model.PhaseStarting:    "starting",
		model.PhaseStopping:    "stopping",
		model.PhaseRestarted:   "restarted",
		model.PhaseHealthCheck: "health-check",
		model.PhaseCompleted:   "completed",
	}
	overallLabels = [...]string{
		model.OverallOperational: "operational",
		model.OverallPartial:     "partial",
		model.OverallDegraded:    "degraded",
	}
)

func label(labels []string, i int) string {
	if i < 0 || i >= len(labels) {
		return "unknown"
	}
	return labels[i]
}

func StatusLabel(s model.Status) string    { return label(statusLabels[:], int(s)) }
func HealthLabel(h model.Health) string    { return label(healthLabels[:], int(h)) }
func LevelLabel(l model.EventLevel) string { return label(levelLabels[:], int(l)) }
func PhaseLabel(p model.Phase) string      { return label(phaseLabels[:], int(p)) }
func OverallLabel(o model.Overall) string  { return label(overallLabels[:], int(o)) }

type MetricsView struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryUsedMB  float64 `json:"memoryUsedMB"`
	MemoryLimitMB float64 `json:"memoryLimitMB"`
	MemoryPercent float64 `json:"memoryPercent"`
}

type ServiceView struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	BusinessName  string      `json:"businessName"`
	Container     string      `json:"container"`
	Critical      bool        `json:"critical"`
	Dependencies  []string    `json:"dependencies"`
	Status        string      `json:"status"`
	Health        string      `json:"health"`
	UptimeSeconds int64       `json:"uptimeSeconds"`
	Uptime        string      `json:"uptime"`
	Metrics       MetricsView `json:"metrics"`
	LastCheck     *time.Time  `json:"lastCheck,omitempty"`
	RestartCount  int         `json:"restartCount"`
	MaxRestarts   int         `json:"maxRestarts"`
	Error         string      `json:"error,omitempty"`
}

type SystemStatusView struct {
	Overall   string        `json:"overall"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
	Services  []ServiceView `json:"services"`
}

type EventView struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

type ProgressView struct {
	ServiceID string `json:"serviceId"`
	Phase     string `json:"phase"`
	Progress  int    `json:"progress"`
	Message   string `json:"message"`
}

type ServicePerformance struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryUsedMB  float64 `json:"memoryUsedMB"`
	MemoryPercent float64 `json:"memoryPercent"`
}

type PerformanceView struct {
	TotalCPUPercent   float64              `json:"totalCpuPercent"`
	TotalMemoryUsedMB float64              `json:"totalMemoryUsedMB"`
	Services          []ServicePerformance `json:"services"`
	Timestamp         *time.Time           `json:"timestamp,omitempty"`
}

type OverviewView struct {
	Total       int    `json:"total"`
	Operational int    `json:"operational"`
	Warning     int    `json:"warning"`
	Error       int    `json:"error"`
	Overall     string `json:"overall"`
}

// NewServiceView 服务快照 -> 对外视图
func NewServiceView(s model.ServiceSnapshot) ServiceView {
	def, state := s.Definition, s.State
	deps := def.Dependencies
	if deps == nil {
		deps = []string{}
	}
	return ServiceView{
		ID:            def.Key,
		Name:          def.DisplayName,
		BusinessName:  def.BusinessName,
		Container:     def.ContainerRef,
		Critical:      def.Critical,
		Dependencies:  deps,
		Status:        StatusLabel(state.Status),
		Health:        HealthLabel(state.Health),
		UptimeSeconds: int64(state.Uptime / time.Second),
		Uptime:        state.Uptime.Truncate(time.Second).String(),
		Metrics: MetricsView{
			CPUPercent:    state.Metrics.CPUPercent,
			MemoryUsedMB:  state.Metrics.MemoryUsedMB,
			MemoryLimitMB: state.Metrics.MemoryLimitMB,
			MemoryPercent: state.Metrics.MemoryPercent,
		},
		LastCheck:    timePtr(state.LastCheck),
		RestartCount: s.RestartCount,
		MaxRestarts:  def.MaxRestarts,
		Error:        state.Error,
	}
}

// NewSystemStatus 完整快照视图
func NewSystemStatus(snap model.Snapshot) SystemStatusView {
	services := make([]ServiceView, 0, len(snap.Services))
	for _, s := range snap.Services {
		services = append(services, NewServiceView(s))
	}
	return SystemStatusView{
		Overall:   OverallLabel(snap.Overall),
		Timestamp: timePtr(snap.Timestamp),
		Services:  services,
	}
}

// NewPerformance 汇总同一快照中的 CPU 与内存使用
func NewPerformance(snap model.Snapshot) PerformanceView {
	view := PerformanceView{
		Services:  make([]ServicePerformance, 0, len(snap.Services)),
		Timestamp: timePtr(snap.Timestamp),
	}
	for _, s := range snap.Services {
		m := s.State.Metrics
		view.TotalCPUPercent += m.CPUPercent
		view.TotalMemoryUsedMB += m.MemoryUsedMB
		view.Services = append(view.Services, ServicePerformance{
			ID:            s.Definition.Key,
			Name:          s.Definition.DisplayName,
			CPUPercent:    m.CPUPercent,
			MemoryUsedMB:  m.MemoryUsedMB,
			MemoryPercent: m.MemoryPercent,
		})
	}
	return view
}

// NewOverview 按服务分类计数
func NewOverview(snap model.Snapshot) OverviewView {
	view := OverviewView{Total: len(snap.Services), Overall: OverallLabel(snap.Overall)}
	for _, s := range snap.Services {
		switch s.State.Condition() {
		case model.ConditionOperational:
			view.Operational++
		case model.ConditionWarning:
			view.Warning++
		default:
			view.Error++
		}
	}
	return view
}

func NewEventView(e model.Event) EventView {
	return EventView{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Level:     LevelLabel(e.Level),
		Message:   e.Message,
		Data:      e.Data,
	}
}

func NewEventViews(events []model.Event) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, NewEventView(e))
	}
	return out
}

// NewRecordViews 归档记录的等级已经是标签, 原样输出
func NewRecordViews(records []history.Record) []EventView {
	out := make([]EventView, 0, len(records))
	for _, r := range records {
		out = append(out, EventView{
			ID:        r.ID,
			Timestamp: r.OccurredAt,
			Level:     r.Level,
			Message:   r.Message,
			Data:      r.Data,
		})
	}
	return out
}

func NewProgressView(p model.RestartProgress) ProgressView {
	return ProgressView{
		ServiceID: p.ServiceID,
		Phase:     PhaseLabel(p.Phase),
		Progress:  p.Progress,
		Message:   p.Message,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
