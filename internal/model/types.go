package model

import "time"

// Status 表示容器运行状态
type Status int

const (
	StatusUnknown Status = iota
	StatusRunning
	StatusStopped
	StatusError
)

// Statuses 按枚举顺序返回全部状态
func Statuses() []Status {
	return []Status{StatusUnknown, StatusRunning, StatusStopped, StatusError}
}

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Valid 检查状态是否属于枚举
func (s Status) Valid() bool {
	return s >= StatusUnknown && s <= StatusError
}

// Health 表示容器健康状态
type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthUnhealthy
	HealthStarting
	HealthStopped
)

// Healths 按枚举顺序返回全部健康状态
func Healths() []Health {
	return []Health{HealthUnknown, HealthHealthy, HealthUnhealthy, HealthStarting, HealthStopped}
}

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthStarting:
		return "starting"
	case HealthStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Valid 检查健康状态是否属于枚举
func (h Health) Valid() bool {
	return h >= HealthUnknown && h <= HealthStopped
}

// ResourceMetrics 表示容器资源使用情况
type ResourceMetrics struct {
	CPUPercent    float64
	MemoryUsedMB  float64
	MemoryLimitMB float64
	MemoryPercent float64
}

// ServiceState 表示某个服务最近一次检查的结果
type ServiceState struct {
	Status    Status
	Health    Health
	Uptime    time.Duration
	Metrics   ResourceMetrics
	LastCheck time.Time
	// Error 保存运行时不可达时的错误信息
	Error string
}

// Unhealthy 判断服务是否需要恢复
// 运行时不可达(StatusError)不算不健康: 无法确认容器状态时不重启
func (s ServiceState) Unhealthy() bool {
	return s.Health == HealthUnhealthy || s.Status == StatusStopped
}

// Condition 服务的汇总分类
type Condition int

const (
	ConditionOperational Condition = iota
	ConditionWarning
	ConditionFailing
)

// Condition 将单个服务状态归类
func (s ServiceState) Condition() Condition {
	switch {
	case s.Status == StatusStopped || s.Health == HealthUnhealthy || s.Health == HealthStopped:
		return ConditionFailing
	case s.Status == StatusRunning && s.Health == HealthHealthy:
		return ConditionOperational
	default:
		return ConditionWarning
	}
}

// Overall 表示整个系统的健康等级
type Overall int

const (
	OverallOperational Overall = iota
	OverallPartial
	OverallDegraded
)

func (o Overall) String() string {
	switch o {
	case OverallPartial:
		return "partial"
	case OverallDegraded:
		return "degraded"
	default:
		return "operational"
	}
}

// Aggregate 计算整体健康: degraded > partial > operational
func Aggregate(states []ServiceState) Overall {
	overall := OverallOperational
	for _, s := range states {
		switch s.Condition() {
		case ConditionFailing:
			return OverallDegraded
		case ConditionWarning:
			overall = OverallPartial
		}
	}
	return overall
}

// RestartResult restart 操作的结果
type RestartResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
