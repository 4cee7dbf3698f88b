package model

import "time"

// EventLevel 事件等级
type EventLevel int

const (
	LevelSuccess EventLevel = iota
	LevelError
	LevelWarning
	LevelCritical
	LevelInfo
	LevelSystemCheck
)

// Levels 按枚举顺序返回全部事件等级
func Levels() []EventLevel {
	return []EventLevel{LevelSuccess, LevelError, LevelWarning, LevelCritical, LevelInfo, LevelSystemCheck}
}

func (l EventLevel) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	case LevelSystemCheck:
		return "system_check"
	default:
		return "unknown"
	}
}

// Event 监控事件
type Event struct {
	ID        string
	Timestamp time.Time
	Level     EventLevel
	Message   string
	Data      map[string]interface{}
}

// Phase restart 阶段
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseStopping
	PhaseRestarted
	PhaseHealthCheck
	PhaseCompleted
)

// Phases 按执行顺序返回全部阶段
func Phases() []Phase {
	return []Phase{PhaseStarting, PhaseStopping, PhaseRestarted, PhaseHealthCheck, PhaseCompleted}
}

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseStopping:
		return "stopping"
	case PhaseRestarted:
		return "restarted"
	case PhaseHealthCheck:
		return "health-check"
	default:
		return "completed"
	}
}

// RestartProgress restart 过程中的进度通知
type RestartProgress struct {
	ServiceID string
	Phase     Phase
	Progress  int
	Message   string
}
