package model

import "time"

// ServiceDefinition 被监控服务的静态定义
type ServiceDefinition struct {
	Key          string
	DisplayName  string
	BusinessName string
	ContainerRef string
	Dependencies []string
	Critical     bool
	MaxRestarts  int
}

// Thresholds 资源告警阈值(百分比); 0 表示不告警
type Thresholds struct {
	CPUWarning     float64
	CPUCritical    float64
	MemoryWarning  float64
	MemoryCritical float64
	// AlertCooldown 为 0 时每次轮询都重复告警
	AlertCooldown time.Duration
}

// ServiceSnapshot 单个服务在快照中的视图
type ServiceSnapshot struct {
	Definition   ServiceDefinition
	State        ServiceState
	RestartCount int
}

// Snapshot 监控器最近一次完整计算的系统视图
type Snapshot struct {
	Services  []ServiceSnapshot
	Overall   Overall
	Timestamp time.Time
}

// Service 按 key 查找服务快照
func (s Snapshot) Service(key string) (ServiceSnapshot, bool) {
	for _, svc := range s.Services {
		if svc.Definition.Key == key {
			return svc, true
		}
	}
	return ServiceSnapshot{}, false
}
