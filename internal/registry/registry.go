package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lancaster971/pilotproOS-sub003/internal/config"
	"github.com/lancaster971/pilotproOS-sub003/internal/model"
)

var (
	ErrUnknownService  = errors.New("unknown service")
	ErrDependencyCycle = errors.New("dependency cycle")
)

// Registry 只读的服务注册表, 启动时加载一次
type Registry struct {
	services   []model.ServiceDefinition
	index      map[string]int
	thresholds model.Thresholds
	startOrder []string
}

// Load 从文件加载注册表并校验依赖关系
func Load(path string) (*Registry, error) {
	defs, thresholds, err := config.LoadServices(path)
	if err != nil {
		return nil, err
	}
	return New(defs, thresholds)
}

// New 根据服务定义构建注册表
func New(defs []model.ServiceDefinition, thresholds model.Thresholds) (*Registry, error) {
	r := &Registry{
		services:   make([]model.ServiceDefinition, 0, len(defs)),
		index:      make(map[string]int, len(defs)),
		thresholds: thresholds,
	}
	for _, def := range defs {
		if def.Key == "" {
			return nil, fmt.Errorf("service without key")
		}
		if _, dup := r.index[def.Key]; dup {
			return nil, fmt.Errorf("duplicate service key '%s'", def.Key)
		}
		def.Dependencies = append([]string(nil), def.Dependencies...)
		r.index[def.Key] = len(r.services)
		r.services = append(r.services, def)
	}
	for _, def := range r.services {
		for _, dep := range def.Dependencies {
			if dep == def.Key {
				return nil, fmt.Errorf("service '%s' depends on itself: %w", def.Key, ErrDependencyCycle)
			}
			if _, ok := r.index[dep]; !ok {
				return nil, fmt.Errorf("service '%s' depends on '%s': %w", def.Key, dep, ErrUnknownService)
			}
		}
	}

	order, err := r.topoSort()
	if err != nil {
		return nil, err
	}
	r.startOrder = order
	return r, nil
}

// topoSort Kahn 算法; 依赖排在被依赖者之前
func (r *Registry) topoSort() ([]string, error) {
	indegree := make(map[string]int, len(r.services))
	dependents := make(map[string][]string, len(r.services))
	for _, def := range r.services {
		for _, dep := range def.Dependencies {
			indegree[def.Key]++
			dependents[dep] = append(dependents[dep], def.Key)
		}
	}

	var ready []string
	for _, def := range r.services {
		if indegree[def.Key] == 0 {
			ready = append(ready, def.Key)
		}
	}

	order := make([]string, 0, len(r.services))
	for len(ready) > 0 {
		key := ready[0]
		ready = ready[1:]
		order = append(order, key)
		for _, next := range dependents[key] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(r.services) {
		var cyclic []string
		for key, n := range indegree {
			if n > 0 {
				cyclic = append(cyclic, key)
			}
		}
		sort.Strings(cyclic)
		return nil, fmt.Errorf("%w between services: %s", ErrDependencyCycle, strings.Join(cyclic, ", "))
	}
	return order, nil
}

// Services 按配置顺序返回全部服务定义的副本
func (r *Registry) Services() []model.ServiceDefinition {
	out := make([]model.ServiceDefinition, len(r.services))
	for i, def := range r.services {
		def.Dependencies = append([]string(nil), def.Dependencies...)
		out[i] = def
	}
	return out
}

// Keys 按配置顺序返回服务 key
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.services))
	for i, def := range r.services {
		keys[i] = def.Key
	}
	return keys
}

// Get 按 key 获取服务定义
func (r *Registry) Get(key string) (model.ServiceDefinition, error) {
	i, ok := r.index[key]
	if !ok {
		return model.ServiceDefinition{}, fmt.Errorf("%w: %s", ErrUnknownService, key)
	}
	def := r.services[i]
	def.Dependencies = append([]string(nil), def.Dependencies...)
	return def, nil
}

// Len 服务数量
func (r *Registry) Len() int {
	return len(r.services)
}

// Thresholds 告警阈值
func (r *Registry) Thresholds() model.Thresholds {
	return r.thresholds
}

// StartOrder 满足依赖关系的启动顺序
func (r *Registry) StartOrder() []string {
	return append([]string(nil), r.startOrder...)
}
