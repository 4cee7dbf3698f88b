package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lancaster971/pilotproOS-sub003/internal/model"
)

// ServicesFile 服务注册表文件结构
type ServicesFile struct {
	ComposeFile string           `yaml:"compose_file"`
	Thresholds  ThresholdsConfig `yaml:"thresholds"`
	Services    []ServiceEntry   `yaml:"services"`
}

// ThresholdsConfig 告警阈值
type ThresholdsConfig struct {
	CPUWarning     float64       `yaml:"cpu_warning"`
	CPUCritical    float64       `yaml:"cpu_critical"`
	MemoryWarning  float64       `yaml:"memory_warning"`
	MemoryCritical float64       `yaml:"memory_critical"`
	AlertCooldown  time.Duration `yaml:"alert_cooldown"`
}

// ServiceEntry 单个服务定义
type ServiceEntry struct {
	Key          string   `yaml:"key"`
	DisplayName  string   `yaml:"display_name"`
	BusinessName string   `yaml:"business_name"`
	Container    string   `yaml:"container"`
	Dependencies []string `yaml:"dependencies"`
	Critical     bool     `yaml:"critical"`
	MaxRestarts  *int     `yaml:"max_restarts"`
}

// DefaultMaxRestarts 未配置 max_restarts 时的重启上限
const DefaultMaxRestarts = 3

var defaultThresholds = ThresholdsConfig{
	CPUWarning:     70,
	CPUCritical:    90,
	MemoryWarning:  75,
	MemoryCritical: 90,
}

// LoadServices 加载服务注册表文件, 返回服务定义和阈值
func LoadServices(path string) ([]model.ServiceDefinition, model.Thresholds, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, model.Thresholds{}, fmt.Errorf("error reading services file: %w", err)
	}
	return ParseServices(data, filepath.Dir(path))
}

// ParseServices 解析注册表内容; baseDir 用于解析相对的 compose_file 路径
func ParseServices(data []byte, baseDir string) ([]model.ServiceDefinition, model.Thresholds, error) {
	file := ServicesFile{Thresholds: defaultThresholds}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, model.Thresholds{}, fmt.Errorf("error parsing services file: %w", err)
	}

	var compose *ComposeConfig
	if file.ComposeFile != "" {
		composePath := file.ComposeFile
		if !filepath.IsAbs(composePath) {
			composePath = filepath.Join(baseDir, composePath)
		}
		c, err := LoadComposeConfig(composePath)
		if err != nil {
			return nil, model.Thresholds{}, err
		}
		compose = c
	}

	defs := make([]model.ServiceDefinition, 0, len(file.Services))
	for _, entry := range file.Services {
		def, err := entry.definition(compose)
		if err != nil {
			return nil, model.Thresholds{}, err
		}
		defs = append(defs, def)
	}

	thresholds := model.Thresholds{
		CPUWarning:     file.Thresholds.CPUWarning,
		CPUCritical:    file.Thresholds.CPUCritical,
		MemoryWarning:  file.Thresholds.MemoryWarning,
		MemoryCritical: file.Thresholds.MemoryCritical,
		AlertCooldown:  file.Thresholds.AlertCooldown,
	}
	if err := validateThresholds(thresholds); err != nil {
		return nil, model.Thresholds{}, err
	}
	return defs, thresholds, nil
}

func (e ServiceEntry) definition(compose *ComposeConfig) (model.ServiceDefinition, error) {
	if e.Key == "" {
		return model.ServiceDefinition{}, fmt.Errorf("service without key")
	}
	ref := e.Container
	if ref == "" && compose != nil {
		ref, _ = compose.ContainerRef(e.Key)
	}
	if ref == "" {
		return model.ServiceDefinition{}, fmt.Errorf("service '%s' has no container specified", e.Key)
	}

	maxRestarts := DefaultMaxRestarts
	if e.MaxRestarts != nil {
		maxRestarts = *e.MaxRestarts
	}
	if maxRestarts < 0 {
		return model.ServiceDefinition{}, fmt.Errorf("service '%s' has negative max_restarts", e.Key)
	}

	displayName := e.DisplayName
	if displayName == "" {
		displayName = e.Key
	}
	businessName := e.BusinessName
	if businessName == "" {
		businessName = displayName
	}

	return model.ServiceDefinition{
		Key:          e.Key,
		DisplayName:  displayName,
		BusinessName: businessName,
		ContainerRef: ref,
		Dependencies: append([]string(nil), e.Dependencies...),
		Critical:     e.Critical,
		MaxRestarts:  maxRestarts,
	}, nil
}

func validateThresholds(t model.Thresholds) error {
	check := func(name string, warning, critical float64) error {
		if warning < 0 || critical > 100 || warning > critical {
			return fmt.Errorf("invalid %s thresholds: warning=%v critical=%v", name, warning, critical)
		}
		return nil
	}
	if err := check("cpu", t.CPUWarning, t.CPUCritical); err != nil {
		return err
	}
	if err := check("memory", t.MemoryWarning, t.MemoryCritical); err != nil {
		return err
	}
	if t.AlertCooldown < 0 {
		return fmt.Errorf("alert_cooldown must not be negative")
	}
	return nil
}
