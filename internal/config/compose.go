package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ComposeConfig 表示 docker-compose 配置; 只解析容器名解析需要的字段
type ComposeConfig struct {
	Services map[string]ServiceConfig `yaml:"services"`
}

// ServiceConfig 表示 compose 中的服务配置
type ServiceConfig struct {
	ContainerName string `yaml:"container_name,omitempty"`
}

// LoadComposeConfig 加载 docker-compose 配置文件
func LoadComposeConfig(configPath string) (*ComposeConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("compose file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading compose file: %w", err)
	}

	config := &ComposeConfig{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing compose file: %w", err)
	}

	if err := validateCompose(config); err != nil {
		return nil, fmt.Errorf("invalid compose configuration: %w", err)
	}

	return config, nil
}

// ContainerRef 返回 compose 服务对应的容器名; 未设置 container_name 时使用服务名
func (c *ComposeConfig) ContainerRef(service string) (string, bool) {
	svc, ok := c.Services[service]
	if !ok {
		return "", false
	}
	if svc.ContainerName != "" {
		return svc.ContainerName, true
	}
	return service, true
}

func validateCompose(config *ComposeConfig) error {
	if len(config.Services) == 0 {
		return fmt.Errorf("no services defined in compose file")
	}
	return nil
}
