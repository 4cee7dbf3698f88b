package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 例如 MONITOR_SERVER_PORT
const EnvPrefix = "MONITOR"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Registry RegistryConfig `mapstructure:"registry"`
	Log      LogConfig      `mapstructure:"log"`
	History  HistoryConfig  `mapstructure:"history"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type MonitorConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	BroadcastInterval   time.Duration `mapstructure:"broadcast_interval"`
	HealthCheckAttempts int           `mapstructure:"health_check_attempts"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	EventCapacity       int           `mapstructure:"event_capacity"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SetDefaults 写入默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 14264)
	v.SetDefault("server.password", "")
	v.SetDefault("monitor.poll_interval", 30*time.Second)
	v.SetDefault("monitor.broadcast_interval", 5*time.Second)
	v.SetDefault("monitor.health_check_attempts", 5)
	v.SetDefault("monitor.health_check_interval", 2*time.Second)
	v.SetDefault("monitor.event_capacity", 100)
	v.SetDefault("registry.path", "services.yaml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("history.dsn", "")
	v.SetDefault("metrics.enabled", true)
}

// LoadConfig 读取配置: 默认值 -> 配置文件 -> 环境变量 -> 已绑定的命令行参数
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.BroadcastInterval <= 0 {
		return fmt.Errorf("monitor.broadcast_interval must be positive")
	}
	if c.Monitor.HealthCheckAttempts <= 0 {
		return fmt.Errorf("monitor.health_check_attempts must be positive")
	}
	if c.Monitor.HealthCheckInterval < 0 {
		return fmt.Errorf("monitor.health_check_interval must not be negative")
	}
	if c.Monitor.EventCapacity <= 0 {
		return fmt.Errorf("monitor.event_capacity must be positive")
	}
	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path is required")
	}
	return nil
}
