package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lancaster971/pilotproOS-sub003/internal/config"
	"github.com/lancaster971/pilotproOS-sub003/internal/logger"
)

var (
	v       = viper.New()
	cfgFile string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pilotpros-monitor",
		Short:         "Container fleet health monitor with bounded auto-recovery",
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	pf.String("registry", "services.yaml", "service registry file")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "json", "log format: json or console")
	_ = v.BindPFlag("registry.path", pf.Lookup("registry"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.format", pf.Lookup("log-format"))

	root.AddCommand(serveCmd(), checkCmd(), validateCmd())
	return root
}

// setup 加载配置并创建全局 logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating logger: %w", err)
	}

	// 替换全局logger
	zap.ReplaceGlobals(log)
	return cfg, log, nil
}
