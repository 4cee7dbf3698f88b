package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// 日志轮转默认值
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config 日志配置; File 为空时只输出到 stdout
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json 或 console
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New 根据配置构建 zap logger
func New(c Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
	}

	encoder, err := newEncoder(c.Format)
	if err != nil {
		return nil, err
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	if w := c.Writer(); w != nil {
		sinks = append(sinks, zapcore.AddSync(w))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// Writer 返回带轮转的文件 writer; 未配置文件时返回 nil
func (c Config) Writer() *lj.Logger {
	if c.File == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   filepath.Clean(c.File),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func newEncoder(format string) (zapcore.Encoder, error) {
	switch format {
	case "", "json":
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg), nil
	case "console":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
