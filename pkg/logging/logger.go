// Package logging 提供基于 zerolog 的日志初始化。
//
// 各组件通过构造参数接收 zerolog.Logger，并用 Component 打上 component 字段，
// 不使用全局 logger。
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config 日志配置。
type Config struct {
	Level  string `koanf:"level"`  // trace / debug / info / warn / error，默认 info
	Format string `koanf:"format"` // json / console，默认 json
}

// New 根据配置创建 logger，输出到 stderr。
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter 便于测试时替换输出。
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	out := w
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component 返回带 component 字段的子 logger。
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
