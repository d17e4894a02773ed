package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/hybridrec/pkg/logging"
)

// EnvPrefix 环境变量前缀：RECKIT_SERVER_ADDR -> server.addr
const EnvPrefix = "RECKIT_"

// ConfigPathEnvVar 可通过环境变量指定配置文件路径。
const ConfigPathEnvVar = "RECKIT_CONFIG"

// AppConfig 是 reckitd 进程配置。
// 优先级：环境变量 > 配置文件 > 默认值。
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  logging.Config `koanf:"logging"`
	Redis    RedisConfig    `koanf:"redis"`
	Feast    FeastConfig    `koanf:"feast"`
	Engine   EngineConfig   `koanf:"engine"`
	Signal   SignalConfig   `koanf:"signal"`
	Feedback FeedbackConfig `koanf:"feedback"`
	Model    ModelConfig    `koanf:"model"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// RedisConfig Enabled=false 时全部使用内存存储。
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr" validate:"required_if=Enabled true"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	// Prefix 反馈与行为日志的 key 前缀
	Prefix string `koanf:"prefix"`
}

type FeastConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Host     string        `koanf:"host" validate:"required_if=Enabled true"`
	Port     int           `koanf:"port" validate:"gte=0,lte=65535"`
	Project  string        `koanf:"project"`
	Entity   string        `koanf:"entity"`
	Features []string      `koanf:"features"`
	Timeout  time.Duration `koanf:"timeout"`
	// Token 非空时使用静态 Token 认证
	Token string `koanf:"token"`
}

type EngineConfig struct {
	DefaultLimit     int                `koanf:"default_limit" validate:"gt=0"`
	MaxLimit         int                `koanf:"max_limit" validate:"gtefield=DefaultLimit"`
	Overfetch        int                `koanf:"overfetch" validate:"gte=1"`
	GeneratorTimeout time.Duration      `koanf:"generator_timeout"`
	TrustWeights     map[string]float64 `koanf:"trust_weights"`
	// PipelineFile 为空时使用内置的 filter.catalog -> rerank.context_boost -> rerank.topn
	PipelineFile string `koanf:"pipeline_file"`
	// ContextRulesFile 上下文召回规则文件，为空使用内置规则
	ContextRulesFile string `koanf:"context_rules_file"`
	// CatalogFile 目录快照（JSON），为空时目录为空，只能产出空结果
	CatalogFile string `koanf:"catalog_file"`
}

type SignalConfig struct {
	HalfLife     time.Duration `koanf:"half_life" validate:"gt=0"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	CacheTTL     int           `koanf:"cache_ttl" validate:"gte=0"`
	WindowEvents int           `koanf:"window_events" validate:"gte=0"`
	WindowSpan   time.Duration `koanf:"window_span"`
}

type FeedbackConfig struct {
	AttributionWindow time.Duration `koanf:"attribution_window" validate:"gt=0"`
}

type ModelConfig struct {
	MaxAge        time.Duration `koanf:"max_age"`
	RefitInterval time.Duration `koanf:"refit_interval" validate:"gt=0"`
	Lookback      time.Duration `koanf:"lookback" validate:"gt=0"`
	MinExamples   int           `koanf:"min_examples" validate:"gte=1"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
		Redis: RedisConfig{
			Addr:   "127.0.0.1:6379",
			Prefix: "reckit",
		},
		Feast: FeastConfig{
			Port:    6566,
			Entity:  "user_id",
			Timeout: 100 * time.Millisecond,
		},
		Engine: EngineConfig{
			DefaultLimit:     10,
			MaxLimit:         50,
			Overfetch:        2,
			GeneratorTimeout: 500 * time.Millisecond,
		},
		Signal: SignalConfig{
			HalfLife:     7 * 24 * time.Hour,
			ReadTimeout:  300 * time.Millisecond,
			CacheTTL:     30,
			WindowEvents: 500,
			WindowSpan:   30 * 24 * time.Hour,
		},
		Feedback: FeedbackConfig{AttributionWindow: 30 * time.Minute},
		Model: ModelConfig{
			MaxAge:        72 * time.Hour,
			RefitInterval: time.Hour,
			Lookback:      7 * 24 * time.Hour,
			MinExamples:   50,
		},
	}
}

// Load 依次加载默认值、配置文件（path 为空时读取 RECKIT_CONFIG，仍为空则跳过）与环境变量，并校验。
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitSlice(k, "feast.features"); err != nil {
		return nil, err
	}

	cfg := &AppConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate 校验字段约束。
func (c *AppConfig) Validate() error {
	return validator.New().Struct(c)
}

// envTransform RECKIT_SIGNAL_CACHE_TTL -> signal.cache_ttl，只替换第一个下划线。
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.Replace(key, "_", ".", 1)
}

// splitSlice 环境变量里的逗号分隔字符串转为切片。
func splitSlice(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok || s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}
