// =============================================================================
// 📦 Roundtable 配置
// =============================================================================
// 统一配置加载: 默认值 → YAML 文件 → 环境变量覆盖
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config 是 roundtable 的完整配置结构.
type Config struct {
	// Database 数据库配置
	Database DatabaseConfig `yaml:"database"`
	// Redis 取消信号注册表的可选共享后端
	Redis RedisConfig `yaml:"redis"`
	// Dialogue 对话调度配置
	Dialogue DialogueConfig `yaml:"dialogue"`
	// Providers 生成后端配置
	Providers ProvidersConfig `yaml:"providers"`
	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// DatabaseConfig 数据库配置.
type DatabaseConfig struct {
	// 驱动: sqlite / postgres / mysql
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig Redis 配置. Enabled 为 false 时取消注册表使用进程内实现.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DialogueConfig 对话调度配置. 预算为 0 表示不限制.
type DialogueConfig struct {
	// 最大轮次
	MaxRounds int `yaml:"max_rounds"`
	// 单回合超时
	TurnTimeout time.Duration `yaml:"turn_timeout"`
	// 上下文 token 预算, 超出触发压缩
	ContextTokenLimit int `yaml:"context_token_limit"`
	// 会话级累计 token 预算
	SessionTokensInLimit  int `yaml:"session_tokens_in_limit"`
	SessionTokensOutLimit int `yaml:"session_tokens_out_limit"`
	// 会话级累计成本预算 (USD)
	SessionCostLimit float64 `yaml:"session_cost_limit"`
	// 压缩时保留的最近非系统消息条数
	CompressKeepTail int `yaml:"compress_keep_tail"`
	// 压缩摘要中每条消息片段的最大长度
	CompressSnippetLen int `yaml:"compress_snippet_len"`
	// 回合超时是否终止整个会话 (默认仅挂起该参与者)
	StopOnTimeout bool `yaml:"stop_on_timeout"`
	// 计数器: estimator / tiktoken
	Tokenizer string `yaml:"tokenizer"`
}

// ProvidersConfig 生成后端配置.
type ProvidersConfig struct {
	OpenAI   ProviderConfig `yaml:"openai"`
	DeepSeek ProviderConfig `yaml:"deepseek"`
	// Mock 本地确定性后端, 开发与测试用
	Mock bool `yaml:"mock"`
}

// ProviderConfig 单个生成后端配置.
type ProviderConfig struct {
	Enabled           bool    `yaml:"enabled"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LogConfig 日志配置.
type LogConfig struct {
	// 级别: debug / info / warn / error
	Level string `yaml:"level"`
	// 编码: json / console
	Encoding string `yaml:"encoding"`
}

// Default 返回默认配置.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "roundtable.db"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Dialogue: DialogueConfig{
			MaxRounds:          5,
			TurnTimeout:        60 * time.Second,
			ContextTokenLimit:  6000,
			CompressKeepTail:   10,
			CompressSnippetLen: 100,
			Tokenizer:          "estimator",
		},
		Log: LogConfig{Level: "info", Encoding: "json"},
	}
}

// Load 加载配置: 默认值, 可选 YAML 文件, 环境变量覆盖.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 应用环境变量覆盖, 前缀 ROUNDTABLE_.
func (c *Config) applyEnv() {
	setString(&c.Database.Driver, "ROUNDTABLE_DB_DRIVER")
	setString(&c.Database.DSN, "ROUNDTABLE_DB_DSN")
	setBool(&c.Redis.Enabled, "ROUNDTABLE_REDIS_ENABLED")
	setString(&c.Redis.Addr, "ROUNDTABLE_REDIS_ADDR")
	setString(&c.Redis.Password, "ROUNDTABLE_REDIS_PASSWORD")
	setInt(&c.Dialogue.MaxRounds, "ROUNDTABLE_MAX_ROUNDS")
	setDuration(&c.Dialogue.TurnTimeout, "ROUNDTABLE_TURN_TIMEOUT")
	setInt(&c.Dialogue.ContextTokenLimit, "ROUNDTABLE_CONTEXT_TOKEN_LIMIT")
	setString(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Providers.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.Providers.DeepSeek.APIKey, "DEEPSEEK_API_KEY")
	setString(&c.Providers.DeepSeek.Model, "DEEPSEEK_MODEL")
	setString(&c.Log.Level, "ROUNDTABLE_LOG_LEVEL")
}

func (c *Config) validate() error {
	if c.Dialogue.MaxRounds <= 0 {
		return fmt.Errorf("dialogue.max_rounds must be positive, got %d", c.Dialogue.MaxRounds)
	}
	if c.Dialogue.TurnTimeout <= 0 {
		return fmt.Errorf("dialogue.turn_timeout must be positive, got %s", c.Dialogue.TurnTimeout)
	}
	if c.Dialogue.CompressKeepTail < 0 {
		return fmt.Errorf("dialogue.compress_keep_tail must be non-negative")
	}
	return nil
}

// BuildLogger 按日志配置构建 zap logger.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if c.Log.Encoding == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
