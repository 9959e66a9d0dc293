package deepseek

import (
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/llm/providers/openaicompat"
)

// Provider 实现 DeepSeek 生成后端.
// DeepSeek 使用 OpenAI 兼容的 API 格式.
type Provider struct {
	*openaicompat.Provider
}

// Config DeepSeek 后端配置.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerSecond float64
}

// New 创建新的 DeepSeek 提供者实例.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}

	return &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName: "deepseek",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			// DeepSeek 的 chat 端点不带 /v1 前缀.
			EndpointPath:      "/chat/completions",
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger),
	}
}
