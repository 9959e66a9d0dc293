package openai

import (
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/llm/providers/openaicompat"
)

// Provider 实现 OpenAI 生成后端.
type Provider struct {
	*openaicompat.Provider
}

// Config OpenAI 后端配置.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerSecond float64
}

// New 创建新的 OpenAI 提供者实例.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	return &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:      "openai",
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			DefaultModel:      cfg.Model,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger),
	}
}
