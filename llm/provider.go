package llm

import (
	"context"
	"time"

	"github.com/BaSui01/roundtable/types"
)

// Role 消息角色.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 一条角色标注的上下文消息.
type Message struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// ChatRequest 一次同步生成请求.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// ChatResponse 生成结果. Usage 为可选的用量元数据; 上游未报告时为零值,
// 由调用方用估算器补齐.
type ChatResponse struct {
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model,omitempty"`
	Text      string           `json:"text"`
	Usage     types.TokenUsage `json:"usage,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// Provider 定义统一的生成能力接口. 失败以 *types.Error (CAPABILITY /
// UPSTREAM_TIMEOUT) 报告; 调度器依据错误码决定参与者状态迁移.
type Provider interface {
	// Completion 发起同步生成请求, 返回完整响应.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name 返回 Provider 的唯一标识.
	Name() string
}
