package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken 为 OpenAI 系模型提供精确计数. 编码懒初始化 (首次使用时可能
// 下载词表); 初始化失败时回退到字符估算器, 计数接口不报错.
type Tiktoken struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
	fallback *Estimator
}

// modelEncodings 将模型名称前缀映射到 tiktoken 编码.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
	"deepseek":      "cl100k_base",
}

// NewTiktoken 为给定模型创建 tiktoken 计数器, 未知模型默认 cl100k_base.
func NewTiktoken(model string) *Tiktoken {
	encoding := "cl100k_base"
	if enc, ok := modelEncodings[model]; ok {
		encoding = enc
	} else {
		for prefix, enc := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				encoding = enc
				break
			}
		}
	}
	return &Tiktoken{encoding: encoding, fallback: NewEstimator()}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Tiktoken) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) CountEntry(entry Entry) int {
	if entry.Content == "" {
		return 0
	}
	return t.CountTokens(entry.Content) + entryOverhead
}

func (t *Tiktoken) CountEntries(entries []Entry) int {
	total := 0
	for _, entry := range entries {
		total += t.CountEntry(entry)
	}
	return total
}

func (t *Tiktoken) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
