package dialogue

import (
	"time"

	"github.com/BaSui01/roundtable/llm/tokenizer"
	"github.com/BaSui01/roundtable/types"
)

// LimitType names the specific budget a session breached.
type LimitType string

const (
	LimitTokensIn  LimitType = "tokens_in"
	LimitTokensOut LimitType = "tokens_out"
	LimitCost      LimitType = "cost"
	LimitContext   LimitType = "context"
)

// Totals 转写的累计用量.
type Totals struct {
	TokensIn      int
	TokensOut     int
	Cost          float64
	ContextTokens int
	Messages      int
}

// ComputeTotals 从完整转写计算累计用量与上下文规模估计.
// 上下文估计只计入内容非空的条目 (压缩清空的消息不再占上下文).
func ComputeTotals(msgs []types.Message, counter tokenizer.Tokenizer) Totals {
	var t Totals
	t.Messages = len(msgs)
	for _, m := range msgs {
		t.TokensIn += m.TokensIn
		t.TokensOut += m.TokensOut
		t.Cost += m.Cost
		if m.Content != "" {
			t.ContextTokens += counter.CountEntry(tokenizer.Entry{
				Role:    string(m.AuthorType),
				Content: m.Content,
			})
		}
	}
	return t
}

// Limits 会话启动时解析出的动态预算. 零值字段表示不限制.
type Limits struct {
	MaxRounds     int
	TurnTimeout   time.Duration
	ContextTokens int
	TokensIn      int
	TokensOut     int
	Cost          float64
}

// Breach returns the first cumulative budget the totals reached or
// exceeded. A breach is detected on >=, evaluated right after a message
// is persisted, never mid-turn. The context budget is not checked here:
// crossing it triggers compression first, and becomes a LimitContext
// stop only when compression cannot get back under the budget.
func (l Limits) Breach(t Totals) (LimitType, float64, bool) {
	if l.TokensIn > 0 && t.TokensIn >= l.TokensIn {
		return LimitTokensIn, float64(t.TokensIn), true
	}
	if l.TokensOut > 0 && t.TokensOut >= l.TokensOut {
		return LimitTokensOut, float64(t.TokensOut), true
	}
	if l.Cost > 0 && t.Cost >= l.Cost {
		return LimitCost, t.Cost, true
	}
	return "", 0, false
}

// ContextExceeded reports whether the context estimate exceeds the budget.
func (l Limits) ContextExceeded(t Totals) bool {
	return l.ContextTokens > 0 && t.ContextTokens > l.ContextTokens
}
