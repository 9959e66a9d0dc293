package dialogue

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/internal/metrics"
	"github.com/BaSui01/roundtable/llm/tokenizer"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// summaryAuthor 压缩产生的合成消息的作者名.
const summaryAuthor = "summary"

// Compressor 在上下文估计超出预算时压缩转写: 保留最近 keepTail 条
// 非系统消息, 将更早的非空非系统消息截断为片段拼成一条合成系统消息,
// 然后清空原消息内容并归零其 token 计数. 消息只清空, 绝不删除,
// 因此转写的条数与顺序不变.
type Compressor struct {
	store      store.Store
	counter    tokenizer.Tokenizer
	keepTail   int
	snippetLen int
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewCompressor 创建转写压缩器. keepTail 与 snippetLen 取自静态配置.
func NewCompressor(st store.Store, counter tokenizer.Tokenizer, keepTail, snippetLen int, collector *metrics.Collector, logger *zap.Logger) *Compressor {
	return &Compressor{
		store:      st,
		counter:    counter,
		keepTail:   keepTail,
		snippetLen: snippetLen,
		metrics:    collector,
		logger:     logger.With(zap.String("component", "compressor")),
	}
}

// Compress 反复压缩直到上下文估计回到预算之内. 每通过一轮仍超预算时
// 将保留尾巴减半 (最少 1 条) 再压一轮; 某一轮没有可压缩消息时停止.
// 返回执行的压缩轮数与最终是否回到预算内.
func (c *Compressor) Compress(ctx context.Context, sessionID uint64, budget int) (int, bool, error) {
	limits := Limits{ContextTokens: budget}
	keep := c.keepTail
	passes := 0

	for {
		msgs, err := c.store.ListMessages(ctx, sessionID)
		if err != nil {
			return passes, false, err
		}
		totals := ComputeTotals(msgs, c.counter)
		if !limits.ContextExceeded(totals) {
			return passes, true, nil
		}

		compacted, err := c.pass(ctx, sessionID, msgs, keep)
		if err != nil {
			return passes, false, err
		}
		if compacted == 0 {
			c.logger.Warn("transcript still over context budget",
				zap.Uint64("session_id", sessionID),
				zap.Int("context_tokens", totals.ContextTokens),
				zap.Int("budget", budget))
			return passes, false, nil
		}

		passes++
		c.metrics.CompressionObserved()
		c.logger.Info("transcript compressed",
			zap.Uint64("session_id", sessionID),
			zap.Int("messages", compacted),
			zap.Int("keep_tail", keep))

		if keep > 1 {
			keep /= 2
		}
	}
}

// pass 执行一次压缩: 选出保留尾巴之前的非空非系统消息, 追加摘要,
// 再清空原消息. 返回被压缩的消息条数.
func (c *Compressor) pass(ctx context.Context, sessionID uint64, msgs []types.Message, keep int) (int, error) {
	// 从尾部往前数 keep 条非系统消息, 其余为候选.
	cutoff := len(msgs)
	seen := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].AuthorType == types.AuthorSystem {
			continue
		}
		seen++
		if seen == keep {
			cutoff = i
			break
		}
	}
	if seen < keep {
		cutoff = 0
	}

	var (
		ids      []uint64
		snippets []string
	)
	for _, m := range msgs[:cutoff] {
		if m.AuthorType == types.AuthorSystem || m.Content == "" {
			continue
		}
		ids = append(ids, m.ID)
		snippets = append(snippets, fmt.Sprintf("%s: %s", m.AuthorName, truncate(m.Content, c.snippetLen)))
	}
	if len(ids) == 0 {
		return 0, nil
	}

	summary := &types.Message{
		SessionID:  sessionID,
		AuthorType: types.AuthorSystem,
		AuthorName: summaryAuthor,
		Content:    "Summary of earlier discussion:\n" + strings.Join(snippets, "\n"),
	}
	if err := c.store.AppendMessage(ctx, summary); err != nil {
		return 0, err
	}
	if err := c.store.BlankMessages(ctx, ids); err != nil {
		return 0, err
	}
	c.store.AppendAudit(ctx, "scheduler", "history_compressed", map[string]any{
		"session_id": sessionID,
		"messages":   len(ids),
	})
	return len(ids), nil
}

// truncate 按字符截断片段, 注意不切断多字节字符.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
