package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/tokenizer"
	"github.com/BaSui01/roundtable/types"
)

// turnOutcome 单个回合的四种结局.
type turnOutcome string

const (
	outcomePersisted turnOutcome = "persisted"
	outcomeSkipped   turnOutcome = "skipped"
	outcomeRemoved   turnOutcome = "removed"
	outcomeSuspended turnOutcome = "suspended"
)

// turnResult 回合执行结果. msg 仅在 outcomePersisted 时非空;
// stop 非空表示整个会话应当以该原因停止.
type turnResult struct {
	outcome turnOutcome
	msg     *types.Message
	stop    string
}

// authorName 生成消息作者名: 能力标识加人设头衔.
func authorName(provider string, persona types.Persona) string {
	return fmt.Sprintf("%s as %s", provider, persona.Title)
}

// buildPrompt 为一个参与者构造提示: 人设系统消息在前, 其后是按原始
// 顺序角色标注的转写 (压缩清空的消息跳过).
func buildPrompt(topic string, persona types.Persona, msgs []types.Message) []llm.Message {
	system := fmt.Sprintf("Discussion topic: %s. Instructions: %s.", topic, persona.Instructions)
	if persona.Style != "" {
		system += fmt.Sprintf(" Style: %s.", persona.Style)
	}

	prompt := make([]llm.Message, 0, len(msgs)+1)
	prompt = append(prompt, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		role := llm.RoleUser
		switch m.AuthorType {
		case types.AuthorSystem:
			role = llm.RoleSystem
		case types.AuthorModel:
			role = llm.RoleAssistant
		}
		prompt = append(prompt, llm.Message{Role: role, Name: m.AuthorName, Content: m.Content})
	}
	return prompt
}

// executeTurn 执行一个参与者的回合. 所有持久化失败以 error 返回,
// 由回合循环将会话标记为 failed; 其余失败都折算为回合结局.
func (s *Scheduler) executeTurn(ctx context.Context, sess *types.Session, p *types.Participant, msgs []types.Message, limits Limits, tracker *repeatTracker) (turnResult, error) {
	logger := s.logger.With(
		zap.Uint64("session_id", sess.ID),
		zap.Uint64("participant_id", p.ID),
		zap.String("provider", p.Provider))

	provider, ok := s.providers.Get(p.Provider)
	if !ok {
		logger.Warn("provider not registered, suspending participant")
		if err := s.suspend(ctx, sess.ID, p, "provider not registered"); err != nil {
			return turnResult{}, err
		}
		return turnResult{outcome: outcomeSuspended}, nil
	}

	prompt := buildPrompt(sess.Topic, p.Persona, msgs)
	turnCtx, cancel := context.WithTimeout(ctx, limits.TurnTimeout)
	defer cancel()

	started := time.Now()
	resp, err := provider.Completion(turnCtx, &llm.ChatRequest{Messages: prompt})
	elapsed := time.Since(started).Seconds()

	// 外部停止优先于回合自身的结果: 停止后不再持久化任何消息.
	if ctx.Err() != nil {
		return turnResult{}, context.Cause(ctx)
	}

	if err != nil {
		if types.IsCode(err, types.ErrUpstreamTimeout) && s.cfg.StopOnTimeout {
			logger.Warn("turn timed out, stopping session", zap.Error(err))
			if serr := s.suspend(ctx, sess.ID, p, err.Error()); serr != nil {
				return turnResult{}, serr
			}
			s.metrics.TurnObserved(p.Provider, string(outcomeSuspended), elapsed)
			return turnResult{outcome: outcomeSuspended, stop: "turn timeout"}, nil
		}
		logger.Warn("turn failed, suspending participant", zap.Error(err))
		if serr := s.suspend(ctx, sess.ID, p, err.Error()); serr != nil {
			return turnResult{}, serr
		}
		s.metrics.TurnObserved(p.Provider, string(outcomeSuspended), elapsed)
		return turnResult{outcome: outcomeSuspended}, nil
	}

	reply := strings.TrimSpace(resp.Text)
	if reply == "" || tracker.isRepeat(p.ID, reply) {
		strikes := tracker.strike(p.ID)
		if strikes >= maxStrikes {
			logger.Info("participant removed after repeated empty or duplicate replies",
				zap.Int("strikes", strikes))
			if err := s.remove(ctx, sess.ID, p, strikes); err != nil {
				return turnResult{}, err
			}
			s.metrics.TurnObserved(p.Provider, string(outcomeRemoved), elapsed)
			return turnResult{outcome: outcomeRemoved}, nil
		}
		logger.Info("turn skipped", zap.Int("strikes", strikes))
		s.metrics.TurnObserved(p.Provider, string(outcomeSkipped), elapsed)
		return turnResult{outcome: outcomeSkipped}, nil
	}
	tracker.accept(p.ID, reply)

	usage := resp.Usage
	if !usage.Reported() {
		// 能力未报告用量时估算: 输入按完整提示计, 输出按回复计.
		entries := make([]tokenizer.Entry, 0, len(prompt))
		for _, pm := range prompt {
			entries = append(entries, tokenizer.Entry{Role: string(pm.Role), Content: pm.Content})
		}
		usage.PromptTokens = s.counter.CountEntries(entries)
		usage.CompletionTokens = s.counter.CountTokens(reply)
	}

	msg := &types.Message{
		SessionID:  sess.ID,
		AuthorType: types.AuthorModel,
		AuthorName: authorName(p.Provider, p.Persona),
		Content:    reply,
		TokensIn:   usage.PromptTokens,
		TokensOut:  usage.CompletionTokens,
		Cost:       usage.Cost,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return turnResult{}, err
	}
	s.store.AppendAudit(ctx, "scheduler", "message_posted", map[string]any{
		"session_id": sess.ID,
		"author":     msg.AuthorName,
		"tokens_out": msg.TokensOut,
	})
	s.metrics.TurnObserved(p.Provider, string(outcomePersisted), elapsed)
	s.metrics.UsageObserved(msg.TokensIn, msg.TokensOut, msg.Cost)
	logger.Debug("turn persisted",
		zap.Int("tokens_in", msg.TokensIn),
		zap.Int("tokens_out", msg.TokensOut))
	return turnResult{outcome: outcomePersisted, msg: msg}, nil
}

// suspend 挂起参与者并记审计. 挂起是单向的, 本会话内不再恢复.
func (s *Scheduler) suspend(ctx context.Context, sessionID uint64, p *types.Participant, reason string) error {
	p.Status = types.ParticipantSuspended
	if err := s.store.UpdateParticipantStatus(ctx, p.ID, types.ParticipantSuspended); err != nil {
		return err
	}
	s.store.AppendAudit(ctx, "scheduler", "participant_failed", map[string]any{
		"session_id":     sessionID,
		"participant_id": p.ID,
		"provider":       p.Provider,
		"reason":         reason,
	})
	return nil
}

// remove 移除参与者并记审计.
func (s *Scheduler) remove(ctx context.Context, sessionID uint64, p *types.Participant, strikes int) error {
	p.Status = types.ParticipantRemoved
	if err := s.store.UpdateParticipantStatus(ctx, p.ID, types.ParticipantRemoved); err != nil {
		return err
	}
	s.store.AppendAudit(ctx, "scheduler", "participant_removed", map[string]any{
		"session_id":     sessionID,
		"participant_id": p.ID,
		"provider":       p.Provider,
		"strikes":        strikes,
	})
	return nil
}
