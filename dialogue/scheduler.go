package dialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/cancel"
	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/internal/metrics"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/tokenizer"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// Scheduler 驱动圆桌会话: 会话内回合严格串行, 不同会话可并发运行.
// 唯一跨会话共享的可变状态是注入的取消注册表.
type Scheduler struct {
	store      store.Store
	providers  *llm.ProviderRegistry
	registry   cancel.Registry
	counter    tokenizer.Tokenizer
	compressor *Compressor
	cfg        config.DialogueConfig
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewScheduler 装配调度器. 所有依赖显式注入, 包括取消注册表.
func NewScheduler(st store.Store, providers *llm.ProviderRegistry, registry cancel.Registry, counter tokenizer.Tokenizer, cfg config.DialogueConfig, collector *metrics.Collector, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:      st,
		providers:  providers,
		registry:   registry,
		counter:    counter,
		compressor: NewCompressor(st, counter, cfg.CompressKeepTail, cfg.CompressSnippetLen, collector, logger),
		cfg:        cfg,
		metrics:    collector,
		logger:     logger.With(zap.String("component", "scheduler")),
	}
}

// CreateSession 建立会话聚合: 会话行, 每个已注册 Provider 一个参与者
// (按注册顺序编号, 轮流配对人设), 以及作为首条消息的议题.
// 新会话处于 created 状态, 不执行任何回合, 等待 StartSession.
// maxRounds 为 0 时取配置默认值.
func (s *Scheduler) CreateSession(ctx context.Context, userID int64, topic string, maxRounds int) (*types.Session, error) {
	if topic == "" {
		return nil, types.NewError(types.ErrConfiguration, "topic must not be empty")
	}
	names := s.providers.Names()
	if len(names) == 0 {
		return nil, types.NewError(types.ErrConfiguration, "no providers registered")
	}
	personas, err := s.store.ListPersonas(ctx)
	if err != nil {
		return nil, err
	}
	if len(personas) == 0 {
		return nil, types.NewError(types.ErrConfiguration, "no personas available")
	}
	if maxRounds <= 0 {
		maxRounds = s.cfg.MaxRounds
	}

	sess := &types.Session{
		UserID:    userID,
		Topic:     topic,
		Status:    types.SessionCreated,
		MaxRounds: maxRounds,
	}
	participants := make([]types.Participant, len(names))
	for i, name := range names {
		participants[i] = types.Participant{
			Provider:   name,
			PersonaID:  personas[i%len(personas)].ID,
			OrderIndex: i,
			Status:     types.ParticipantActive,
		}
	}
	opening := &types.Message{
		AuthorType: types.AuthorUser,
		AuthorName: "user",
		Content:    fmt.Sprintf("Discussion topic: %s", topic),
	}
	// 会话行, 参与者与开场消息一个事务落盘, 避免半成品会话.
	if err := s.store.CreateSessionAggregate(ctx, sess, participants, opening); err != nil {
		return nil, err
	}

	s.store.AppendAudit(ctx, "scheduler", "session_created", map[string]any{
		"session_id":   sess.ID,
		"participants": len(participants),
	})
	s.logger.Info("session created",
		zap.Uint64("session_id", sess.ID),
		zap.Int("participants", len(participants)))

	return s.store.GetSession(ctx, sess.ID)
}

// StopSession 请求停止会话. 幂等: 已终态的会话是 no-op; 运行中的会话
// 通过取消注册表通知回合循环, 由循环负责落盘 stopped 状态.
func (s *Scheduler) StopSession(ctx context.Context, sessionID uint64, reason string) error {
	status, err := s.store.GetSessionStatus(ctx, sessionID)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return nil
	}

	if err := s.registry.Stop(ctx, sessionID, reason); err != nil {
		return err
	}
	if status == types.SessionCreated {
		// 没有回合循环在跑: 直接落盘并清掉信号, 避免之后重启被陈旧信号拦下.
		s.finish(ctx, sessionID, types.SessionStopped, map[string]any{"reason": reason})
		s.registry.Release(sessionID)
	}
	s.logger.Info("stop requested",
		zap.Uint64("session_id", sessionID),
		zap.String("reason", reason))
	return nil
}

// StartSession 同步驱动会话直到终态并返回最终的会话状态. created 与
// stopped 的会话可以 (重新) 启动并从已持久化的轮次续跑; running 以及
// finished/failed 返回 INVALID_TRANSITION. progress 可为 nil.
func (s *Scheduler) StartSession(ctx context.Context, sessionID uint64, progress ProgressFunc) (*types.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case types.SessionCreated, types.SessionStopped:
	default:
		return nil, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot start session in status %s", sess.Status))
	}

	runCtx, err := s.registry.Begin(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer s.registry.Release(sessionID)

	if err := s.store.UpdateSessionStatus(ctx, sessionID, types.SessionRunning, nil); err != nil {
		return nil, err
	}
	sess.Status = types.SessionRunning

	// 每次启动分配一个运行标识, 便于把重启后的日志与审计关联到同一会话.
	runID := uuid.NewString()
	s.store.AppendAudit(ctx, "scheduler", "session_started", map[string]any{
		"session_id": sessionID,
		"run_id":     runID,
		"round":      sess.CurrentRound,
	})
	s.metrics.SessionStarted()

	var sink *progressSink
	if progress != nil {
		sink = newProgressSink(progress, s.logger)
	}
	defer sink.close()

	limits := resolveLimits(ctx, s.store, s.cfg, sess.MaxRounds, s.logger)
	s.logger.Info("session running",
		zap.Uint64("session_id", sessionID),
		zap.String("run_id", runID),
		zap.Int("max_rounds", limits.MaxRounds),
		zap.Int("from_round", sess.CurrentRound))

	runErr := s.run(ctx, runCtx, sess, limits, sink)
	final, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return final, runErr
}

// run 回合循环: 按 OrderIndex 升序轮询 active 参与者, 每轮结束落盘
// 轮次进度. 每个回合开始前观察取消信号并与持久化状态对账.
func (s *Scheduler) run(ctx, runCtx context.Context, sess *types.Session, limits Limits, sink *progressSink) error {
	tracker := newRepeatTracker()
	msgs := sess.Messages

	for round := sess.CurrentRound + 1; round <= limits.MaxRounds; round++ {
		for i := range sess.Participants {
			p := &sess.Participants[i]
			if p.Status != types.ParticipantActive {
				continue
			}
			if runCtx.Err() != nil {
				return s.stopRun(ctx, sess.ID, runCtx)
			}
			// 每回合前与持久化状态对账: 外部直接改写状态时让位.
			if status, err := s.store.GetSessionStatus(ctx, sess.ID); err == nil && status != types.SessionRunning {
				s.logger.Warn("persisted status changed externally, yielding",
					zap.Uint64("session_id", sess.ID),
					zap.String("status", string(status)))
				return nil
			}

			res, err := s.executeTurn(runCtx, sess, p, msgs, limits, tracker)
			if err != nil {
				if runCtx.Err() != nil {
					return s.stopRun(ctx, sess.ID, runCtx)
				}
				s.finish(ctx, sess.ID, types.SessionFailed, map[string]any{"error": err.Error()})
				return err
			}
			if res.stop != "" {
				s.finish(ctx, sess.ID, types.SessionStopped, map[string]any{"reason": res.stop})
				return nil
			}
			if res.outcome != outcomePersisted {
				if !anyActive(sess.Participants) {
					s.finish(ctx, sess.ID, types.SessionFinished, map[string]any{"reason": "no active participants"})
					return nil
				}
				continue
			}

			msgs = append(msgs, *res.msg)
			sink.publish(res.msg, round)

			totals := ComputeTotals(msgs, s.counter)
			if limit, value, breached := limits.Breach(totals); breached {
				s.logger.Info("session budget reached",
					zap.Uint64("session_id", sess.ID),
					zap.String("limit", string(limit)),
					zap.Float64("value", value))
				s.store.AppendAudit(ctx, "scheduler", "limit_exceeded", map[string]any{
					"session_id": sess.ID,
					"limit":      string(limit),
					"value":      value,
				})
				s.finish(ctx, sess.ID, types.SessionStopped, map[string]any{
					"limit": string(limit),
					"value": value,
				})
				return nil
			}
			if limits.ContextExceeded(totals) {
				under, err := s.compact(ctx, sess.ID, limits)
				if err != nil {
					s.finish(ctx, sess.ID, types.SessionFailed, map[string]any{"error": err.Error()})
					return err
				}
				if !under {
					s.store.AppendAudit(ctx, "scheduler", "limit_exceeded", map[string]any{
						"session_id": sess.ID,
						"limit":      string(LimitContext),
						"value":      float64(totals.ContextTokens),
					})
					s.finish(ctx, sess.ID, types.SessionStopped, map[string]any{
						"limit": string(LimitContext),
						"value": float64(totals.ContextTokens),
					})
					return nil
				}
				if msgs, err = s.store.ListMessages(ctx, sess.ID); err != nil {
					s.finish(ctx, sess.ID, types.SessionFailed, map[string]any{"error": err.Error()})
					return err
				}
			}
		}

		if err := s.store.SetCurrentRound(ctx, sess.ID, round); err != nil {
			s.finish(ctx, sess.ID, types.SessionFailed, map[string]any{"error": err.Error()})
			return err
		}
		sess.CurrentRound = round

		if !anyActive(sess.Participants) {
			s.finish(ctx, sess.ID, types.SessionFinished, map[string]any{"reason": "no active participants"})
			return nil
		}
	}

	s.finish(ctx, sess.ID, types.SessionFinished, map[string]any{"rounds": sess.CurrentRound})
	return nil
}

// compact 触发压缩并报告是否回到预算内.
func (s *Scheduler) compact(ctx context.Context, sessionID uint64, limits Limits) (bool, error) {
	_, under, err := s.compressor.Compress(ctx, sessionID, limits.ContextTokens)
	return under, err
}

// stopRun 把取消信号折算为 stopped 终态.
func (s *Scheduler) stopRun(ctx context.Context, sessionID uint64, runCtx context.Context) error {
	reason := "stopped"
	if r, ok := s.registry.Reason(sessionID); ok && r != "" {
		reason = r
	} else if cause := context.Cause(runCtx); cause != nil {
		reason = cause.Error()
	}
	s.finish(ctx, sessionID, types.SessionStopped, map[string]any{"reason": reason})
	return nil
}

// finish 先落审计再落终态, 保证状态翻转之前原因已留痕.
// 落盘失败记日志但不再升级, 此时会话留在 running, 由下一次对账或人工处理兜底.
func (s *Scheduler) finish(ctx context.Context, sessionID uint64, status types.SessionStatus, meta map[string]any) {
	action := "session_finished"
	switch status {
	case types.SessionStopped:
		action = "session_stopped"
	case types.SessionFailed:
		action = "session_failed"
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["session_id"] = sessionID
	s.store.AppendAudit(ctx, "scheduler", action, meta)

	now := time.Now()
	if err := s.store.UpdateSessionStatus(ctx, sessionID, status, &now); err != nil {
		s.logger.Error("failed to persist terminal status",
			zap.Uint64("session_id", sessionID),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	s.metrics.SessionFinished(string(status))
	s.logger.Info("session reached terminal status",
		zap.Uint64("session_id", sessionID),
		zap.String("status", string(status)))
}

func anyActive(participants []types.Participant) bool {
	for _, p := range participants {
		if p.Status == types.ParticipantActive {
			return true
		}
	}
	return false
}
