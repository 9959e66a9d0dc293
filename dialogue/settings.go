package dialogue

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/store"
)

// 动态设置键. 会话启动时解析一次, 运行中途的修改对已运行会话不生效.
const (
	settingMaxRounds         = "max_rounds"
	settingTurnTimeoutSec    = "turn_timeout_sec"
	settingContextTokenLimit = "context_token_limit"
	settingTokensInLimit     = "session_tokens_in_limit"
	settingTokensOutLimit    = "session_tokens_out_limit"
	settingCostLimit         = "session_cost_limit"
)

// resolveLimits 合并静态配置与动态设置得到本次运行的预算. 优先级:
// 设置表 > 会话自带的轮次预算 > 配置默认值; 解析失败回落并记一条 warn.
func resolveLimits(ctx context.Context, st store.Store, cfg config.DialogueConfig, sessionMaxRounds int, logger *zap.Logger) Limits {
	if sessionMaxRounds <= 0 {
		sessionMaxRounds = cfg.MaxRounds
	}
	l := Limits{
		MaxRounds:     sessionMaxRounds,
		TurnTimeout:   cfg.TurnTimeout,
		ContextTokens: cfg.ContextTokenLimit,
		TokensIn:      cfg.SessionTokensInLimit,
		TokensOut:     cfg.SessionTokensOutLimit,
		Cost:          cfg.SessionCostLimit,
	}

	readInt := func(key string, dst *int) {
		raw, ok, err := st.GetSetting(ctx, key)
		if err != nil || !ok {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			logger.Warn("ignoring invalid setting",
				zap.String("key", key),
				zap.String("value", raw))
			return
		}
		*dst = n
	}

	readInt(settingMaxRounds, &l.MaxRounds)
	readInt(settingContextTokenLimit, &l.ContextTokens)
	readInt(settingTokensInLimit, &l.TokensIn)
	readInt(settingTokensOutLimit, &l.TokensOut)

	if raw, ok, err := st.GetSetting(ctx, settingTurnTimeoutSec); err == nil && ok {
		if sec, err := strconv.Atoi(raw); err == nil && sec > 0 {
			l.TurnTimeout = time.Duration(sec) * time.Second
		} else {
			logger.Warn("ignoring invalid setting",
				zap.String("key", settingTurnTimeoutSec),
				zap.String("value", raw))
		}
	}

	if raw, ok, err := st.GetSetting(ctx, settingCostLimit); err == nil && ok {
		if cost, err := strconv.ParseFloat(raw, 64); err == nil && cost >= 0 {
			l.Cost = cost
		} else {
			logger.Warn("ignoring invalid setting",
				zap.String("key", settingCostLimit),
				zap.String("value", raw))
		}
	}

	return l
}
