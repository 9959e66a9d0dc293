package cancel

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// stopKeyTTL 停止标志在 Redis 中的保留时长, 防止孤儿键堆积.
const stopKeyTTL = 24 * time.Hour

// Redis is a Registry backed by a shared Redis instance, for deployments
// where the stop request may land on a different process than the one
// driving the round loop. A watcher goroutine per run polls the stop flag
// and cancels the local context when it appears.
type Redis struct {
	client   *redis.Client
	prefix   string
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	runs map[uint64]*memoryRun
}

// NewRedis creates a Redis-backed registry. A zero pollInterval defaults
// to 500ms.
func NewRedis(client *redis.Client, pollInterval time.Duration, logger *zap.Logger) *Redis {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client:   client,
		prefix:   "roundtable:stop:",
		interval: pollInterval,
		logger:   logger.With(zap.String("component", "cancel_registry")),
		runs:     make(map[uint64]*memoryRun),
	}
}

func (r *Redis) key(sessionID uint64) string {
	return r.prefix + strconv.FormatUint(sessionID, 10)
}

func (r *Redis) Begin(parent context.Context, sessionID uint64) (context.Context, error) {
	r.mu.Lock()
	if run, ok := r.runs[sessionID]; ok && run.ctx != nil {
		r.mu.Unlock()
		return run.ctx, nil
	}
	ctx, cancelCause := context.WithCancelCause(parent)
	run := &memoryRun{ctx: ctx, cancel: cancelCause}
	r.runs[sessionID] = run
	r.mu.Unlock()

	// A flag set before the run began must be observed immediately.
	if reason, err := r.client.Get(ctx, r.key(sessionID)).Result(); err == nil {
		r.markStopped(sessionID, reason)
		return ctx, nil
	}

	go r.watch(ctx, sessionID)
	return ctx, nil
}

// watch polls the stop flag until it appears or the run context ends.
func (r *Redis) watch(ctx context.Context, sessionID uint64) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reason, err := r.client.Get(ctx, r.key(sessionID)).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				r.logger.Warn("stop flag poll failed",
					zap.Uint64("session_id", sessionID), zap.Error(err))
				continue
			}
			r.markStopped(sessionID, reason)
			return
		}
	}
}

func (r *Redis) markStopped(sessionID uint64, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[sessionID]
	if !ok || run.stopped {
		return
	}
	run.stopped = true
	run.reason = reason
	if run.cancel != nil {
		run.cancel(stopCause(reason))
	}
}

func (r *Redis) Stop(ctx context.Context, sessionID uint64, reason string) error {
	if err := r.client.Set(ctx, r.key(sessionID), reason, stopKeyTTL).Err(); err != nil {
		return err
	}
	r.markStopped(sessionID, reason)
	return nil
}

func (r *Redis) Reason(sessionID uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[sessionID]; ok && run.stopped {
		return run.reason, true
	}
	return "", false
}

func (r *Redis) Release(sessionID uint64) {
	r.mu.Lock()
	run, ok := r.runs[sessionID]
	if ok {
		if run.cancel != nil {
			run.cancel(stopCause("released"))
		}
		delete(r.runs, sessionID)
	}
	r.mu.Unlock()

	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		r.logger.Warn("stop flag cleanup failed",
			zap.Uint64("session_id", sessionID), zap.Error(err))
	}
}

