// Package cancel 提供每个运行中会话一个取消信号的注册表.
// 注册表是显式注入的对象, 绝不是隐藏的包级全局量; 由装配调度器的
// 组件持有. 信号创建与触发均幂等, 会话终止后释放.
package cancel

import (
	"context"
	"sync"

	"github.com/BaSui01/roundtable/types"
)

// Registry maps a running session id to a cancellation signal. The scheduler
// derives its run context through Begin and observes it at every natural
// check-point; an external stop request only has to call Stop.
type Registry interface {
	// Begin get-or-creates the signal for sessionID and returns a context
	// derived from parent that is cancelled when the signal fires.
	// Calling Begin again for a live run returns the same run's context.
	Begin(parent context.Context, sessionID uint64) (context.Context, error)

	// Stop fires the signal. Idempotent; a missing entry records the stop
	// so a later Begin observes it immediately.
	Stop(ctx context.Context, sessionID uint64, reason string) error

	// Reason returns the stop reason, if the signal has fired.
	Reason(sessionID uint64) (string, bool)

	// Release clears the entry once the owning run reached a terminal
	// state. Future observers see no signal.
	Release(sessionID uint64)
}

type memoryRun struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	stopped bool
	reason  string
}

// Memory is the in-process Registry implementation: a mutex-guarded table,
// safe for concurrent sessions.
type Memory struct {
	mu   sync.Mutex
	runs map[uint64]*memoryRun
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{runs: make(map[uint64]*memoryRun)}
}

func (m *Memory) Begin(parent context.Context, sessionID uint64) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run, ok := m.runs[sessionID]; ok && run.ctx != nil {
		return run.ctx, nil
	}

	ctx, cancelCause := context.WithCancelCause(parent)
	run := &memoryRun{ctx: ctx, cancel: cancelCause}
	if prev, ok := m.runs[sessionID]; ok && prev.stopped {
		// Stop arrived before the loop started: the new run must observe it.
		run.stopped = true
		run.reason = prev.reason
		cancelCause(stopCause(prev.reason))
	}
	m.runs[sessionID] = run
	return ctx, nil
}

func (m *Memory) Stop(_ context.Context, sessionID uint64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[sessionID]
	if !ok {
		m.runs[sessionID] = &memoryRun{stopped: true, reason: reason}
		return nil
	}
	if run.stopped {
		return nil
	}
	run.stopped = true
	run.reason = reason
	if run.cancel != nil {
		run.cancel(stopCause(reason))
	}
	return nil
}

func (m *Memory) Reason(sessionID uint64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[sessionID]; ok && run.stopped {
		return run.reason, true
	}
	return "", false
}

func (m *Memory) Release(sessionID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[sessionID]; ok {
		if run.cancel != nil {
			run.cancel(stopCause("released"))
		}
		delete(m.runs, sessionID)
	}
}

func stopCause(reason string) error {
	return types.NewError(types.ErrCancelled, reason)
}
