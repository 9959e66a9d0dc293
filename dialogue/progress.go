package dialogue

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/types"
)

// ProgressFunc 在每条消息持久化之后按持久化顺序被调用.
// 回调在专用 goroutine 上执行, 绝不阻塞回合循环.
type ProgressFunc func(msg *types.Message, round int)

// progressDrainTimeout 运行结束时等待回调消费完剩余事件的上限.
const progressDrainTimeout = 2 * time.Second

type progressEvent struct {
	msg   *types.Message
	round int
}

// progressSink 把进度事件从回合循环解耦到单个消费 goroutine.
// 缓冲满时丢弃事件并记 warn, 而不是拖慢回合.
type progressSink struct {
	fn     ProgressFunc
	ch     chan progressEvent
	done   chan struct{}
	logger *zap.Logger
}

func newProgressSink(fn ProgressFunc, logger *zap.Logger) *progressSink {
	s := &progressSink{
		fn:     fn,
		ch:     make(chan progressEvent, 16),
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(s.done)
		for ev := range s.ch {
			s.deliver(ev)
		}
	}()
	return s
}

// deliver 调用回调并吸收其 panic: 消费者的错误不影响回合循环.
func (s *progressSink) deliver(ev progressEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("progress callback panicked", zap.Any("panic", r))
		}
	}()
	s.fn(ev.msg, ev.round)
}

func (s *progressSink) publish(msg *types.Message, round int) {
	if s == nil {
		return
	}
	select {
	case s.ch <- progressEvent{msg: msg, round: round}:
	default:
		s.logger.Warn("progress consumer too slow, dropping event",
			zap.Uint64("message_id", msg.ID))
	}
}

// close 停止接收新事件并在限定时间内等待消费完成.
func (s *progressSink) close() {
	if s == nil {
		return
	}
	close(s.ch)
	select {
	case <-s.done:
	case <-time.After(progressDrainTimeout):
		s.logger.Warn("progress consumer did not drain in time")
	}
}
