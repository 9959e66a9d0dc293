package dialogue

import "strings"

// maxStrikes 连续空回复或重复回复达到该次数后参与者被移除.
const maxStrikes = 2

// repeatTracker 跟踪每个参与者的连击计数与上一条已持久化回复.
// 只被单个回合循环持有, 无需加锁.
type repeatTracker struct {
	strikes map[uint64]int
	last    map[uint64]string
}

func newRepeatTracker() *repeatTracker {
	return &repeatTracker{
		strikes: make(map[uint64]int),
		last:    make(map[uint64]string),
	}
}

// isRepeat 判断回复是否与该参与者上一条已持久化回复相同 (忽略首尾空白).
func (t *repeatTracker) isRepeat(participantID uint64, reply string) bool {
	prev, ok := t.last[participantID]
	return ok && strings.TrimSpace(reply) == prev
}

// strike 记一次连击并返回当前计数.
func (t *repeatTracker) strike(participantID uint64) int {
	t.strikes[participantID]++
	return t.strikes[participantID]
}

// accept 记录一条成功持久化的回复并清零连击.
func (t *repeatTracker) accept(participantID uint64, reply string) {
	t.strikes[participantID] = 0
	t.last[participantID] = strings.TrimSpace(reply)
}
