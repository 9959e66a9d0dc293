package types

import "time"

// SessionStatus 会话状态.
type SessionStatus string

const (
	SessionCreated  SessionStatus = "created"
	SessionRunning  SessionStatus = "running"
	SessionFinished SessionStatus = "finished"
	SessionStopped  SessionStatus = "stopped"
	SessionFailed   SessionStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionFinished, SessionStopped, SessionFailed:
		return true
	}
	return false
}

// Session 一次完整的圆桌对话, 由轮次预算约束.
// While the status is "running" the session aggregate is owned by the
// round loop driving it; in every other status it is owned by the store.
type Session struct {
	ID           uint64        `json:"id" gorm:"primaryKey"`
	UserID       int64         `json:"user_id" gorm:"index"`
	Topic        string        `json:"topic" gorm:"type:text"`
	Status       SessionStatus `json:"status" gorm:"size:16;default:created"`
	MaxRounds    int           `json:"max_rounds"`
	CurrentRound int           `json:"current_round"`
	CreatedAt    time.Time     `json:"created_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`

	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:SessionID"`
	Messages     []Message     `json:"messages,omitempty" gorm:"foreignKey:SessionID"`
}

// ParticipantStatus 参与者状态.
// Transitions are one-directional: active → suspended|removed. A suspended
// or removed participant is never reactivated within the same session.
type ParticipantStatus string

const (
	ParticipantActive    ParticipantStatus = "active"
	ParticipantSuspended ParticipantStatus = "suspended"
	ParticipantRemoved   ParticipantStatus = "removed"
)

// Participant 一个 (生成能力, 人设) 配对, 在会话中轮流发言.
type Participant struct {
	ID         uint64            `json:"id" gorm:"primaryKey"`
	SessionID  uint64            `json:"session_id" gorm:"index"`
	Provider   string            `json:"provider" gorm:"size:64"`
	PersonaID  uint64            `json:"persona_id"`
	OrderIndex int               `json:"order_index"`
	Status     ParticipantStatus `json:"status" gorm:"size:16;default:active"`

	Persona Persona `json:"persona" gorm:"foreignKey:PersonaID"`
}

// Persona 塑造参与者发言风格的指令文本.
type Persona struct {
	ID           uint64 `json:"id" gorm:"primaryKey"`
	Title        string `json:"title" gorm:"size:128"`
	Instructions string `json:"instructions" gorm:"type:text"`
	Style        string `json:"style" gorm:"type:text"`
}
