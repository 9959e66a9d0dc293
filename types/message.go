package types

import "time"

// AuthorType identifies who produced a message.
type AuthorType string

const (
	AuthorUser   AuthorType = "user"
	AuthorSystem AuthorType = "system"
	AuthorModel  AuthorType = "model"
)

// Message is one entry in a session transcript. Messages are append-only:
// compression may blank Content and zero the token counts, but a message is
// never deleted, so ordering and count invariants always hold.
type Message struct {
	ID         uint64     `json:"id" gorm:"primaryKey"`
	SessionID  uint64     `json:"session_id" gorm:"index"`
	AuthorType AuthorType `json:"author_type" gorm:"size:16"`
	AuthorName string     `json:"author_name" gorm:"size:192"`
	Content    string     `json:"content" gorm:"type:text"`
	TokensIn   int        `json:"tokens_in"`
	TokensOut  int        `json:"tokens_out"`
	Cost       float64    `json:"cost"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AuditEntry 只写的可观测性记录, 调度器从不读取.
type AuditEntry struct {
	ID        uint64    `json:"id" gorm:"primaryKey"`
	Actor     string    `json:"actor" gorm:"size:64"`
	Action    string    `json:"action" gorm:"size:64;index"`
	Meta      string    `json:"meta" gorm:"type:text"` // JSON-encoded metadata
	CreatedAt time.Time `json:"created_at"`
}

// Setting 动态键值配置覆盖, 会话启动时解析.
type Setting struct {
	Key   string `json:"key" gorm:"primaryKey;size:64"`
	Value string `json:"value" gorm:"size:255"`
}
