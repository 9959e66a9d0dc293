// Package store 实现调度器的持久化边界: Session/Participant/Message 聚合,
// 审计日志与键值设置. 进程内满足 read-your-writes: 回合循环写入后自身的
// 后续读取必须可见.
package store

import (
	"context"
	"time"

	"github.com/BaSui01/roundtable/types"
)

// Store is the persistence contract the scheduler depends on.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *types.Session) error
	// CreateSessionAggregate writes the session row, its participants and
	// the opening message in one transaction, so a failed create never
	// leaves an orphaned session behind. Participant and message
	// SessionID fields are filled in from the inserted session.
	CreateSessionAggregate(ctx context.Context, session *types.Session, participants []types.Participant, opening *types.Message) error
	// GetSession loads the session with its participants (ascending
	// order_index, personas preloaded) and messages (ascending id).
	GetSession(ctx context.Context, id uint64) (*types.Session, error)
	// GetSessionStatus re-reads only the persisted status, as the cheap
	// reconciliation check between turns.
	GetSessionStatus(ctx context.Context, id uint64) (types.SessionStatus, error)
	UpdateSessionStatus(ctx context.Context, id uint64, status types.SessionStatus, finishedAt *time.Time) error
	SetCurrentRound(ctx context.Context, id uint64, round int) error

	// Participants and personas
	CreateParticipants(ctx context.Context, participants []types.Participant) error
	UpdateParticipantStatus(ctx context.Context, id uint64, status types.ParticipantStatus) error
	ListPersonas(ctx context.Context) ([]types.Persona, error)
	CreatePersona(ctx context.Context, persona *types.Persona) error

	// Messages
	AppendMessage(ctx context.Context, msg *types.Message) error
	ListMessages(ctx context.Context, sessionID uint64) ([]types.Message, error)
	// BlankMessages empties content and zeroes token counts without
	// deleting rows, preserving ordering and count invariants.
	BlankMessages(ctx context.Context, ids []uint64) error

	// Observability + dynamic settings
	AppendAudit(ctx context.Context, actor, action string, meta map[string]any) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}
