package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/roundtable/internal/database"
	"github.com/BaSui01/roundtable/types"
)

// GormStore 基于 GORM 的 Store 实现, 支持 sqlite/postgres/mysql.
// 多步写入通过连接池管理器的事务助手执行.
type GormStore struct {
	db     *gorm.DB
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewGormStore wraps a managed pool and migrates the schema.
func NewGormStore(pool *database.PoolManager, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := pool.DB()
	if err := db.AutoMigrate(
		&types.Session{},
		&types.Participant{},
		&types.Persona{},
		&types.Message{},
		&types.AuditEntry{},
		&types.Setting{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{
		db:     db,
		pool:   pool,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

func (s *GormStore) CreateSession(ctx context.Context, session *types.Session) error {
	return s.db.WithContext(ctx).Create(session).Error
}

// CreateSessionAggregate 在单个事务里建立会话聚合, 任一步失败整体回滚.
func (s *GormStore) CreateSessionAggregate(ctx context.Context, session *types.Session, participants []types.Participant, opening *types.Message) error {
	return s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		for i := range participants {
			participants[i].SessionID = session.ID
		}
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}
		opening.SessionID = session.ID
		return tx.Create(opening).Error
	})
}

func (s *GormStore) GetSession(ctx context.Context, id uint64) (*types.Session, error) {
	var session types.Session
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		Preload("Participants.Persona").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrSessionNotFound,
			fmt.Sprintf("session %d not found", id))
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *GormStore) GetSessionStatus(ctx context.Context, id uint64) (types.SessionStatus, error) {
	var session types.Session
	err := s.db.WithContext(ctx).Select("status").First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", types.NewError(types.ErrSessionNotFound,
			fmt.Sprintf("session %d not found", id))
	}
	if err != nil {
		return "", err
	}
	return session.Status, nil
}

func (s *GormStore) UpdateSessionStatus(ctx context.Context, id uint64, status types.SessionStatus, finishedAt *time.Time) error {
	updates := map[string]any{"status": status}
	if finishedAt != nil {
		updates["finished_at"] = finishedAt
	}
	return s.db.WithContext(ctx).Model(&types.Session{}).
		Where("id = ?", id).Updates(updates).Error
}

func (s *GormStore) SetCurrentRound(ctx context.Context, id uint64, round int) error {
	return s.db.WithContext(ctx).Model(&types.Session{}).
		Where("id = ?", id).Update("current_round", round).Error
}

func (s *GormStore) CreateParticipants(ctx context.Context, participants []types.Participant) error {
	if len(participants) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(participants).Error
}

func (s *GormStore) UpdateParticipantStatus(ctx context.Context, id uint64, status types.ParticipantStatus) error {
	return s.db.WithContext(ctx).Model(&types.Participant{}).
		Where("id = ?", id).Update("status", status).Error
}

func (s *GormStore) ListPersonas(ctx context.Context) ([]types.Persona, error) {
	var personas []types.Persona
	err := s.db.WithContext(ctx).Order("id ASC").Find(&personas).Error
	return personas, err
}

func (s *GormStore) CreatePersona(ctx context.Context, persona *types.Persona) error {
	return s.db.WithContext(ctx).Create(persona).Error
}

func (s *GormStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *GormStore) ListMessages(ctx context.Context, sessionID uint64) ([]types.Message, error) {
	var msgs []types.Message
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

func (s *GormStore) BlankMessages(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&types.Message{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"content": "", "tokens_in": 0, "tokens_out": 0}).Error
}

func (s *GormStore) AppendAudit(ctx context.Context, actor, action string, meta map[string]any) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		raw = []byte("{}")
	}
	entry := types.AuditEntry{Actor: actor, Action: action, Meta: string(raw)}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		// Audit is observability, not control flow; losing an entry must
		// never abort a run, but it is always logged.
		s.logger.Error("audit append failed",
			zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *GormStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var setting types.Setting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return setting.Value, true, nil
}

func (s *GormStore) SetSetting(ctx context.Context, key, value string) error {
	setting := types.Setting{Key: key, Value: value}
	return s.db.WithContext(ctx).Save(&setting).Error
}
