package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/internal/database"
	"github.com/BaSui01/roundtable/types"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	s, err := NewGormStore(pool, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	persona := types.Persona{Title: "Skeptic", Instructions: "doubt"}
	require.NoError(t, s.CreatePersona(ctx, &persona))

	session := &types.Session{UserID: 42, Topic: "tea", Status: types.SessionCreated, MaxRounds: 3}
	require.NoError(t, s.CreateSession(ctx, session))
	require.NotZero(t, session.ID)

	participants := []types.Participant{
		{SessionID: session.ID, Provider: "beta", PersonaID: persona.ID, OrderIndex: 1},
		{SessionID: session.ID, Provider: "alpha", PersonaID: persona.ID, OrderIndex: 0},
	}
	require.NoError(t, s.CreateParticipants(ctx, participants))

	loaded, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "tea", loaded.Topic)
	require.Len(t, loaded.Participants, 2)
	// Participants come back in ascending order_index, regardless of insert order.
	assert.Equal(t, "alpha", loaded.Participants[0].Provider)
	assert.Equal(t, "beta", loaded.Participants[1].Provider)
	assert.Equal(t, "Skeptic", loaded.Participants[0].Persona.Title)
	assert.Equal(t, types.ParticipantActive, loaded.Participants[0].Status)
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))
}

func TestStatusAndRoundUpdates(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	session := &types.Session{Topic: "t", Status: types.SessionCreated, MaxRounds: 2}
	require.NoError(t, s.CreateSession(ctx, session))

	now := time.Now()
	require.NoError(t, s.UpdateSessionStatus(ctx, session.ID, types.SessionStopped, &now))
	require.NoError(t, s.SetCurrentRound(ctx, session.ID, 1))

	status, err := s.GetSessionStatus(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStopped, status)

	loaded, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentRound)
	require.NotNil(t, loaded.FinishedAt)
}

func TestBlankMessagesKeepsRows(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	session := &types.Session{Topic: "t", Status: types.SessionRunning, MaxRounds: 2}
	require.NoError(t, s.CreateSession(ctx, session))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendMessage(ctx, &types.Message{
			SessionID:  session.ID,
			AuthorType: types.AuthorModel,
			AuthorName: "p",
			Content:    "reply",
			TokensIn:   10,
			TokensOut:  5,
		}))
	}

	msgs, err := s.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	require.NoError(t, s.BlankMessages(ctx, []uint64{msgs[0].ID, msgs[1].ID}))

	msgs, err = s.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3, "blanked messages are never deleted")
	assert.Empty(t, msgs[0].Content)
	assert.Zero(t, msgs[0].TokensIn)
	assert.Zero(t, msgs[0].TokensOut)
	assert.Equal(t, "reply", msgs[2].Content)
	assert.Equal(t, 10, msgs[2].TokensIn)
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "max_rounds")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "max_rounds", "7"))
	require.NoError(t, s.SetSetting(ctx, "max_rounds", "9"))

	val, ok, err := s.GetSetting(ctx, "max_rounds")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "9", val)
}

func TestAuditAppend(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	err := s.AppendAudit(context.Background(), "system", "session_started",
		map[string]any{"session_id": 1})
	require.NoError(t, err)
}

func TestSeedPersonasIdempotent(t *testing.T) {
	t.Parallel()
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	s, err := NewGormStore(pool, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, SeedPersonas(ctx, db))
	first, err := s.ListPersonas(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	require.NoError(t, SeedPersonas(ctx, db))
	second, err := s.ListPersonas(ctx)
	require.NoError(t, err)
	assert.Len(t, second, len(first))
}

func TestCreateSessionAggregate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	persona := types.Persona{Title: "Skeptic", Instructions: "doubt"}
	require.NoError(t, s.CreatePersona(ctx, &persona))

	session := &types.Session{UserID: 7, Topic: "tea", Status: types.SessionCreated, MaxRounds: 2}
	participants := []types.Participant{
		{Provider: "alpha", PersonaID: persona.ID, OrderIndex: 0, Status: types.ParticipantActive},
		{Provider: "beta", PersonaID: persona.ID, OrderIndex: 1, Status: types.ParticipantActive},
	}
	opening := &types.Message{AuthorType: types.AuthorUser, AuthorName: "user", Content: "Discussion topic: tea"}
	require.NoError(t, s.CreateSessionAggregate(ctx, session, participants, opening))
	require.NotZero(t, session.ID)

	loaded, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Participants, 2)
	assert.Equal(t, session.ID, loaded.Participants[0].SessionID)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, session.ID, loaded.Messages[0].SessionID)
}

func TestCreateSessionAggregateRollsBack(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	existing := &types.Session{UserID: 1, Topic: "seed", Status: types.SessionCreated}
	require.NoError(t, s.CreateSession(ctx, existing))
	taken := &types.Message{SessionID: existing.ID, AuthorType: types.AuthorUser, AuthorName: "user", Content: "hi"}
	require.NoError(t, s.AppendMessage(ctx, taken))

	// Opening message reuses a taken primary key: the last insert fails,
	// so neither the session row nor the participants may survive.
	session := &types.Session{UserID: 2, Topic: "clash", Status: types.SessionCreated}
	participants := []types.Participant{{Provider: "gamma", OrderIndex: 0, Status: types.ParticipantActive}}
	opening := &types.Message{ID: taken.ID, AuthorType: types.AuthorUser, AuthorName: "user", Content: "boom"}
	require.Error(t, s.CreateSessionAggregate(ctx, session, participants, opening))

	_, err := s.GetSession(ctx, session.ID)
	require.Error(t, err)
	var count int64
	require.NoError(t, s.db.Model(&types.Participant{}).Where("provider = ?", "gamma").Count(&count).Error)
	assert.Zero(t, count)
}
