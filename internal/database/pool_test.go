package database

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type poolNote struct {
	ID   uint64 `gorm:"primaryKey"`
	Body string
}

func newTestPool(t *testing.T) *PoolManager {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&poolNote{}))
	pm, err := NewPoolManager(db, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	return pm
}

func TestPoolManagerLifecycle(t *testing.T) {
	t.Parallel()
	pm := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, pm.Ping(ctx))
	require.NotNil(t, pm.DB())

	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())
	assert.Error(t, pm.Ping(ctx))
	assert.Error(t, pm.WithTransaction(ctx, func(tx *gorm.DB) error { return nil }))
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	t.Parallel()
	pm := newTestPool(t)
	t.Cleanup(func() { pm.Close() })
	ctx := context.Background()

	boom := errors.New("boom")
	err := pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&poolNote{Body: "doomed"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, pm.DB().Model(&poolNote{}).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&poolNote{Body: "kept"}).Error
	}))
	require.NoError(t, pm.DB().Model(&poolNote{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestWithTransactionRetryStopsOnNonRetryable(t *testing.T) {
	t.Parallel()
	pm := newTestPool(t)
	t.Cleanup(func() { pm.Close() })

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return errors.New("syntax error near SELECT")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithTransactionRetryRecovers(t *testing.T) {
	t.Parallel()
	pm := newTestPool(t)
	t.Cleanup(func() { pm.Close() })

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("database deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("pq: deadlock detected")))
	assert.True(t, isRetryableError(errors.New("ERROR: serialization failure (SQLSTATE 40001)")))
	assert.True(t, isRetryableError(errors.New("write tcp: broken pipe")))
	assert.False(t, isRetryableError(errors.New("UNIQUE constraint failed")))
}
