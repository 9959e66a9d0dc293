package cancel

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/types"
)

func TestMemoryStopCancelsRunContext(t *testing.T) {
	t.Parallel()
	reg := NewMemory()

	ctx, err := reg.Begin(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, ctx.Err())

	require.NoError(t, reg.Stop(context.Background(), 1, "user"))
	assert.Error(t, ctx.Err())
	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(context.Cause(ctx)))

	reason, stopped := reg.Reason(1)
	assert.True(t, stopped)
	assert.Equal(t, "user", reason)
}

func TestMemoryStopIsIdempotent(t *testing.T) {
	t.Parallel()
	reg := NewMemory()

	_, err := reg.Begin(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, reg.Stop(context.Background(), 7, "first"))
	require.NoError(t, reg.Stop(context.Background(), 7, "second"))

	reason, _ := reg.Reason(7)
	assert.Equal(t, "first", reason)
}

func TestMemoryStopBeforeBegin(t *testing.T) {
	t.Parallel()
	reg := NewMemory()

	require.NoError(t, reg.Stop(context.Background(), 3, "early"))

	ctx, err := reg.Begin(context.Background(), 3)
	require.NoError(t, err)
	assert.Error(t, ctx.Err())
}

func TestMemoryBeginIsGetOrCreate(t *testing.T) {
	t.Parallel()
	reg := NewMemory()

	ctx1, err := reg.Begin(context.Background(), 5)
	require.NoError(t, err)
	ctx2, err := reg.Begin(context.Background(), 5)
	require.NoError(t, err)
	assert.Same(t, ctx1, ctx2)
}

func TestMemoryReleaseClearsSignal(t *testing.T) {
	t.Parallel()
	reg := NewMemory()

	_, err := reg.Begin(context.Background(), 9)
	require.NoError(t, err)
	require.NoError(t, reg.Stop(context.Background(), 9, "user"))
	reg.Release(9)

	_, stopped := reg.Reason(9)
	assert.False(t, stopped)

	// A fresh run after release starts clean.
	ctx, err := reg.Begin(context.Background(), 9)
	require.NoError(t, err)
	assert.NoError(t, ctx.Err())
}

func newRedisRegistry(t *testing.T) *Redis {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, 10*time.Millisecond, zap.NewNop())
}

func TestRedisStopObservedByWatcher(t *testing.T) {
	t.Parallel()
	reg := newRedisRegistry(t)

	ctx, err := reg.Begin(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, reg.Stop(context.Background(), 1, "limit"))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run context not cancelled after stop")
	}

	reason, stopped := reg.Reason(1)
	assert.True(t, stopped)
	assert.Equal(t, "limit", reason)
}

func TestRedisStopBeforeBegin(t *testing.T) {
	t.Parallel()
	reg := newRedisRegistry(t)

	require.NoError(t, reg.Stop(context.Background(), 2, "early"))

	ctx, err := reg.Begin(context.Background(), 2)
	require.NoError(t, err)
	assert.Error(t, ctx.Err())
}
