package dialogue

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/roundtable/internal/database"
	"github.com/BaSui01/roundtable/internal/metrics"
	"github.com/BaSui01/roundtable/llm/tokenizer"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

func newTestCompressor(t *testing.T, keepTail, snippetLen int) (*Compressor, *store.GormStore) {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	st, err := store.NewGormStore(pool, zap.NewNop())
	require.NoError(t, err)
	c := NewCompressor(st, tokenizer.NewEstimator(), keepTail, snippetLen,
		metrics.NewCollector("test", prometheus.NewRegistry()), zap.NewNop())
	return c, st
}

func seedTranscript(t *testing.T, st *store.GormStore, contents []string) uint64 {
	t.Helper()
	ctx := context.Background()
	sess := &types.Session{Topic: "t", Status: types.SessionRunning}
	require.NoError(t, st.CreateSession(ctx, sess))
	for i, content := range contents {
		require.NoError(t, st.AppendMessage(ctx, &types.Message{
			SessionID:  sess.ID,
			AuthorType: types.AuthorModel,
			AuthorName: fmt.Sprintf("m%02d", i),
			Content:    content,
		}))
	}
	return sess.ID
}

func TestCompressSinglePass(t *testing.T) {
	t.Parallel()
	c, st := newTestCompressor(t, 2, 20)
	contents := make([]string, 10)
	for i := range contents {
		contents[i] = strings.Repeat("word ", 40) // ~200 chars each
	}
	sessionID := seedTranscript(t, st, contents)

	passes, under, err := c.Compress(context.Background(), sessionID, 250)
	require.NoError(t, err)
	assert.Equal(t, 1, passes)
	assert.True(t, under)

	msgs, err := st.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	// Nothing deleted: 10 originals plus one synthetic summary.
	require.Len(t, msgs, 11)

	for _, m := range msgs[:8] {
		assert.Empty(t, m.Content)
		assert.Zero(t, m.TokensIn)
		assert.Zero(t, m.TokensOut)
	}
	// The kept tail is untouched.
	assert.Equal(t, contents[8], msgs[8].Content)
	assert.Equal(t, contents[9], msgs[9].Content)

	summary := msgs[10]
	assert.Equal(t, types.AuthorSystem, summary.AuthorType)
	assert.Equal(t, summaryAuthor, summary.AuthorName)
	assert.Contains(t, summary.Content, "Summary of earlier discussion")
	assert.Contains(t, summary.Content, "m00:")
}

func TestCompressHalvesKeepTail(t *testing.T) {
	t.Parallel()
	c, st := newTestCompressor(t, 4, 20)
	contents := make([]string, 12)
	for i := range contents {
		contents[i] = strings.Repeat("talk ", 80) // ~400 chars each
	}
	sessionID := seedTranscript(t, st, contents)

	passes, under, err := c.Compress(context.Background(), sessionID, 430)
	require.NoError(t, err)
	assert.Equal(t, 2, passes)
	assert.True(t, under)

	msgs, err := st.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	// 12 originals plus one summary per pass.
	require.Len(t, msgs, 14)
	// Second pass halved the tail to 2, so messages 8 and 9 got blanked too.
	assert.Empty(t, msgs[8].Content)
	assert.Empty(t, msgs[9].Content)
	assert.Equal(t, contents[10], msgs[10].Content)
	assert.Equal(t, contents[11], msgs[11].Content)
}

func TestCompressNoCandidates(t *testing.T) {
	t.Parallel()
	c, st := newTestCompressor(t, 10, 20)
	sessionID := seedTranscript(t, st, []string{
		strings.Repeat("a", 200),
		strings.Repeat("b", 200),
	})

	// Everything sits inside the keep tail, so the pass cannot make progress.
	passes, under, err := c.Compress(context.Background(), sessionID, 10)
	require.NoError(t, err)
	assert.Zero(t, passes)
	assert.False(t, under)

	msgs, err := st.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotEmpty(t, msgs[0].Content)
	assert.NotEmpty(t, msgs[1].Content)
}

func TestCompressUnderBudgetIsNoop(t *testing.T) {
	t.Parallel()
	c, st := newTestCompressor(t, 2, 20)
	sessionID := seedTranscript(t, st, []string{"short", "also short"})

	passes, under, err := c.Compress(context.Background(), sessionID, 6000)
	require.NoError(t, err)
	assert.Zero(t, passes)
	assert.True(t, under)
}

func TestCompressProperties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(rt, "messages")
		budget := rapid.IntRange(50, 500).Draw(rt, "budget")

		db, err := store.Open("sqlite", ":memory:")
		require.NoError(rt, err)
		pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), zap.NewNop())
		require.NoError(rt, err)
		defer pool.Close()
		st, err := store.NewGormStore(pool, zap.NewNop())
		require.NoError(rt, err)
		counter := tokenizer.NewEstimator()
		c := NewCompressor(st, counter, 3, 30,
			metrics.NewCollector("test", prometheus.NewRegistry()), zap.NewNop())

		contents := make([]string, n)
		for i := range contents {
			contents[i] = rapid.StringMatching(`[a-z ]{0,300}`).Draw(rt, fmt.Sprintf("content_%d", i))
		}
		sessionID := seedTranscript(t, st, contents)

		before, err := st.ListMessages(context.Background(), sessionID)
		require.NoError(rt, err)

		passes, under, err := c.Compress(context.Background(), sessionID, budget)
		require.NoError(rt, err)

		after, err := st.ListMessages(context.Background(), sessionID)
		require.NoError(rt, err)

		// Compression appends exactly one summary per pass and deletes nothing.
		require.Len(rt, after, len(before)+passes)
		for i, m := range before {
			assert.Equal(rt, m.ID, after[i].ID)
		}
		// The most recent non-system message always survives untouched.
		for i := len(after) - 1; i >= 0; i-- {
			if after[i].AuthorType == types.AuthorSystem {
				continue
			}
			assert.Equal(rt, before[i].Content, after[i].Content)
			break
		}
		if under {
			totals := ComputeTotals(after, counter)
			assert.LessOrEqual(rt, totals.ContextTokens, budget)
		}
	})
}
