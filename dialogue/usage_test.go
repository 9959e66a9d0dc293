package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/roundtable/llm/tokenizer"
	"github.com/BaSui01/roundtable/types"
)

func TestComputeTotalsSkipsBlankedContext(t *testing.T) {
	t.Parallel()
	counter := tokenizer.NewEstimator()
	msgs := []types.Message{
		{AuthorType: types.AuthorUser, Content: "topic", TokensIn: 0, TokensOut: 0},
		{AuthorType: types.AuthorModel, Content: "a long reply", TokensIn: 10, TokensOut: 20, Cost: 0.5},
		// Blanked by compression: keeps nothing but its row.
		{AuthorType: types.AuthorModel, Content: "", TokensIn: 0, TokensOut: 0},
	}

	totals := ComputeTotals(msgs, counter)
	assert.Equal(t, 10, totals.TokensIn)
	assert.Equal(t, 20, totals.TokensOut)
	assert.InDelta(t, 0.5, totals.Cost, 1e-9)
	assert.Equal(t, 3, totals.Messages)

	withContent := ComputeTotals(msgs[:2], counter)
	assert.Equal(t, withContent.ContextTokens, totals.ContextTokens)
}

func TestBreachOrderAndSemantics(t *testing.T) {
	t.Parallel()
	l := Limits{TokensIn: 100, TokensOut: 50, Cost: 1.0}

	// Exactly reaching a budget is a breach.
	limit, value, ok := l.Breach(Totals{TokensOut: 50})
	assert.True(t, ok)
	assert.Equal(t, LimitTokensOut, limit)
	assert.Equal(t, 50.0, value)

	// tokens_in is checked first when several budgets are reached at once.
	limit, _, ok = l.Breach(Totals{TokensIn: 100, TokensOut: 60, Cost: 2.0})
	assert.True(t, ok)
	assert.Equal(t, LimitTokensIn, limit)

	_, _, ok = l.Breach(Totals{TokensIn: 99, TokensOut: 49, Cost: 0.99})
	assert.False(t, ok)
}

func TestZeroBudgetsAreUnlimited(t *testing.T) {
	t.Parallel()
	var l Limits
	_, _, ok := l.Breach(Totals{TokensIn: 1 << 30, TokensOut: 1 << 30, Cost: 1e9})
	assert.False(t, ok)
	assert.False(t, l.ContextExceeded(Totals{ContextTokens: 1 << 30}))
}

func TestContextExceededIsStrict(t *testing.T) {
	t.Parallel()
	l := Limits{ContextTokens: 100}
	assert.False(t, l.ContextExceeded(Totals{ContextTokens: 100}))
	assert.True(t, l.ContextExceeded(Totals{ContextTokens: 101}))
}
