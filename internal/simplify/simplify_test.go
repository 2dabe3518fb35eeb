package simplify

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestSimplify_ThreeWay(t *testing.T) {
	got := Simplify([]Balance{
		{UserID: "A", Net: d(100)},
		{UserID: "B", Net: d(-60)},
		{UserID: "C", Net: d(-40)},
	})

	require.Len(t, got, 2)
	perPair := map[string]decimal.Decimal{}
	for _, tr := range got {
		perPair[tr.From+"->"+tr.To] = perPair[tr.From+"->"+tr.To].Add(tr.Amount)
	}
	assert.True(t, perPair["B->A"].Equal(d(60)), "B->A = %s", perPair["B->A"])
	assert.True(t, perPair["C->A"].Equal(d(40)), "C->A = %s", perPair["C->A"])
}

func TestSimplify_SettlesSingleCents(t *testing.T) {
	got := Simplify([]Balance{
		{UserID: "A", Net: decimal.RequireFromString("1.00")},
		{UserID: "B", Net: decimal.RequireFromString("-0.99")},
		{UserID: "C", Net: decimal.RequireFromString("-0.01")},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].From)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("0.99")))
	assert.Equal(t, Transfer{From: "C", To: "A", Amount: got[1].Amount}, got[1])
	assert.True(t, got[1].Amount.Equal(decimal.RequireFromString("0.01")))
}

func TestSimplify_IgnoresSubCentResidue(t *testing.T) {
	got := Simplify([]Balance{
		{UserID: "A", Net: decimal.RequireFromString("0.004")},
		{UserID: "B", Net: decimal.RequireFromString("-0.004")},
	})
	assert.Empty(t, got)

	assert.Empty(t, Simplify(nil))
}

func TestSimplify_Deterministic(t *testing.T) {
	in := []Balance{
		{UserID: "u3", Net: d(50)},
		{UserID: "u1", Net: d(50)},
		{UserID: "u2", Net: d(-50)},
		{UserID: "u4", Net: d(-50)},
	}
	first := Simplify(in)
	for i := 0; i < 20; i++ {
		rand.Shuffle(len(in), func(a, b int) { in[a], in[b] = in[b], in[a] })
		assert.Equal(t, first, Simplify(in))
	}
	// ties broken by user id
	assert.Equal(t, Transfer{From: "u2", To: "u1", Amount: d(50)}, first[0])
	assert.Equal(t, Transfer{From: "u4", To: "u3", Amount: d(50)}, first[1])
}

func TestSimplifyEdges(t *testing.T) {
	// A owes B 10, B owes C 10: A pays C directly.
	got := SimplifyEdges([]Edge{
		{From: "A", To: "B", Amount: d(10)},
		{From: "B", To: "C", Amount: d(10)},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].From)
	assert.Equal(t, "C", got[0].To)
	assert.True(t, got[0].Amount.Equal(d(10)))
}

func TestNetBalances(t *testing.T) {
	got := NetBalances([]Edge{
		{From: "A", To: "B", Amount: d(30)},
		{From: "B", To: "A", Amount: d(10)},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].UserID)
	assert.True(t, got[0].Net.Equal(d(-20)))
	assert.True(t, got[1].Net.Equal(d(20)))
}

func TestSimplify_RandomBalancesSettleToZero(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 300; round++ {
		n := 2 + rng.Intn(12)
		balances := make([]Balance, n)
		sum := decimal.Zero
		for k := 0; k < n-1; k++ {
			v := decimal.New(int64(rng.Intn(100000)-50000), -2)
			balances[k] = Balance{UserID: string(rune('a' + k)), Net: v}
			sum = sum.Add(v)
		}
		balances[n-1] = Balance{UserID: string(rune('a' + n - 1)), Net: sum.Neg()}

		remaining := map[string]decimal.Decimal{}
		for _, b := range balances {
			remaining[b.UserID] = b.Net
		}

		for _, tr := range Simplify(balances) {
			require.True(t, tr.Amount.IsPositive(), "round %d: non-positive transfer %+v", round, tr)
			debt := remaining[tr.From].Neg()
			credit := remaining[tr.To]
			require.True(t, debt.IsPositive(), "round %d: %s pays but owes nothing", round, tr.From)
			require.True(t, credit.IsPositive(), "round %d: %s receives but is owed nothing", round, tr.To)
			require.True(t, tr.Amount.LessThanOrEqual(decimal.Min(debt, credit)),
				"round %d: transfer %s exceeds outstanding %s/%s", round, tr.Amount, debt, credit)

			remaining[tr.From] = remaining[tr.From].Add(tr.Amount)
			remaining[tr.To] = remaining[tr.To].Sub(tr.Amount)
		}

		for id, v := range remaining {
			assert.True(t, v.IsZero(), "round %d: %s left with %s", round, id, v)
		}
	}
}
