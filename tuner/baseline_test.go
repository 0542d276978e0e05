package tuner

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaselinesBestIsMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	b := NewBaselines(5)
	prev := b.Best().Fields()
	for i := 0; i < 100; i++ {
		b.UpdateMaxScore(randomScore(r))
		cur := b.Best().Fields()
		for j := range cur {
			require.GreaterOrEqual(t, cur[j], prev[j], "field %s decreased at round %d", FieldNames[j], i)
		}
		prev = cur
	}
}

func TestBaselinesWindowEvictsOldest(t *testing.T) {
	b := NewBaselines(3)
	for i := 1; i <= 5; i++ {
		b.Push(Score{MemtableSpeed: float64(i)})
		require.LessOrEqual(t, b.Len(), 3)
	}
	require.Equal(t, 3, b.Len())

	// Only rounds 3, 4 and 5 remain.
	avg := b.CalculateAvgScore()
	require.InDelta(t, 4.0, avg.MemtableSpeed, 1e-9)
	require.Equal(t, avg, b.Avg())
}

func TestBaselinesEmptyAverage(t *testing.T) {
	b := NewBaselines(0)
	require.Equal(t, Score{}, b.CalculateAvgScore())

	// A non-positive window still keeps the latest score.
	b.Push(Score{L0Num: 1})
	b.Push(Score{L0Num: 2})
	require.Equal(t, 1, b.Len())
	require.Equal(t, 2.0, b.CalculateAvgScore().L0Num)
}
