package tuner

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomScore(r *rand.Rand) Score {
	return Score{
		MemtableSpeed:           r.Float64() * 200,
		ActiveSizeRatio:         r.Float64(),
		ImmutableNumber:         float64(r.Intn(5)),
		FlushSpeedAvg:           r.Float64() * 300,
		FlushSpeedVar:           r.Float64() * 50,
		FlushNumbers:            float64(r.Intn(6)),
		L0Num:                   r.Float64() * 2,
		L0DropRatio:             r.Float64(),
		EstimateCompactionBytes: r.Float64() * 2,
		DiskBandwidth:           r.Float64() * 500,
		FlushIdleTime:           r.Float64(),
		CompactionIdleTime:      r.Float64() * 4,
		FlushGapTime:            r.Float64() * 10,
	}
}

func TestScoreAdditivity(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a, b := randomScore(r), randomScore(r)
		got := a.Add(b).Sub(b).Fields()
		want := a.Fields()
		for j := range want {
			require.InDelta(t, want[j], got[j], 1e-9, "field %s", FieldNames[j])
		}
	}
}

func TestScoreDivByCount(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	const n = 7

	var sum Score
	samples := make([]Score, n)
	for i := range samples {
		samples[i] = randomScore(r)
		samples[i].FlushNumbers = float64(1 + r.Intn(4))
		sum = sum.Add(samples[i])
	}
	avg := sum.Div(n)

	mean := func(get func(Score) float64) float64 {
		var total float64
		for _, s := range samples {
			total += get(s)
		}
		return total / n
	}
	var flushes, speeds, vars, gaps float64
	for _, s := range samples {
		flushes += s.FlushNumbers
		speeds += s.FlushSpeedAvg
		vars += s.FlushSpeedVar
		gaps += s.FlushGapTime
	}

	require.InDelta(t, mean(func(s Score) float64 { return s.MemtableSpeed }), avg.MemtableSpeed, 1e-9)
	require.InDelta(t, mean(func(s Score) float64 { return s.L0Num }), avg.L0Num, 1e-9)
	require.InDelta(t, mean(func(s Score) float64 { return s.FlushNumbers }), avg.FlushNumbers, 1e-9)
	require.InDelta(t, mean(func(s Score) float64 { return s.CompactionIdleTime }), avg.CompactionIdleTime, 1e-9)
	require.InDelta(t, mean(func(s Score) float64 { return s.DiskBandwidth }), avg.DiskBandwidth, 1e-9)

	// Flush-weighted fields are divided by the total flush count.
	require.InDelta(t, speeds/flushes, avg.FlushSpeedAvg, 1e-9)
	require.InDelta(t, vars/flushes, avg.FlushSpeedVar, 1e-9)
	require.InDelta(t, gaps/flushes, avg.FlushGapTime, 1e-9)
}

func TestScoreDivOneFlushPerRoundIsEventMean(t *testing.T) {
	a := Score{FlushSpeedAvg: 10, FlushNumbers: 1}
	b := Score{FlushSpeedAvg: 30, FlushNumbers: 1}
	avg := a.Add(b).Div(2)
	require.Equal(t, 20.0, avg.FlushSpeedAvg)
	require.Equal(t, 1.0, avg.FlushNumbers)
}

func TestScoreDivDegenerate(t *testing.T) {
	s := Score{MemtableSpeed: 4, FlushSpeedAvg: 8, FlushGapTime: 2}

	require.Equal(t, Score{}, s.Div(0))
	require.Equal(t, Score{}, s.Div(-3))

	// No flushes: flush-weighted fields go to zero instead of dividing by zero.
	got := s.Div(2)
	require.Equal(t, 2.0, got.MemtableSpeed)
	require.Zero(t, got.FlushSpeedAvg)
	require.Zero(t, got.FlushGapTime)
}

func TestScoreMax(t *testing.T) {
	a := Score{MemtableSpeed: 5, FlushSpeedAvg: 1, L0Num: 0.2}
	b := Score{MemtableSpeed: 3, FlushSpeedAvg: 9, L0Num: 0.2}
	m := a.Max(b)
	require.Equal(t, 5.0, m.MemtableSpeed)
	require.Equal(t, 9.0, m.FlushSpeedAvg)
	require.Equal(t, 0.2, m.L0Num)
	require.Len(t, m.Fields(), len(FieldNames))
}
