package tuner

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newHysteresis() HysteresisPolicy {
	return HysteresisPolicy{MinThreads: 2, SlowFlush: 0.5}
}

func TestHysteresisCountersStayBounded(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	p := newHysteresis()
	var st HysteresisState
	avg := Score{FlushSpeedAvg: 50, MemtableSpeed: 20}
	for i := 0; i < 500; i++ {
		cur := Score{
			MemtableSpeed:           r.Float64() * 30,
			ActiveSizeRatio:         r.Float64(),
			ImmutableNumber:         float64(r.Intn(3)),
			FlushSpeedAvg:           r.Float64() * 80,
			L0Num:                   r.Float64() * 2,
			EstimateCompactionBytes: r.Float64() * 2,
		}
		d := p.Decide(Input{Current: cur, Best: avg, Avg: avg, FlushThreads: 3, CompactionThreads: 3, Hysteresis: st})
		st = d.Hysteresis
		require.True(t, st.MemtablePressure >= 0 && st.MemtablePressure <= 4, "%+v", st)
		require.True(t, st.CompactionPressure >= 0 && st.CompactionPressure <= 4, "%+v", st)
		require.True(t, st.StallSuspect >= 0 && st.StallSuspect <= 4, "%+v", st)
		require.True(t, st.MemtableRelax >= 0 && st.MemtableRelax <= 2, "%+v", st)
		require.True(t, st.CompactionRelax >= 0 && st.CompactionRelax <= 2, "%+v", st)
	}
}

func TestHysteresisAccumulatorSaturates(t *testing.T) {
	p := newHysteresis()
	var st HysteresisState
	for i := 0; i < 10; i++ {
		d := p.Decide(Input{Current: Score{ImmutableNumber: 1, L0Num: 1}, FlushThreads: 1, CompactionThreads: 1, Hysteresis: st})
		st = d.Hysteresis
	}
	require.Equal(t, HysteresisState{MemtablePressure: 4, CompactionPressure: 4}, st)

	// Pressure gone: accumulators drain one step per round, relax counters cap at 2.
	for i := 0; i < 3; i++ {
		st = p.Decide(Input{FlushThreads: 1, CompactionThreads: 1, Hysteresis: st}).Hysteresis
	}
	require.Equal(t, HysteresisState{MemtablePressure: 1, CompactionPressure: 1, MemtableRelax: 2, CompactionRelax: 2}, st)
}

func TestHysteresisIdleReclaimFiresOnFirstRound(t *testing.T) {
	p := newHysteresis()
	var st HysteresisState
	for round := 1; round <= 3; round++ {
		d := p.Decide(Input{
			Current:           Score{FlushIdleTime: 0.8},
			FlushThreads:      p.MinThreads + 2,
			CompactionThreads: 2,
			Hysteresis:        st,
		})
		st = d.Hysteresis
		require.Equal(t, Half, d.Op.FlushThreadOp, "round %d", round)
		require.Equal(t, Keep, d.Op.CompactionThreadOp, "round %d", round)
		require.Equal(t, min(round, relaxRounds), st.MemtableRelax)
	}
}

func TestHysteresisIdleReclaimYieldsToPressure(t *testing.T) {
	p := newHysteresis()
	d := p.Decide(Input{
		Current:      Score{FlushIdleTime: 0.9, ImmutableNumber: 1},
		FlushThreads: 4,
	})
	require.Equal(t, LinearIncrease, d.Op.FlushThreadOp)

	// Not above the minimum: nothing to reclaim.
	d = p.Decide(Input{Current: Score{FlushIdleTime: 0.9}, FlushThreads: p.MinThreads})
	require.Equal(t, Keep, d.Op.FlushThreadOp)
}

func TestHysteresisDampsAlternatingPressure(t *testing.T) {
	p := newHysteresis()
	var st HysteresisState
	for i := 0; i < 20; i++ {
		cur := Score{}
		if i%2 == 0 {
			cur.L0Num = 1.0 // pressure, but not severe
		}
		d := p.Decide(Input{Current: cur, FlushThreads: 2, CompactionThreads: 2, Hysteresis: st})
		st = d.Hysteresis
		require.LessOrEqual(t, st.CompactionPressure, 1)
		require.NotEqual(t, LinearIncrease, d.Op.CompactionThreadOp, "round %d", i)
		require.NotEqual(t, LinearIncrease, d.Op.SSTableOp, "round %d", i)
	}

	// A single severe round reacts immediately.
	d := p.Decide(Input{Current: Score{L0Num: 1.3}, FlushThreads: 2, CompactionThreads: 2})
	require.Equal(t, LinearIncrease, d.Op.CompactionThreadOp)
	require.Equal(t, LinearIncrease, d.Op.SSTableOp)
	require.Equal(t, Half, d.Op.BatchOp)
}

func TestHysteresisSustainedCompactionPressure(t *testing.T) {
	p := newHysteresis()
	var st HysteresisState
	var ops []OpType
	for i := 0; i < 3; i++ {
		d := p.Decide(Input{Current: Score{EstimateCompactionBytes: 1.1}, FlushThreads: 2, CompactionThreads: 2, Hysteresis: st})
		st = d.Hysteresis
		ops = append(ops, d.Op.CompactionThreadOp)
	}
	require.Equal(t, []OpType{Keep, Keep, LinearIncrease}, ops)
}

func TestHysteresisStallSuspicion(t *testing.T) {
	p := newHysteresis()
	in := Input{
		Current:      Score{FlushSpeedAvg: 10, FlushNumbers: 1, MemtableSpeed: 2},
		Avg:          Score{FlushSpeedAvg: 50, MemtableSpeed: 20},
		FlushThreads: 2,
	}
	d := p.Decide(in)
	require.Equal(t, 1, d.Hysteresis.StallSuspect)
	require.Equal(t, LinearIncrease, d.Op.FlushThreadOp)
	require.Equal(t, LinearIncrease, d.Op.BatchOp)

	// Baseline falls back to the best-ever speed when no average exists.
	in.Avg = Score{}
	in.Best = Score{FlushSpeedAvg: 50}
	d = p.Decide(in)
	require.Zero(t, d.Hysteresis.StallSuspect)
	require.Equal(t, LinearIncrease, d.Op.BatchOp)
}

func TestHysteresisRelaxShrinks(t *testing.T) {
	p := newHysteresis()
	st := HysteresisState{MemtableRelax: 1, CompactionRelax: 1}
	d := p.Decide(Input{FlushThreads: 4, CompactionThreads: 6, Hysteresis: st})
	require.Equal(t, Half, d.Op.FlushThreadOp)
	require.Equal(t, Half, d.Op.CompactionThreadOp)
	require.Equal(t, Half, d.Op.SSTableOp)
	require.Equal(t, Keep, d.Op.BatchOp)
}
