package tuner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAggregateRound(t *testing.T) {
	opts := DefaultEngineOptions()
	p := newFakeProvider()
	p.total = 10e6
	agg := NewAggregator(p)

	p.total = 30e6
	p.active = opts.WriteBufferSize / 2
	p.immutables = 1
	p.flushes = []FlushRecord{
		{WriteOutBandwidth: 10, TotalBytes: 1e6, L0Files: 3, Gap: time.Second},
		{WriteOutBandwidth: 30, TotalBytes: 1e6, L0Files: 2, Gap: 3 * time.Second},
	}
	p.compactions = []CompactionRecord{
		{InputLevel: 0, DropRatio: 0.2, CurrentPendingBytes: 100, TotalBytes: 2e6},
		{InputLevel: 0, DropRatio: 0.4, CurrentPendingBytes: 300, TotalBytes: 1e6},
		{InputLevel: 1, DropRatio: 0.9, CurrentPendingBytes: 900, TotalBytes: 1e6},
	}
	p.baseFiles = 10
	p.pending = opts.SoftPendingCompactionBytesLimit / 4
	p.idle[FlushPool] = []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}
	p.idle[CompactionPool] = []time.Duration{750 * time.Millisecond}

	s, stats := agg.Aggregate(opts, time.Second)

	require.InDelta(t, 20.0, s.MemtableSpeed, 1e-9)
	require.InDelta(t, 0.5, s.ActiveSizeRatio, 1e-9)
	require.Equal(t, 1.0, s.ImmutableNumber)
	require.InDelta(t, 20.0, s.FlushSpeedAvg, 1e-9)
	require.InDelta(t, 100.0, s.FlushSpeedVar, 1e-9)
	require.Equal(t, 2.0, s.FlushNumbers)
	require.InDelta(t, 2.0, s.FlushGapTime, 1e-9)
	require.InDelta(t, 0.3, s.L0DropRatio, 1e-9)
	require.InDelta(t, 6.0, s.DiskBandwidth, 1e-9)
	require.InDelta(t, 0.5, s.L0Num, 1e-9)
	require.InDelta(t, 0.25, s.EstimateCompactionBytes, 1e-9)
	require.InDelta(t, 1.0, s.FlushIdleTime, 1e-9)
	require.InDelta(t, 0.5, s.CompactionIdleTime, 1e-9)

	require.Equal(t, 2, stats.FlushEvents)
	require.Equal(t, 3, stats.CompactionEvents)
	require.Equal(t, 2, stats.L0Compactions)
	require.Equal(t, 10.0, stats.MinFlushSpeed)
	require.Equal(t, 2, stats.MinFlushL0Files)
	require.Equal(t, uint64(300), stats.MaxPendingBytes)

	require.Equal(t, Cursors{
		StreamFlush:          2,
		StreamCompaction:     3,
		StreamFlushIdle:      2,
		StreamCompactionIdle: 1,
	}, agg.Cursors())
}

func TestAggregateRoundTripWithoutNewEvents(t *testing.T) {
	opts := DefaultEngineOptions()
	p := newFakeProvider()
	agg := NewAggregator(p)

	p.total = 5e6
	p.flushes = []FlushRecord{{WriteOutBandwidth: 40, TotalBytes: 4e6, Gap: time.Second}}
	p.compactions = []CompactionRecord{{InputLevel: 0, DropRatio: 0.5, TotalBytes: 8e6}}
	p.idle[FlushPool] = []time.Duration{100 * time.Millisecond}

	first, _ := agg.Aggregate(opts, time.Second)
	require.Equal(t, 1.0, first.FlushNumbers)
	cursors := agg.Cursors()

	second, stats := agg.Aggregate(opts, time.Second)
	require.Equal(t, cursors, agg.Cursors())
	require.Zero(t, stats.FlushEvents)
	require.Zero(t, stats.CompactionEvents)
	require.Equal(t, -1, stats.MinFlushL0Files)
	for _, v := range []float64{
		second.MemtableSpeed, second.FlushSpeedAvg, second.FlushSpeedVar,
		second.FlushNumbers, second.FlushGapTime, second.L0DropRatio,
		second.DiskBandwidth, second.FlushIdleTime, second.CompactionIdleTime,
	} {
		require.Zero(t, v)
	}
}

func TestAggregateMemtableGrowthAfterFlush(t *testing.T) {
	opts := DefaultEngineOptions()
	p := newFakeProvider()
	p.total = 100_000_000
	agg := NewAggregator(p)

	// A whole buffer was flushed, so the total dropped below the baseline.
	p.total = 40_000_000
	s, stats := agg.Aggregate(opts, 2*time.Second)
	want := uint64(40_000_000) + opts.WriteBufferSize - 100_000_000
	require.Equal(t, want, stats.MemtableGrowthBytes)
	require.InDelta(t, float64(want)/2/1e6, s.MemtableSpeed, 1e-9)
	require.GreaterOrEqual(t, s.MemtableSpeed, 0.0)
}

func TestAggregateZeroDivisors(t *testing.T) {
	p := newFakeProvider()
	p.active = 10
	p.baseFiles = 4
	p.pending = 99
	p.idle[FlushPool] = []time.Duration{time.Second}
	agg := NewAggregator(p)

	s, _ := agg.Aggregate(EngineOptions{}, 0)
	require.Equal(t, Score{}, s)
}
