package tuner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// starvedScore has immutables piling up, no flush finished this round and a
// compaction backlog 1.3x the soft limit.
func starvedScore(l0 float64) Score {
	return Score{
		MemtableSpeed:           1,
		ImmutableNumber:         2,
		EstimateCompactionBytes: 1.3,
		L0Num:                   l0,
	}
}

var healthyBest = Score{MemtableSpeed: 10, FlushSpeedAvg: 50, FlushNumbers: 5}

func TestClassifyThread(t *testing.T) {
	tests := []struct {
		name string
		cur  Score
		best Score
		jobs int
		want ThreadStallLevel
	}{
		{
			name: "starvation with low l0 is pending bytes",
			cur:  starvedScore(0.3), best: healthyBest, jobs: 8,
			want: PendingBytes,
		},
		{
			name: "starvation with high l0 is l0 stall",
			cur:  starvedScore(0.6), best: healthyBest, jobs: 8,
			want: L0Stall,
		},
		{
			name: "slow flush with many jobs is congestion",
			cur:  Score{MemtableSpeed: 1, ImmutableNumber: 1, FlushSpeedAvg: 10, FlushNumbers: 2, L0Num: 0.6},
			best: healthyBest, jobs: 8,
			want: BandwidthCongestion,
		},
		{
			name: "slow flush with few jobs falls through to l0 stall",
			cur:  Score{MemtableSpeed: 1, ImmutableNumber: 1, FlushSpeedAvg: 10, FlushNumbers: 2, L0Num: 0.6},
			best: healthyBest, jobs: 4,
			want: L0Stall,
		},
		{
			name: "no immutables needs higher l0",
			cur:  Score{MemtableSpeed: 1, L0Num: 0.8},
			best: healthyBest, jobs: 2,
			want: L0Stall,
		},
		{
			name: "idle compaction pool",
			cur:  Score{MemtableSpeed: 10, CompactionIdleTime: 3},
			best: healthyBest, jobs: 2,
			want: Idle,
		},
		{
			name: "slowdown masks idle",
			cur:  Score{MemtableSpeed: 1, CompactionIdleTime: 3},
			best: healthyBest, jobs: 2,
			want: GoodArea,
		},
		{
			name: "zero baseline",
			cur:  Score{}, best: Score{}, jobs: 2,
			want: GoodArea,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifyThread(tt.cur, tt.best, tt.jobs))
		})
	}
}

func TestClassifyBatch(t *testing.T) {
	tests := []struct {
		name string
		cur  Score
		best Score
		jobs int
		want BatchSizeStallLevel
	}{
		{
			name: "full memtable with slow flush",
			cur:  Score{MemtableSpeed: 1, FlushSpeedAvg: 10, FlushNumbers: 5, ActiveSizeRatio: 0.6, ImmutableNumber: 1},
			best: healthyBest, jobs: 2,
			want: TinyMemtable,
		},
		{
			name: "slow flush with many jobs",
			cur:  Score{MemtableSpeed: 1, FlushSpeedAvg: 10, FlushNumbers: 5},
			best: healthyBest, jobs: 8,
			want: TinyMemtable,
		},
		{
			name: "few flushes compared to best",
			cur:  Score{MemtableSpeed: 10, FlushSpeedAvg: 50, FlushNumbers: 1},
			best: healthyBest, jobs: 2,
			want: OverFrequent,
		},
		{
			name: "starvation without flushes",
			cur:  starvedScore(0.3), best: healthyBest, jobs: 8,
			want: OverFrequent,
		},
		{
			name: "steady state",
			cur:  Score{MemtableSpeed: 10, FlushSpeedAvg: 50, FlushNumbers: 5},
			best: healthyBest, jobs: 2,
			want: StallFree,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifyBatch(tt.cur, tt.best, tt.jobs))
		})
	}
}

func TestStallLevelNames(t *testing.T) {
	require.Equal(t, "bandwidth_congestion", BandwidthCongestion.String())
	require.Equal(t, "tiny_memtable", TinyMemtable.String())
	text, err := PendingBytes.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "pending_bytes", string(text))
}
