package tuner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPolicy(t *testing.T) {
	for _, kind := range []PolicyKind{PolicyRuleTable, PolicyThreshold, PolicyHysteresis} {
		cfg := DefaultConfig()
		cfg.Policy = kind
		p, err := NewPolicy(cfg)
		require.NoError(t, err)
		require.Equal(t, kind, p.Kind())
	}

	cfg := DefaultConfig()
	cfg.Policy = PolicyKind(42)
	_, err := NewPolicy(cfg)
	require.Error(t, err)
}

func TestRuleTablePolicy(t *testing.T) {
	tests := []struct {
		thread ThreadStallLevel
		want   OpType
	}{
		{L0Stall, LinearIncrease},
		{PendingBytes, LinearIncrease},
		{GoodArea, Keep},
		{Idle, Half},
		{BandwidthCongestion, Half},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, threadOpFor(tt.thread), tt.thread.String())
	}
	require.Equal(t, LinearIncrease, batchOpFor(TinyMemtable))
	require.Equal(t, Keep, batchOpFor(StallFree))
	require.Equal(t, Half, batchOpFor(OverFrequent))

	d := RuleTablePolicy{}.Decide(Input{
		Current: starvedScore(0.3),
		Best:    healthyBest,
		Options: EngineOptions{MaxBackgroundJobs: 8},
	})
	require.Equal(t, PendingBytes, d.ThreadState)
	require.Equal(t, OverFrequent, d.BatchState)
	require.Equal(t, TuningOP{ThreadOp: LinearIncrease, BatchOp: Half}, d.Op)
}

func TestThresholdPolicyStarvation(t *testing.T) {
	p := ThresholdPolicy{SlowFlush: 0.5, ThreadTuning: true, BatchTuning: true}
	d := p.Decide(Input{Current: starvedScore(0.3), Best: healthyBest})
	require.Equal(t, LinearIncrease, d.Op.ThreadOp)
	// Backlog shrinks the memtable even though immutables are piling up.
	require.Equal(t, Half, d.Op.BatchOp)
}

func TestThresholdPolicyOverrides(t *testing.T) {
	p := ThresholdPolicy{SlowFlush: 0.5, ThreadTuning: true, BatchTuning: true}

	slow := Score{ImmutableNumber: 1, FlushSpeedAvg: 10, FlushNumbers: 1}
	d := p.Decide(Input{Current: slow, Best: healthyBest})
	require.Equal(t, Half, d.Op.ThreadOp)
	require.Equal(t, LinearIncrease, d.Op.BatchOp)

	slow.L0Num = 1
	d = p.Decide(Input{Current: slow, Best: healthyBest})
	require.Equal(t, LinearIncrease, d.Op.ThreadOp)

	// Zero flush speed is no signal, not a slow flush.
	noFlush := Score{ImmutableNumber: 1}
	d = p.Decide(Input{Current: noFlush, Best: healthyBest})
	require.Equal(t, LinearIncrease, d.Op.ThreadOp)
	require.Equal(t, Keep, d.Op.BatchOp)

	noFlush.ImmutableNumber = 2
	d = p.Decide(Input{Current: noFlush, Best: healthyBest})
	require.Equal(t, LinearIncrease, d.Op.BatchOp)
}

func TestThresholdPolicyHalvesCanBeDisabled(t *testing.T) {
	cur := starvedScore(0.3)

	d := ThresholdPolicy{SlowFlush: 0.5, BatchTuning: true}.Decide(Input{Current: cur, Best: healthyBest})
	require.Equal(t, Keep, d.Op.ThreadOp)
	require.Equal(t, Half, d.Op.BatchOp)

	d = ThresholdPolicy{SlowFlush: 0.5, ThreadTuning: true}.Decide(Input{Current: cur, Best: healthyBest})
	require.Equal(t, LinearIncrease, d.Op.ThreadOp)
	require.Equal(t, Keep, d.Op.BatchOp)
}

func TestOpTypeJSON(t *testing.T) {
	data, err := json.Marshal(TuningOP{ThreadOp: LinearIncrease, SSTableOp: Half})
	require.NoError(t, err)
	require.JSONEq(t, `{"threadOp":"linear_increase","batchOp":"keep","flushThreadOp":"keep",
		"compactionThreadOp":"keep","sstableOp":"half"}`, string(data))

	var op TuningOP
	require.NoError(t, json.Unmarshal(data, &op))
	require.Equal(t, TuningOP{ThreadOp: LinearIncrease, SSTableOp: Half}, op)
	require.False(t, op.IsKeep())
	require.True(t, TuningOP{}.IsKeep())

	var bad OpType
	require.Error(t, json.Unmarshal([]byte(`"double"`), &bad))
}
