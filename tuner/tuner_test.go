package tuner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidInput(t *testing.T) {
	cfg := testConfig()
	cfg.MinThreads = 0
	_, err := New(cfg, DefaultEngineOptions(), newFakeProvider())
	var cerr ConfigError
	require.ErrorAs(t, err, &cerr)

	opts := DefaultEngineOptions()
	opts.WriteBufferSize = 0
	_, err = New(testConfig(), opts, newFakeProvider())
	require.ErrorContains(t, err, "writeBufferSize")

	_, err = New(testConfig(), DefaultEngineOptions(), nil)
	require.Error(t, err)
}

func TestNewInitialState(t *testing.T) {
	opts := DefaultEngineOptions()
	opts.MaxBackgroundJobs = 8
	tu, err := New(testConfig(), opts, newFakeProvider())
	require.NoError(t, err)

	require.NotEqual(t, "", tu.ID().String())
	require.Equal(t, time.Second, tu.Interval())
	require.Equal(t, opts, tu.Options())
	require.Equal(t, opts, tu.DefaultOptions())
	require.Equal(t, EmitState{Options: opts, FlushThreads: 2, CompactionThreads: 6, ThreadCap: 12}, tu.State())
	require.Zero(t, tu.Round())
}

func TestTuneThresholdStarvation(t *testing.T) {
	cfg := testConfig()
	cfg.Policy = PolicyThreshold
	opts := DefaultEngineOptions()
	p := newFakeProvider()
	tu, err := New(cfg, opts, p)
	require.NoError(t, err)

	p.immutables = 2
	p.pending = opts.SoftPendingCompactionBytesLimit * 13 / 10

	r := tu.Tune()
	require.Equal(t, uint64(1), r.Round)
	require.Equal(t, PolicyThreshold, r.Policy)
	require.Equal(t, LinearIncrease, r.Decision.Op.ThreadOp)
	require.Equal(t, Half, r.Decision.Op.BatchOp)
	require.Equal(t, []ChangePoint{
		{Knob: KnobWriteBufferSize, Scope: ScopeColumnFamily, Value: 32 * mb},
		{Knob: KnobMaxBytesForLevelBase, Scope: ScopeColumnFamily, Value: 128 * mb},
		{Knob: KnobTargetFileSizeBase, Scope: ScopeColumnFamily, Value: 32 * mb},
		{Knob: KnobMaxBackgroundJobs, Scope: ScopeDB, Value: 4},
	}, r.Changes)

	// The tuner assumes the changes were applied.
	require.Equal(t, 4, tu.Options().MaxBackgroundJobs)
	require.Equal(t, 32*mb, tu.Options().WriteBufferSize)
	require.Equal(t, opts, r.Before.Options)
	require.Equal(t, tu.State(), r.After)
}

func TestTuneHysteresisMemtablePressure(t *testing.T) {
	cfg := testConfig()
	opts := DefaultEngineOptions()
	p := newFakeProvider()
	tu, err := New(cfg, opts, p)
	require.NoError(t, err)

	p.immutables = 1
	r := tu.Tune()
	require.Equal(t, TuningOP{FlushThreadOp: LinearIncrease, BatchOp: LinearIncrease}, r.Decision.Op)
	require.Equal(t, []ChangePoint{
		{Knob: KnobWriteBufferSize, Scope: ScopeColumnFamily, Value: 128 * mb},
		{Knob: KnobMaxBytesForLevelBase, Scope: ScopeColumnFamily, Value: 512 * mb},
		{Knob: KnobMaxBackgroundFlushes, Scope: ScopeDB, Value: 2},
	}, r.Changes)
	require.Equal(t, opts.TargetFileSizeBase, tu.Options().TargetFileSizeBase)
	require.Equal(t, 1, tu.Hysteresis().MemtablePressure)
	require.Equal(t, 2, tu.State().FlushThreads)

	// Pressure clears: nothing shrinks until the relax counter fills.
	p.immutables = 0
	r = tu.Tune()
	require.Equal(t, Keep, r.Decision.Op.FlushThreadOp)
	require.Zero(t, tu.Hysteresis().MemtablePressure)
	require.Equal(t, uint64(2), tu.Round())
	require.Equal(t, 2, tu.Baselines().Len())
}

func TestTuneRuleTableReportsStates(t *testing.T) {
	cfg := testConfig()
	cfg.Policy = PolicyRuleTable
	p := newFakeProvider()
	tu, err := New(cfg, DefaultEngineOptions(), p)
	require.NoError(t, err)

	p.flushes = append(p.flushes, FlushRecord{WriteOutBandwidth: 50, TotalBytes: 1e6})
	p.total = 50e6
	r := tu.Tune()
	require.Equal(t, GoodArea, r.Decision.ThreadState)
	require.Equal(t, StallFree, r.Decision.BatchState)
	require.Empty(t, r.Changes)
	require.Equal(t, uint64(1), r.Cursors[StreamFlush])
}

func TestSyncEngineOptions(t *testing.T) {
	tu, err := New(testConfig(), DefaultEngineOptions(), newFakeProvider())
	require.NoError(t, err)

	opts := DefaultEngineOptions()
	opts.MaxBackgroundJobs = 8
	opts.MaxBackgroundFlushes = 3
	tu.SyncEngineOptions(opts)
	require.Equal(t, opts, tu.Options())
	require.Equal(t, 3, tu.State().FlushThreads)
	require.Equal(t, 5, tu.State().CompactionThreads)
}
