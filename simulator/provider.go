package simulator

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/miretskiy/rollingtuner/tuner"
)

var (
	_ tuner.MetricsProvider = (*Simulator)(nil)
	_ tuner.Applier         = (*Simulator)(nil)
)

// MemtableBytes returns the active memtable size and the size of every
// memtable not yet flushed.
func (s *Simulator) MemtableBytes() (active, total uint64) {
	return toBytes(s.lsm.MemtableMB), toBytes(s.lsm.MemtableMB + s.lsm.ImmutableMB())
}

func (s *Simulator) ImmutableMemtables() int { return len(s.lsm.Immutables) }

func (s *Simulator) FlushRecords(from uint64) ([]tuner.FlushRecord, uint64) {
	return tail(s.flushRecords, from)
}

func (s *Simulator) CompactionRecords(from uint64) ([]tuner.CompactionRecord, uint64) {
	return tail(s.compactionRecords, from)
}

// BaseLevelFiles returns the L1 file count
func (s *Simulator) BaseLevelFiles() int { return s.lsm.Levels[1].FileCount() }

func (s *Simulator) PendingCompactionBytes() uint64 { return toBytes(s.pendingCompactionMB()) }

func (s *Simulator) IdleSamples(pool tuner.ThreadPool, from uint64) ([]time.Duration, uint64) {
	if pool == tuner.FlushPool {
		return tail(s.flushIdle, from)
	}
	return tail(s.compactionIdle, from)
}

func tail[T any](records []T, from uint64) ([]T, uint64) {
	n := uint64(len(records))
	if from >= n {
		return nil, n
	}
	out := make([]T, n-from)
	copy(out, records[from:])
	return out, n
}

var knobScopes = map[tuner.Knob]tuner.Scope{
	tuner.KnobMaxBackgroundJobs:        tuner.ScopeDB,
	tuner.KnobMaxBackgroundFlushes:     tuner.ScopeDB,
	tuner.KnobMaxBackgroundCompactions: tuner.ScopeDB,
	tuner.KnobWriteBufferSize:          tuner.ScopeColumnFamily,
	tuner.KnobMaxBytesForLevelBase:     tuner.ScopeColumnFamily,
	tuner.KnobTargetFileSizeBase:       tuner.ScopeColumnFamily,
}

// ApplyChanges plays the role of SetDBOptions/SetOptions. Valid changes take
// effect even when others in the batch are rejected; every rejection is
// reported in the returned error.
func (s *Simulator) ApplyChanges(changes []tuner.ChangePoint) error {
	var result *multierror.Error
	opts := s.config.Engine
	for _, c := range changes {
		scope, ok := knobScopes[c.Knob]
		switch {
		case !ok:
			result = multierror.Append(result, ErrRejectedChange("unknown knob %q", c.Knob))
			continue
		case scope != c.Scope:
			result = multierror.Append(result, ErrRejectedChange("%s is a %s option, got %s", c.Knob, scope, c.Scope))
			continue
		case c.Value == 0:
			result = multierror.Append(result, ErrRejectedChange("%s must be > 0", c.Knob))
			continue
		}

		switch c.Knob {
		case tuner.KnobMaxBackgroundJobs:
			opts.MaxBackgroundJobs = int(c.Value)
		case tuner.KnobMaxBackgroundFlushes:
			opts.MaxBackgroundFlushes = int(c.Value)
		case tuner.KnobMaxBackgroundCompactions:
			opts.MaxBackgroundCompactions = int(c.Value)
		case tuner.KnobWriteBufferSize:
			opts.WriteBufferSize = c.Value
		case tuner.KnobMaxBytesForLevelBase:
			opts.MaxBytesForLevelBase = c.Value
		case tuner.KnobTargetFileSizeBase:
			opts.TargetFileSizeBase = c.Value
		}
		s.logEvent("[t=%.1fs] SetOptions %s", s.virtualTime, c)
	}

	s.config.Engine = opts
	s.lsm.SetTargetFileSize(toMB(opts.TargetFileSizeBase))
	if s.metrics.IsOOMKilled {
		return result.ErrorOrNil()
	}
	s.drainBacklog()
	s.maybeRotate()
	s.scheduleFlushes()
	s.scheduleCompactions()
	return result.ErrorOrNil()
}
