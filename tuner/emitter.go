package tuner

import "github.com/samber/lo"

// EmitState is the part of the controller state the emitter reads and
// rewrites: the options believed to be live plus the thread bookkeeping.
type EmitState struct {
	Options           EngineOptions `json:"options"`
	FlushThreads      int           `json:"flushThreads"`
	CompactionThreads int           `json:"compactionThreads"`
	ThreadCap         int           `json:"threadCap"` // current ceiling for flush + compaction threads
}

// Emitter turns a TuningOP into clamped change records.
type Emitter struct {
	cfg          Config
	memtableStep uint64
	sstableStep  uint64

	// sstableFollowsMemtable moves the SSTable target with the memtable when
	// no SSTable op is set. Hysteresis sizes the two independently.
	sstableFollowsMemtable bool
}

// NewEmitter resolves zero step sizes in cfg against the attach-time options.
func NewEmitter(cfg Config, defaults EngineOptions) *Emitter {
	e := &Emitter{
		cfg:          cfg,
		memtableStep: cfg.MemtableStep,
		sstableStep:  cfg.SSTableStep,

		sstableFollowsMemtable: cfg.Policy != PolicyHysteresis,
	}
	if e.memtableStep == 0 {
		e.memtableStep = defaults.WriteBufferSize
	}
	if e.sstableStep == 0 {
		e.sstableStep = defaults.TargetFileSizeBase
	}
	return e
}

func stepSize(cur uint64, op OpType, step uint64) uint64 {
	switch op {
	case LinearIncrease:
		return cur + step
	case Half:
		return cur / 2
	}
	return cur
}

func stepThreads(cur int, op OpType, step int) int {
	switch op {
	case LinearIncrease:
		return cur + step
	case Half:
		return cur / 2
	}
	return cur
}

// Emit returns the ordered change list for op together with the state the
// engine will be in once every change is applied. A record is emitted only
// when its clamped value differs from the current one.
func (e *Emitter) Emit(st EmitState, op TuningOP) ([]ChangePoint, EmitState) {
	var changes []ChangePoint
	next := st
	cur := st.Options

	// Sizes.
	memtable := cur.WriteBufferSize
	if op.BatchOp != Keep {
		memtable = lo.Clamp(stepSize(memtable, op.BatchOp, e.memtableStep),
			e.cfg.MinMemtableSize, e.cfg.MaxMemtableSize)
	}
	memtableMoved := memtable != cur.WriteBufferSize

	sstable := cur.TargetFileSizeBase
	switch {
	case op.SSTableOp != Keep:
		sstable = lo.Clamp(stepSize(sstable, op.SSTableOp, e.sstableStep),
			e.cfg.MinSSTableSize, e.cfg.MaxSSTableSize)
	case memtableMoved && e.sstableFollowsMemtable:
		sstable = lo.Clamp(memtable, e.cfg.MinSSTableSize, e.cfg.MaxSSTableSize)
	}

	var sizes []ChangePoint
	if memtableMoved {
		sizes = append(sizes, ChangePoint{Knob: KnobWriteBufferSize, Scope: ScopeColumnFamily, Value: memtable})
		next.Options.WriteBufferSize = memtable
		l1 := uint64(cur.Level0FileNumCompactionTrigger) * uint64(cur.MinWriteBufferNumberToMerge) * memtable
		if l1 != cur.MaxBytesForLevelBase {
			sizes = append(sizes, ChangePoint{Knob: KnobMaxBytesForLevelBase, Scope: ScopeColumnFamily, Value: l1})
			next.Options.MaxBytesForLevelBase = l1
		}
	}
	if sstable != cur.TargetFileSizeBase {
		sizes = append(sizes, ChangePoint{Knob: KnobTargetFileSizeBase, Scope: ScopeColumnFamily, Value: sstable})
		next.Options.TargetFileSizeBase = sstable
	}

	// Threads.
	if op.FlushThreadOp == Keep && op.CompactionThreadOp == Keep {
		changes = append(changes, sizes...)
		if op.ThreadOp != Keep {
			jobs := lo.Clamp(stepThreads(cur.MaxBackgroundJobs, op.ThreadOp, e.cfg.ThreadStep),
				e.cfg.MinThreads, e.cfg.MaxThreads)
			if jobs != cur.MaxBackgroundJobs {
				changes = append(changes, ChangePoint{Knob: KnobMaxBackgroundJobs, Scope: ScopeDB, Value: uint64(jobs)})
				next.Options.MaxBackgroundJobs = jobs
			}
		}
		return changes, next
	}

	threadCap := max(st.ThreadCap, cur.MaxBackgroundJobs)

	flush := max(1, stepThreads(st.FlushThreads, op.FlushThreadOp, 1))
	flush = min(flush, e.cfg.FlushThreadCap, max(1, threadCap-e.cfg.MinThreads))
	compaction := lo.Clamp(stepThreads(st.CompactionThreads, op.CompactionThreadOp, 1), 1, threadCap)

	limit := min(e.cfg.HardwareConcurrency, max(threadCap, flush+compaction))
	if limit > threadCap {
		changes = append(changes, ChangePoint{Knob: KnobMaxBackgroundJobs, Scope: ScopeDB, Value: uint64(limit)})
		next.Options.MaxBackgroundJobs = limit
		threadCap = limit
	}
	// The whole excess comes off each pool, which can leave slots unused.
	if excess := flush + compaction - limit; excess > 0 {
		flush = max(1, flush-excess)
		compaction = max(1, compaction-excess)
	}
	next.ThreadCap = threadCap

	changes = append(changes, sizes...)
	if flush != st.FlushThreads {
		changes = append(changes, ChangePoint{Knob: KnobMaxBackgroundFlushes, Scope: ScopeDB, Value: uint64(flush)})
		next.FlushThreads = flush
		next.Options.MaxBackgroundFlushes = flush
	}
	if compaction != st.CompactionThreads {
		changes = append(changes, ChangePoint{Knob: KnobMaxBackgroundCompactions, Scope: ScopeDB, Value: uint64(compaction)})
		next.CompactionThreads = compaction
		next.Options.MaxBackgroundCompactions = compaction
	}
	return changes, next
}
