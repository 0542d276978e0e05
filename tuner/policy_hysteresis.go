package tuner

const (
	maxPressureScore = 4   // ceiling for both pressure accumulators and the stall counter
	relaxRounds      = 2   // pressure-free rounds before shrinking
	idleThreshold    = 0.5 // idle ratio above which a pool is over-provisioned
	minShrinkThreads = 2   // compaction threads are never halved at or below this
)

// HysteresisState is the memory carried between hysteresis rounds.
type HysteresisState struct {
	MemtablePressure   int `json:"memtablePressure"`   // [0, 4]
	CompactionPressure int `json:"compactionPressure"` // [0, 4]
	MemtableRelax      int `json:"memtableRelax"`      // [0, 2]
	CompactionRelax    int `json:"compactionRelax"`    // [0, 2]
	StallSuspect       int `json:"stallSuspect"`       // [0, 4]
}

// HysteresisPolicy damps oscillation with saturating pressure accumulators
// and relax counters. It drives flush threads, compaction threads, memtable
// size and SSTable size independently.
type HysteresisPolicy struct {
	MinThreads int
	SlowFlush  float64
}

func (HysteresisPolicy) Kind() PolicyKind { return PolicyHysteresis }

// accumulate moves v one step toward limit when cond holds and one step
// toward zero otherwise.
func accumulate(v int, cond bool, limit int) int {
	if cond {
		return min(v+1, limit)
	}
	return max(v-1, 0)
}

// relax counts consecutive pressure-free rounds up to relaxRounds.
func relax(v int, pressure bool) int {
	if pressure {
		return 0
	}
	return min(v+1, relaxRounds)
}

func (p HysteresisPolicy) Decide(in Input) Decision {
	cur := in.Current
	st := in.Hysteresis

	baseline := in.Avg.FlushSpeedAvg
	if baseline <= 0 {
		baseline = in.Best.FlushSpeedAvg
	}
	slowFlush := cur.FlushSpeedAvg > 0 && baseline > 0 &&
		cur.FlushSpeedAvg < baseline*min(0.9, p.SlowFlush+0.2)
	memtablePressure := slowFlush || cur.ImmutableNumber >= 1 || cur.ActiveSizeRatio >= 0.5
	compactionPressure := cur.L0Num >= 1.0 || cur.EstimateCompactionBytes >= 1.0
	severe := cur.EstimateCompactionBytes >= 1.5 || cur.L0Num >= 1.2

	st.MemtablePressure = accumulate(st.MemtablePressure, memtablePressure, maxPressureScore)
	st.CompactionPressure = accumulate(st.CompactionPressure, compactionPressure, maxPressureScore)
	st.MemtableRelax = relax(st.MemtableRelax, memtablePressure)
	st.CompactionRelax = relax(st.CompactionRelax, compactionPressure)

	suspectStall := slowFlush && in.Avg.MemtableSpeed > 0 &&
		cur.MemtableSpeed < in.Avg.MemtableSpeed*0.5
	st.StallSuspect = accumulate(st.StallSuspect, suspectStall, maxPressureScore)

	var op TuningOP

	switch {
	case memtablePressure || st.MemtablePressure >= 1 || st.StallSuspect >= 1:
		op.FlushThreadOp = LinearIncrease
	case st.MemtableRelax >= relaxRounds && in.FlushThreads > p.MinThreads:
		op.FlushThreadOp = Half
	}

	compactionTrigger := 3
	if severe {
		compactionTrigger = 1
	}
	switch {
	case st.CompactionPressure >= compactionTrigger:
		op.CompactionThreadOp = LinearIncrease
	case st.CompactionRelax >= relaxRounds && in.CompactionThreads > minShrinkThreads:
		op.CompactionThreadOp = Half
	}

	// Idle reclaim only applies when nothing above already moved the pool.
	if op.FlushThreadOp == Keep && !memtablePressure &&
		cur.FlushIdleTime > idleThreshold && in.FlushThreads > p.MinThreads {
		op.FlushThreadOp = Half
	}
	if op.CompactionThreadOp == Keep && !compactionPressure &&
		cur.CompactionIdleTime > idleThreshold && in.CompactionThreads > minShrinkThreads {
		op.CompactionThreadOp = Half
	}

	switch {
	case memtablePressure:
		op.BatchOp = LinearIncrease
	case compactionPressure:
		op.BatchOp = Half
	}

	sstableTrigger := 2
	if severe {
		sstableTrigger = 1
	}
	switch {
	case st.CompactionPressure >= sstableTrigger:
		op.SSTableOp = LinearIncrease
	case st.CompactionRelax >= relaxRounds && !memtablePressure:
		op.SSTableOp = Half
	}

	return Decision{Op: op, Hysteresis: st}
}
