package tuner

// ThresholdPolicy runs two independent checks: one for the background job
// count and one for the memtable size. Later checks override earlier ones.
type ThresholdPolicy struct {
	SlowFlush    float64 // fraction of the best flush speed considered slow
	ThreadTuning bool
	BatchTuning  bool
}

func (ThresholdPolicy) Kind() PolicyKind { return PolicyThreshold }

func (p ThresholdPolicy) Decide(in Input) Decision {
	var op TuningOP
	if p.ThreadTuning {
		op.ThreadOp = p.threadOp(in.Current, in.Best)
	}
	if p.BatchTuning {
		op.BatchOp = p.batchOp(in.Current, in.Best)
	}
	return Decision{Op: op, Hysteresis: in.Hysteresis}
}

// slowFlush is false without a flush this round; zero speed means no signal.
func (p ThresholdPolicy) slowFlush(cur, best Score) bool {
	return cur.FlushSpeedAvg > 0 && cur.FlushSpeedAvg < best.FlushSpeedAvg*p.SlowFlush
}

func (p ThresholdPolicy) threadOp(cur, best Score) OpType {
	op := Keep
	if cur.ImmutableNumber >= 1 {
		op = LinearIncrease
	}
	if p.slowFlush(cur, best) {
		op = Half
	}
	// Compaction backlog wins over a slow flush.
	if cur.EstimateCompactionBytes >= 1 || cur.L0Num >= 1 {
		op = LinearIncrease
	}
	return op
}

func (p ThresholdPolicy) batchOp(cur, best Score) OpType {
	op := Keep
	if p.slowFlush(cur, best) || cur.ImmutableNumber > 1 {
		op = LinearIncrease
	}
	if cur.EstimateCompactionBytes >= 1 {
		op = Half
	}
	return op
}
