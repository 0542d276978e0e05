package tuner

// RuleTablePolicy classifies the round into discrete thread and batch states
// and maps each through a fixed table.
type RuleTablePolicy struct{}

func (RuleTablePolicy) Kind() PolicyKind { return PolicyRuleTable }

func (RuleTablePolicy) Decide(in Input) Decision {
	thread := ClassifyThread(in.Current, in.Best, in.Options.MaxBackgroundJobs)
	batch := ClassifyBatch(in.Current, in.Best, in.Options.MaxBackgroundJobs)
	return Decision{
		Op: TuningOP{
			ThreadOp: threadOpFor(thread),
			BatchOp:  batchOpFor(batch),
		},
		ThreadState: thread,
		BatchState:  batch,
		Hysteresis:  in.Hysteresis,
	}
}

func threadOpFor(l ThreadStallLevel) OpType {
	switch l {
	case L0Stall, PendingBytes:
		return LinearIncrease
	case Idle, BandwidthCongestion:
		return Half
	default:
		return Keep
	}
}

func batchOpFor(l BatchSizeStallLevel) OpType {
	switch l {
	case TinyMemtable:
		return LinearIncrease
	case StallFree:
		return Keep
	default:
		return Half
	}
}
