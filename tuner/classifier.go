package tuner

// ThreadStallLevel classifies thread pressure for the rule-table policy
type ThreadStallLevel int

const (
	GoodArea ThreadStallLevel = iota
	L0Stall
	PendingBytes
	Idle
	BandwidthCongestion
)

func (l ThreadStallLevel) String() string {
	switch l {
	case GoodArea:
		return "good_area"
	case L0Stall:
		return "l0_stall"
	case PendingBytes:
		return "pending_bytes"
	case Idle:
		return "idle"
	case BandwidthCongestion:
		return "bandwidth_congestion"
	default:
		return "unknown"
	}
}

// MarshalText lets reports carry the level by name.
func (l ThreadStallLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// BatchSizeStallLevel classifies memtable (batch size) pressure
type BatchSizeStallLevel int

const (
	StallFree BatchSizeStallLevel = iota
	TinyMemtable
	OverFrequent
)

func (l BatchSizeStallLevel) String() string {
	switch l {
	case StallFree:
		return "stall_free"
	case TinyMemtable:
		return "tiny_memtable"
	case OverFrequent:
		return "over_frequent"
	default:
		return "unknown"
	}
}

// MarshalText lets reports carry the level by name.
func (l BatchSizeStallLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

const (
	slowdownSpeedRatio     = 0.7 // memtable speed below this share of the best means writes slowed down
	congestedFlushRatio    = 0.5 // flush speed at or below this share of the best is congested
	congestionJobThreshold = 6   // background jobs above this can saturate the disk
	overFrequentFlushRatio = 0.3
	idleCompactionRatio    = 2.5
)

func inSlowdown(cur, best Score) bool {
	return cur.MemtableSpeed < best.MemtableSpeed*slowdownSpeedRatio
}

// ClassifyThread maps the current score onto a thread stall level. Rules are
// checked in priority order and the first match wins; rules that compare
// flush speed against the best-ever require at least one flush this round.
func ClassifyThread(cur, best Score, jobs int) ThreadStallLevel {
	slowdown := inSlowdown(cur, best)
	hasFlush := cur.FlushNumbers > 0
	switch {
	case slowdown && cur.ImmutableNumber >= 1 && hasFlush &&
		cur.FlushSpeedAvg <= best.FlushSpeedAvg*congestedFlushRatio && jobs > congestionJobThreshold:
		return BandwidthCongestion
	case slowdown && cur.ImmutableNumber >= 1 && cur.L0Num > 0.5:
		return L0Stall
	case slowdown && cur.ImmutableNumber == 0 && cur.L0Num > 0.7:
		return L0Stall
	case slowdown && cur.EstimateCompactionBytes > 0.5:
		return PendingBytes
	case !slowdown && cur.CompactionIdleTime > idleCompactionRatio:
		return Idle
	}
	return GoodArea
}

// ClassifyBatch maps the current score onto a batch-size stall level.
func ClassifyBatch(cur, best Score, jobs int) BatchSizeStallLevel {
	slowFlush := cur.FlushNumbers > 0 && cur.FlushSpeedAvg < best.FlushSpeedAvg*congestedFlushRatio
	if inSlowdown(cur, best) && slowFlush {
		if (cur.ActiveSizeRatio > 0.5 && cur.ImmutableNumber >= 1) ||
			jobs > congestionJobThreshold || cur.L0Num > 0.9 {
			return TinyMemtable
		}
	}
	if cur.FlushNumbers < best.FlushNumbers*overFrequentFlushRatio {
		return OverFrequent
	}
	return StallFree
}
