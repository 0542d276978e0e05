package tuner

import (
	"encoding/json"
	"fmt"
)

// OpType is the direction a policy wants to move one knob family
type OpType int

const (
	Keep OpType = iota
	LinearIncrease
	Half
)

func (o OpType) String() string {
	switch o {
	case Keep:
		return "keep"
	case LinearIncrease:
		return "linear_increase"
	case Half:
		return "half"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler for OpType
func (o OpType) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON implements json.Unmarshaler for OpType
func (o *OpType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "keep":
		*o = Keep
	case "linear_increase":
		*o = LinearIncrease
	case "half":
		*o = Half
	default:
		return fmt.Errorf("invalid op: %s", s)
	}
	return nil
}

// TuningOP is one round's decision. Fields a policy does not drive stay Keep.
type TuningOP struct {
	ThreadOp           OpType `json:"threadOp"` // max_background_jobs as a whole
	BatchOp            OpType `json:"batchOp"`  // memtable size
	FlushThreadOp      OpType `json:"flushThreadOp"`
	CompactionThreadOp OpType `json:"compactionThreadOp"`
	SSTableOp          OpType `json:"sstableOp"`
}

// IsKeep reports whether the decision changes nothing.
func (op TuningOP) IsKeep() bool {
	return op == TuningOP{}
}

// Input is everything a policy may look at in one round.
type Input struct {
	Current           Score
	Best              Score
	Avg               Score
	Options           EngineOptions
	FlushThreads      int
	CompactionThreads int
	Hysteresis        HysteresisState
}

// Decision is a policy's output. Policies without discrete states leave the
// state fields at their zero value; policies without memory return the
// incoming HysteresisState untouched.
type Decision struct {
	Op          TuningOP            `json:"op"`
	ThreadState ThreadStallLevel    `json:"threadState"`
	BatchState  BatchSizeStallLevel `json:"batchState"`
	Hysteresis  HysteresisState     `json:"hysteresis"`
}

// Policy turns a round's scores into a TuningOP. Implementations are pure:
// any memory they need travels through Input and Decision.
type Policy interface {
	Kind() PolicyKind
	Decide(in Input) Decision
}

// NewPolicy returns the policy selected by cfg.Policy.
func NewPolicy(cfg Config) (Policy, error) {
	switch cfg.Policy {
	case PolicyRuleTable:
		return RuleTablePolicy{}, nil
	case PolicyThreshold:
		return ThresholdPolicy{
			SlowFlush:    cfg.SlowFlushThreshold,
			ThreadTuning: cfg.Threshold.ThreadTuning,
			BatchTuning:  cfg.Threshold.BatchTuning,
		}, nil
	case PolicyHysteresis:
		return HysteresisPolicy{
			MinThreads: cfg.MinThreads,
			SlowFlush:  cfg.SlowFlushThreshold,
		}, nil
	default:
		return nil, ErrInvalidConfig("unknown policy %d", int(cfg.Policy))
	}
}
