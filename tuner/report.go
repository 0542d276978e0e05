package tuner

import (
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/samber/lo"
)

// Report describes one finished tuning round.
type Report struct {
	TunerID  string        `json:"tunerId"`
	Round    uint64        `json:"round"`
	Policy   PolicyKind    `json:"policy"`
	Score    Score         `json:"score"`
	Best     Score         `json:"best"`
	Avg      Score         `json:"avg"`
	Stats    RoundStats    `json:"stats"`
	Decision Decision      `json:"decision"`
	Before   EmitState     `json:"before"`
	After    EmitState     `json:"after"`
	Changes  []ChangePoint `json:"changes"`
	Cursors  Cursors       `json:"cursors"`
}

// Observer receives each round's report after the changes were handed to the
// applier. applyErr is the applier's result, nil when there was nothing to apply.
type Observer interface {
	Observe(r Report, applyErr error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r Report, applyErr error)

func (f ObserverFunc) Observe(r Report, applyErr error) { f(r, applyErr) }

// LogObserver writes one logfmt line per round.
type LogObserver struct {
	Logger log.Logger
}

func (o LogObserver) Observe(r Report, applyErr error) {
	logger := log.With(o.Logger, "tuner", r.TunerID, "round", r.Round, "policy", r.Policy)
	if applyErr != nil {
		level.Warn(logger).Log("msg", "applying changes failed", "err", applyErr)
	}

	op := r.Decision.Op
	kv := []interface{}{
		"msg", "tuning round",
		"flush_avg", r.Score.FlushSpeedAvg,
		"imm", r.Score.ImmutableNumber,
		"l0", r.Score.L0Num,
		"pending", r.Score.EstimateCompactionBytes,
		"flush_idle", r.Score.FlushIdleTime,
		"comp_idle", r.Score.CompactionIdleTime,
		"ops", strings.Join([]string{
			op.ThreadOp.String(), op.BatchOp.String(), op.FlushThreadOp.String(),
			op.CompactionThreadOp.String(), op.SSTableOp.String(),
		}, "/"),
	}
	switch r.Policy {
	case PolicyRuleTable:
		kv = append(kv, "thread_state", r.Decision.ThreadState, "batch_state", r.Decision.BatchState)
	case PolicyHysteresis:
		h := r.Decision.Hysteresis
		kv = append(kv, "mem_score", h.MemtablePressure, "comp_score", h.CompactionPressure,
			"stall_cnt", h.StallSuspect)
	}
	if len(r.Changes) == 0 {
		level.Debug(logger).Log(kv...)
		return
	}
	kv = append(kv, "changes", strings.Join(lo.Map(r.Changes, func(c ChangePoint, _ int) string {
		return c.String()
	}), ","))
	level.Info(logger).Log(kv...)
}
