package tuner

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Tuner is the controller state for one tuned engine. It is created at attach
// time and mutated only by Tune. Tune must not be called concurrently.
type Tuner struct {
	id        uuid.UUID
	cfg       Config
	defaults  EngineOptions
	policy    Policy
	emitter   *Emitter
	agg       *Aggregator
	baselines *Baselines

	state      EmitState
	hysteresis HysteresisState
	round      uint64
}

// New attaches a tuner to an engine whose starting options are opts.
func New(cfg Config, opts EngineOptions, provider MetricsProvider) (*Tuner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "engine options")
	}
	if provider == nil {
		return nil, ErrInvalidConfig("metrics provider is required")
	}
	policy, err := NewPolicy(cfg)
	if err != nil {
		return nil, err
	}

	flush, compaction := opts.threadSplit()
	return &Tuner{
		id:        uuid.New(),
		cfg:       cfg,
		defaults:  opts,
		policy:    policy,
		emitter:   NewEmitter(cfg, opts),
		agg:       NewAggregator(provider),
		baselines: NewBaselines(cfg.AvgWindow),
		state: EmitState{
			Options:           opts,
			FlushThreads:      flush,
			CompactionThreads: compaction,
			ThreadCap:         cfg.MaxThreads,
		},
	}, nil
}

// Tune runs one round: aggregate the interval's metrics, update the
// baselines, decide and emit. The returned report carries the change list.
func (t *Tuner) Tune() Report {
	interval := t.Interval()
	score, stats := t.agg.Aggregate(t.state.Options, interval)

	t.baselines.UpdateMaxScore(score)
	t.baselines.Push(score)
	avg := t.baselines.CalculateAvgScore()

	decision := t.policy.Decide(Input{
		Current:           score,
		Best:              t.baselines.Best(),
		Avg:               avg,
		Options:           t.state.Options,
		FlushThreads:      t.state.FlushThreads,
		CompactionThreads: t.state.CompactionThreads,
		Hysteresis:        t.hysteresis,
	})
	t.hysteresis = decision.Hysteresis

	before := t.state
	changes, next := t.emitter.Emit(t.state, decision.Op)
	t.state = next
	t.round++

	return Report{
		TunerID:  t.id.String(),
		Round:    t.round,
		Policy:   t.policy.Kind(),
		Score:    score,
		Best:     t.baselines.Best(),
		Avg:      avg,
		Stats:    stats,
		Decision: decision,
		Before:   before,
		After:    next,
		Changes:  changes,
		Cursors:  t.agg.Cursors(),
	}
}

// SyncEngineOptions replaces the tuner's view of the live options, for
// callers that learn the applier rejected or altered a change. Thread counts
// are re-derived from opts.
func (t *Tuner) SyncEngineOptions(opts EngineOptions) {
	t.state.Options = opts
	t.state.FlushThreads, t.state.CompactionThreads = opts.threadSplit()
}

// ID identifies this attachment in logs and reports.
func (t *Tuner) ID() uuid.UUID { return t.id }

// Config returns the bounds the tuner was attached with.
func (t *Tuner) Config() Config { return t.cfg }

// Interval returns the configured round length.
func (t *Tuner) Interval() time.Duration {
	return time.Duration(t.cfg.IntervalSeconds * float64(time.Second))
}

// Options returns the options the tuner believes are live.
func (t *Tuner) Options() EngineOptions { return t.state.Options }

// DefaultOptions returns the attach-time options.
func (t *Tuner) DefaultOptions() EngineOptions { return t.defaults }

// State returns the thread bookkeeping and live options.
func (t *Tuner) State() EmitState { return t.state }

// Hysteresis returns the accumulators carried between rounds.
func (t *Tuner) Hysteresis() HysteresisState { return t.hysteresis }

// Baselines exposes the best-ever and rolling-average tracker.
func (t *Tuner) Baselines() *Baselines { return t.baselines }

// Round returns the number of completed rounds.
func (t *Tuner) Round() uint64 { return t.round }
