package integration

import (
	"os"

	"github.com/pkg/errors"

	"github.com/miretskiy/rollingtuner/simulator"
	"github.com/miretskiy/rollingtuner/tuner"
)

// Config is the file layout shared by the closed-loop binaries.
type Config struct {
	Sim   simulator.SimConfig `json:"sim" yaml:"sim"`
	Tuner tuner.Config        `json:"tuner" yaml:"tuner"`
}

// DefaultConfig returns the simulator and tuner defaults.
func DefaultConfig() Config {
	return Config{Sim: simulator.DefaultConfig(), Tuner: tuner.DefaultConfig()}
}

// LoadConfig reads a JSON or YAML file (by extension) on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := tuner.Decode(path, data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Loop couples a simulated engine with a tuner attached to it. Each round
// advances the engine by exactly one tuning interval of virtual time, so a
// closed-loop run is deterministic for a fixed seed.
type Loop struct {
	Sim    *simulator.Simulator
	Tuner  *tuner.Tuner
	Runner *tuner.Runner
	cfg    Config
}

// NewLoop builds the engine, attaches a tuner to it and routes the tuner's
// changes back into the engine.
func NewLoop(cfg Config, observer tuner.Observer) (*Loop, error) {
	l := &Loop{cfg: cfg}
	if err := l.attach(observer); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loop) attach(observer tuner.Observer) error {
	sim, err := simulator.NewSimulator(l.cfg.Sim)
	if err != nil {
		return errors.Wrap(err, "creating simulator")
	}
	tu, err := tuner.New(l.cfg.Tuner, l.cfg.Sim.Engine, sim)
	if err != nil {
		return errors.Wrap(err, "attaching tuner")
	}
	if l.Sim != nil {
		sim.LogEvent = l.Sim.LogEvent
	}
	l.Sim, l.Tuner = sim, tu
	l.Runner = &tuner.Runner{Tuner: tu, Applier: sim, Observer: observer}
	return nil
}

// Config returns the config the loop was built from.
func (l *Loop) Config() Config { return l.cfg }

// Round advances the engine one tuning interval and runs one tuning round.
func (l *Loop) Round() tuner.Report {
	l.Sim.StepByDelta(l.Tuner.Interval().Seconds())
	return l.Runner.Step()
}

// RunUntil runs rounds until the virtual clock reaches seconds or the engine
// is OOM killed.
func (l *Loop) RunUntil(seconds float64) []tuner.Report {
	var reports []tuner.Report
	for l.Sim.VirtualTime() < seconds && !l.Sim.Metrics().IsOOMKilled {
		reports = append(reports, l.Round())
	}
	return reports
}

// Reset restarts the engine from the loop's config and attaches a new tuner.
// A nil cfg keeps the current config.
func (l *Loop) Reset(cfg *Config) error {
	next := *l
	if cfg != nil {
		next.cfg = *cfg
	}
	if err := next.attach(l.Runner.Observer); err != nil {
		return err
	}
	*l = next
	return nil
}

// UpdateTraffic swaps the write pattern without restarting the engine or the
// tuner.
func (l *Loop) UpdateTraffic(traffic simulator.TrafficConfig) error {
	live := l.Sim.Config()
	live.Traffic = traffic
	if err := l.Sim.UpdateConfig(live); err != nil {
		return errors.Wrap(err, "updating traffic")
	}
	l.cfg.Sim.Traffic = traffic
	return nil
}
