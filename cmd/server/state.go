package main

import (
	"sync"

	"github.com/miretskiy/rollingtuner/integration"
	"github.com/miretskiy/rollingtuner/simulator"
	"github.com/miretskiy/rollingtuner/tuner"
)

// simState owns one closed loop and its run flags. All access goes through
// the mutex: the UI loop steps it while the websocket reader mutates it.
type simState struct {
	loop    *integration.Loop
	prom    *promMetrics
	running bool
	paused  bool
	mu      sync.Mutex
	stopCh  chan struct{}
}

func newSimState(cfg integration.Config, observer tuner.Observer, prom *promMetrics) (*simState, error) {
	loop, err := integration.NewLoop(cfg, observer)
	if err != nil {
		return nil, err
	}
	return &simState{loop: loop, prom: prom, stopCh: make(chan struct{})}, nil
}

func (s *simState) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.paused = false
}

func (s *simState) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *simState) reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.paused = false
	return s.loop.Reset(nil)
}

// updateConfig swaps the traffic pattern in place when nothing else changed
// and restarts the loop otherwise.
func (s *simState) updateConfig(cfg integration.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.loop.Config()
	trafficOnly := cur
	trafficOnly.Sim.Traffic = cfg.Sim.Traffic
	if trafficOnly == cfg {
		return s.loop.UpdateTraffic(cfg.Sim.Traffic)
	}
	return s.loop.Reset(&cfg)
}

func (s *simState) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

func (s *simState) config() integration.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop.Config()
}

// round advances the loop by one tuning interval if it is running. ok is
// false when nothing ran.
func (s *simState) round() (report tuner.Report, snap snapshot, metrics *simulator.Metrics, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.paused || s.loop.Sim.Metrics().IsOOMKilled {
		return report, snap, nil, false
	}
	report = s.loop.Round()
	if s.prom != nil {
		s.prom.updateEngine(s.loop.Sim.Metrics(), s.loop.Sim.LSM())
	}
	return report, takeSnapshot(s.loop.Sim), s.loop.Sim.Metrics().Clone(), true
}

// stop signals the UI loop to stop
func (s *simState) stop() {
	close(s.stopCh)
}

type levelSnapshot struct {
	Level        int     `json:"level"`
	SizeMB       float64 `json:"sizeMB"`
	CompactingMB float64 `json:"compactingMB"`
	FileCount    int     `json:"fileCount"`
}

// snapshot is the LSM shape streamed to the dashboard after every round
type snapshot struct {
	VirtualTime        float64             `json:"virtualTime"`
	Levels             []levelSnapshot     `json:"levels"`
	MemtableMB         float64             `json:"memtableMB"`
	ImmutableMB        float64             `json:"immutableMB"`
	Immutables         int                 `json:"immutables"`
	RunningFlushes     int                 `json:"runningFlushes"`
	RunningCompactions int                 `json:"runningCompactions"`
	IncomingRateMBps   float64             `json:"incomingRateMBps"`
	Engine             tuner.EngineOptions `json:"engine"`
}

func takeSnapshot(sim *simulator.Simulator) snapshot {
	lsm := sim.LSM()
	flushes, compactions := sim.RunningJobs()
	snap := snapshot{
		VirtualTime:        sim.VirtualTime(),
		MemtableMB:         lsm.MemtableMB,
		ImmutableMB:        lsm.ImmutableMB(),
		Immutables:         len(lsm.Immutables),
		RunningFlushes:     flushes,
		RunningCompactions: compactions,
		IncomingRateMBps:   sim.CurrentIncomingRateMBps(),
		Engine:             sim.Config().Engine,
	}
	for _, l := range lsm.Levels {
		snap.Levels = append(snap.Levels, levelSnapshot{
			Level:        l.Number,
			SizeMB:       l.SizeMB,
			CompactingMB: l.CompactingMB,
			FileCount:    l.FileCount(),
		})
	}
	return snap
}
