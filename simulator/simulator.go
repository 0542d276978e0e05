package simulator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/miretskiy/rollingtuner/tuner"
)

// Simulator is a discrete event model of one RocksDB column family. It has no
// concurrency primitives: all state is accessed single-threaded through the
// Step methods, ApplyChanges, and the provider accessors. The caller manages
// pacing and locking.
type Simulator struct {
	config      SimConfig
	lsm         *LSMTree
	metrics     *Metrics
	queue       *EventQueue
	virtualTime float64
	traffic     TrafficDistribution
	rng         *rand.Rand

	runningFlushes     int
	runningCompactions int
	stallStartTime     float64
	lastFlushEnd       float64
	lastCheckTime      float64

	// Append-only streams read through the tuner.MetricsProvider methods
	flushRecords      []tuner.FlushRecord
	compactionRecords []tuner.CompactionRecord
	flushIdle         []time.Duration
	compactionIdle    []time.Duration

	// Event logging callback (optional, for UI/debugging)
	LogEvent func(msg string)
}

// NewSimulator creates a simulator with the recurring events scheduled
func NewSimulator(config SimConfig) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	seed := config.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	s := &Simulator{
		config:  config,
		lsm:     NewLSMTree(config.NumLevels, toMB(config.Engine.TargetFileSizeBase)),
		metrics: NewMetrics(),
		queue:   NewEventQueue(),
		traffic: NewTrafficDistribution(config.Traffic, rng),
		rng:     rng,
	}
	if config.InitialLSMSizeMB > 0 {
		s.lsm.Populate(float64(config.InitialLSMSizeMB), config.LevelMultiplier)
	}
	s.queue.Push(NewScheduleWriteEvent(0))
	s.queue.Push(NewCompactionCheckEvent(config.TickSeconds))
	return s, nil
}

// Reset restarts the simulation from time zero with the current config
func (s *Simulator) Reset() error {
	fresh, err := NewSimulator(s.config)
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	logEvent := s.LogEvent
	*s = *fresh
	s.LogEvent = logEvent
	return nil
}

// UpdateConfig swaps the traffic pattern in place. Any other change restarts
// the simulation.
func (s *Simulator) UpdateConfig(newConfig SimConfig) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}
	static := s.config
	static.Traffic = newConfig.Traffic
	needsReset := static != newConfig
	trafficChanged := s.config.Traffic != newConfig.Traffic

	s.config = newConfig
	if needsReset {
		s.logEvent("[t=%.1fs] static config changed, resetting", s.virtualTime)
		return s.Reset()
	}
	if trafficChanged {
		s.logEvent("[t=%.1fs] traffic changed: %s %.1f MB/s", s.virtualTime,
			newConfig.Traffic.Model, newConfig.Traffic.WriteRateMBps)
		s.traffic = NewTrafficDistribution(newConfig.Traffic, s.rng)
		if s.queue.Count(EventTypeScheduleWrite) == 0 && !s.metrics.IsOOMKilled {
			s.queue.Push(NewScheduleWriteEvent(s.virtualTime))
		}
	}
	return nil
}

// Config returns the current config, including knob values applied so far
func (s *Simulator) Config() SimConfig { return s.config }

// VirtualTime returns the simulated clock in seconds
func (s *Simulator) VirtualTime() float64 { return s.virtualTime }

// Metrics returns the live metrics
func (s *Simulator) Metrics() *Metrics { return s.metrics }

// LSM returns the live tree
func (s *Simulator) LSM() *LSMTree { return s.lsm }

// IsQueueEmpty returns true if the event queue is empty
func (s *Simulator) IsQueueEmpty() bool { return s.queue.IsEmpty() }

// RunningJobs returns the number of in-flight flushes and compactions
func (s *Simulator) RunningJobs() (flushes, compactions int) {
	return s.runningFlushes, s.runningCompactions
}

// ThreadSlots returns the flush and compaction concurrency limits derived from
// the engine options. Unset per-pool limits split max_background_jobs one
// quarter to flushes.
func (s *Simulator) ThreadSlots() (flush, compaction int) {
	o := s.config.Engine
	flush = o.MaxBackgroundFlushes
	if flush <= 0 {
		flush = max(1, o.MaxBackgroundJobs/4)
	}
	compaction = o.MaxBackgroundCompactions
	if compaction <= 0 {
		compaction = max(1, o.MaxBackgroundJobs-flush)
	}
	return flush, compaction
}

// Step advances the simulation by one virtual second
func (s *Simulator) Step() {
	s.StepByDelta(1.0)
}

// StepUntil processes every event due by targetTime and moves the clock there
func (s *Simulator) StepUntil(targetTime float64) float64 {
	for !s.metrics.IsOOMKilled && !s.queue.IsEmpty() && s.queue.Peek().Timestamp() <= targetTime {
		event := s.queue.Pop()
		s.virtualTime = max(s.virtualTime, event.Timestamp())
		s.processEvent(event)
	}
	if !s.metrics.IsOOMKilled {
		s.virtualTime = max(s.virtualTime, targetTime)
	}
	s.metrics.Timestamp = s.virtualTime
	return s.virtualTime
}

// StepByDelta advances the simulation by the specified time delta (in seconds)
func (s *Simulator) StepByDelta(deltaSeconds float64) float64 {
	return s.StepUntil(s.virtualTime + deltaSeconds)
}

func (s *Simulator) processEvent(event Event) {
	switch e := event.(type) {
	case *ScheduleWriteEvent:
		s.processScheduleWrite(e)
	case *WriteEvent:
		s.processWrite(e)
	case *FlushEvent:
		s.processFlush(e)
	case *CompactionEvent:
		s.processCompaction(e)
	case *CompactionCheckEvent:
		s.processCompactionCheck(e)
	default:
		panic(fmt.Sprintf("unknown event type: %T", e))
	}
}

// processScheduleWrite emits the next write and schedules itself again. While
// writes are slowed down the interval stretches to the delayed write rate.
func (s *Simulator) processScheduleWrite(_ *ScheduleWriteEvent) {
	s.traffic.UpdateTime(s.virtualTime)
	size := s.traffic.NextWriteSizeMB()
	interval := s.traffic.NextIntervalSeconds()
	if size <= 0 || interval <= 0 {
		// Idle traffic: poll until the pattern produces writes again.
		s.queue.Push(NewScheduleWriteEvent(s.virtualTime + s.config.TickSeconds))
		return
	}
	s.queue.Push(NewWriteEvent(s.virtualTime, size))
	if s.slowedDown() {
		interval = max(interval, size/s.config.DelayedWriteRateMBps)
	}
	s.queue.Push(NewScheduleWriteEvent(s.virtualTime + interval))
}

// processWrite queues the write behind any stalled backlog and drains as much
// as the write path admits.
func (s *Simulator) processWrite(e *WriteEvent) {
	s.metrics.StalledBacklogMB += e.SizeMB()
	s.drainBacklog()
	m := s.metrics
	m.MaxStalledBacklogMB = max(m.MaxStalledBacklogMB, m.StalledBacklogMB)
	if m.StalledBacklogMB > float64(s.config.MaxStalledWriteMemoryMB) {
		s.logEvent("[t=%.1fs] OOM KILLED: stalled write backlog %.1f MB > %d MB",
			s.virtualTime, m.StalledBacklogMB, s.config.MaxStalledWriteMemoryMB)
		m.IsOOMKilled = true
		s.queue.Clear()
	}
}

func (s *Simulator) drainBacklog() {
	m := s.metrics
	wbs := toMB(s.config.Engine.WriteBufferSize)
	for m.StalledBacklogMB > 0 {
		s.maybeRotate()
		if reason := s.stopReason(); reason != "" {
			s.enterStall(reason)
			return
		}
		chunk := min(m.StalledBacklogMB, wbs-s.lsm.MemtableMB)
		s.lsm.MemtableMB += chunk
		m.StalledBacklogMB -= chunk
		m.RecordUserWrite(chunk)
	}
	m.StalledBacklogMB = 0
	s.maybeRotate()
	s.exitStall()
}

// maybeRotate seals a full memtable when the immutable list has room
func (s *Simulator) maybeRotate() {
	if s.lsm.MemtableMB < toMB(s.config.Engine.WriteBufferSize) || !s.canRotate() {
		return
	}
	s.lsm.Rotate()
	s.scheduleFlushes()
}

func (s *Simulator) canRotate() bool {
	return len(s.lsm.Immutables) < s.config.MaxWriteBufferNumber-1
}

// stopReason returns why writes are stopped, or "" when they may proceed
func (s *Simulator) stopReason() string {
	o := s.config.Engine
	switch {
	case s.lsm.MemtableMB >= toMB(o.WriteBufferSize) && !s.canRotate():
		return "too many memtables"
	case len(s.lsm.Levels[0].Files) >= s.config.Level0StopWritesTrigger:
		return "too many L0 files"
	case s.pendingCompactionMB() >= s.config.HardPendingCompactionGiB*1024:
		return "pending compaction bytes over hard limit"
	}
	return ""
}

func (s *Simulator) slowedDown() bool {
	o := s.config.Engine
	return len(s.lsm.Levels[0].Files) >= o.Level0SlowdownWritesTrigger ||
		s.pendingCompactionMB() >= toMB(o.SoftPendingCompactionBytesLimit)
}

func (s *Simulator) enterStall(reason string) {
	if s.metrics.IsStalled {
		return
	}
	s.metrics.IsStalled = true
	s.stallStartTime = s.virtualTime
	s.logEvent("[t=%.1fs] WRITE STALL: %s", s.virtualTime, reason)
}

func (s *Simulator) exitStall() {
	if !s.metrics.IsStalled {
		return
	}
	d := s.virtualTime - s.stallStartTime
	s.metrics.IsStalled = false
	s.metrics.StallDurationSeconds += d
	s.logEvent("[t=%.1fs] write stall cleared after %.2fs", s.virtualTime, d)
}

// jobBandwidthMBps splits the disk evenly between running jobs and the one
// about to start.
func (s *Simulator) jobBandwidthMBps() float64 {
	return s.config.IOThroughputMBps / float64(s.runningFlushes+s.runningCompactions+1)
}

func (s *Simulator) scheduleFlushes() {
	flushSlots, _ := s.ThreadSlots()
	merge := max(1, s.config.Engine.MinWriteBufferNumberToMerge)
	for s.runningFlushes < flushSlots && s.lsm.ReadyToFlush() >= merge {
		n := s.lsm.ReadyToFlush()
		size := s.lsm.StartFlush(n)
		bw := s.jobBandwidthMBps()
		duration := size/bw + s.config.IOLatencyMs/1000
		ev := NewFlushEvent(s.virtualTime+duration, s.virtualTime, size, bw)
		ev.memtables = n
		s.queue.Push(ev)
		s.runningFlushes++
	}
}

func (s *Simulator) processFlush(e *FlushEvent) {
	s.runningFlushes--
	s.lsm.FinishFlush(e.memtables, e.SizeMB())
	s.metrics.RecordFlush(e.SizeMB(), e.StartTime(), s.virtualTime)

	var bandwidth float64
	if d := s.virtualTime - e.StartTime(); d > 0 {
		bandwidth = e.SizeMB() * bytesPerMB / 1e6 / d
	}
	s.flushRecords = append(s.flushRecords, tuner.FlushRecord{
		WriteOutBandwidth: bandwidth,
		TotalBytes:        toBytes(e.SizeMB()),
		L0Files:           len(s.lsm.Levels[0].Files),
		Gap:               seconds(s.virtualTime - s.lastFlushEnd),
	})
	s.lastFlushEnd = s.virtualTime

	s.drainBacklog()
	s.scheduleFlushes()
	s.scheduleCompactions()
}

// scheduleCompactions fills free compaction slots, most urgent level first
func (s *Simulator) scheduleCompactions() {
	_, slots := s.ThreadSlots()
	o := s.config.Engine
	baseMB := toMB(o.MaxBytesForLevelBase)
	fileMB := toMB(o.TargetFileSizeBase)
	for s.runningCompactions < slots {
		best, bestScore := -1, 0.0
		for n := 0; n < len(s.lsm.Levels)-1; n++ {
			score := s.lsm.CompactionScore(n, o.Level0FileNumCompactionTrigger, baseMB, s.config.LevelMultiplier)
			if score >= 1 && score > bestScore {
				best, bestScore = n, score
			}
		}
		if best < 0 {
			return
		}
		p, ok := s.lsm.PickCompaction(best, fileMB, s.config.OverlapRatio, s.config.LevelMultiplier)
		if !ok {
			return
		}
		in := p.inputMB()
		out := in * s.config.CompactionReductionFactor
		duration := (in+out)/s.jobBandwidthMBps() + s.config.IOLatencyMs/1000
		ev := NewCompactionEvent(s.virtualTime+duration, s.virtualTime, p.from, p.to, in, out, p.inputFiles)
		ev.pick = p
		s.queue.Push(ev)
		s.runningCompactions++
	}
}

func (s *Simulator) processCompaction(e *CompactionEvent) {
	s.runningCompactions--
	s.lsm.FinishCompaction(e.pick, e.OutputSizeMB())
	s.metrics.RecordCompaction(e.InputSizeMB(), e.OutputSizeMB(), e.StartTime(), s.virtualTime)

	var drop float64
	if e.InputSizeMB() > 0 {
		drop = 1 - e.OutputSizeMB()/e.InputSizeMB()
	}
	s.compactionRecords = append(s.compactionRecords, tuner.CompactionRecord{
		InputLevel:          e.FromLevel(),
		DropRatio:           drop,
		CurrentPendingBytes: toBytes(s.pendingCompactionMB()),
		TotalBytes:          toBytes(e.InputSizeMB() + e.OutputSizeMB()),
	})

	s.drainBacklog()
	s.scheduleFlushes()
	s.scheduleCompactions()
}

// processCompactionCheck is the background thread wake-up: it samples idle
// threads per pool and picks up work a knob change may have unlocked.
func (s *Simulator) processCompactionCheck(_ *CompactionCheckEvent) {
	elapsed := s.virtualTime - s.lastCheckTime
	s.lastCheckTime = s.virtualTime

	flushSlots, compactionSlots := s.ThreadSlots()
	s.flushIdle = append(s.flushIdle, seconds(float64(max(0, flushSlots-s.runningFlushes))*elapsed))
	s.compactionIdle = append(s.compactionIdle, seconds(float64(max(0, compactionSlots-s.runningCompactions))*elapsed))

	if s.metrics.IsSlowedDown {
		s.metrics.SlowdownDurationSeconds += elapsed
	}
	s.metrics.IsSlowedDown = s.slowedDown()

	s.drainBacklog()
	s.scheduleFlushes()
	s.scheduleCompactions()
	s.queue.Push(NewCompactionCheckEvent(s.virtualTime + s.config.TickSeconds))
}

func (s *Simulator) pendingCompactionMB() float64 {
	o := s.config.Engine
	return s.lsm.PendingCompactionMB(o.Level0FileNumCompactionTrigger, toMB(o.MaxBytesForLevelBase), s.config.LevelMultiplier)
}

// CurrentIncomingRateMBps returns the rate the traffic pattern is producing
func (s *Simulator) CurrentIncomingRateMBps() float64 {
	return s.traffic.CurrentRateMBps()
}

// logEvent sends a log message to the UI (if callback is set)
func (s *Simulator) logEvent(format string, args ...interface{}) {
	if s.LogEvent != nil {
		s.LogEvent(fmt.Sprintf(format, args...))
	}
}

func toMB(bytes uint64) float64 { return float64(bytes) / bytesPerMB }

func toBytes(mb float64) uint64 { return uint64(max(0, mb) * bytesPerMB) }

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
