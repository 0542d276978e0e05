package simulator

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/miretskiy/rollingtuner/tuner"
)

// TrafficModel represents the traffic distribution model
type TrafficModel int

const (
	TrafficModelConstant TrafficModel = iota // Constant rate model
	TrafficModelOnOff                        // Alternating base and burst periods
)

// String returns the string representation of TrafficModel
func (tm TrafficModel) String() string {
	switch tm {
	case TrafficModelConstant:
		return "constant"
	case TrafficModelOnOff:
		return "onoff"
	default:
		return "constant"
	}
}

// ParseTrafficModel parses a string into TrafficModel
func ParseTrafficModel(s string) (TrafficModel, error) {
	switch s {
	case "constant":
		return TrafficModelConstant, nil
	case "onoff":
		return TrafficModelOnOff, nil
	default:
		return TrafficModelConstant, fmt.Errorf("invalid traffic model: %s (must be 'constant' or 'onoff')", s)
	}
}

// MarshalJSON implements json.Marshaler for TrafficModel
func (tm TrafficModel) MarshalJSON() ([]byte, error) {
	return json.Marshal(tm.String())
}

// UnmarshalJSON implements json.Unmarshaler for TrafficModel
func (tm *TrafficModel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTrafficModel(s)
	if err != nil {
		return err
	}
	*tm = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for TrafficModel
func (tm TrafficModel) MarshalYAML() (interface{}, error) {
	return tm.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for TrafficModel
func (tm *TrafficModel) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseTrafficModel(s)
	if err != nil {
		return err
	}
	*tm = parsed
	return nil
}

// TrafficConfig holds the write arrival pattern
type TrafficConfig struct {
	Model         TrafficModel `json:"model" yaml:"model"`
	WriteRateMBps float64      `json:"writeRateMBps" yaml:"writeRateMBps"` // Base rate in MB/s
	WriteSizeMB   float64      `json:"writeSizeMB" yaml:"writeSizeMB"`     // Size of one write batch

	// On/off model parameters
	BurstMultiplier float64 `json:"burstMultiplier" yaml:"burstMultiplier"` // Rate multiplier while bursting
	OnMeanSeconds   float64 `json:"onMeanSeconds" yaml:"onMeanSeconds"`     // Mean burst duration
	OffMeanSeconds  float64 `json:"offMeanSeconds" yaml:"offMeanSeconds"`   // Mean base-rate duration
}

// SimConfig holds the simulated engine's hardware and static LSM shape. The
// tunable knobs live in Engine and may be rewritten at runtime through
// ApplyChanges.
type SimConfig struct {
	Engine tuner.EngineOptions `json:"engine" yaml:"engine"`

	// Write path
	MaxWriteBufferNumber     int     `json:"maxWriteBufferNumber" yaml:"maxWriteBufferNumber"`         // max_write_buffer_number (default 2)
	Level0StopWritesTrigger  int     `json:"level0StopWritesTrigger" yaml:"level0StopWritesTrigger"`   // level0_stop_writes_trigger (default 36)
	DelayedWriteRateMBps     float64 `json:"delayedWriteRateMBps" yaml:"delayedWriteRateMBps"`         // delayed_write_rate while slowed down (default 16MB/s)
	HardPendingCompactionGiB float64 `json:"hardPendingCompactionGiB" yaml:"hardPendingCompactionGiB"` // hard_pending_compaction_bytes_limit (default 256GB)

	// Shape
	NumLevels                 int     `json:"numLevels" yaml:"numLevels"`                                 // LSM tree depth (default 7)
	LevelMultiplier           int     `json:"levelMultiplier" yaml:"levelMultiplier"`                     // max_bytes_for_level_multiplier (default 10)
	CompactionReductionFactor float64 `json:"compactionReductionFactor" yaml:"compactionReductionFactor"` // Output/input size ratio of a compaction (dedup/compression)
	OverlapRatio              float64 `json:"overlapRatio" yaml:"overlapRatio"`                           // Share of the next level's fanout rewritten per compaction

	// Disk
	IOLatencyMs      float64 `json:"ioLatencyMs" yaml:"ioLatencyMs"`           // Per-job seek latency
	IOThroughputMBps float64 `json:"ioThroughputMBps" yaml:"ioThroughputMBps"` // Sequential throughput shared by all running jobs

	// Simulation control
	InitialLSMSizeMB        int     `json:"initialLSMSizeMB" yaml:"initialLSMSizeMB"`               // Pre-populate the deepest levels (0 = start empty)
	TickSeconds             float64 `json:"tickSeconds" yaml:"tickSeconds"`                         // Background thread wake-up interval
	RandomSeed              int64   `json:"randomSeed" yaml:"randomSeed"`                           // 0 = time-based seed
	MaxStalledWriteMemoryMB int     `json:"maxStalledWriteMemoryMB" yaml:"maxStalledWriteMemoryMB"` // OOM threshold for the stalled write backlog

	Traffic TrafficConfig `json:"traffic" yaml:"traffic"`
}

// DefaultConfig returns a single column family on an EBS gp3 class disk
func DefaultConfig() SimConfig {
	return SimConfig{
		Engine:                    tuner.DefaultEngineOptions(),
		MaxWriteBufferNumber:      2,
		Level0StopWritesTrigger:   36,
		DelayedWriteRateMBps:      16,
		HardPendingCompactionGiB:  256,
		NumLevels:                 7,
		LevelMultiplier:           10,
		CompactionReductionFactor: 0.9,
		OverlapRatio:              0.3,
		IOLatencyMs:               1.0,
		IOThroughputMBps:          250.0,
		TickSeconds:               0.25,
		MaxStalledWriteMemoryMB:   4096,
		Traffic: TrafficConfig{
			Model:           TrafficModelConstant,
			WriteRateMBps:   40,
			WriteSizeMB:     1,
			BurstMultiplier: 4,
			OnMeanSeconds:   10,
			OffMeanSeconds:  30,
		},
	}
}

// Validate reports every unreasonable value at once.
func (c *SimConfig) Validate() error {
	var result *multierror.Error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			result = multierror.Append(result, ErrInvalidConfig(format, args...))
		}
	}

	if err := c.Engine.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	check(c.Engine.Level0SlowdownWritesTrigger >= c.Engine.Level0FileNumCompactionTrigger,
		"level0SlowdownWritesTrigger must be >= level0FileNumCompactionTrigger")
	check(c.Level0StopWritesTrigger >= c.Engine.Level0SlowdownWritesTrigger,
		"level0StopWritesTrigger must be >= level0SlowdownWritesTrigger")
	check(c.MaxWriteBufferNumber >= 2, "maxWriteBufferNumber must be >= 2")
	check(c.MaxWriteBufferNumber > c.Engine.MinWriteBufferNumberToMerge,
		"maxWriteBufferNumber must be > minWriteBufferNumberToMerge")
	check(c.DelayedWriteRateMBps > 0, "delayedWriteRateMBps must be > 0")
	check(c.HardPendingCompactionGiB > 0, "hardPendingCompactionGiB must be > 0")
	check(c.NumLevels >= 2 && c.NumLevels <= 10, "numLevels must be between 2 and 10")
	check(c.LevelMultiplier >= 2, "levelMultiplier must be >= 2")
	check(c.CompactionReductionFactor >= 0.1 && c.CompactionReductionFactor <= 1.0,
		"compactionReductionFactor must be between 0.1 and 1.0")
	check(c.OverlapRatio > 0 && c.OverlapRatio <= 1.0, "overlapRatio must be in (0, 1]")
	check(c.IOLatencyMs >= 0, "ioLatencyMs must be >= 0")
	check(c.IOThroughputMBps > 0, "ioThroughputMBps must be > 0")
	check(c.InitialLSMSizeMB >= 0, "initialLSMSizeMB must be >= 0")
	check(c.TickSeconds > 0, "tickSeconds must be > 0")
	check(c.MaxStalledWriteMemoryMB > 0, "maxStalledWriteMemoryMB must be > 0")
	check(c.Traffic.WriteRateMBps >= 0, "traffic.writeRateMBps must be >= 0")
	check(c.Traffic.WriteSizeMB > 0, "traffic.writeSizeMB must be > 0")
	if c.Traffic.Model == TrafficModelOnOff {
		check(c.Traffic.BurstMultiplier >= 1, "traffic.burstMultiplier must be >= 1")
		check(c.Traffic.OnMeanSeconds > 0 && c.Traffic.OffMeanSeconds > 0,
			"traffic on/off means must be > 0")
	}
	return result.ErrorOrNil()
}
