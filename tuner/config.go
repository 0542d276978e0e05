package tuner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PolicyKind selects the decision policy a Tuner runs for its whole lifetime
type PolicyKind int

const (
	PolicyRuleTable  PolicyKind = iota // Discrete thread/batch states mapped through a fixed table
	PolicyThreshold                    // Independent thread and batch threshold checks
	PolicyHysteresis                   // Pressure accumulators with relax counters, decoupled knobs
)

// String returns the string representation of PolicyKind
func (p PolicyKind) String() string {
	switch p {
	case PolicyRuleTable:
		return "rule_table"
	case PolicyThreshold:
		return "threshold"
	case PolicyHysteresis:
		return "hysteresis"
	default:
		return "unknown"
	}
}

// ParsePolicyKind parses a string into PolicyKind
func ParsePolicyKind(s string) (PolicyKind, error) {
	switch strings.ToLower(s) {
	case "rule_table":
		return PolicyRuleTable, nil
	case "threshold":
		return PolicyThreshold, nil
	case "hysteresis":
		return PolicyHysteresis, nil
	default:
		return PolicyHysteresis, fmt.Errorf("invalid policy: %s (must be 'rule_table', 'threshold' or 'hysteresis')", s)
	}
}

// MarshalJSON implements json.Marshaler for PolicyKind
func (p PolicyKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements json.Unmarshaler for PolicyKind
func (p *PolicyKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePolicyKind(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for PolicyKind
func (p PolicyKind) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for PolicyKind
func (p *PolicyKind) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParsePolicyKind(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ThresholdConfig switches the two halves of the threshold policy
type ThresholdConfig struct {
	ThreadTuning bool `json:"threadTuning" yaml:"threadTuning"` // Run the thread-count check
	BatchTuning  bool `json:"batchTuning" yaml:"batchTuning"`   // Run the memtable-size check
}

// Config holds the process-wide tuning bounds fixed at attach time.
// Sizes are in bytes.
type Config struct {
	Policy          PolicyKind `json:"policy" yaml:"policy"`
	IntervalSeconds float64    `json:"intervalSeconds" yaml:"intervalSeconds"` // Length of one tuning round

	MinThreads          int `json:"minThreads" yaml:"minThreads"`                   // Lower bound for max_background_jobs
	MaxThreads          int `json:"maxThreads" yaml:"maxThreads"`                   // Upper bound for max_background_jobs (raised up to HardwareConcurrency by the emitter)
	ThreadStep          int `json:"threadStep" yaml:"threadStep"`                   // max_background_jobs increment on LinearIncrease
	FlushThreadCap      int `json:"flushThreadCap" yaml:"flushThreadCap"`           // Hard cap for max_background_flushes
	HardwareConcurrency int `json:"hardwareConcurrency" yaml:"hardwareConcurrency"` // Ceiling for total thread allocation

	MinMemtableSize uint64 `json:"minMemtableSize" yaml:"minMemtableSize"`
	MaxMemtableSize uint64 `json:"maxMemtableSize" yaml:"maxMemtableSize"`
	MemtableStep    uint64 `json:"memtableStep" yaml:"memtableStep"` // 0 = attach-time write_buffer_size
	MinSSTableSize  uint64 `json:"minSSTableSize" yaml:"minSSTableSize"`
	MaxSSTableSize  uint64 `json:"maxSSTableSize" yaml:"maxSSTableSize"`
	SSTableStep     uint64 `json:"sstableStep" yaml:"sstableStep"` // 0 = attach-time target_file_size_base

	AvgWindow          int     `json:"avgWindow" yaml:"avgWindow"`                   // Rounds kept for the rolling average
	SlowFlushThreshold float64 `json:"slowFlushThreshold" yaml:"slowFlushThreshold"` // Fraction of the flush baseline considered slow

	Threshold ThresholdConfig `json:"threshold" yaml:"threshold"`
}

const (
	mb = uint64(1) << 20
)

// DefaultConfig returns bounds suitable for a single RocksDB column family on
// a commodity SSD. Thread bounds are clamped to the host's core count.
func DefaultConfig() Config {
	cores := runtime.NumCPU()
	return Config{
		Policy:              PolicyHysteresis,
		IntervalSeconds:     1,
		MinThreads:          min(2, cores),
		MaxThreads:          min(12, cores),
		ThreadStep:          2,
		FlushThreadCap:      4,
		HardwareConcurrency: cores,
		MinMemtableSize:     16 * mb,
		MaxMemtableSize:     1024 * mb,
		MinSSTableSize:      16 * mb,
		MaxSSTableSize:      1024 * mb,
		AvgWindow:           10,
		SlowFlushThreshold:  0.5,
		Threshold: ThresholdConfig{
			ThreadTuning: true,
			BatchTuning:  true,
		},
	}
}

// Validate reports every invalid bound at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			result = multierror.Append(result, ErrInvalidConfig(format, args...))
		}
	}

	check(c.Policy >= PolicyRuleTable && c.Policy <= PolicyHysteresis, "unknown policy %d", int(c.Policy))
	check(c.IntervalSeconds > 0, "intervalSeconds must be > 0")
	check(c.MinThreads >= 1, "minThreads must be >= 1")
	check(c.MaxThreads >= c.MinThreads, "maxThreads (%d) must be >= minThreads (%d)", c.MaxThreads, c.MinThreads)
	check(c.ThreadStep >= 1, "threadStep must be >= 1")
	check(c.FlushThreadCap >= 1, "flushThreadCap must be >= 1")
	check(c.HardwareConcurrency >= 1, "hardwareConcurrency must be >= 1")
	check(c.MaxThreads <= c.HardwareConcurrency, "maxThreads (%d) must be <= hardwareConcurrency (%d)",
		c.MaxThreads, c.HardwareConcurrency)
	check(c.MinMemtableSize > 0, "minMemtableSize must be > 0")
	check(c.MaxMemtableSize >= c.MinMemtableSize, "maxMemtableSize must be >= minMemtableSize")
	check(c.MinSSTableSize > 0, "minSSTableSize must be > 0")
	check(c.MaxSSTableSize >= c.MinSSTableSize, "maxSSTableSize must be >= minSSTableSize")
	check(c.AvgWindow >= 1, "avgWindow must be >= 1")
	check(c.SlowFlushThreshold > 0 && c.SlowFlushThreshold <= 1, "slowFlushThreshold must be in (0, 1]")

	return result.ErrorOrNil()
}

// EngineOptions is the subset of engine configuration the tuner reads and
// rewrites. It mirrors the RocksDB option names. Sizes are in bytes.
type EngineOptions struct {
	MaxBackgroundJobs               int    `json:"maxBackgroundJobs" yaml:"maxBackgroundJobs"`
	MaxBackgroundFlushes            int    `json:"maxBackgroundFlushes" yaml:"maxBackgroundFlushes"`         // 0 = derive from MaxBackgroundJobs
	MaxBackgroundCompactions        int    `json:"maxBackgroundCompactions" yaml:"maxBackgroundCompactions"` // 0 = derive from MaxBackgroundJobs
	WriteBufferSize                 uint64 `json:"writeBufferSize" yaml:"writeBufferSize"`
	TargetFileSizeBase              uint64 `json:"targetFileSizeBase" yaml:"targetFileSizeBase"`
	MaxBytesForLevelBase            uint64 `json:"maxBytesForLevelBase" yaml:"maxBytesForLevelBase"`
	Level0FileNumCompactionTrigger  int    `json:"level0FileNumCompactionTrigger" yaml:"level0FileNumCompactionTrigger"`
	Level0SlowdownWritesTrigger     int    `json:"level0SlowdownWritesTrigger" yaml:"level0SlowdownWritesTrigger"`
	MinWriteBufferNumberToMerge     int    `json:"minWriteBufferNumberToMerge" yaml:"minWriteBufferNumberToMerge"`
	SoftPendingCompactionBytesLimit uint64 `json:"softPendingCompactionBytesLimit" yaml:"softPendingCompactionBytesLimit"`
}

// DefaultEngineOptions returns RocksDB defaults.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		MaxBackgroundJobs:               2,
		WriteBufferSize:                 64 * mb,
		TargetFileSizeBase:              64 * mb,
		MaxBytesForLevelBase:            256 * mb,
		Level0FileNumCompactionTrigger:  4,
		Level0SlowdownWritesTrigger:     20,
		MinWriteBufferNumberToMerge:     1,
		SoftPendingCompactionBytesLimit: 64 << 30,
	}
}

// Validate checks the options the tuner divides by or steps from.
func (o *EngineOptions) Validate() error {
	var result *multierror.Error
	if o.MaxBackgroundJobs < 1 {
		result = multierror.Append(result, ErrInvalidConfig("maxBackgroundJobs must be >= 1"))
	}
	if o.WriteBufferSize == 0 {
		result = multierror.Append(result, ErrInvalidConfig("writeBufferSize must be > 0"))
	}
	if o.TargetFileSizeBase == 0 {
		result = multierror.Append(result, ErrInvalidConfig("targetFileSizeBase must be > 0"))
	}
	if o.Level0FileNumCompactionTrigger < 1 {
		result = multierror.Append(result, ErrInvalidConfig("level0FileNumCompactionTrigger must be >= 1"))
	}
	if o.MinWriteBufferNumberToMerge < 1 {
		result = multierror.Append(result, ErrInvalidConfig("minWriteBufferNumberToMerge must be >= 1"))
	}
	return result.ErrorOrNil()
}

// threadSplit returns the starting flush/compaction thread counts. Unset
// values follow the 1/4 flush, 3/4 compaction split used for idle budgets.
func (o EngineOptions) threadSplit() (flush, compaction int) {
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

// FileConfig is the on-disk layout read by LoadFile.
type FileConfig struct {
	Tuner  Config        `json:"tuner" yaml:"tuner"`
	Engine EngineOptions `json:"engine" yaml:"engine"`
}

// LoadFile reads a JSON or YAML file (by extension) on top of the defaults.
func LoadFile(path string) (FileConfig, error) {
	fc := FileConfig{Tuner: DefaultConfig(), Engine: DefaultEngineOptions()}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, errors.Wrapf(err, "reading tuner config %s", path)
	}
	if err := Decode(path, data, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// Decode unmarshals data as YAML or JSON depending on the file extension of
// path. Unknown extensions are treated as JSON.
func Decode(path string, data []byte, v interface{}) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return errors.Wrapf(err, "parsing yaml %s", path)
		}
	default:
		if err := json.Unmarshal(data, v); err != nil {
			return errors.Wrapf(err, "parsing json %s", path)
		}
	}
	return nil
}
