package tuner

import (
	"fmt"
	"strconv"
)

// Knob names one engine option the tuner may rewrite. Values are the RocksDB
// option strings so an applier can pass them through unchanged.
type Knob string

const (
	KnobMaxBackgroundJobs        Knob = "max_background_jobs"
	KnobWriteBufferSize          Knob = "write_buffer_size"
	KnobMaxBytesForLevelBase     Knob = "max_bytes_for_level_base" // total L1 size
	KnobTargetFileSizeBase       Knob = "target_file_size_base"
	KnobMaxBackgroundFlushes     Knob = "max_background_flushes"
	KnobMaxBackgroundCompactions Knob = "max_background_compactions"
)

// Scope says whether a change applies to the whole engine or to one column family
type Scope int

const (
	ScopeDB Scope = iota
	ScopeColumnFamily
)

func (s Scope) String() string {
	switch s {
	case ScopeDB:
		return "db"
	case ScopeColumnFamily:
		return "cf"
	default:
		return "unknown"
	}
}

// MarshalText renders the scope by name in reports.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ChangePoint is one requested knob mutation.
type ChangePoint struct {
	Knob  Knob   `json:"knob"`
	Scope Scope  `json:"scope"`
	Value uint64 `json:"value"` // bytes or thread count
}

// Encoded returns the value as the engine expects it in SetOptions calls.
func (c ChangePoint) Encoded() string {
	return strconv.FormatUint(c.Value, 10)
}

func (c ChangePoint) String() string {
	return fmt.Sprintf("%s/%s=%s", c.Scope, c.Knob, c.Encoded())
}
