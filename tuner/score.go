package tuner

import "math"

// Score is a normalized snapshot of engine pressure for one tuning interval.
// Values are dimensionless ratios or rates (MB/s) and are never mutated once
// the aggregator has produced them.
type Score struct {
	MemtableSpeed           float64 `json:"memtableSpeed"`           // Memtable fill rate (MB/s)
	ActiveSizeRatio         float64 `json:"activeSizeRatio"`         // Active memtable bytes / write_buffer_size
	ImmutableNumber         float64 `json:"immutableNumber"`         // Immutable memtables not yet flushed
	FlushSpeedAvg           float64 `json:"flushSpeedAvg"`           // Mean flush write-out bandwidth (MB/s)
	FlushSpeedVar           float64 `json:"flushSpeedVar"`           // Variance of flush write-out bandwidth
	FlushNumbers            float64 `json:"flushNumbers"`            // New flush events this interval
	L0Num                   float64 `json:"l0Num"`                   // Base-level files / level0_slowdown_writes_trigger
	L0DropRatio             float64 `json:"l0DropRatio"`             // Mean drop ratio of L0 compactions
	EstimateCompactionBytes float64 `json:"estimateCompactionBytes"` // Pending compaction bytes / soft limit
	DiskBandwidth           float64 `json:"diskBandwidth"`           // Flush + compaction bytes moved (MB/s)
	FlushIdleTime           float64 `json:"flushIdleTime"`           // Flush pool idle / flush budget
	CompactionIdleTime      float64 `json:"compactionIdleTime"`      // Compaction pool idle / compaction budget
	FlushGapTime            float64 `json:"flushGapTime"`            // Mean seconds between flushes
}

// Add returns the field-by-field sum of s and o.
func (s Score) Add(o Score) Score {
	return Score{
		MemtableSpeed:           s.MemtableSpeed + o.MemtableSpeed,
		ActiveSizeRatio:         s.ActiveSizeRatio + o.ActiveSizeRatio,
		ImmutableNumber:         s.ImmutableNumber + o.ImmutableNumber,
		FlushSpeedAvg:           s.FlushSpeedAvg + o.FlushSpeedAvg,
		FlushSpeedVar:           s.FlushSpeedVar + o.FlushSpeedVar,
		FlushNumbers:            s.FlushNumbers + o.FlushNumbers,
		L0Num:                   s.L0Num + o.L0Num,
		L0DropRatio:             s.L0DropRatio + o.L0DropRatio,
		EstimateCompactionBytes: s.EstimateCompactionBytes + o.EstimateCompactionBytes,
		DiskBandwidth:           s.DiskBandwidth + o.DiskBandwidth,
		FlushIdleTime:           s.FlushIdleTime + o.FlushIdleTime,
		CompactionIdleTime:      s.CompactionIdleTime + o.CompactionIdleTime,
		FlushGapTime:            s.FlushGapTime + o.FlushGapTime,
	}
}

// Sub returns the field-by-field difference s - o.
func (s Score) Sub(o Score) Score {
	return Score{
		MemtableSpeed:           s.MemtableSpeed - o.MemtableSpeed,
		ActiveSizeRatio:         s.ActiveSizeRatio - o.ActiveSizeRatio,
		ImmutableNumber:         s.ImmutableNumber - o.ImmutableNumber,
		FlushSpeedAvg:           s.FlushSpeedAvg - o.FlushSpeedAvg,
		FlushSpeedVar:           s.FlushSpeedVar - o.FlushSpeedVar,
		FlushNumbers:            s.FlushNumbers - o.FlushNumbers,
		L0Num:                   s.L0Num - o.L0Num,
		L0DropRatio:             s.L0DropRatio - o.L0DropRatio,
		EstimateCompactionBytes: s.EstimateCompactionBytes - o.EstimateCompactionBytes,
		DiskBandwidth:           s.DiskBandwidth - o.DiskBandwidth,
		FlushIdleTime:           s.FlushIdleTime - o.FlushIdleTime,
		CompactionIdleTime:      s.CompactionIdleTime - o.CompactionIdleTime,
		FlushGapTime:            s.FlushGapTime - o.FlushGapTime,
	}
}

// Div divides every field by n, except the per-flush quantities
// (FlushSpeedAvg, FlushSpeedVar, FlushGapTime) which are divided by the
// receiver's own FlushNumbers so the result is weighted by flush events
// rather than by sample count. A zero divisor yields zero for that field.
func (s Score) Div(n int) Score {
	if n <= 0 {
		return Score{}
	}
	d := float64(n)
	perFlush := func(v float64) float64 {
		if s.FlushNumbers == 0 {
			return 0
		}
		return v / s.FlushNumbers
	}
	return Score{
		MemtableSpeed:           s.MemtableSpeed / d,
		ActiveSizeRatio:         s.ActiveSizeRatio / d,
		ImmutableNumber:         s.ImmutableNumber / d,
		FlushSpeedAvg:           perFlush(s.FlushSpeedAvg),
		FlushSpeedVar:           perFlush(s.FlushSpeedVar),
		FlushNumbers:            s.FlushNumbers / d,
		L0Num:                   s.L0Num / d,
		L0DropRatio:             s.L0DropRatio / d,
		EstimateCompactionBytes: s.EstimateCompactionBytes / d,
		DiskBandwidth:           s.DiskBandwidth / d,
		FlushIdleTime:           s.FlushIdleTime / d,
		CompactionIdleTime:      s.CompactionIdleTime / d,
		FlushGapTime:            perFlush(s.FlushGapTime),
	}
}

// Max returns the field-wise maximum of s and o.
func (s Score) Max(o Score) Score {
	return Score{
		MemtableSpeed:           math.Max(s.MemtableSpeed, o.MemtableSpeed),
		ActiveSizeRatio:         math.Max(s.ActiveSizeRatio, o.ActiveSizeRatio),
		ImmutableNumber:         math.Max(s.ImmutableNumber, o.ImmutableNumber),
		FlushSpeedAvg:           math.Max(s.FlushSpeedAvg, o.FlushSpeedAvg),
		FlushSpeedVar:           math.Max(s.FlushSpeedVar, o.FlushSpeedVar),
		FlushNumbers:            math.Max(s.FlushNumbers, o.FlushNumbers),
		L0Num:                   math.Max(s.L0Num, o.L0Num),
		L0DropRatio:             math.Max(s.L0DropRatio, o.L0DropRatio),
		EstimateCompactionBytes: math.Max(s.EstimateCompactionBytes, o.EstimateCompactionBytes),
		DiskBandwidth:           math.Max(s.DiskBandwidth, o.DiskBandwidth),
		FlushIdleTime:           math.Max(s.FlushIdleTime, o.FlushIdleTime),
		CompactionIdleTime:      math.Max(s.CompactionIdleTime, o.CompactionIdleTime),
		FlushGapTime:            math.Max(s.FlushGapTime, o.FlushGapTime),
	}
}

// Fields returns the snapshot values in FieldNames order.
func (s Score) Fields() []float64 {
	return []float64{
		s.MemtableSpeed, s.ActiveSizeRatio, s.ImmutableNumber,
		s.FlushSpeedAvg, s.FlushSpeedVar, s.FlushNumbers,
		s.L0Num, s.L0DropRatio, s.EstimateCompactionBytes,
		s.DiskBandwidth, s.FlushIdleTime, s.CompactionIdleTime,
		s.FlushGapTime,
	}
}

// FieldNames lists Score fields in the order returned by Fields.
var FieldNames = []string{
	"memtable_speed", "active_size_ratio", "immutable_number",
	"flush_speed_avg", "flush_speed_var", "flush_numbers",
	"l0_num", "l0_drop_ratio", "estimate_compaction_bytes",
	"disk_bandwidth", "flush_idle_time", "compaction_idle_time",
	"flush_gap_time",
}
