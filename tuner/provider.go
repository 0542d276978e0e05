package tuner

import "time"

// FlushRecord describes one completed flush as reported by the engine
type FlushRecord struct {
	WriteOutBandwidth float64       `json:"writeOutBandwidth"` // MB/s achieved writing the L0 file
	TotalBytes        uint64        `json:"totalBytes"`        // Bytes written by the flush
	L0Files           int           `json:"l0Files"`           // L0 file count when the flush finished
	Gap               time.Duration `json:"gap"`               // Time since the previous flush finished
}

// CompactionRecord describes one completed compaction as reported by the engine
type CompactionRecord struct {
	InputLevel          int     `json:"inputLevel"`
	DropRatio           float64 `json:"dropRatio"`           // Fraction of input entries dropped
	CurrentPendingBytes uint64  `json:"currentPendingBytes"` // Pending compaction bytes estimate at completion
	TotalBytes          uint64  `json:"totalBytes"`          // Bytes read + written
}

// ThreadPool identifies a background thread pool
type ThreadPool int

const (
	FlushPool      ThreadPool = iota // HIGH priority pool
	CompactionPool                   // LOW priority pool
)

func (p ThreadPool) String() string {
	switch p {
	case FlushPool:
		return "flush"
	case CompactionPool:
		return "compaction"
	default:
		return "unknown"
	}
}

// MetricsProvider is the narrow read-only view of engine statistics the tuner
// consumes. Event streams are append-only; each read method returns the
// records at offsets >= from together with the next unread offset.
type MetricsProvider interface {
	// MemtableBytes returns the active memtable size and the size of all
	// memtables (active + immutable).
	MemtableBytes() (active, total uint64)
	ImmutableMemtables() int
	FlushRecords(from uint64) ([]FlushRecord, uint64)
	CompactionRecords(from uint64) ([]CompactionRecord, uint64)
	// BaseLevelFiles returns the live file count of the base level.
	BaseLevelFiles() int
	PendingCompactionBytes() uint64
	IdleSamples(pool ThreadPool, from uint64) ([]time.Duration, uint64)
}

// Applier pushes emitted changes into the live engine.
type Applier interface {
	ApplyChanges(changes []ChangePoint) error
}

// Stream identifies one append-only stream read by the aggregator
type Stream string

const (
	StreamFlush          Stream = "flush"
	StreamCompaction     Stream = "compaction"
	StreamFlushIdle      Stream = "flush_idle"
	StreamCompactionIdle Stream = "compaction_idle"
)

// Cursors maps each stream to the offset of its first unconsumed record.
type Cursors map[Stream]uint64

func (c Cursors) clone() Cursors {
	out := make(Cursors, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
