package simulator

// Metrics tracks cumulative throughput, amplification, and stall statistics
type Metrics struct {
	Timestamp float64 `json:"timestamp"` // Virtual time

	// Cumulative counters
	TotalDataWrittenMB    float64 `json:"totalDataWrittenMB"`    // User writes accepted into memtables
	TotalFlushWrittenMB   float64 `json:"totalFlushWrittenMB"`   // Bytes written by flushes
	TotalCompactionReadMB float64 `json:"totalCompactionReadMB"` // Compaction input
	TotalCompactionOutMB  float64 `json:"totalCompactionOutMB"`  // Compaction output
	FlushCount            int     `json:"flushCount"`
	CompactionCount       int     `json:"compactionCount"`

	// Amplification
	WriteAmplification float64 `json:"writeAmplification"` // Disk bytes written / bytes flushed

	// Last job performance
	LastFlushThroughputMBps      float64 `json:"lastFlushThroughputMBps"`
	LastCompactionThroughputMBps float64 `json:"lastCompactionThroughputMBps"`

	// Write stall metrics
	StallDurationSeconds    float64 `json:"stallDurationSeconds"`    // Cumulative time writes were stopped
	SlowdownDurationSeconds float64 `json:"slowdownDurationSeconds"` // Cumulative time writes were delayed
	StalledBacklogMB        float64 `json:"stalledBacklogMB"`        // Writes buffered while stopped
	MaxStalledBacklogMB     float64 `json:"maxStalledBacklogMB"`
	IsStalled               bool    `json:"isStalled"`
	IsSlowedDown            bool    `json:"isSlowedDown"`
	IsOOMKilled             bool    `json:"isOOMKilled"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{WriteAmplification: 1.0}
}

// RecordUserWrite counts bytes accepted into the memtable
func (m *Metrics) RecordUserWrite(sizeMB float64) {
	m.TotalDataWrittenMB += sizeMB
}

// RecordFlush counts one completed flush
func (m *Metrics) RecordFlush(sizeMB, startTime, endTime float64) {
	m.FlushCount++
	m.TotalFlushWrittenMB += sizeMB
	if d := endTime - startTime; d > 0 {
		m.LastFlushThroughputMBps = sizeMB / d
	}
	m.updateWriteAmplification()
}

// RecordCompaction counts one completed compaction
func (m *Metrics) RecordCompaction(inputMB, outputMB, startTime, endTime float64) {
	m.CompactionCount++
	m.TotalCompactionReadMB += inputMB
	m.TotalCompactionOutMB += outputMB
	if d := endTime - startTime; d > 0 {
		m.LastCompactionThroughputMBps = inputMB / d
	}
	m.updateWriteAmplification()
}

func (m *Metrics) updateWriteAmplification() {
	if m.TotalFlushWrittenMB <= 0 {
		m.WriteAmplification = 1.0
		return
	}
	m.WriteAmplification = (m.TotalFlushWrittenMB + m.TotalCompactionOutMB) / m.TotalFlushWrittenMB
}

// Clone returns a snapshot safe to hand to another goroutine
func (m *Metrics) Clone() *Metrics {
	c := *m
	return &c
}
