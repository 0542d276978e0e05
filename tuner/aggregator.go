package tuner

import (
	"time"

	"github.com/samber/lo"
)

// bytesPerUnit converts engine byte counters into the MB units used by Score.
const bytesPerUnit = 1e6

// RoundStats carries raw by-products of one aggregation round. They feed the
// round report only; none of them reach the Score.
type RoundStats struct {
	FlushEvents         int           `json:"flushEvents"`
	CompactionEvents    int           `json:"compactionEvents"`
	L0Compactions       int           `json:"l0Compactions"`
	MinFlushSpeed       float64       `json:"minFlushSpeed"`
	MinFlushL0Files     int           `json:"minFlushL0Files"` // -1 when no flush finished
	MaxPendingBytes     uint64        `json:"maxPendingBytes"`
	MemtableGrowthBytes uint64        `json:"memtableGrowthBytes"`
	FlushIdle           time.Duration `json:"flushIdle"`
	CompactionIdle      time.Duration `json:"compactionIdle"`
}

// Aggregator folds new engine events into one Score per round. Every raw
// event contributes to exactly one Score: the cursors advance past all
// records read in a round before Aggregate returns.
type Aggregator struct {
	provider      MetricsProvider
	cursors       Cursors
	lastUnflushed uint64
}

// NewAggregator starts consuming every stream from offset zero. The current
// memtable total is taken as the growth baseline.
func NewAggregator(provider MetricsProvider) *Aggregator {
	_, total := provider.MemtableBytes()
	return &Aggregator{
		provider: provider,
		cursors: Cursors{
			StreamFlush:          0,
			StreamCompaction:     0,
			StreamFlushIdle:      0,
			StreamCompactionIdle: 0,
		},
		lastUnflushed: total,
	}
}

// Cursors returns a copy of the consumption offsets.
func (a *Aggregator) Cursors() Cursors {
	return a.cursors.clone()
}

// Aggregate produces the Score for the interval that just ended, using the
// engine options in effect during it.
func (a *Aggregator) Aggregate(opts EngineOptions, interval time.Duration) (Score, RoundStats) {
	var score Score
	stats := RoundStats{MinFlushL0Files: -1}
	next := a.cursors.clone()
	secs := interval.Seconds()

	active, total := a.provider.MemtableBytes()
	if opts.WriteBufferSize > 0 {
		score.ActiveSizeRatio = float64(active) / float64(opts.WriteBufferSize)
	}
	score.ImmutableNumber = float64(a.provider.ImmutableMemtables())

	// Flushes.
	flushes, flushNext := a.provider.FlushRecords(a.cursors[StreamFlush])
	next[StreamFlush] = flushNext
	var diskBytes uint64
	for i, f := range flushes {
		score.FlushSpeedAvg += f.WriteOutBandwidth
		score.FlushGapTime += f.Gap.Seconds()
		diskBytes += f.TotalBytes
		if i == 0 || f.WriteOutBandwidth < stats.MinFlushSpeed {
			stats.MinFlushSpeed = f.WriteOutBandwidth
		}
		if stats.MinFlushL0Files < 0 || f.L0Files < stats.MinFlushL0Files {
			stats.MinFlushL0Files = f.L0Files
		}
	}
	stats.FlushEvents = len(flushes)
	score.FlushNumbers = float64(len(flushes))
	if n := float64(len(flushes)); n > 0 {
		score.FlushSpeedAvg /= n
		for _, f := range flushes {
			d := f.WriteOutBandwidth - score.FlushSpeedAvg
			score.FlushSpeedVar += d * d
		}
		score.FlushSpeedVar /= n
		score.FlushGapTime /= n
	}

	// Memtable growth. A total below the last observation means whole
	// buffers were flushed in between.
	if opts.WriteBufferSize > 0 {
		for total < a.lastUnflushed {
			total += opts.WriteBufferSize
		}
	}
	if total >= a.lastUnflushed {
		stats.MemtableGrowthBytes = total - a.lastUnflushed
		a.lastUnflushed = total
	}
	if secs > 0 {
		score.MemtableSpeed = float64(stats.MemtableGrowthBytes) / secs / bytesPerUnit
	}

	// Compactions.
	compactions, compactionNext := a.provider.CompactionRecords(a.cursors[StreamCompaction])
	next[StreamCompaction] = compactionNext
	for _, c := range compactions {
		if c.InputLevel == 0 {
			score.L0DropRatio += c.DropRatio
			stats.L0Compactions++
			stats.MaxPendingBytes = max(stats.MaxPendingBytes, c.CurrentPendingBytes)
		}
		diskBytes += c.TotalBytes
	}
	stats.CompactionEvents = len(compactions)
	if stats.L0Compactions > 0 {
		score.L0DropRatio /= float64(stats.L0Compactions)
	}
	if secs > 0 {
		score.DiskBandwidth = float64(diskBytes) / bytesPerUnit / secs
	}

	// Live gauges override anything derived from events.
	if opts.Level0SlowdownWritesTrigger > 0 {
		score.L0Num = float64(a.provider.BaseLevelFiles()) / float64(opts.Level0SlowdownWritesTrigger)
	}
	if opts.SoftPendingCompactionBytesLimit > 0 {
		score.EstimateCompactionBytes = float64(a.provider.PendingCompactionBytes()) /
			float64(opts.SoftPendingCompactionBytesLimit)
	}

	// Thread idleness against the pool budgets (1/4 flush, 3/4 compaction).
	flushIdle, flushIdleNext := a.provider.IdleSamples(FlushPool, a.cursors[StreamFlushIdle])
	compactionIdle, compactionIdleNext := a.provider.IdleSamples(CompactionPool, a.cursors[StreamCompactionIdle])
	next[StreamFlushIdle] = flushIdleNext
	next[StreamCompactionIdle] = compactionIdleNext
	stats.FlushIdle = lo.Sum(flushIdle)
	stats.CompactionIdle = lo.Sum(compactionIdle)
	budget := float64(opts.MaxBackgroundJobs) * secs
	if budget > 0 {
		score.FlushIdleTime = stats.FlushIdle.Seconds() / (budget / 4)
		score.CompactionIdleTime = stats.CompactionIdle.Seconds() / (budget * 3 / 4)
	}

	a.cursors = next
	return score, stats
}
