package simulator

import "math"

// bytesPerMB converts the simulator's MB sizes into engine byte counters
const bytesPerMB = 1 << 20

// Level is one level of the LSM tree. L0 tracks individual file sizes since
// the flush trigger counts files; deeper levels are sized in bulk.
type Level struct {
	Number         int       `json:"level"`
	SizeMB         float64   `json:"sizeMB"`
	CompactingMB   float64   `json:"compactingMB"` // Bytes reserved by running compactions, as source or target
	Files          []float64 `json:"-"`            // L0 file sizes, oldest first
	CompactingL0   int       `json:"-"`            // Oldest L0 files reserved by the running L0 compaction
	targetFileSize float64
}

// FileCount returns the live file count. Non-L0 levels are assumed to be cut
// into target_file_size_base files.
func (l *Level) FileCount() int {
	if l.Number == 0 {
		return len(l.Files)
	}
	if l.SizeMB <= 0 || l.targetFileSize <= 0 {
		return 0
	}
	return int(math.Ceil(l.SizeMB / l.targetFileSize))
}

// AvailableMB returns the bytes not reserved by a running compaction
func (l *Level) AvailableMB() float64 {
	return max(0, l.SizeMB-l.CompactingMB)
}

// LSMTree holds the memtables and the on-disk levels
type LSMTree struct {
	Levels     []*Level  `json:"levels"`
	MemtableMB float64   `json:"memtableMB"`   // Active memtable
	Immutables []float64 `json:"immutablesMB"` // Sealed memtables, oldest first
	Flushing   int       `json:"flushing"`     // Oldest immutables owned by running flushes
}

// NewLSMTree creates an empty tree
func NewLSMTree(numLevels int, targetFileSizeMB float64) *LSMTree {
	t := &LSMTree{Levels: make([]*Level, numLevels)}
	for i := range t.Levels {
		t.Levels[i] = &Level{Number: i, targetFileSize: targetFileSizeMB}
	}
	return t
}

// SetTargetFileSize changes how deeper levels are cut into files
func (t *LSMTree) SetTargetFileSize(mb float64) {
	for _, l := range t.Levels {
		l.targetFileSize = mb
	}
}

// ImmutableMB returns the total size of sealed memtables
func (t *LSMTree) ImmutableMB() float64 {
	var sum float64
	for _, s := range t.Immutables {
		sum += s
	}
	return sum
}

// Rotate seals the active memtable
func (t *LSMTree) Rotate() {
	if t.MemtableMB <= 0 {
		return
	}
	t.Immutables = append(t.Immutables, t.MemtableMB)
	t.MemtableMB = 0
}

// ReadyToFlush returns the number of sealed memtables no flush owns yet
func (t *LSMTree) ReadyToFlush() int {
	return len(t.Immutables) - t.Flushing
}

// StartFlush reserves the next n sealed memtables and returns their size
func (t *LSMTree) StartFlush(n int) float64 {
	n = min(n, t.ReadyToFlush())
	var size float64
	for _, s := range t.Immutables[t.Flushing : t.Flushing+n] {
		size += s
	}
	t.Flushing += n
	return size
}

// FinishFlush drops n flushed memtables and adds one L0 file
func (t *LSMTree) FinishFlush(n int, sizeMB float64) {
	n = min(n, t.Flushing)
	t.Immutables = t.Immutables[n:]
	t.Flushing -= n
	l0 := t.Levels[0]
	l0.Files = append(l0.Files, sizeMB)
	l0.SizeMB += sizeMB
}

// TargetSizeMB returns the size limit of level n (n >= 1)
func TargetSizeMB(n int, baseMB float64, multiplier int) float64 {
	if n < 1 {
		return baseMB
	}
	return baseMB * math.Pow(float64(multiplier), float64(n-1))
}

// CompactionScore returns how urgently a level needs compaction. Scores of 1
// or more trigger a compaction.
func (t *LSMTree) CompactionScore(n int, l0Trigger int, baseMB float64, multiplier int) float64 {
	if n < 0 || n >= len(t.Levels)-1 {
		return 0 // The last level is never a source
	}
	l := t.Levels[n]
	if n == 0 {
		if l.CompactingL0 > 0 || l0Trigger <= 0 {
			return 0 // One L0 compaction at a time
		}
		return float64(len(l.Files)) / float64(l0Trigger)
	}
	return l.AvailableMB() / TargetSizeMB(n, baseMB, multiplier)
}

// compactionPick describes the bytes reserved for one compaction
type compactionPick struct {
	from, to   int
	sourceMB   float64
	overlapMB  float64
	inputFiles int
}

func (p compactionPick) inputMB() float64 { return p.sourceMB + p.overlapMB }

// PickCompaction reserves the inputs of a compaction from level n. L0 takes
// every file and all available base level bytes; deeper levels take one
// target file and the overlapping share of the next level.
func (t *LSMTree) PickCompaction(n int, targetFileMB, overlapRatio float64, multiplier int) (compactionPick, bool) {
	if n < 0 || n >= len(t.Levels)-1 {
		return compactionPick{}, false
	}
	src, dst := t.Levels[n], t.Levels[n+1]
	p := compactionPick{from: n, to: n + 1}
	if n == 0 {
		if src.CompactingL0 > 0 || len(src.Files) == 0 {
			return p, false
		}
		for _, f := range src.Files {
			p.sourceMB += f
		}
		p.inputFiles = len(src.Files)
		src.CompactingL0 = len(src.Files)
	} else {
		p.sourceMB = min(src.AvailableMB(), targetFileMB)
		if p.sourceMB <= 0 {
			return p, false
		}
		p.inputFiles = 1
	}
	src.CompactingMB += p.sourceMB

	if n == 0 {
		p.overlapMB = dst.AvailableMB()
	} else {
		p.overlapMB = min(dst.AvailableMB(), p.sourceMB*float64(multiplier)*overlapRatio)
	}
	dst.CompactingMB += p.overlapMB
	if dst.FileCount() > 0 && p.overlapMB > 0 {
		p.inputFiles += max(1, int(math.Ceil(p.overlapMB/max(targetFileMB, 1))))
	}
	return p, true
}

// FinishCompaction releases the reservation and installs the output
func (t *LSMTree) FinishCompaction(p compactionPick, outputMB float64) {
	src, dst := t.Levels[p.from], t.Levels[p.to]
	if p.from == 0 {
		src.Files = src.Files[src.CompactingL0:]
		src.CompactingL0 = 0
	}
	src.SizeMB = max(0, src.SizeMB-p.sourceMB)
	src.CompactingMB = max(0, src.CompactingMB-p.sourceMB)
	dst.SizeMB = max(0, dst.SizeMB-p.overlapMB) + outputMB
	dst.CompactingMB = max(0, dst.CompactingMB-p.overlapMB)
}

// PendingCompactionMB estimates the bytes compaction must rewrite to bring
// every level under its target. L0 contributes once it reaches the trigger,
// together with the base level it merges into. Each oversized level
// contributes its excess times the fanout of the merge into the next level.
func (t *LSMTree) PendingCompactionMB(l0Trigger int, baseMB float64, multiplier int) float64 {
	var pending, carry float64
	l0 := t.Levels[0]
	if len(l0.Files) >= l0Trigger {
		pending += l0.SizeMB + t.Levels[1].SizeMB
		carry = l0.SizeMB
	}
	for n := 1; n < len(t.Levels)-1; n++ {
		size := t.Levels[n].SizeMB + carry
		target := TargetSizeMB(n, baseMB, multiplier)
		if size <= target {
			carry = 0
			continue
		}
		excess := size - target
		pending += excess * (float64(multiplier) + 1)
		carry = excess
	}
	return pending
}

// TotalSizeMB returns the on-disk size
func (t *LSMTree) TotalSizeMB() float64 {
	var sum float64
	for _, l := range t.Levels {
		sum += l.SizeMB
	}
	return sum
}

// Populate fills the deepest levels with sizeMB bytes, each level a
// multiplier smaller than the one below it.
func (t *LSMTree) Populate(sizeMB float64, multiplier int) {
	left := sizeMB
	for n := len(t.Levels) - 1; n >= 1 && left > 0; n-- {
		share := left * float64(multiplier-1) / float64(multiplier)
		if n == 1 {
			share = left
		}
		t.Levels[n].SizeMB += share
		left -= share
	}
}
