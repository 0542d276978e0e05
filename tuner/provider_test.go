package tuner

import "time"

// fakeProvider is an in-memory MetricsProvider whose streams tests append to.
type fakeProvider struct {
	active, total uint64
	immutables    int
	flushes       []FlushRecord
	compactions   []CompactionRecord
	baseFiles     int
	pending       uint64
	idle          map[ThreadPool][]time.Duration
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{idle: map[ThreadPool][]time.Duration{}}
}

func tail[T any](s []T, from uint64) ([]T, uint64) {
	n := uint64(len(s))
	if from >= n {
		return nil, n
	}
	return s[from:], n
}

func (f *fakeProvider) MemtableBytes() (uint64, uint64) { return f.active, f.total }
func (f *fakeProvider) ImmutableMemtables() int          { return f.immutables }
func (f *fakeProvider) BaseLevelFiles() int              { return f.baseFiles }
func (f *fakeProvider) PendingCompactionBytes() uint64   { return f.pending }

func (f *fakeProvider) FlushRecords(from uint64) ([]FlushRecord, uint64) {
	return tail(f.flushes, from)
}

func (f *fakeProvider) CompactionRecords(from uint64) ([]CompactionRecord, uint64) {
	return tail(f.compactions, from)
}

func (f *fakeProvider) IdleSamples(pool ThreadPool, from uint64) ([]time.Duration, uint64) {
	return tail(f.idle[pool], from)
}

// recordingApplier remembers every batch it was asked to apply.
type recordingApplier struct {
	batches [][]ChangePoint
	err     error
}

func (a *recordingApplier) ApplyChanges(changes []ChangePoint) error {
	a.batches = append(a.batches, changes)
	return a.err
}
