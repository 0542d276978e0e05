package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miretskiy/rollingtuner/simulator"
	"github.com/miretskiy/rollingtuner/tuner"
)

// promMetrics exports the tuner's view of the engine next to the simulated
// engine's own counters.
type promMetrics struct {
	rounds      prometheus.Counter
	changes     *prometheus.CounterVec
	applyErrors prometheus.Counter
	option      *prometheus.GaugeVec
	score       *prometheus.GaugeVec
	pressure    *prometheus.GaugeVec

	writeAmp      prometheus.Gauge
	l0Files       prometheus.Gauge
	totalSizeMB   prometheus.Gauge
	isStalled     prometheus.Gauge
	stallSeconds  prometheus.Gauge
	stalledBuffer prometheus.Gauge
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollingtuner_rounds_total",
			Help: "Tuning rounds completed",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollingtuner_changes_total",
			Help: "Option changes emitted, by knob",
		}, []string{"knob"}),
		applyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollingtuner_apply_errors_total",
			Help: "Change batches the engine rejected",
		}),
		option: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollingtuner_engine_option",
			Help: "Engine option value the tuner believes is in effect",
		}, []string{"knob"}),
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollingtuner_score",
			Help: "Last round's score snapshot, by field",
		}, []string{"field"}),
		pressure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollingtuner_hysteresis_counter",
			Help: "Hysteresis accumulators and relax counters",
		}, []string{"counter"}),
		writeAmp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocksdb_write_amplification",
			Help: "Write amplification factor",
		}),
		l0Files: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocksdb_l0_files",
			Help: "Number of L0 files",
		}),
		totalSizeMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocksdb_total_size_mb",
			Help: "Total LSM size in MB",
		}),
		isStalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocksdb_is_stalled",
			Help: "Write stall state (0=normal, 1=stalled)",
		}),
		stallSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocksdb_stall_seconds",
			Help: "Cumulative virtual seconds writes were stopped",
		}),
		stalledBuffer: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rocksdb_stalled_write_backlog_mb",
			Help: "Writes buffered while stopped",
		}),
	}
	reg.MustRegister(
		m.rounds, m.changes, m.applyErrors, m.option, m.score, m.pressure,
		m.writeAmp, m.l0Files, m.totalSizeMB, m.isStalled, m.stallSeconds, m.stalledBuffer,
	)
	return m
}

// Observe implements tuner.Observer.
func (m *promMetrics) Observe(r tuner.Report, applyErr error) {
	m.rounds.Inc()
	if applyErr != nil {
		m.applyErrors.Inc()
	}
	for _, c := range r.Changes {
		m.changes.WithLabelValues(string(c.Knob)).Inc()
	}

	o := r.After.Options
	m.option.WithLabelValues(string(tuner.KnobMaxBackgroundJobs)).Set(float64(o.MaxBackgroundJobs))
	m.option.WithLabelValues(string(tuner.KnobMaxBackgroundFlushes)).Set(float64(r.After.FlushThreads))
	m.option.WithLabelValues(string(tuner.KnobMaxBackgroundCompactions)).Set(float64(r.After.CompactionThreads))
	m.option.WithLabelValues(string(tuner.KnobWriteBufferSize)).Set(float64(o.WriteBufferSize))
	m.option.WithLabelValues(string(tuner.KnobMaxBytesForLevelBase)).Set(float64(o.MaxBytesForLevelBase))
	m.option.WithLabelValues(string(tuner.KnobTargetFileSizeBase)).Set(float64(o.TargetFileSizeBase))

	s := r.Score
	for field, v := range map[string]float64{
		"flush_speed_avg":           s.FlushSpeedAvg,
		"immutable_number":          s.ImmutableNumber,
		"active_size_ratio":         s.ActiveSizeRatio,
		"l0_num":                    s.L0Num,
		"estimate_compaction_bytes": s.EstimateCompactionBytes,
		"flush_idle_time":           s.FlushIdleTime,
		"compaction_idle_time":      s.CompactionIdleTime,
		"disk_bandwidth":            s.DiskBandwidth,
		"memtable_speed":            s.MemtableSpeed,
	} {
		m.score.WithLabelValues(field).Set(v)
	}

	h := r.Decision.Hysteresis
	m.pressure.WithLabelValues("memtable_pressure").Set(float64(h.MemtablePressure))
	m.pressure.WithLabelValues("compaction_pressure").Set(float64(h.CompactionPressure))
	m.pressure.WithLabelValues("memtable_relax").Set(float64(h.MemtableRelax))
	m.pressure.WithLabelValues("compaction_relax").Set(float64(h.CompactionRelax))
	m.pressure.WithLabelValues("stall_suspect").Set(float64(h.StallSuspect))
}

func (m *promMetrics) updateEngine(metrics *simulator.Metrics, lsm *simulator.LSMTree) {
	m.writeAmp.Set(metrics.WriteAmplification)
	m.l0Files.Set(float64(lsm.Levels[0].FileCount()))
	m.totalSizeMB.Set(lsm.TotalSizeMB())
	if metrics.IsStalled {
		m.isStalled.Set(1.0)
	} else {
		m.isStalled.Set(0.0)
	}
	m.stallSeconds.Set(metrics.StallDurationSeconds)
	m.stalledBuffer.Set(metrics.StalledBacklogMB)
}
