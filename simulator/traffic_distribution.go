package simulator

import (
	"math"
	"math/rand"
)

// TrafficDistribution generates the write arrival stream
type TrafficDistribution interface {
	// NextWriteSizeMB returns the size of the next write in MB
	NextWriteSizeMB() float64
	// NextIntervalSeconds returns the time until the next write, 0 when idle
	NextIntervalSeconds() float64
	// UpdateTime advances any internal state machine to virtual time now
	UpdateTime(now float64)
	// CurrentRateMBps is the rate the next interval is drawn from
	CurrentRateMBps() float64
}

// ConstantTrafficDistribution generates writes at a constant rate
type ConstantTrafficDistribution struct {
	writeRateMBps float64
	writeSizeMB   float64
}

func NewConstantTrafficDistribution(writeRateMBps, writeSizeMB float64) *ConstantTrafficDistribution {
	return &ConstantTrafficDistribution{writeRateMBps: writeRateMBps, writeSizeMB: writeSizeMB}
}

func (d *ConstantTrafficDistribution) NextWriteSizeMB() float64 { return d.writeSizeMB }
func (d *ConstantTrafficDistribution) UpdateTime(float64)       {}
func (d *ConstantTrafficDistribution) CurrentRateMBps() float64 { return d.writeRateMBps }

func (d *ConstantTrafficDistribution) NextIntervalSeconds() float64 {
	if d.writeRateMBps <= 0 {
		return 0
	}
	return d.writeSizeMB / d.writeRateMBps
}

// OnOffTrafficDistribution alternates between the base rate and a burst of
// BurstMultiplier times the base rate. Period lengths are exponential.
type OnOffTrafficDistribution struct {
	baseRateMBps    float64
	burstMultiplier float64
	writeSizeMB     float64
	onMeanSeconds   float64
	offMeanSeconds  float64

	isON     bool
	left     float64 // Seconds left in the current period
	lastTime float64
	rng      *rand.Rand
}

func NewOnOffTrafficDistribution(cfg TrafficConfig, rng *rand.Rand) *OnOffTrafficDistribution {
	return &OnOffTrafficDistribution{
		baseRateMBps:    cfg.WriteRateMBps,
		burstMultiplier: cfg.BurstMultiplier,
		writeSizeMB:     cfg.WriteSizeMB,
		onMeanSeconds:   cfg.OnMeanSeconds,
		offMeanSeconds:  cfg.OffMeanSeconds,
		left:            exponentialSample(rng, cfg.OffMeanSeconds),
		rng:             rng,
	}
}

func (d *OnOffTrafficDistribution) NextWriteSizeMB() float64 { return d.writeSizeMB }

func (d *OnOffTrafficDistribution) CurrentRateMBps() float64 {
	if d.isON {
		return d.baseRateMBps * d.burstMultiplier
	}
	return d.baseRateMBps
}

func (d *OnOffTrafficDistribution) NextIntervalSeconds() float64 {
	rate := d.CurrentRateMBps()
	if rate <= 0 {
		return 0
	}
	return d.writeSizeMB / rate
}

// IsBursting reports whether the distribution is in its ON period
func (d *OnOffTrafficDistribution) IsBursting() bool { return d.isON }

func (d *OnOffTrafficDistribution) UpdateTime(now float64) {
	elapsed := now - d.lastTime
	d.lastTime = now
	for elapsed > 0 {
		if elapsed < d.left {
			d.left -= elapsed
			return
		}
		elapsed -= d.left
		d.isON = !d.isON
		if d.isON {
			d.left = exponentialSample(d.rng, d.onMeanSeconds)
		} else {
			d.left = exponentialSample(d.rng, d.offMeanSeconds)
		}
		// A zero-length period would spin forever.
		d.left = max(d.left, 1e-3)
	}
}

// exponentialSample generates an exponential random variable
func exponentialSample(rng *rand.Rand, mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	u := rng.Float64()
	if u == 0 {
		u = 1e-10 // Avoid log(0)
	}
	return -mean * math.Log(u)
}

// NewTrafficDistribution creates a traffic distribution from config
func NewTrafficDistribution(cfg TrafficConfig, rng *rand.Rand) TrafficDistribution {
	switch cfg.Model {
	case TrafficModelOnOff:
		return NewOnOffTrafficDistribution(cfg, rng)
	default:
		return NewConstantTrafficDistribution(cfg.WriteRateMBps, cfg.WriteSizeMB)
	}
}
