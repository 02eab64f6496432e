// Package power holds the measurement core: DC offset tracking, signal
// validation, CT presence detection, RMS and power computation, and energy
// integration. Nothing in this package performs I/O or logs; anomalies are
// reported through a DiagnosticFunc.
package power

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/itohio/gopowermon/pkg/config"
	"github.com/itohio/gopowermon/pkg/sample"
)

// ErrOffsetImplausible is returned when an offset estimate falls outside the
// plausible midscale band.
var ErrOffsetImplausible = errors.New("offset outside plausible band")

// OffsetEstimate is the current channel's zero-signal bias in ADC counts.
type OffsetEstimate struct {
	Fast      float64
	Slow      float64
	Effective float64 // FastBlend*Fast + (1-FastBlend)*Slow
}

// OffsetTracker follows the drifting DC bias of the current channel with a
// fast and a slow exponential filter.
type OffsetTracker struct {
	filters config.FilterConfig
	min     float64
	max     float64
	nominal float64

	est OffsetEstimate
}

// NewOffsetTracker creates a tracker seeded at the nominal offset.
func NewOffsetTracker(filters config.FilterConfig, validation config.ValidationConfig) *OffsetTracker {
	t := &OffsetTracker{
		filters: filters,
		min:     validation.OffsetMin,
		max:     validation.OffsetMax,
		nominal: validation.NominalOffset,
	}
	t.Restart()
	return t
}

// EstimateOffset returns the raw offset of a pilot batch: its mean code.
func EstimateOffset(pilot sample.Batch) float64 {
	return pilot.Mean()
}

// CycleMean returns the mean of the longest prefix of b that spans a whole
// number of mains periods, which cancels the AC component of a loaded CT.
// The sample spacing comes from the batch timestamps. ok is false, and the
// plain mean is returned, when b spans less than one period or carries no
// timing.
func CycleMean(b sample.Batch, mainsHz float64) (mean float64, ok bool) {
	n := len(b.Codes)
	if n < 2 || mainsHz <= 0 || b.Duration() <= 0 {
		return b.Mean(), false
	}

	dt := b.Duration().Seconds() / float64(n-1)
	perPeriod := 1 / (mainsHz * dt)
	// Half a sample of slack absorbs rounding in the window size.
	periods := math.Floor((float64(n) + 0.5) / perPeriod)
	if periods < 1 {
		return b.Mean(), false
	}

	m := int(math.Round(periods * perPeriod))
	if m > n {
		m = n
	}
	var sum uint64
	for _, c := range b.Codes[:m] {
		sum += uint64(c)
	}
	return float64(sum) / float64(m), true
}

// PeriodSamples returns the number of conversions closest to count that
// spans a whole number (at least one) of mains periods at the given
// conversion interval. count is returned unchanged when the interval or the
// mains frequency is unknown.
func PeriodSamples(count int, interval time.Duration, mainsHz float64) int {
	if interval <= 0 || mainsHz <= 0 {
		return count
	}
	perPeriod := 1 / (mainsHz * interval.Seconds())
	periods := math.Max(1, math.Round(float64(count)/perPeriod))
	return int(math.Round(periods * perPeriod))
}

// Plausible reports whether raw lies inside the midscale band.
func (t *OffsetTracker) Plausible(raw float64) bool {
	return raw >= t.min && raw <= t.max
}

// Update feeds a raw estimate into both filters. Implausible values are
// rejected without touching the estimate and Update returns false.
func (t *OffsetTracker) Update(raw float64, reconnecting bool) bool {
	if !t.Plausible(raw) {
		return false
	}

	fw, sw := t.filters.FastWeight, t.filters.SlowWeight
	if reconnecting {
		fw, sw = t.filters.ReconnectFastWeight, t.filters.ReconnectSlowWeight
	}

	t.est.Fast += fw * (raw - t.est.Fast)
	t.est.Slow += sw * (raw - t.est.Slow)
	t.est.Effective = t.blend()
	return true
}

// Reset reseeds both filters to raw.
func (t *OffsetTracker) Reset(raw float64) error {
	if !t.Plausible(raw) {
		return fmt.Errorf("reseed at %.1f (band %.0f..%.0f): %w", raw, t.min, t.max, ErrOffsetImplausible)
	}
	t.est = OffsetEstimate{Fast: raw, Slow: raw, Effective: raw}
	return nil
}

// Restart returns the tracker to the nominal offset.
func (t *OffsetTracker) Restart() {
	t.est = OffsetEstimate{Fast: t.nominal, Slow: t.nominal, Effective: t.nominal}
}

// Estimate returns the current estimate.
func (t *OffsetTracker) Estimate() OffsetEstimate {
	return t.est
}

// Effective returns the blended offset used to center samples.
func (t *OffsetTracker) Effective() float64 {
	return t.est.Effective
}

func (t *OffsetTracker) blend() float64 {
	b := t.filters.FastBlend
	return b*t.est.Fast + (1-b)*t.est.Slow
}
