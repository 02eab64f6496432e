package sample

import (
	"time"

	"github.com/itohio/gopowermon/pkg/adc"
)

// Batch is an ordered run of raw ADC codes from one channel, captured within
// a single update cycle.
type Batch struct {
	Channel adc.Channel
	Codes   []uint16
	Start   time.Time // Time of the first conversion
	End     time.Time // Time of the last conversion
}

// Len returns the number of codes in the batch.
func (b Batch) Len() int {
	return len(b.Codes)
}

// Duration returns the time spanned between the first and last conversion.
func (b Batch) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Mean returns the arithmetic mean of the codes, or 0 for an empty batch.
func (b Batch) Mean() float64 {
	if len(b.Codes) == 0 {
		return 0
	}
	var sum uint64
	for _, c := range b.Codes {
		sum += uint64(c)
	}
	return float64(sum) / float64(len(b.Codes))
}

// Sampler issues conversions on an adc.Reader at a fixed cadence. It is the
// only component that touches the ADC, and a batch always runs to completion.
type Sampler struct {
	reader   adc.Reader
	clock    Clock
	interval time.Duration
}

// NewSampler creates a sampler. interval > 0 paces conversions to
// start + i*interval; interval == 0 samples as fast as the reader allows.
func NewSampler(reader adc.Reader, clock Clock, interval time.Duration) *Sampler {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval < 0 {
		interval = 0
	}
	return &Sampler{
		reader:   reader,
		clock:    clock,
		interval: interval,
	}
}

// Interval returns the pacing interval (0 when free-running).
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Clock returns the clock used for pacing and timestamps.
func (s *Sampler) Clock() Clock {
	return s.clock
}

// Sample captures count conversions from ch. A negative count yields an
// empty batch.
func (s *Sampler) Sample(ch adc.Channel, count int) Batch {
	count = max(count, 0)
	b := Batch{
		Channel: ch,
		Codes:   make([]uint16, count),
	}

	start := s.clock.Now()
	b.Start = start
	for i := 0; i < count; i++ {
		if s.interval > 0 && i > 0 {
			s.clock.SleepUntil(start.Add(time.Duration(i) * s.interval))
		}
		b.Codes[i] = s.reader.Read(ch)
	}
	b.End = s.clock.Now()

	return b
}

// SamplePair captures count interleaved conversions of the current and
// voltage channels so that sample i of both batches describes the same
// instant (within one conversion time).
func (s *Sampler) SamplePair(count int) (current, voltage Batch) {
	count = max(count, 0)
	current = Batch{Channel: adc.Current, Codes: make([]uint16, count)}
	voltage = Batch{Channel: adc.Voltage, Codes: make([]uint16, count)}

	start := s.clock.Now()
	current.Start, voltage.Start = start, start
	for i := 0; i < count; i++ {
		if s.interval > 0 && i > 0 {
			s.clock.SleepUntil(start.Add(time.Duration(i) * s.interval))
		}
		current.Codes[i] = s.reader.Read(adc.Current)
		voltage.Codes[i] = s.reader.Read(adc.Voltage)
	}
	end := s.clock.Now()
	current.End, voltage.End = end, end

	return current, voltage
}

// CodeToVolts converts an ADC code to the voltage at the ADC pin.
func CodeToVolts(code float64, scale float64) float64 {
	return code * scale
}
