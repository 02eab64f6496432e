package power

import (
	"math"

	"github.com/itohio/gopowermon/pkg/config"
	"github.com/itohio/gopowermon/pkg/sample"
)

// Verdict is the outcome of validating one current batch.
type Verdict struct {
	Valid        bool
	Reason       string // Empty when valid
	Samples      int
	ValidSamples int
	PercentValid float64
	PeakToPeak   float64
	Min          uint16
	Max          uint16
	Saturated    int     // Codes stuck at either rail
	SumSquares   float64 // Σ(code-offset)² over valid samples
}

// Validator separates a genuine AC signal from quantization noise, a
// floating input or a railed ADC.
type Validator struct {
	cfg    config.ValidationConfig
	adcMax uint16
}

// NewValidator creates a validator for an ADC whose largest code is adcMax.
func NewValidator(cfg config.ValidationConfig, adcMax uint16) *Validator {
	return &Validator{cfg: cfg, adcMax: adcMax}
}

// NoiseFloor returns the squared deviation a sample must exceed to count.
func (v *Validator) NoiseFloor() float64 {
	return v.cfg.NoiseFloor
}

// Validate classifies b against offset. Every threshold is a necessary
// condition on its own.
func (v *Validator) Validate(b sample.Batch, offset float64) Verdict {
	res := Verdict{Samples: len(b.Codes)}
	if res.Samples == 0 {
		res.Reason = "empty batch"
		return res
	}

	res.Min, res.Max = math.MaxUint16, 0
	for _, c := range b.Codes {
		if c < res.Min {
			res.Min = c
		}
		if c > res.Max {
			res.Max = c
		}
		if c == 0 || c >= v.adcMax {
			res.Saturated++
		}
		d := float64(c) - offset
		sq := d * d
		if sq > v.cfg.NoiseFloor {
			res.ValidSamples++
			res.SumSquares += sq
		}
	}
	res.PeakToPeak = float64(res.Max) - float64(res.Min)
	res.PercentValid = 100 * float64(res.ValidSamples) / float64(res.Samples)

	switch {
	case res.ValidSamples < v.cfg.MinValidSamples:
		res.Reason = "too few valid samples"
	case res.PeakToPeak < v.cfg.MinPeakToPeak:
		res.Reason = "peak-to-peak below minimum"
	case res.PercentValid < v.cfg.MinPercentValid:
		res.Reason = "valid percentage below minimum"
	case res.Saturated*4 >= res.Samples:
		res.Reason = "input saturated"
	default:
		res.Valid = true
	}
	return res
}
