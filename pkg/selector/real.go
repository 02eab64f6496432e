//go:build linux

package selector

import (
	"fmt"

	"github.com/itohio/gopowermon/pkg/config"
	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the switch from a GPIO line.
type RealReader struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealReader requests cfg.PhasePin on cfg.Chip as an input with pull-up.
// With ActiveLow set, a switch closing the line to ground selects three-phase.
func NewRealReader(cfg config.GPIOConfig) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Chip, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := chip.RequestLine(cfg.PhasePin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request phase pin %d: %w", cfg.PhasePin, err)
	}

	return &RealReader{chip: chip, line: line}, nil
}

// ThreePhase returns the logical line value.
func (r *RealReader) ThreePhase() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read phase pin: %w", err)
	}
	return v == 1, nil
}

// Close releases the line and the chip.
func (r *RealReader) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close phase pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
