//go:build !linux

package selector

import (
	"errors"

	"github.com/itohio/gopowermon/pkg/config"
)

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(cfg config.GPIOConfig) (*RealReader, error) {
	return nil, errors.New("selector: GPIO not supported on this platform (requires Linux)")
}

// ThreePhase is not implemented on non-Linux platforms.
func (r *RealReader) ThreePhase() (bool, error) {
	return false, errors.New("selector: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}
