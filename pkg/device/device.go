// Package device provides snapshot sources: a firmware board streaming
// frames over a serial port, or a meter running in-process on an ADC.
package device

import (
	"errors"

	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaudRate is the firmware UART speed.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the snapshot channel buffer.
	DefaultBufferSize = 16
)

var (
	// ErrNotConnected is returned by commands sent to a closed source.
	ErrNotConnected = errors.New("device not connected")
	// ErrAlreadyConnected is returned by Connect on an open source.
	ErrAlreadyConnected = errors.New("device already connected")
)

// Source produces measurement snapshots and accepts the meter controls.
type Source interface {
	Connect() error
	Close() error
	// Snapshots returns the channel opened by the last Connect. It is closed
	// when the source stops.
	Snapshots() <-chan meter.Snapshot
	SetPhaseCount(n int) error
	ResetEnergy() error
	RestoreEnergy(importedKWh, exportedKWh float64) error
	IsConnected() bool
}

var (
	_ Source = (*Serial)(nil)
	_ Source = (*Local)(nil)
)

func loggerOrStandard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
