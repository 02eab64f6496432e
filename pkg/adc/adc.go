// Package adc abstracts the analog-to-digital converter behind two logical
// channels. Implementations are owned by a single sampler and are not safe
// for concurrent use.
package adc

import "fmt"

// Channel identifies a logical ADC input.
type Channel int

const (
	// Current is the CT burden voltage input.
	Current Channel = iota
	// Voltage is the divided mains voltage input.
	Voltage
)

func (c Channel) String() string {
	switch c {
	case Current:
		return "current"
	case Voltage:
		return "voltage"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Reader performs single conversions. There is no error return: a read that
// fails at the hardware level yields an out-of-range code, which the
// validation stage treats like a disconnected sensor.
type Reader interface {
	Read(ch Channel) uint16
}

// Configurer is implemented by readers that need explicit setup before the
// first conversion.
type Configurer interface {
	Configure() error
}
