//go:build tinygo

package main

import "machine"

const (
	// Measurement cadence
	UPDATE_PERIOD_MS = 1000 // One full cycle (offset, voltage, current batches) per second

	// Phase selector switch debounce, in main loop iterations
	SWITCH_STABLE_LOOPS = 100

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// ADC pins
	PIN_CURRENT_ADC = machine.A1
	PIN_VOLTAGE_ADC = machine.A10

	// Phase selector: closed to ground selects three-phase
	PIN_PHASE_SWITCH = machine.D7

	// Lit while the CT is connected
	PIN_STATE_LED = machine.D8

	// Serial configuration
	// Frame: "1772323200123456,230.25,5.125,1180.0,1.000,50.00,12.500000,0.250000,reconnecting,3*C8\n"
	// ~90 bytes once per second; 115200 leaves ample headroom for commands.
	UART_BAUD_RATE = 115200

	// Longest accepted command line ("E<imported>,<exported>")
	COMMAND_MAX_LEN = 64
)
