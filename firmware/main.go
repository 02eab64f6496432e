//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"github.com/itohio/gopowermon/pkg/adc"
	"github.com/itohio/gopowermon/pkg/config"
	"github.com/itohio/gopowermon/pkg/link"
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
)

var (
	uart = machine.UART0

	pm *meter.Meter

	// Frame output buffer, reused every cycle
	frame [128]byte

	// Serial buffer for reading command lines
	serialBuffer [COMMAND_MAX_LEN]byte
	serialPos    int
	overflow     bool

	// Phase switch debounce
	switchStable  bool
	switchPending bool
	switchCount   int
)

// boardADC reads the two measurement channels from the on-chip ADC.
type boardADC struct {
	current machine.ADC
	voltage machine.ADC
}

func (b *boardADC) Configure() error {
	PIN_CURRENT_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_VOLTAGE_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})

	b.current = machine.ADC{Pin: PIN_CURRENT_ADC}
	b.voltage = machine.ADC{Pin: PIN_VOLTAGE_ADC}

	cfg := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	b.current.Configure(cfg)
	b.voltage.Configure(cfg)
	return nil
}

// Read returns a code in the configured resolution. machine.ADC.Get is
// always scaled to 16 bits.
func (b *boardADC) Read(ch adc.Channel) uint16 {
	switch ch {
	case adc.Current:
		return b.current.Get() >> (16 - ADC_RESOLUTION)
	case adc.Voltage:
		return b.voltage.Get() >> (16 - ADC_RESOLUTION)
	default:
		return 0
	}
}

func main() {
	PIN_PHASE_SWITCH.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	PIN_STATE_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	cfg := config.Default()
	cfg.Calibration.ADCBits = ADC_RESOLUTION
	cfg.PhaseCount = readPhaseSwitch()
	switchStable = cfg.PhaseCount == 3
	switchPending = switchStable

	pm = meter.New(cfg, &boardADC{})
	if err := pm.Begin(); err != nil {
		println("adc:", err.Error())
	}

	period := time.Duration(UPDATE_PERIOD_MS) * time.Millisecond
	next := time.Now()

	for {
		processSerial()
		processSwitch()

		if now := time.Now(); !now.Before(next) {
			next = now.Add(period)
			s, err := pm.Update()
			if err != nil {
				println("update:", err.Error())
				continue
			}
			PIN_STATE_LED.Set(s.State == power.Connected)
			uart.Write(link.AppendFrame(frame[:0], s))
		}

		time.Sleep(time.Millisecond)
	}
}

func readPhaseSwitch() int {
	if !PIN_PHASE_SWITCH.Get() {
		return 3
	}
	return 1
}

// processSwitch applies a phase switch position once it has been stable for
// SWITCH_STABLE_LOOPS iterations.
func processSwitch() {
	threePhase := readPhaseSwitch() == 3
	if threePhase != switchPending {
		switchPending = threePhase
		switchCount = 0
		return
	}
	if switchPending == switchStable {
		return
	}

	switchCount++
	if switchCount < SWITCH_STABLE_LOOPS {
		return
	}

	switchStable = switchPending
	n := 1
	if switchStable {
		n = 3
	}
	if err := pm.Reconfigure(n); err != nil {
		println("switch:", err.Error())
	}
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 0 && !overflow {
				handleCommand(string(serialBuffer[:serialPos]))
			}
			serialPos = 0
			overflow = false
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Drop the whole line
			overflow = true
		}
	}
}

func handleCommand(line string) {
	c, err := link.ParseCommand(line)
	if err != nil {
		println("cmd:", err.Error())
		return
	}

	switch c.Op {
	case link.OpPhases:
		if err := pm.Reconfigure(c.Phases); err != nil {
			println("cmd:", err.Error())
		}
	case link.OpResetEnergy:
		pm.ResetEnergy()
	case link.OpRestoreEnergy:
		pm.RestoreEnergy(c.ImportedKWh, c.ExportedKWh)
	}
}
