package adc

import (
	"fmt"
	"sync/atomic"

	"github.com/itohio/gopowermon/pkg/config"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// MCP3208 reads a Microchip MCP3208 12-bit SPI ADC. It is used when the
// monitor runs on a Linux SBC instead of the microcontroller.
type MCP3208 struct {
	port     spi.PortCloser
	conn     spi.Conn
	channels [2]int

	w, r   [3]byte
	errors atomic.Int64
}

// Ensure MCP3208 implements Reader.
var _ Reader = (*MCP3208)(nil)

// OpenMCP3208 initializes the host drivers and opens the SPI port.
func OpenMCP3208(cfg config.SPIConfig) (*MCP3208, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", cfg.Port, err)
	}

	conn, err := port.Connect(physic.Frequency(cfg.SpeedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure SPI port %q: %w", cfg.Port, err)
	}

	return &MCP3208{
		port:     port,
		conn:     conn,
		channels: [2]int{cfg.CurrentChannel, cfg.VoltageChannel},
	}, nil
}

// Read performs a single-ended conversion. A failed transfer returns 0, which
// reads as a railed input downstream.
func (m *MCP3208) Read(ch Channel) uint16 {
	idx := 0
	if ch == Voltage {
		idx = 1
	}
	m.w = mcp3208Command(m.channels[idx])
	if err := m.conn.Tx(m.w[:], m.r[:]); err != nil {
		m.errors.Add(1)
		return 0
	}
	return mcp3208Decode(m.r)
}

// Errors returns the number of failed transfers since open.
func (m *MCP3208) Errors() int64 {
	return m.errors.Load()
}

// Close releases the SPI port.
func (m *MCP3208) Close() error {
	return m.port.Close()
}

// mcp3208Command builds the start/single-ended/channel request.
// Byte 0: 00000 1 SGL D2, byte 1: D1 D0 xxxxxx, byte 2: don't care.
func mcp3208Command(channel int) [3]byte {
	channel &= 0x07
	return [3]byte{
		0x06 | byte(channel>>2),
		byte(channel&0x03) << 6,
		0x00,
	}
}

// mcp3208Decode extracts the 12-bit result from the response.
func mcp3208Decode(r [3]byte) uint16 {
	return uint16(r[1]&0x0F)<<8 | uint16(r[2])
}
