// Package link is the line protocol between the firmware and a host.
//
// The firmware emits one frame per update cycle:
//
//	unix_micros,volts,amps,watts,pf,hz,kwh,exported_kwh,state,phases*CC
//
// where CC is the CRC-8 of everything before '*', in two upper-case hex
// digits. The host sends single-line commands back (see Command).
package link

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
	"github.com/sigurn/crc8"
)

const frameFields = 10

var (
	// ErrChecksum is returned when a frame's CRC does not match its body.
	ErrChecksum = errors.New("frame checksum mismatch")
	// ErrFormat is returned for lines that are not frames.
	ErrFormat = errors.New("malformed frame")
)

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31, // 1 + x^4 + x^5 + x^8
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

// Checksum returns the frame CRC of body.
func Checksum(body []byte) byte {
	return crc8.Checksum(body, crcTable)
}

// AppendFrame appends the frame for s, including the trailing newline.
func AppendFrame(dst []byte, s meter.Snapshot) []byte {
	start := len(dst)
	dst = strconv.AppendInt(dst, s.Time.UnixMicro(), 10)
	dst = appendFloat(dst, s.VoltageAC, 2)
	dst = appendFloat(dst, s.CurrentAC, 3)
	dst = appendFloat(dst, s.PowerW, 1)
	dst = appendFloat(dst, s.PowerFactor, 3)
	dst = appendFloat(dst, s.FrequencyHz, 2)
	dst = appendFloat(dst, s.EnergyKWh, 6)
	dst = appendFloat(dst, s.ExportedKWh, 6)
	dst = append(dst, ',')
	dst = append(dst, s.State.String()...)
	dst = append(dst, ',')
	dst = strconv.AppendInt(dst, int64(s.PhaseCount), 10)

	crc := Checksum(dst[start:])
	dst = append(dst, '*')
	dst = append(dst, hexDigits[crc>>4], hexDigits[crc&0x0F])
	return append(dst, '\n')
}

// EncodeFrame returns the frame for s as a string.
func EncodeFrame(s meter.Snapshot) string {
	return string(AppendFrame(make([]byte, 0, 96), s))
}

// ParseFrame parses one frame. Surrounding whitespace is ignored.
func ParseFrame(line string) (meter.Snapshot, error) {
	line = strings.TrimSpace(line)

	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return meter.Snapshot{}, fmt.Errorf("%w: missing checksum", ErrFormat)
	}
	body := line[:star]
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return meter.Snapshot{}, fmt.Errorf("%w: invalid checksum digits: %v", ErrFormat, err)
	}
	if got := Checksum([]byte(body)); got != byte(want) {
		return meter.Snapshot{}, fmt.Errorf("%w: got %02X, frame says %02X", ErrChecksum, got, want)
	}

	parts := strings.Split(body, ",")
	if len(parts) != frameFields {
		return meter.Snapshot{}, fmt.Errorf("%w: expected %d comma-separated values, got %d", ErrFormat, frameFields, len(parts))
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return meter.Snapshot{}, fmt.Errorf("%w: invalid timestamp: %v", ErrFormat, err)
	}

	var vals [7]float64
	for i := range vals {
		vals[i], err = strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return meter.Snapshot{}, fmt.Errorf("%w: invalid field %d: %v", ErrFormat, i+1, err)
		}
	}

	state, ok := power.ParseState(parts[8])
	if !ok {
		return meter.Snapshot{}, fmt.Errorf("%w: unknown state %q", ErrFormat, parts[8])
	}

	phases, err := strconv.Atoi(parts[9])
	if err != nil || (phases != 1 && phases != 3) {
		return meter.Snapshot{}, fmt.Errorf("%w: invalid phase count %q", ErrFormat, parts[9])
	}

	s := meter.Snapshot{
		Time:        time.UnixMicro(micros),
		VoltageAC:   vals[0],
		CurrentAC:   vals[1],
		PowerW:      vals[2],
		PowerFactor: vals[3],
		FrequencyHz: vals[4],
		EnergyKWh:   vals[5],
		ExportedKWh: vals[6],
		State:       state,
		PhaseCount:  phases,
	}
	s.ApparentVA = s.VoltageAC * s.CurrentAC
	if phases == 3 {
		s.ApparentVA *= sqrt3
	}
	s.Valid = s.CurrentAC > 0
	return s, nil
}

const (
	hexDigits = "0123456789ABCDEF"
	sqrt3     = 1.7320508075688772
)

func appendFloat(dst []byte, v float64, prec int) []byte {
	dst = append(dst, ',')
	return strconv.AppendFloat(dst, v, 'f', prec, 64)
}
