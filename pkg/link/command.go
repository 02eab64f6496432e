package link

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Op is a host-to-firmware command.
type Op byte

const (
	// OpPhases selects single- or three-phase scaling: "P1" or "P3".
	OpPhases Op = 'P'
	// OpResetEnergy clears the energy counters: "R".
	OpResetEnergy Op = 'R'
	// OpRestoreEnergy loads persisted counters: "E<imported>,<exported>".
	OpRestoreEnergy Op = 'E'
)

// Command is one parsed host command.
type Command struct {
	Op          Op
	Phases      int
	ImportedKWh float64
	ExportedKWh float64
}

// EncodeCommand returns the command line, including the newline.
func EncodeCommand(c Command) (string, error) {
	switch c.Op {
	case OpPhases:
		if c.Phases != 1 && c.Phases != 3 {
			return "", fmt.Errorf("%w: invalid phase count %d", ErrFormat, c.Phases)
		}
		return "P" + strconv.Itoa(c.Phases) + "\n", nil
	case OpResetEnergy:
		return "R\n", nil
	case OpRestoreEnergy:
		if !validEnergy(c.ImportedKWh) || !validEnergy(c.ExportedKWh) {
			return "", fmt.Errorf("%w: invalid energy %v,%v", ErrFormat, c.ImportedKWh, c.ExportedKWh)
		}
		return "E" + strconv.FormatFloat(c.ImportedKWh, 'f', 6, 64) + "," +
			strconv.FormatFloat(c.ExportedKWh, 'f', 6, 64) + "\n", nil
	default:
		return "", fmt.Errorf("%w: unknown command %q", ErrFormat, byte(c.Op))
	}
}

// ParseCommand parses one command line.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, fmt.Errorf("%w: empty command", ErrFormat)
	}

	c := Command{Op: Op(line[0])}
	arg := line[1:]
	switch c.Op {
	case OpPhases:
		n, err := strconv.Atoi(arg)
		if err != nil || (n != 1 && n != 3) {
			return Command{}, fmt.Errorf("%w: invalid phase count %q", ErrFormat, arg)
		}
		c.Phases = n
	case OpResetEnergy:
		if arg != "" {
			return Command{}, fmt.Errorf("%w: unexpected argument %q", ErrFormat, arg)
		}
	case OpRestoreEnergy:
		parts := strings.Split(arg, ",")
		if len(parts) != 2 {
			return Command{}, fmt.Errorf("%w: expected imported,exported", ErrFormat)
		}
		var err error
		if c.ImportedKWh, err = parseEnergy(parts[0]); err != nil {
			return Command{}, fmt.Errorf("%w: invalid imported energy: %v", ErrFormat, err)
		}
		if c.ExportedKWh, err = parseEnergy(parts[1]); err != nil {
			return Command{}, fmt.Errorf("%w: invalid exported energy: %v", ErrFormat, err)
		}
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrFormat, line[0])
	}
	return c, nil
}

// parseEnergy accepts finite, non-negative kWh values only.
func parseEnergy(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if !validEnergy(v) {
		return 0, fmt.Errorf("%q out of range", s)
	}
	return v, nil
}

func validEnergy(kwh float64) bool {
	return !math.IsNaN(kwh) && !math.IsInf(kwh, 0) && kwh >= 0
}
