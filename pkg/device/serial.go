package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/itohio/gopowermon/pkg/link"
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial reads snapshot frames from firmware over a serial port and sends
// commands back on the same line.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	log      logrus.FieldLogger
	open     func() (io.ReadWriteCloser, error)

	conn      io.ReadWriteCloser
	snapshots chan meter.Snapshot
	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool

	frames   atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
}

// NewSerial creates a serial source for the given port. Zero baud rate and
// buffer size select the defaults.
func NewSerial(port string, baudRate int, bufSize int, log logrus.FieldLogger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	s := &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		log:      loggerOrStandard(log).WithField("port", port),
	}
	s.open = func() (io.ReadWriteCloser, error) {
		return serial.Open(s.port, &serial.Mode{BaudRate: s.baudRate})
	}
	return s
}

// Connect opens the port and starts reading frames.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return ErrAlreadyConnected
	}

	conn, err := s.open()
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.snapshots = make(chan meter.Snapshot, s.bufSize)
	s.connected = true

	go s.readFrames(ctx, conn, s.snapshots)

	s.log.Info("Connected to firmware")
	return nil
}

// Close closes the port. The snapshot channel is closed once the reader
// goroutine has exited.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	s.cancel()
	s.connected = false

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", s.port, err)
	}
	return nil
}

// Snapshots returns the channel for reading snapshots.
func (s *Serial) Snapshots() <-chan meter.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots
}

// IsConnected returns whether the port is open.
func (s *Serial) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SetPhaseCount switches the firmware between single- and three-phase.
func (s *Serial) SetPhaseCount(n int) error {
	return s.send(link.Command{Op: link.OpPhases, Phases: n})
}

// ResetEnergy clears the firmware energy counters.
func (s *Serial) ResetEnergy() error {
	return s.send(link.Command{Op: link.OpResetEnergy})
}

// RestoreEnergy loads persisted energy counters into the firmware.
func (s *Serial) RestoreEnergy(importedKWh, exportedKWh float64) error {
	return s.send(link.Command{
		Op:          link.OpRestoreEnergy,
		ImportedKWh: importedKWh,
		ExportedKWh: exportedKWh,
	})
}

// Stats returns the number of parsed frames, rejected lines and snapshots
// dropped because the consumer fell behind.
func (s *Serial) Stats() (frames, rejected, dropped uint64) {
	return s.frames.Load(), s.rejected.Load(), s.dropped.Load()
}

func (s *Serial) send(c link.Command) error {
	line, err := link.EncodeCommand(c)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return ErrNotConnected
	}
	if _, err := io.WriteString(s.conn, line); err != nil {
		return fmt.Errorf("failed to send command %q: %w", strings.TrimSpace(line), err)
	}
	return nil
}

// readFrames parses lines until the port closes. Lines that fail to parse
// are counted and skipped; boot messages from the firmware land here too.
func (s *Serial) readFrames(ctx context.Context, r io.Reader, out chan<- meter.Snapshot) {
	defer close(out)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		snap, err := link.ParseFrame(line)
		if err != nil {
			s.rejected.Add(1)
			s.log.WithError(err).WithField("line", line).Debug("Skipping line")
			continue
		}
		s.frames.Add(1)

		select {
		case out <- snap:
		case <-ctx.Done():
			return
		default:
			s.dropped.Add(1)
			s.log.Warn("Snapshot channel full, dropping frame")
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		s.log.WithError(err).Error("Error reading from serial port")
	}
}
