package device

import (
	"time"

	"github.com/itohio/gopowermon/pkg/meter"
)

// NewAverager returns a stage that averages the snapshots received during
// each interval and emits one snapshot per interval. It is used to publish
// telemetry at a slower cadence than the measurement cycle. The remainder is
// flushed when the input closes, after which the output closes too.
func NewAverager(interval time.Duration, bufSize int) func(in <-chan meter.Snapshot) <-chan meter.Snapshot {
	if interval <= 0 {
		interval = time.Second
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return func(in <-chan meter.Snapshot) <-chan meter.Snapshot {
		out := make(chan meter.Snapshot, bufSize)

		go func() {
			defer close(out)

			var buffer []meter.Snapshot
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case s, ok := <-in:
					if !ok {
						if len(buffer) > 0 {
							out <- AverageSnapshots(buffer)
						}
						return
					}
					buffer = append(buffer, s)

				case <-ticker.C:
					if len(buffer) > 0 {
						out <- AverageSnapshots(buffer)
						buffer = buffer[:0]
					}
				}
			}
		}()

		return out
	}
}

// AverageSnapshots averages the instantaneous quantities of the valid
// snapshots. Counters, state and timestamp come from the most recent one.
// If no snapshot is valid the most recent one is returned unchanged.
func AverageSnapshots(snaps []meter.Snapshot) meter.Snapshot {
	if len(snaps) == 0 {
		return meter.Snapshot{}
	}

	last := snaps[len(snaps)-1]
	avg := last

	var n float64
	var volts, amps, watts, va, pf, hz float64
	for _, s := range snaps {
		volts += s.VoltageAC
		if !s.Valid {
			continue
		}
		n++
		amps += s.CurrentAC
		watts += s.PowerW
		va += s.ApparentVA
		pf += s.PowerFactor
		hz += s.FrequencyHz
	}

	avg.VoltageAC = volts / float64(len(snaps))
	if n == 0 {
		return avg
	}

	avg.CurrentAC = amps / n
	avg.PowerW = watts / n
	avg.ApparentVA = va / n
	avg.PowerFactor = pf / n
	avg.FrequencyHz = hz / n
	avg.Valid = true
	return avg
}
