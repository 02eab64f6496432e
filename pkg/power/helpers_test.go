package power

import (
	"math"
	"time"

	"github.com/itohio/gopowermon/pkg/adc"
	"github.com/itohio/gopowermon/pkg/sample"
)

var testStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

const testInterval = 200 * time.Microsecond

// sineBatch builds a 50 Hz current batch sampled every 200 µs.
func sineBatch(center, amplitude float64, n int) sample.Batch {
	return shiftedSineBatch(center, amplitude, n, 0)
}

func shiftedSineBatch(center, amplitude float64, n int, phase float64) sample.Batch {
	codes := make([]uint16, n)
	for i := range codes {
		t := float64(i) * testInterval.Seconds()
		codes[i] = uint16(math.Floor(center + amplitude*math.Sin(2*math.Pi*50*t+phase) + 0.5))
	}
	return timed(adc.Current, codes)
}

func flatBatch(level uint16, n int) sample.Batch {
	codes := make([]uint16, n)
	for i := range codes {
		codes[i] = level
	}
	return timed(adc.Current, codes)
}

func timed(ch adc.Channel, codes []uint16) sample.Batch {
	end := testStart
	if len(codes) > 1 {
		end = testStart.Add(time.Duration(len(codes)-1) * testInterval)
	}
	return sample.Batch{Channel: ch, Codes: codes, Start: testStart, End: end}
}
