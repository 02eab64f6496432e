package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gopowermon/pkg/device"
	"github.com/itohio/gopowermon/pkg/meter"
)

// ScopeWidget is a custom Fyne widget that plots active and apparent power
// over time. Cycles where the CT was not connected are shaded.
type ScopeWidget struct {
	widget.BaseWidget

	history *History
	window  time.Duration

	// Data (protected by mu)
	mu      sync.RWMutex
	all     []meter.Snapshot
	display []meter.Snapshot

	yMin, yMax float64
	xMin, xMax time.Time

	maxDisplayPoints int
}

// New creates a ScopeWidget that draws from history. window is the minimum
// time span of the X axis.
func New(history *History, window time.Duration) *ScopeWidget {
	if window <= 0 {
		window = time.Minute
	}
	s := &ScopeWidget{
		history:          history,
		window:           window,
		display:          make([]meter.Snapshot, 0, 600),
		maxDisplayPoints: 600,
	}
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// Update reloads the history and refreshes the plot. It must be called on
// the Fyne main thread.
func (s *ScopeWidget) Update() {
	s.mu.Lock()
	s.all = s.history.Snapshots(s.all)
	s.display = device.Downsample(s.display, s.all, s.maxDisplayPoints)
	s.yMin, s.yMax, s.xMin, s.xMax = bounds(s.display, s.window, time.Now())
	s.mu.Unlock()

	s.Refresh()
}

// bounds calculates the plot range: power axis from zero with a 10% margin,
// time axis at least window wide.
func bounds(snaps []meter.Snapshot, window time.Duration, now time.Time) (yMin, yMax float64, xMin, xMax time.Time) {
	if len(snaps) == 0 {
		return 0, 100, now, now.Add(window)
	}

	for _, p := range snaps {
		for _, v := range [...]float64{p.PowerW, p.ApparentVA} {
			if v < yMin {
				yMin = v
			}
			if v > yMax {
				yMax = v
			}
		}
	}

	span := yMax - yMin
	if span == 0 {
		span = 100
	}
	yMax += span * 0.1
	if yMin < 0 {
		yMin -= span * 0.1
	}

	xMin = snaps[0].Time
	xMax = snaps[len(snaps)-1].Time
	if xMax.Sub(xMin) < window {
		xMax = xMin.Add(window)
	}
	return yMin, yMax, xMin, xMax
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
