package main

import (
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/scope"
)

// updateInterval throttles redraws to ~20 FPS.
const updateInterval = 50 * time.Millisecond

// readoutPanel shows the latest snapshot as text.
type readoutPanel struct {
	container *fyne.Container

	voltage, current, power, apparent *widget.Label
	factor, frequency, energy         *widget.Label
	exported, phases, state           *widget.Label
}

func newReadoutPanel() *readoutPanel {
	p := &readoutPanel{}
	labels := []**widget.Label{
		&p.voltage, &p.current, &p.power, &p.apparent, &p.factor,
		&p.frequency, &p.energy, &p.exported, &p.phases, &p.state,
	}
	for _, l := range labels {
		*l = widget.NewLabel("-")
		(*l).TextStyle = fyne.TextStyle{Monospace: true}
	}

	p.container = container.New(layout.NewFormLayout(),
		widget.NewLabel("Voltage"), p.voltage,
		widget.NewLabel("Current"), p.current,
		widget.NewLabel("Power"), p.power,
		widget.NewLabel("Apparent"), p.apparent,
		widget.NewLabel("PF"), p.factor,
		widget.NewLabel("Frequency"), p.frequency,
		widget.NewLabel("Imported"), p.energy,
		widget.NewLabel("Exported"), p.exported,
		widget.NewLabel("Phases"), p.phases,
		widget.NewLabel("CT"), p.state,
	)
	return p
}

func (p *readoutPanel) set(s meter.Snapshot) {
	r := scope.FormatReadout(s)
	p.voltage.SetText(r.Voltage)
	p.current.SetText(r.Current)
	p.power.SetText(r.Power)
	p.apparent.SetText(r.Apparent)
	p.factor.SetText(r.Factor)
	p.frequency.SetText(r.Frequency)
	p.energy.SetText(r.Energy)
	p.exported.SetText(r.Exported)
	p.phases.SetText(r.Phases)
	p.state.SetText(r.State)
}

// pump records snapshots into the history and refreshes the widgets on the
// main thread, at most once per updateInterval. It exits when the source
// closes its channel.
func pump(state *appState, snaps <-chan meter.Snapshot, done chan<- struct{}) {
	defer close(done)

	var last time.Time
	for s := range snaps {
		state.history.Add(s)

		now := time.Now()
		if now.Sub(last) < updateInterval {
			continue
		}
		last = now

		fyne.Do(func() {
			state.readout.set(s)
			state.scope.Update()
		})
	}
}
