package main

import (
	"fmt"

	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

func phaseLabel(n int) string {
	return fmt.Sprintf("%dφ", n)
}

// handlePhaseToggle switches between single- and three-phase measurement.
func handlePhaseToggle(state *appState) {
	if state.source == nil {
		return
	}

	next := 3
	if state.cfg.PhaseCount == 3 {
		next = 1
	}
	if err := state.source.SetPhaseCount(next); err != nil {
		dialog.ShowError(fmt.Errorf("failed to set phase count: %w", err), state.window)
		return
	}

	state.cfg.PhaseCount = next
	state.phaseBtn.SetText(phaseLabel(next))
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

func handleResetEnergy(state *appState) {
	if state.source == nil {
		return
	}
	dialog.ShowConfirm("Reset energy", "Clear the imported and exported energy counters?", func(ok bool) {
		if !ok || state.source == nil {
			return
		}
		if err := state.source.ResetEnergy(); err != nil {
			dialog.ShowError(fmt.Errorf("failed to reset energy: %w", err), state.window)
		}
	}, state.window)
}

// handlePlugToggle simulates unplugging the CT on the mock ADC.
func handlePlugToggle(state *appState) {
	if state.mock == nil {
		return
	}
	state.plugged = !state.plugged
	state.mock.SetConnected(state.plugged)
	updatePlugButton(state)
}

func updatePlugButton(state *appState) {
	if state.plugged {
		state.plugBtn.Importance = widget.HighImportance
	} else {
		state.plugBtn.Importance = widget.DangerImportance
	}
	state.plugBtn.Refresh()
}
