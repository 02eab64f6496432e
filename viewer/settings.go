package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gopowermon/pkg/device"
)

// showSettingsDialog displays the configuration tabs. Changes are saved to
// the config file and take effect on the next connect.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createCalibrationTab(state),
		createConnectionTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 480))
	d.Show()
}

func saveConfig(state *appState) {
	if err := state.cfg.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

func floatEntry(v float64, decimals int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.FormatFloat(v, 'f', decimals, 64))
	return e
}

func durationEntry(d time.Duration) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(d.String())
	return e
}

func parseFloat(e *widget.Entry, dst *float64) {
	if v, err := strconv.ParseFloat(e.Text, 64); err == nil {
		*dst = v
	}
}

func parseDuration(e *widget.Entry, dst *time.Duration) {
	if v, err := time.ParseDuration(e.Text); err == nil {
		*dst = v
	}
}

func createSerialTab(state *appState) *container.TabItem {
	ports, err := device.Ports()
	portOptions := []string{}
	portMap := make(map[string]string)

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			if portSelect.Selected != "" {
				selected := portMap[portSelect.Selected]
				if selected == "" {
					selected = portSelect.Selected
				}
				state.cfg.Serial.Port = selected
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				state.cfg.Serial.BaudRate = baud
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Serial", form)
}

func createCalibrationTab(state *appState) *container.TabItem {
	cal := &state.cfg.Calibration
	ical := floatEntry(cal.ICAL, 4)
	vcal := floatEntry(cal.VoltageCal, 3)
	burden := floatEntry(cal.Burden, 2)
	turns := floatEntry(cal.CTTurns, 0)
	minCurrent := floatEntry(cal.MinCurrent, 2)

	mode := widget.NewRadioGroup([]string{"rectified", "ac"}, nil)
	mode.SetSelected(cal.VoltageMode)
	mode.Horizontal = true

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Current Cal", Widget: ical},
			{Text: "Voltage Cal", Widget: vcal},
			{Text: "Voltage Mode", Widget: mode},
			{Text: "Burden (Ω)", Widget: burden},
			{Text: "CT Turns", Widget: turns},
			{Text: "Min Current (A)", Widget: minCurrent},
		},
		OnSubmit: func() {
			parseFloat(ical, &cal.ICAL)
			parseFloat(vcal, &cal.VoltageCal)
			parseFloat(burden, &cal.Burden)
			parseFloat(turns, &cal.CTTurns)
			parseFloat(minCurrent, &cal.MinCurrent)
			if mode.Selected != "" {
				cal.VoltageMode = mode.Selected
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Calibration", form)
}

func createConnectionTab(state *appState) *container.TabItem {
	conn := &state.cfg.Connection
	debounce := durationEntry(conn.Debounce)
	threshold := floatEntry(conn.DisconnectThreshold, 0)
	hysteresis := floatEntry(conn.Hysteresis, 0)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Debounce", Widget: debounce},
			{Text: "Disconnect Threshold (counts)", Widget: threshold},
			{Text: "Hysteresis (counts)", Widget: hysteresis},
		},
		OnSubmit: func() {
			parseDuration(debounce, &conn.Debounce)
			parseFloat(threshold, &conn.DisconnectThreshold)
			parseFloat(hysteresis, &conn.Hysteresis)
			saveConfig(state)
		},
	}

	return container.NewTabItem("CT Detection", form)
}

func createMockTab(state *appState) *container.TabItem {
	mock := &state.cfg.Mock
	offset := floatEntry(mock.Offset, 0)
	amplitude := floatEntry(mock.Amplitude, 0)
	voltage := floatEntry(mock.VoltageLevel, 0)
	noise := floatEntry(mock.Noise, 1)
	frequency := floatEntry(mock.Frequency, 1)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Offset (counts)", Widget: offset},
			{Text: "Current Peak (counts)", Widget: amplitude},
			{Text: "Voltage Level (counts)", Widget: voltage},
			{Text: "Noise (counts)", Widget: noise},
			{Text: "Frequency (Hz)", Widget: frequency},
		},
		OnSubmit: func() {
			parseFloat(offset, &mock.Offset)
			parseFloat(amplitude, &mock.Amplitude)
			parseFloat(voltage, &mock.VoltageLevel)
			parseFloat(noise, &mock.Noise)
			parseFloat(frequency, &mock.Frequency)
			saveConfig(state)
			if state.mock != nil {
				state.mock.SetOffset(mock.Offset)
				state.mock.SetAmplitude(mock.Amplitude)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}
