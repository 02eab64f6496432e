package main

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/alexflint/go-arg"
	"github.com/itohio/gopowermon/pkg/adc"
	"github.com/itohio/gopowermon/pkg/config"
	"github.com/itohio/gopowermon/pkg/device"
	"github.com/itohio/gopowermon/pkg/diag"
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/scope"
	"github.com/sirupsen/logrus"
)

var version = "No version provided"

var log = logrus.New()

type argSpec struct {
	Port     string `arg:"-p, --port" help:"Serial port override (e.g., COM3 or /dev/ttyACM0)"`
	Config   string `arg:"-c, --config" default:"powermon.yaml" help:"Configuration file path"`
	Mock     bool   `arg:"--mock" help:"Run the meter locally on a simulated ADC instead of a serial board"`
	History  int    `arg:"--history" default:"3600" help:"Number of snapshots kept for the plot"`
	LogLevel string `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (argSpec) Version() string {
	return version
}

func main() {
	args := argSpec{}
	arg.MustParse(&args)
	if level, err := logrus.ParseLevel(args.LogLevel); err == nil {
		log.SetLevel(level)
	}

	cfg, err := config.Load(args.Config)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if args.Port != "" {
		cfg.Serial.Port = args.Port
	}

	application := app.NewWithID("com.itohio.gopowermon")
	window := application.NewWindow("Power Monitor")
	window.Resize(fyne.NewSize(1100, 700))
	window.CenterOnScreen()

	history := scope.NewHistory(args.History)
	state := &appState{
		cfg:        cfg,
		configPath: args.Config,
		window:     window,
		useMock:    args.Mock,
		history:    history,
		scope:      scope.New(history, time.Minute),
		readout:    newReadoutPanel(),
	}

	window.SetContent(container.NewBorder(
		createToolbar(state),
		nil,
		state.readout.container,
		nil,
		state.scope,
	))
	window.SetOnClosed(func() {
		closeSource(state)
	})
	window.ShowAndRun()
}

// appState holds the application state. It is only touched on the Fyne
// main thread, except for the pump goroutine which hands data over through
// fyne.Do.
type appState struct {
	cfg        *config.Config
	configPath string
	window     fyne.Window
	useMock    bool

	source device.Source
	mock   *adc.Mock
	done   chan struct{}

	history *scope.History
	scope   *scope.ScopeWidget
	readout *readoutPanel

	connectBtn *widget.Button
	phaseBtn   *widget.Button
	resetBtn   *widget.Button
	plugBtn    *widget.Button
	plugged    bool
}

func createToolbar(state *appState) fyne.CanvasObject {
	state.connectBtn = widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.phaseBtn = widget.NewButton(phaseLabel(state.cfg.PhaseCount), func() {
		handlePhaseToggle(state)
	})
	state.phaseBtn.Disable()

	state.resetBtn = widget.NewButtonWithIcon("Reset kWh", theme.ContentClearIcon(), func() {
		handleResetEnergy(state)
	})
	state.resetBtn.Disable()

	state.plugBtn = widget.NewButtonWithIcon("CT", theme.MediaRecordIcon(), func() {
		handlePlugToggle(state)
	})
	state.plugBtn.Disable()
	if !state.useMock {
		state.plugBtn.Hide()
	}

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(state.connectBtn, settingsBtn),
		container.NewHBox(state.phaseBtn, state.resetBtn, state.plugBtn),
		nil,
	)
}

// openSource creates the snapshot source for the current settings.
func openSource(state *appState) device.Source {
	if !state.useMock {
		return device.NewSerial(state.cfg.Serial.Port, state.cfg.Serial.BaudRate, device.DefaultBufferSize, log)
	}

	state.mock = adc.NewMock(&state.cfg.Mock, state.cfg.Calibration.ADCBits)
	m := meter.New(state.cfg, state.mock, meter.WithDiagnostics(diag.New(log).Func()))
	return device.NewLocal(m, state.cfg.Sampling.Period, device.DefaultBufferSize, log)
}

func closeSource(state *appState) {
	if state.source == nil {
		return
	}
	state.source.Close()
	<-state.done
	state.source = nil
	state.mock = nil
}

func handleConnect(state *appState) {
	if state.source != nil {
		closeSource(state)
		setControlsEnabled(state, false)
		log.Info("Disconnected")
		return
	}

	src := openSource(state)
	if err := src.Connect(); err != nil {
		if state.useMock {
			dialog.ShowError(fmt.Errorf("failed to start simulated meter: %w", err), state.window)
		} else {
			dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err), state.window)
		}
		return
	}
	if err := src.SetPhaseCount(state.cfg.PhaseCount); err != nil {
		log.WithError(err).Warn("Failed to apply phase count")
	}

	state.source = src
	state.done = make(chan struct{})
	state.plugged = true
	state.history.Clear()
	setControlsEnabled(state, true)
	updatePlugButton(state)

	go pump(state, src.Snapshots(), state.done)
	log.WithField("mock", state.useMock).Info("Connected")
}

func setControlsEnabled(state *appState, enabled bool) {
	for _, b := range []*widget.Button{state.phaseBtn, state.resetBtn, state.plugBtn} {
		if enabled {
			b.Enable()
		} else {
			b.Disable()
		}
	}
}
