package meter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/gopowermon/pkg/adc"
	"github.com/itohio/gopowermon/pkg/config"
	"github.com/itohio/gopowermon/pkg/power"
	"github.com/itohio/gopowermon/pkg/sample"
)

var _ PowerMonitor = (*Meter)(nil)

var (
	// ErrNotReady is returned when Update is called before Begin.
	ErrNotReady = errors.New("meter not ready")
	// ErrInvalidPhaseCount is returned for phase counts other than 1 or 3.
	ErrInvalidPhaseCount = errors.New("phase count must be 1 or 3")
)

// Lifecycle is the meter's position in its start-up sequence.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	Ready
	Sampling
)

func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Sampling:
		return "sampling"
	default:
		return "unknown"
	}
}

// PowerMonitor exposes the latest published measurement. Getters never
// trigger sampling and are safe to call from any goroutine.
type PowerMonitor interface {
	Snapshot() Snapshot
	VoltageAC() float64
	CurrentAC() float64
	PowerW() float64
	PowerFactor() float64
	FrequencyHz() float64
	EnergyKWh() float64
	EnergyMWh() float64
	IsAboveMWhThreshold() bool
	PhaseCount() int
	State() power.State
	OnUpdate(func(Snapshot)) // Register callback for new snapshots
}

// Meter runs the measurement pipeline against an adc.Reader and publishes
// one Snapshot per cycle.
//
// The pipeline state (offset filters, connection state, smoothing, energy)
// is owned by whichever goroutine calls Update; cycleMu serializes Update
// against Reconfigure and the energy controls. Readers only take mu, which
// is held for the snapshot swap and never across a batch.
type Meter struct {
	cfg     *config.Config
	sampler *sample.Sampler
	reader  adc.Reader
	diag    power.DiagnosticFunc

	cycleMu    sync.Mutex
	lifecycle  Lifecycle
	phaseCount int
	offset     *power.OffsetTracker
	validator  *power.Validator
	conn       *power.ConnectionStateMachine
	rms        *power.RMSEngine
	energy     *power.EnergyAccumulator
	cycle      uint64

	// Published state
	mu       sync.RWMutex
	snapshot Snapshot

	// Update callbacks
	callbacks []func(Snapshot)
	cbMu      sync.RWMutex
}

// Option configures a Meter.
type Option func(*Meter)

// WithDiagnostics installs a diagnostic event sink.
func WithDiagnostics(fn power.DiagnosticFunc) Option {
	return func(m *Meter) {
		m.diag = fn
	}
}

// WithClock overrides the system clock used for pacing and timestamps.
func WithClock(clock sample.Clock) Option {
	return func(m *Meter) {
		m.sampler = sample.NewSampler(m.reader, clock, m.cfg.Sampling.Interval)
	}
}

// New creates a meter in the Uninitialized state.
func New(cfg *config.Config, reader adc.Reader, opts ...Option) *Meter {
	m := &Meter{
		cfg:        cfg,
		reader:     reader,
		sampler:    sample.NewSampler(reader, nil, cfg.Sampling.Interval),
		phaseCount: cfg.PhaseCount,
		offset:     power.NewOffsetTracker(cfg.Filters, cfg.Validation),
		validator:  power.NewValidator(cfg.Validation, cfg.Calibration.ADCMax()),
		rms:        power.NewRMSEngine(cfg.Calibration, cfg.Filters, cfg.Validation.NoiseFloor),
		energy:     power.NewEnergyAccumulator(cfg.Energy.MaxPowerW),
		callbacks:  make([]func(Snapshot), 0),
	}
	m.conn = power.NewConnectionStateMachine(cfg.Connection, m.reseed)
	if m.phaseCount != 3 {
		m.phaseCount = 1
	}
	m.rms.SetPhaseCount(m.phaseCount)

	for _, opt := range opts {
		opt(m)
	}

	m.snapshot = Snapshot{PhaseCount: m.phaseCount, State: power.Connected}
	return m
}

// Begin configures the ADC and moves the meter to Ready.
func (m *Meter) Begin() error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	if m.lifecycle != Uninitialized {
		return nil
	}
	if c, ok := m.reader.(adc.Configurer); ok {
		if err := c.Configure(); err != nil {
			return fmt.Errorf("failed to configure ADC: %w", err)
		}
	}
	m.lifecycle = Ready
	return nil
}

// Lifecycle returns the current lifecycle stage.
func (m *Meter) Lifecycle() Lifecycle {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.lifecycle
}

// Run performs update cycles every period until ctx is done. A cycle that
// has started always completes. A period <= 0 uses the configured period.
func (m *Meter) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = m.cfg.Sampling.Period
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		if _, err := m.Update(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Update runs one full measurement cycle and publishes the result.
func (m *Meter) Update() (Snapshot, error) {
	m.cycleMu.Lock()
	snap, err := m.update()
	m.cycleMu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	m.notifyCallbacks(snap)
	return snap, nil
}

func (m *Meter) update() (Snapshot, error) {
	if m.lifecycle == Uninitialized {
		return Snapshot{}, ErrNotReady
	}
	m.lifecycle = Sampling
	m.cycle++

	acMode := m.cfg.Calibration.VoltageMode == power.VoltageAC

	var voltBatch sample.Batch
	if !acMode {
		voltBatch = m.sampler.Sample(adc.Voltage, m.cfg.Sampling.VoltageSamples)
	}

	pilot := m.sampler.Sample(adc.Current, m.pilotSamples())

	// Main batch
	var curBatch sample.Batch
	if acMode {
		curBatch, voltBatch = m.sampler.SamplePair(m.cfg.Sampling.SamplesPerCycle)
	} else {
		curBatch = m.sampler.Sample(adc.Current, m.cfg.Sampling.SamplesPerCycle)
	}
	now := curBatch.End

	// Offset tracking and pilot check
	pilotMean, measured := m.offsetReference(pilot, curBatch)
	deviation := math.Abs(pilotMean - m.offset.Effective())
	inBand := m.offset.Plausible(pilotMean)
	if !measured {
		// Presence then rests on batch validity alone.
		pilotMean, deviation, inBand = m.offset.Effective(), 0, true
	}
	state := m.conn.State()
	if measured && state != power.Disconnected {
		if deviation > m.cfg.Connection.DisconnectThreshold || !m.offset.Update(pilotMean, state == power.Reconnecting) {
			m.emit(power.Event{
				Kind:      power.EventOffsetRejected,
				Time:      pilot.End,
				State:     state,
				Offset:    m.offset.Estimate(),
				PilotMean: pilotMean,
				Message:   fmt.Sprintf("pilot mean %.1f deviates %.1f from offset", pilotMean, deviation),
			})
		}
	}

	offset := m.offset.Effective()
	verdict := m.validator.Validate(curBatch, offset)

	tr, changed := m.conn.Observe(power.Observation{
		Time:      now,
		PilotMean: pilotMean,
		Deviation: deviation,
		InBand:    inBand,
		Valid:     verdict.Valid,
	})
	if changed {
		m.rms.ResetSmoothing()
		m.emit(power.Event{
			Kind:       power.EventTransition,
			Time:       now,
			State:      tr.To,
			Transition: tr,
			Offset:     m.offset.Estimate(),
			PilotMean:  pilotMean,
			Verdict:    verdict,
			Message:    tr.Reason,
		})
	}
	state = m.conn.State()
	offset = m.offset.Effective()

	volts := m.rms.ComputeRMSVoltage(voltBatch)
	pf := m.rms.PowerFactor(curBatch, voltBatch, offset)

	var rawAmps, hz float64
	if state != power.Disconnected && verdict.Valid {
		rawAmps = m.rms.ComputeRMSCurrent(curBatch, offset)
		hz = m.rms.Frequency(curBatch, offset)
	}

	prev := m.Snapshot()

	// Implausible results are dropped; the previous reading stays published
	// and keeps integrating.
	_, rawVA := m.rms.Power(volts, rawAmps, pf)
	if math.IsNaN(rawVA) || rawVA > m.cfg.Energy.MaxApparentPowerW {
		m.energy.Accumulate(prev.PowerW, now)
		m.emit(power.Event{
			Kind:       power.EventBoundViolation,
			Time:       now,
			State:      state,
			Offset:     m.offset.Estimate(),
			PilotMean:  pilotMean,
			Verdict:    verdict,
			CurrentA:   rawAmps,
			ApparentVA: rawVA,
			Message:    fmt.Sprintf("apparent power %.0f VA above %.0f VA", rawVA, m.cfg.Energy.MaxApparentPowerW),
		})

		snap := prev
		snap.Time = now
		snap.Cycle = m.cycle
		snap.EnergyKWh = m.energy.EnergyKWh()
		snap.ExportedKWh = m.energy.ExportedKWh()
		snap.Discarded = true
		m.publish(snap)
		return snap, nil
	}

	var amps float64
	if rawAmps > 0 {
		amps = m.rms.Smooth(rawAmps, state == power.Reconnecting)
	} else {
		m.rms.ResetSmoothing()
	}
	watts, va := m.rms.Power(volts, amps, pf)
	m.energy.Accumulate(watts, now)

	snap := Snapshot{
		Time:          now,
		Cycle:         m.cycle,
		VoltageAC:     volts,
		CurrentAC:     amps,
		PowerW:        watts,
		ApparentVA:    va,
		PowerFactor:   pf,
		FrequencyHz:   hz,
		EnergyKWh:     m.energy.EnergyKWh(),
		ExportedKWh:   m.energy.ExportedKWh(),
		PhaseCount:    m.phaseCount,
		State:         state,
		Valid:         verdict.Valid,
		Offset:        offset,
		PeakToPeak:    verdict.PeakToPeak,
		PercentValid:  verdict.PercentValid,
		SampleSeconds: curBatch.Duration().Seconds(),
	}
	m.publish(snap)

	m.emit(power.Event{
		Kind:       power.EventCycle,
		Time:       now,
		State:      state,
		Offset:     m.offset.Estimate(),
		PilotMean:  pilotMean,
		Verdict:    verdict,
		CurrentA:   amps,
		PowerW:     watts,
		ApparentVA: va,
	})

	return snap, nil
}

// pilotSamples sizes the pilot batch to whole mains periods.
func (m *Meter) pilotSamples() int {
	return power.PeriodSamples(m.cfg.Sampling.OffsetSamples, m.sampler.Interval(), m.cfg.Calibration.MainsHz)
}

// offsetReference returns the current channel mean over whole mains periods:
// the pilot when it spans one, otherwise the main batch. Untimed batches fall
// back to the plain main-batch mean, which the default batch size keeps at
// about one cycle. measured is false when neither window spans a period.
func (m *Meter) offsetReference(pilot, main sample.Batch) (mean float64, measured bool) {
	hz := m.cfg.Calibration.MainsHz
	if mean, measured = power.CycleMean(pilot, hz); measured {
		return mean, true
	}
	mean, measured = power.CycleMean(main, hz)
	return mean, measured || main.Duration() <= 0
}

// reseed is the reconnect hook of the connection state machine.
func (m *Meter) reseed(pilotMean float64) error {
	err := m.offset.Reset(pilotMean)
	if err != nil {
		m.emit(power.Event{
			Kind:      power.EventReseedFailed,
			State:     power.Disconnected,
			Offset:    m.offset.Estimate(),
			PilotMean: pilotMean,
			Message:   "offset reseed rejected",
			Err:       err,
		})
	}
	return err
}

// Reconfigure switches the phase count. Offset filters, connection state
// and smoothing restart; accumulated energy carries over.
func (m *Meter) Reconfigure(phaseCount int) error {
	if phaseCount != 1 && phaseCount != 3 {
		return fmt.Errorf("reconfigure to %d phases: %w", phaseCount, ErrInvalidPhaseCount)
	}

	m.cycleMu.Lock()
	m.phaseCount = phaseCount
	m.rms.SetPhaseCount(phaseCount)
	m.rms.ResetSmoothing()
	m.rms.ResetVoltage()
	m.offset.Restart()
	m.conn.Reset()
	m.cycleMu.Unlock()

	m.mu.Lock()
	m.snapshot.PhaseCount = phaseCount
	m.mu.Unlock()
	return nil
}

// ResetEnergy clears the energy counters.
func (m *Meter) ResetEnergy() {
	m.cycleMu.Lock()
	m.energy.Reset()
	m.cycleMu.Unlock()

	m.mu.Lock()
	m.snapshot.EnergyKWh = 0
	m.snapshot.ExportedKWh = 0
	m.mu.Unlock()
}

// RestoreEnergy loads persisted energy counters.
func (m *Meter) RestoreEnergy(importedKWh, exportedKWh float64) {
	m.cycleMu.Lock()
	m.energy.Restore(importedKWh, exportedKWh)
	imported, exported := m.energy.EnergyKWh(), m.energy.ExportedKWh()
	m.cycleMu.Unlock()

	m.mu.Lock()
	m.snapshot.EnergyKWh = imported
	m.snapshot.ExportedKWh = exported
	m.mu.Unlock()
}

// Snapshot returns a copy of the last published snapshot.
func (m *Meter) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

func (m *Meter) VoltageAC() float64        { return m.Snapshot().VoltageAC }
func (m *Meter) CurrentAC() float64        { return m.Snapshot().CurrentAC }
func (m *Meter) PowerW() float64           { return m.Snapshot().PowerW }
func (m *Meter) PowerFactor() float64      { return m.Snapshot().PowerFactor }
func (m *Meter) FrequencyHz() float64      { return m.Snapshot().FrequencyHz }
func (m *Meter) EnergyKWh() float64        { return m.Snapshot().EnergyKWh }
func (m *Meter) EnergyMWh() float64        { return m.Snapshot().EnergyMWh() }
func (m *Meter) IsAboveMWhThreshold() bool { return m.Snapshot().IsAboveMWhThreshold() }
func (m *Meter) PhaseCount() int           { return m.Snapshot().PhaseCount }
func (m *Meter) State() power.State        { return m.Snapshot().State }

// OnUpdate registers a callback invoked after every published snapshot.
// Callbacks run on the sampling goroutine and should return quickly.
func (m *Meter) OnUpdate(callback func(Snapshot)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Meter) publish(s Snapshot) {
	m.mu.Lock()
	m.snapshot = s
	m.mu.Unlock()
}

func (m *Meter) emit(e power.Event) {
	if m.diag != nil {
		m.diag(e)
	}
}

// notifyCallbacks invokes all registered callbacks without holding any locks.
func (m *Meter) notifyCallbacks(s Snapshot) {
	m.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(s)
		}
	}
}
