package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.PhaseCount)
	assert.Equal(t, 12, cfg.Calibration.ADCBits)
	assert.Equal(t, 0.00080566, cfg.Calibration.ADCScale)
	assert.Equal(t, float64(10), cfg.Calibration.Burden)
	assert.Equal(t, float64(1000), cfg.Calibration.CTTurns)
	assert.Equal(t, 0.897, cfg.Calibration.ICAL)
	assert.Equal(t, "rectified", cfg.Calibration.VoltageMode)
	assert.Equal(t, 1480, cfg.Sampling.SamplesPerCycle)
	assert.Equal(t, 100, cfg.Sampling.OffsetSamples)
	assert.Equal(t, 200*time.Microsecond, cfg.Sampling.Interval)
	assert.Equal(t, float64(900), cfg.Validation.NoiseFloor)
	assert.Equal(t, 400, cfg.Validation.MinValidSamples)
	assert.Equal(t, float64(1880), cfg.Validation.NominalOffset)
	assert.Equal(t, 5*time.Second, cfg.Connection.Debounce)
	assert.NoError(t, cfg.Validate())
}

func TestCalibrationConfig_ADCMax(t *testing.T) {
	cal := Default().Calibration
	assert.Equal(t, uint16(4095), cal.ADCMax())

	cal.ADCBits = 10
	assert.Equal(t, uint16(1023), cal.ADCMax())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
phase_count: 3

calibration:
  ical: 0.91
  burden: 22
  voltage_mode: ac

sampling:
  samples_per_cycle: 2000
  interval: 100us

connection:
  debounce: 2s
  disconnect_threshold: 200
  hysteresis: 40

serial:
  port: "/dev/ttyACM0"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 3, cfg.PhaseCount)
	assert.Equal(t, 0.91, cfg.Calibration.ICAL)
	assert.Equal(t, float64(22), cfg.Calibration.Burden)
	assert.Equal(t, "ac", cfg.Calibration.VoltageMode)
	assert.Equal(t, 2000, cfg.Sampling.SamplesPerCycle)
	assert.Equal(t, 100*time.Microsecond, cfg.Sampling.Interval)
	assert.Equal(t, 2*time.Second, cfg.Connection.Debounce)
	assert.Equal(t, float64(200), cfg.Connection.DisconnectThreshold)
	assert.Equal(t, float64(40), cfg.Connection.Hysteresis)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "phase count",
			content: "phase_count: 2\n",
			wantErr: "phase count",
		},
		{
			name:    "voltage mode",
			content: "calibration:\n  voltage_mode: dc\n",
			wantErr: "voltage mode",
		},
		{
			name:    "offset band",
			content: "validation:\n  offset_min: 2600\n  offset_max: 2500\n",
			wantErr: "offset band",
		},
		{
			name:    "hysteresis",
			content: "connection:\n  hysteresis: 300\n",
			wantErr: "hysteresis",
		},
		{
			name:    "negative main batch",
			content: "sampling:\n  samples_per_cycle: -5\n",
			wantErr: "batch sizes",
		},
		{
			name:    "negative pilot batch",
			content: "sampling:\n  offset_samples: -1\n",
			wantErr: "batch sizes",
		},
		{
			name:    "negative voltage batch",
			content: "sampling:\n  voltage_samples: -100\n",
			wantErr: "batch sizes",
		},
		{
			name:    "negative interval",
			content: "sampling:\n  interval: -1ms\n",
			wantErr: "sampling interval",
		},
		{
			name:    "mains frequency",
			content: "calibration:\n  mains_hz: -50\n",
			wantErr: "mains frequency",
		},
		{
			name:    "invalid streak",
			content: "connection:\n  invalid_streak: -1\n",
			wantErr: "invalid streak",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
			require.NoError(t, err)
			defer os.Remove(tmpfile.Name())

			_, err = tmpfile.WriteString(tt.content)
			require.NoError(t, err)
			require.NoError(t, tmpfile.Close())

			cfg, err := Load(tmpfile.Name())
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM0"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 0.897, cfg.Calibration.ICAL)        // default
	assert.Equal(t, 1480, cfg.Sampling.SamplesPerCycle) // default
	assert.Equal(t, 1, cfg.PhaseCount)                  // default
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.PhaseCount = 3
	cfg.Calibration.ICAL = 0.9

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	// Load it back and verify
	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.PhaseCount)
	assert.Equal(t, 0.9, loaded.Calibration.ICAL)
	assert.Equal(t, cfg.Connection, loaded.Connection)
}
