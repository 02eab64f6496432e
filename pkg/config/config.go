package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	PhaseCount  int               `yaml:"phase_count"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Validation  ValidationConfig  `yaml:"validation"`
	Filters     FilterConfig      `yaml:"filters"`
	Connection  ConnectionConfig  `yaml:"connection"`
	Energy      EnergyConfig      `yaml:"energy"`
	Serial      SerialConfig      `yaml:"serial"`
	SPI         SPIConfig         `yaml:"spi"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
	Redis       RedisConfig       `yaml:"redis"`
	GPIO        GPIOConfig        `yaml:"gpio"`
	Mock        MockConfig        `yaml:"mock"`
}

// CalibrationConfig holds the per-device-class constants used to turn ADC
// codes into amps and volts. They are never changed at runtime.
type CalibrationConfig struct {
	ADCBits       int     `yaml:"adc_bits"`
	ADCScale      float64 `yaml:"adc_scale"`      // Volts per ADC count
	Burden        float64 `yaml:"burden"`         // CT burden resistor (ohms)
	CTTurns       float64 `yaml:"ct_turns"`       // CT turns ratio
	ICAL          float64 `yaml:"ical"`           // Current calibration multiplier
	VoltageCal    float64 `yaml:"voltage_cal"`    // Voltage divider calibration multiplier
	VoltageMode   string  `yaml:"voltage_mode"`   // "rectified" or "ac"
	VoltageOffset float64 `yaml:"voltage_offset"` // Bias removed from AC voltage codes
	VoltageAlpha  float64 `yaml:"voltage_alpha"`  // Low-pass weight for rectified voltage mean
	MainsHz       float64 `yaml:"mains_hz"`
	MinCurrent    float64 `yaml:"min_current"` // Currents below this read as zero (A)
}

// SamplingConfig contains batch sizes and pacing.
type SamplingConfig struct {
	SamplesPerCycle int           `yaml:"samples_per_cycle"`
	OffsetSamples   int           `yaml:"offset_samples"`
	VoltageSamples  int           `yaml:"voltage_samples"`
	Interval        time.Duration `yaml:"interval"` // 0 = free-running
	Period          time.Duration `yaml:"period"`   // Time between update cycles
}

// ValidationConfig contains the thresholds that separate a real AC signal
// from noise or a floating input.
type ValidationConfig struct {
	NoiseFloor      float64 `yaml:"noise_floor"` // Minimum squared deviation (counts²)
	MinValidSamples int     `yaml:"min_valid_samples"`
	MinPeakToPeak   float64 `yaml:"min_peak_to_peak"`
	MinPercentValid float64 `yaml:"min_percent_valid"`
	OffsetMin       float64 `yaml:"offset_min"`
	OffsetMax       float64 `yaml:"offset_max"`
	NominalOffset   float64 `yaml:"nominal_offset"`
}

// FilterConfig contains EMA weights for offset tracking and output smoothing.
type FilterConfig struct {
	FastWeight          float64 `yaml:"fast_weight"`
	SlowWeight          float64 `yaml:"slow_weight"`
	ReconnectFastWeight float64 `yaml:"reconnect_fast_weight"`
	ReconnectSlowWeight float64 `yaml:"reconnect_slow_weight"`
	FastBlend           float64 `yaml:"fast_blend"` // Share of the fast filter in the effective offset
	Smoothing           float64 `yaml:"smoothing"`  // History weight of the current output filter
	ReconnectSmoothing  float64 `yaml:"reconnect_smoothing"`
}

// ConnectionConfig contains CT presence debounce and hysteresis settings.
type ConnectionConfig struct {
	Debounce            time.Duration `yaml:"debounce"`
	DisconnectThreshold float64       `yaml:"disconnect_threshold"` // Pilot deviation (counts)
	Hysteresis          float64       `yaml:"hysteresis"`
	DisconnectStreak    int           `yaml:"disconnect_streak"`
	StableCycles        int           `yaml:"stable_cycles"`
	// Consecutive invalid batches that mean the CT is gone, for front ends
	// whose unplugged input floats at the bias level. 0 disables it, since a
	// plugged CT without load reads invalid too.
	InvalidStreak int `yaml:"invalid_streak"`
}

// EnergyConfig contains integration sanity bounds.
type EnergyConfig struct {
	MaxPowerW         float64 `yaml:"max_power_w"`
	MaxApparentPowerW float64 `yaml:"max_apparent_power_w"`
}

// SerialConfig contains serial port configuration for the firmware link.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SPIConfig contains the external ADC bus configuration.
type SPIConfig struct {
	Port           string `yaml:"port"`
	SpeedHz        int64  `yaml:"speed_hz"`
	CurrentChannel int    `yaml:"current_channel"`
	VoltageChannel int    `yaml:"voltage_channel"`
}

// MQTTConfig contains telemetry publishing settings.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
}

// HTTPConfig contains the status server address.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig contains the settings/energy store connection.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	Snapshot time.Duration `yaml:"snapshot"` // Energy snapshot interval
}

// GPIOConfig contains the phase-select switch line.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	PhasePin  int    `yaml:"phase_pin"` // -1 disables the switch
	ActiveLow bool   `yaml:"active_low"`
}

// MockConfig contains simulated signal parameters.
type MockConfig struct {
	Offset           float64       `yaml:"offset"`            // Current channel bias (counts)
	Amplitude        float64       `yaml:"amplitude"`         // Current channel peak (counts)
	VoltageLevel     float64       `yaml:"voltage_level"`     // Rectified voltage channel level (counts)
	VoltageAmplitude float64       `yaml:"voltage_amplitude"` // AC voltage peak (counts)
	PhaseShift       float64       `yaml:"phase_shift"`       // Current lag behind voltage (radians)
	Frequency        float64       `yaml:"frequency"`
	Noise            float64       `yaml:"noise"` // Peak uniform noise (counts)
	SampleRate       time.Duration `yaml:"sample_rate"`
	Seed             int64         `yaml:"seed"`
}

// Default returns a default configuration matching the reference ESP32 build
// (12-bit ADC, 10 Ω burden, 1000:1 CT).
func Default() *Config {
	return &Config{
		PhaseCount: 1,
		Calibration: CalibrationConfig{
			ADCBits:       12,
			ADCScale:      0.00080566,
			Burden:        10.0,
			CTTurns:       1000,
			ICAL:          0.897,
			VoltageCal:    71.913, // 101.70/√2, calibrated for 215.5 V AC
			VoltageMode:   "rectified",
			VoltageOffset: 0,
			VoltageAlpha:  0.2,
			MainsHz:       50,
			MinCurrent:    1.0,
		},
		Sampling: SamplingConfig{
			SamplesPerCycle: 1480,
			OffsetSamples:   100,
			VoltageSamples:  100,
			Interval:        200 * time.Microsecond,
			Period:          time.Second,
		},
		Validation: ValidationConfig{
			NoiseFloor:      900,
			MinValidSamples: 400,
			MinPeakToPeak:   100,
			MinPercentValid: 25,
			OffsetMin:       1500,
			OffsetMax:       2500,
			NominalOffset:   1880,
		},
		Filters: FilterConfig{
			FastWeight:          0.1,
			SlowWeight:          0.02,
			ReconnectFastWeight: 0.5,
			ReconnectSlowWeight: 0.2,
			FastBlend:           0.3,
			Smoothing:           0.95,
			ReconnectSmoothing:  0.98,
		},
		Connection: ConnectionConfig{
			Debounce:            5 * time.Second,
			DisconnectThreshold: 150,
			Hysteresis:          50,
			DisconnectStreak:    2,
			StableCycles:        50,
		},
		Energy: EnergyConfig{
			MaxPowerW:         100000,
			MaxApparentPowerW: 150000,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyUSB0",
			BaudRate: 115200,
		},
		SPI: SPIConfig{
			Port:           "",
			SpeedHz:        1000000,
			CurrentChannel: 0,
			VoltageChannel: 1,
		},
		MQTT: MQTTConfig{
			Broker:   "",
			ClientID: "powermon",
			Topic:    "energy/powermon",
			Interval: time.Second,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Redis: RedisConfig{
			Addr:     "",
			DB:       0,
			Prefix:   "powermon",
			Snapshot: time.Minute,
		},
		GPIO: GPIOConfig{
			Chip:      "gpiochip0",
			PhasePin:  -1,
			ActiveLow: true,
		},
		Mock: MockConfig{
			Offset:           1880,
			Amplitude:        102, // ~5.2 A with the default calibration
			VoltageLevel:     2630, // ~215 V in rectified mode
			VoltageAmplitude: 0,
			PhaseShift:       0,
			Frequency:        50,
			Noise:            4,
			SampleRate:       200 * time.Microsecond,
			Seed:             1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects configurations the measurement pipeline cannot run with.
func (c *Config) Validate() error {
	if c.PhaseCount != 1 && c.PhaseCount != 3 {
		return fmt.Errorf("invalid phase count %d: must be 1 or 3", c.PhaseCount)
	}
	switch c.Calibration.VoltageMode {
	case "rectified", "ac":
	default:
		return fmt.Errorf("invalid voltage mode %q: must be rectified or ac", c.Calibration.VoltageMode)
	}
	if c.Validation.OffsetMin >= c.Validation.OffsetMax {
		return fmt.Errorf("invalid offset band [%.0f, %.0f]", c.Validation.OffsetMin, c.Validation.OffsetMax)
	}
	if c.Sampling.SamplesPerCycle <= 0 || c.Sampling.OffsetSamples <= 0 || c.Sampling.VoltageSamples <= 0 {
		return fmt.Errorf("invalid batch sizes %d/%d/%d: must be positive",
			c.Sampling.SamplesPerCycle, c.Sampling.OffsetSamples, c.Sampling.VoltageSamples)
	}
	if c.Sampling.Interval < 0 {
		return fmt.Errorf("invalid sampling interval %v", c.Sampling.Interval)
	}
	if c.Calibration.MainsHz <= 0 {
		return fmt.Errorf("invalid mains frequency %.1f Hz", c.Calibration.MainsHz)
	}
	if c.Connection.InvalidStreak < 0 {
		return fmt.Errorf("invalid streak %d must not be negative", c.Connection.InvalidStreak)
	}
	if c.Connection.Hysteresis >= c.Connection.DisconnectThreshold {
		return fmt.Errorf("hysteresis %.0f must be below disconnect threshold %.0f",
			c.Connection.Hysteresis, c.Connection.DisconnectThreshold)
	}
	return nil
}

// ADCMax returns the largest code the configured ADC can produce.
func (c CalibrationConfig) ADCMax() uint16 {
	return uint16(1<<c.ADCBits - 1)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.PhaseCount == 0 {
		c.PhaseCount = def.PhaseCount
	}

	if c.Calibration.ADCBits == 0 {
		c.Calibration.ADCBits = def.Calibration.ADCBits
	}
	if c.Calibration.ADCScale == 0 {
		c.Calibration.ADCScale = def.Calibration.ADCScale
	}
	if c.Calibration.Burden == 0 {
		c.Calibration.Burden = def.Calibration.Burden
	}
	if c.Calibration.CTTurns == 0 {
		c.Calibration.CTTurns = def.Calibration.CTTurns
	}
	if c.Calibration.ICAL == 0 {
		c.Calibration.ICAL = def.Calibration.ICAL
	}
	if c.Calibration.VoltageCal == 0 {
		c.Calibration.VoltageCal = def.Calibration.VoltageCal
	}
	if c.Calibration.VoltageMode == "" {
		c.Calibration.VoltageMode = def.Calibration.VoltageMode
	}
	if c.Calibration.VoltageAlpha == 0 {
		c.Calibration.VoltageAlpha = def.Calibration.VoltageAlpha
	}
	if c.Calibration.MainsHz == 0 {
		c.Calibration.MainsHz = def.Calibration.MainsHz
	}

	if c.Sampling.SamplesPerCycle == 0 {
		c.Sampling.SamplesPerCycle = def.Sampling.SamplesPerCycle
	}
	if c.Sampling.OffsetSamples == 0 {
		c.Sampling.OffsetSamples = def.Sampling.OffsetSamples
	}
	if c.Sampling.VoltageSamples == 0 {
		c.Sampling.VoltageSamples = def.Sampling.VoltageSamples
	}
	if c.Sampling.Period == 0 {
		c.Sampling.Period = def.Sampling.Period
	}

	if c.Validation.NoiseFloor == 0 {
		c.Validation.NoiseFloor = def.Validation.NoiseFloor
	}
	if c.Validation.MinValidSamples == 0 {
		c.Validation.MinValidSamples = def.Validation.MinValidSamples
	}
	if c.Validation.MinPeakToPeak == 0 {
		c.Validation.MinPeakToPeak = def.Validation.MinPeakToPeak
	}
	if c.Validation.MinPercentValid == 0 {
		c.Validation.MinPercentValid = def.Validation.MinPercentValid
	}
	if c.Validation.OffsetMin == 0 && c.Validation.OffsetMax == 0 {
		c.Validation.OffsetMin = def.Validation.OffsetMin
		c.Validation.OffsetMax = def.Validation.OffsetMax
	}
	if c.Validation.NominalOffset == 0 {
		c.Validation.NominalOffset = def.Validation.NominalOffset
	}

	if c.Filters.FastWeight == 0 {
		c.Filters.FastWeight = def.Filters.FastWeight
	}
	if c.Filters.SlowWeight == 0 {
		c.Filters.SlowWeight = def.Filters.SlowWeight
	}
	if c.Filters.ReconnectFastWeight == 0 {
		c.Filters.ReconnectFastWeight = def.Filters.ReconnectFastWeight
	}
	if c.Filters.ReconnectSlowWeight == 0 {
		c.Filters.ReconnectSlowWeight = def.Filters.ReconnectSlowWeight
	}
	if c.Filters.FastBlend == 0 {
		c.Filters.FastBlend = def.Filters.FastBlend
	}
	if c.Filters.Smoothing == 0 {
		c.Filters.Smoothing = def.Filters.Smoothing
	}
	if c.Filters.ReconnectSmoothing == 0 {
		c.Filters.ReconnectSmoothing = def.Filters.ReconnectSmoothing
	}

	if c.Connection.Debounce == 0 {
		c.Connection.Debounce = def.Connection.Debounce
	}
	if c.Connection.DisconnectThreshold == 0 {
		c.Connection.DisconnectThreshold = def.Connection.DisconnectThreshold
	}
	if c.Connection.DisconnectStreak == 0 {
		c.Connection.DisconnectStreak = def.Connection.DisconnectStreak
	}
	if c.Connection.StableCycles == 0 {
		c.Connection.StableCycles = def.Connection.StableCycles
	}

	if c.Energy.MaxPowerW == 0 {
		c.Energy.MaxPowerW = def.Energy.MaxPowerW
	}
	if c.Energy.MaxApparentPowerW == 0 {
		c.Energy.MaxApparentPowerW = def.Energy.MaxApparentPowerW
	}

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.SPI.SpeedHz == 0 {
		c.SPI.SpeedHz = def.SPI.SpeedHz
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}
	if c.MQTT.Interval == 0 {
		c.MQTT.Interval = def.MQTT.Interval
	}

	if c.Redis.Prefix == "" {
		c.Redis.Prefix = def.Redis.Prefix
	}
	if c.Redis.Snapshot == 0 {
		c.Redis.Snapshot = def.Redis.Snapshot
	}

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}

	if c.Mock.Frequency == 0 {
		c.Mock.Frequency = def.Mock.Frequency
	}
	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
}
