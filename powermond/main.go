package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/itohio/gopowermon/pkg/adc"
	"github.com/itohio/gopowermon/pkg/config"
	"github.com/itohio/gopowermon/pkg/device"
	"github.com/itohio/gopowermon/pkg/diag"
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/metrics"
	"github.com/itohio/gopowermon/pkg/publish"
	"github.com/itohio/gopowermon/pkg/selector"
	"github.com/itohio/gopowermon/pkg/status"
	"github.com/itohio/gopowermon/pkg/store"
	"github.com/sirupsen/logrus"
)

var version = "No version provided"

var log = logrus.New()

type argSpec struct {
	Config    string `arg:"-c, --config" default:"powermon.yaml" help:"Path to the YAML configuration file"`
	Source    string `arg:"-s, --source" default:"serial" help:"Snapshot source: serial, spi or mock"`
	Port      string `arg:"-p, --port" help:"Serial port of the firmware board (overrides config)"`
	Phases    int    `arg:"--phases" help:"Phase count, 1 or 3 (overrides the stored setting)"`
	Broker    string `arg:"--mqtt" help:"MQTT broker URL (overrides config, empty disables publishing)"`
	HTTPAddr  string `arg:"--http" help:"Status server address (overrides config)"`
	StateFile string `arg:"--state-file" default:"powermon-state.yaml" help:"Settings and energy file used when Redis is not configured"`
	ListPorts bool   `arg:"--list-ports" help:"List serial ports and exit"`
	LogLevel  string `arg:"-l, --log-level" default:"info" help:"Set the logging level (trace, debug, info, warn, error)"`
}

func (argSpec) Version() string {
	return version
}

func procArgs() argSpec {
	args := argSpec{}
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "trace":
		log.SetLevel(logrus.TraceLevel)
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(entry.Level.String()), entry.Message)
	for k, v := range entry.Data {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err.Error())
	}
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)

	log.Info("Running version: ", version)

	if args.ListPorts {
		ports, err := device.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return nil
	}

	cfg, err := config.Load(args.Config)
	if err != nil {
		return err
	}
	applyArgs(cfg, args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg, args.StateFile)
	defer st.Close()

	phases := cfg.PhaseCount
	if args.Phases == 0 {
		if s, err := st.LoadSettings(ctx); err == nil {
			phases = s.PhaseCount
		} else if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Warn("Failed to load settings, using config")
		}
	}

	src, err := openSource(cfg, args.Source)
	if err != nil {
		return err
	}
	if err := src.Connect(); err != nil {
		return err
	}
	defer src.Close()

	if err := src.SetPhaseCount(phases); err != nil {
		return fmt.Errorf("failed to set phase count: %w", err)
	}
	log.WithField("phase_count", phases).Info("Phase count applied")

	var restore *store.Energy
	if e, err := st.LoadEnergy(ctx); err == nil {
		restore = &e
		log.WithFields(logrus.Fields{"imported_kwh": e.ImportedKWh, "exported_kwh": e.ExportedKWh}).Info("Energy loaded")
	} else if !errors.Is(err, store.ErrNotFound) {
		log.WithError(err).Warn("Failed to load energy, starting from zero")
	}

	var pub publish.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := publish.NewRealPublisher(cfg.MQTT, log)
		if err != nil {
			log.WithError(err).Warn("MQTT disabled")
		} else {
			pub = p
			defer pub.Close()
		}
	}

	d := &daemon{
		src:       src,
		store:     st,
		pub:       pub,
		latest:    &status.Latest{},
		phases:    make(chan int, 1),
		telemetry: cfg.MQTT.Interval,
		persist:   cfg.Redis.Snapshot,
		log:       log,
		now:       time.Now,
		restore:   restore,
	}

	if cfg.HTTP.Addr != "" {
		srv := status.New(cfg.HTTP.Addr, d.latest, d, 5*cfg.Sampling.Period, log)
		go func() {
			log.WithField("addr", cfg.HTTP.Addr).Info("Status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Status server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Status server shutdown failed")
			}
		}()
	}

	if cfg.GPIO.PhasePin >= 0 {
		r, err := selector.NewRealReader(cfg.GPIO)
		if err != nil {
			log.WithError(err).Warn("Phase selector disabled")
		} else {
			defer r.Close()
			go selector.Watch(ctx, r, 100*time.Millisecond, time.Second, log, func(n int) {
				select {
				case d.phases <- n:
				default:
				}
			})
		}
	}

	return d.run(ctx)
}

func applyArgs(cfg *config.Config, args argSpec) {
	if args.Port != "" {
		cfg.Serial.Port = args.Port
	}
	if args.Phases != 0 {
		cfg.PhaseCount = args.Phases
	}
	if args.Broker != "" {
		cfg.MQTT.Broker = args.Broker
	}
	if args.HTTPAddr != "" {
		cfg.HTTP.Addr = args.HTTPAddr
	}
}

// openStore prefers Redis and falls back to the state file.
func openStore(ctx context.Context, cfg *config.Config, stateFile string) store.Store {
	if cfg.Redis.Addr != "" {
		r, err := store.NewRedis(ctx, cfg.Redis)
		if err == nil {
			log.WithField("addr", cfg.Redis.Addr).Info("Using Redis store")
			return r
		}
		log.WithError(err).Warn("Redis unavailable, falling back to state file")
	}
	log.WithField("path", stateFile).Info("Using file store")
	return store.NewFile(stateFile)
}

func openSource(cfg *config.Config, kind string) (device.Source, error) {
	switch kind {
	case "serial":
		return device.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, 0, log), nil
	case "spi":
		r, err := adc.OpenMCP3208(cfg.SPI)
		if err != nil {
			return nil, err
		}
		return newLocal(cfg, r), nil
	case "mock":
		return newLocal(cfg, adc.NewMock(&cfg.Mock, cfg.Calibration.ADCBits)), nil
	default:
		return nil, fmt.Errorf("unknown source %q", kind)
	}
}

func newLocal(cfg *config.Config, r adc.Reader) *device.Local {
	hook := diag.New(log).Func(metrics.ObserveEvent)
	m := meter.New(cfg, r, meter.WithDiagnostics(hook))
	return device.NewLocal(m, cfg.Sampling.Period, 0, log)
}
