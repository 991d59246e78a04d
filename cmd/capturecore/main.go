// Capture Core - Logic Analyzer Control Service
//
// This is the main entry point for the Capture Core application.
// Capture Core manages multi-vendor logic-analyzer hardware:
//   - Detects devices over serial, USB, and network transports
//   - Matches detected devices to registered drivers
//   - Orchestrates connections and capture sessions
//   - Mirrors hardware lifecycle events to MQTT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/signalforge/capture-core/migrations"

	"github.com/signalforge/capture-core/internal/capture"
	"github.com/signalforge/capture-core/internal/detect"
	"github.com/signalforge/capture-core/internal/drivers/lanet"
	"github.com/signalforge/capture-core/internal/events"
	"github.com/signalforge/capture-core/internal/infrastructure/config"
	"github.com/signalforge/capture-core/internal/infrastructure/database"
	"github.com/signalforge/capture-core/internal/infrastructure/influxdb"
	"github.com/signalforge/capture-core/internal/infrastructure/logging"
	"github.com/signalforge/capture-core/internal/infrastructure/mqtt"
	"github.com/signalforge/capture-core/internal/manager"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// rescanInterval is how often the service re-probes for hardware when
// running as a daemon.
const rescanInterval = time.Minute

// cliOptions holds the parsed command line.
type cliOptions struct {
	configPath string
	detectOnly bool
	capture    string
	channels   int
	frequency  uint
	samples    uint
}

func main() {
	cli := parseFlags()

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() cliOptions {
	var cli cliOptions
	flag.StringVar(&cli.configPath, "config", "", "path to config.yaml (overrides CAPTURECORE_CONFIG)")
	flag.BoolVar(&cli.detectOnly, "detect", false, "scan for hardware, print results, and exit")
	flag.StringVar(&cli.capture, "capture", "", `run one capture against the given device ("auto" picks the best scan result) and exit`)
	flag.IntVar(&cli.channels, "channels", 8, "number of channels for a one-shot capture (starting at channel 0)")
	flag.UintVar(&cli.frequency, "frequency", 1_000_000, "sample rate in Hz for a one-shot capture")
	flag.UintVar(&cli.samples, "samples", 4096, "post-trigger samples for a one-shot capture")
	flag.Parse()
	return cli
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, cli cliOptions) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Capture Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath(cli)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	historyRepo := capture.NewSQLiteHistoryRepository(db.DB)
	knownRepo := detect.NewSQLiteKnownDeviceRepository(db.DB)

	// Event bus carries hardware lifecycle events to in-process
	// subscribers and, when MQTT is enabled, to external consumers.
	bus := events.NewBus()
	defer bus.Close()

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			// Announce the shutdown before the LWT-backed status topic
			// flips offline.
			shutdown := mqtt.Topics{}.SystemShutdown()
			if pubErr := mqttClient.PublishString(shutdown, `{"status":"shutting_down"}`, 1, false); pubErr != nil {
				log.Warn("publishing shutdown notice failed", "error", pubErr)
			}
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// Mirror bus events to capturecore/events/{kind}
		publisher := events.NewPublisher(bus, mqttClient, log)
		defer publisher.Stop()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the hardware manager: detectors plus driver registry.
	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return fmt.Errorf("registering drivers: %w", err)
	}

	mgr := manager.New(registry, buildDetectors(cfg, knownRepo, log), bus, manager.Options{
		DetectTimeout: cfg.GetDetectTimeout(),
		KnownDevices:  knownRepo,
		Logger:        log,
	})
	defer mgr.Dispose()
	log.Info("hardware manager initialised", "drivers", len(registry.List()))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	switch {
	case cli.detectOnly:
		return runDetect(ctx, mgr, influxClient, log)
	case cli.capture != "":
		return runCapture(ctx, cli, mgr, historyRepo, influxClient, bus, log)
	default:
		return runService(ctx, mgr, influxClient, log)
	}
}

// getConfigPath returns the configuration file path.
// Precedence: -config flag, CAPTURECORE_CONFIG environment variable, default.
func getConfigPath(cli cliOptions) string {
	if cli.configPath != "" {
		return cli.configPath
	}
	if path := os.Getenv("CAPTURECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildDetectors assembles the detector set from config. The serial
// detector always runs; network, vendor-utility, and remembered-device
// detectors join when configured.
func buildDetectors(cfg *config.Config, knownRepo detect.KnownDeviceRepository, log *logging.Logger) []detect.Detector {
	detectors := []detect.Detector{
		detect.NewSerialDetector(cfg.Detection.Serial.VendorScores, log),
	}

	if len(cfg.Detection.Network.Hosts) > 0 {
		detectors = append(detectors, detect.NewNetworkDetector(
			cfg.Detection.Network.Hosts,
			cfg.Detection.Network.Ports,
			cfg.GetProbeTimeout(),
			log,
		))
	}

	if cfg.Detection.Vendor.Scanner != "" {
		detectors = append(detectors, detect.NewVendorDetector(
			cfg.Detection.Vendor.Scanner,
			cfg.Detection.Vendor.Args,
			cfg.GetScanTimeout(),
			log,
		))
	}

	detectors = append(detectors, detect.NewKnownDeviceDetector(knownRepo, log))

	return detectors
}

// buildRegistry registers the built-in drivers.
func buildRegistry(cfg *config.Config, log *logging.Logger) (*manager.Registry, error) {
	opts := lanet.Options{
		SerialBaud:     cfg.Driver.SerialBaud,
		ConnectTimeout: cfg.GetConnectTimeout(),
		ReadTimeout:    cfg.GetReadTimeout(),
		AckTimeout:     cfg.GetAckTimeout(),
		VoltageTimeout: cfg.GetVoltageTimeout(),
		Logger:         log,
	}

	registry := manager.NewRegistry()

	registrations := []manager.Registration{
		{
			ID:       "lanet-serial",
			Name:     "LAnet Serial",
			Priority: 100,
			Tags:     []string{"serial", "usb", "lanet"},
			Factory: func(connectionString string) (manager.Driver, error) {
				return lanet.NewDriver(connectionString, opts)
			},
		},
		{
			ID:       "lanet-network",
			Name:     "LAnet Network",
			Priority: 60,
			Tags:     []string{"network", "lanet"},
			Factory: func(connectionString string) (manager.Driver, error) {
				return lanet.NewDriver(connectionString, opts)
			},
		},
	}

	for _, reg := range registrations {
		if err := registry.Register(reg); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// runDetect performs one hardware scan, prints the results, and exits.
func runDetect(ctx context.Context, mgr *manager.Manager, influxClient *influxdb.Client, log *logging.Logger) error {
	started := time.Now()
	devices, err := mgr.DetectHardware(ctx, false)
	if err != nil {
		return fmt.Errorf("detecting hardware: %w", err)
	}

	if influxClient != nil {
		influxClient.WriteDetectionMetric("all", len(devices), time.Since(started))
	}

	if len(devices) == 0 {
		fmt.Println("no devices found")
		return nil
	}

	for _, dev := range devices {
		fmt.Printf("%-40s %-8s confidence=%d", dev.ConnectionString, dev.Transport, dev.Confidence)
		if dev.Name != "" {
			fmt.Printf("  %s", dev.Name)
		}
		if dev.DriverHint != "" {
			fmt.Printf("  (%s)", dev.DriverHint)
		}
		fmt.Println()
	}
	log.Info("scan complete", "devices", len(devices))
	return nil
}

// captureOutcome carries the completion callback's payload to the
// waiting goroutine.
type captureOutcome struct {
	result *capture.Result
	code   capture.ErrorCode
}

// runCapture connects to one device, runs a single capture with the
// command-line shape, records the outcome, and exits.
func runCapture(ctx context.Context, cli cliOptions, mgr *manager.Manager, historyRepo capture.HistoryRepository, influxClient *influxdb.Client, bus *events.Bus, log *logging.Logger) error {
	driver, err := mgr.ConnectToDevice(ctx, cli.capture)
	if err != nil {
		return fmt.Errorf("connecting to device: %w", err)
	}
	defer func() {
		if disconnectErr := mgr.Disconnect(driver.ConnectionString()); disconnectErr != nil {
			log.Warn("disconnect failed", "error", disconnectErr)
		}
	}()
	log.Info("device connected", "connection_string", driver.ConnectionString())

	// Voltage telemetry is best-effort: the sentinel strings the driver
	// degrades to are not parseable and are skipped.
	if influxClient != nil {
		if volts, parseErr := strconv.ParseFloat(driver.GetVoltageStatus(), 64); parseErr == nil {
			influxClient.WriteVoltageMetric(driver.ConnectionString(), volts)
		}
	}

	session, err := buildSession(cli)
	if err != nil {
		return err
	}

	done := make(chan captureOutcome, 1)
	started := time.Now()

	code := driver.StartCapture(session, func(result *capture.Result, code capture.ErrorCode) {
		done <- captureOutcome{result: result, code: code}
	})
	if code != capture.CaptureNone {
		return fmt.Errorf("starting capture: %s", code)
	}
	log.Info("capture armed",
		"session_id", session.ID,
		"frequency", session.Frequency,
		"channels", len(session.Channels),
	)

	var outcome captureOutcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		if stopErr := driver.StopCapture(); stopErr != nil {
			log.Warn("stop capture failed", "error", stopErr)
		}
		// A stopped run never reaches the completion handler, so the
		// abort is recorded directly.
		outcome = captureOutcome{code: capture.CaptureUnexpectedError}
		recordCapture(context.WithoutCancel(ctx), historyRepo, influxClient, bus, driver.ConnectionString(), session, outcome, time.Since(started), log)
		return fmt.Errorf("capture aborted: %w", ctx.Err())
	}

	recordCapture(context.WithoutCancel(ctx), historyRepo, influxClient, bus, driver.ConnectionString(), session, outcome, time.Since(started), log)

	if outcome.code != capture.CaptureNone {
		return fmt.Errorf("capture failed: %s", outcome.code)
	}

	fmt.Printf("capture %s complete: %d samples", session.ID, len(outcome.result.Samples))
	if len(outcome.result.Timestamps) > 0 {
		fmt.Printf(", %d burst timestamps", len(outcome.result.Timestamps))
	}
	fmt.Println()
	return nil
}

// buildSession translates one-shot capture flags into a session.
func buildSession(cli cliOptions) (*capture.Session, error) {
	if cli.channels < 1 || cli.channels > capture.MaxChannel+1 {
		return nil, fmt.Errorf("invalid channel count %d (must be 1-%d)", cli.channels, capture.MaxChannel+1)
	}

	channels := make([]capture.Channel, cli.channels)
	for i := range channels {
		channels[i] = capture.Channel{
			Number: uint8(i),
			Name:   fmt.Sprintf("CH%d", i),
		}
	}

	session := &capture.Session{
		ID:                 capture.GenerateID(),
		Frequency:          uint32(cli.frequency),
		PostTriggerSamples: uint32(cli.samples),
		TriggerType:        capture.TriggerNone,
		Channels:           channels,
	}

	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture settings: %w", err)
	}
	return session, nil
}

// recordCapture persists a finished capture and emits telemetry.
func recordCapture(ctx context.Context, historyRepo capture.HistoryRepository, influxClient *influxdb.Client, bus *events.Bus, connectionString string, session *capture.Session, outcome captureOutcome, elapsed time.Duration, log *logging.Logger) {
	mode, err := session.Mode()
	if err != nil {
		log.Error("capture mode lookup failed", "error", err)
		return
	}

	rec := &capture.HistoryRecord{
		ID:               session.ID,
		ConnectionString: connectionString,
		Mode:             mode,
		PreSamples:       session.PreTriggerSamples,
		PostSamples:      session.PostTriggerSamples,
		Frequency:        session.Frequency,
		ErrorCode:        outcome.code,
		CompletedAt:      time.Now(),
	}
	if outcome.result != nil {
		rec.SampleCount = len(outcome.result.Samples)
		rec.TimestampCount = len(outcome.result.Timestamps)
	}

	if err := historyRepo.Record(ctx, rec); err != nil {
		log.Error("recording capture history failed", "error", err, "session_id", session.ID)
	}

	if influxClient != nil {
		influxClient.WriteCaptureMetric(connectionString, mode.String(), rec.SampleCount, session.Frequency, elapsed)
	}

	bus.Publish(events.Event{
		Kind:             events.KindCaptureCompleted,
		ConnectionString: connectionString,
		SessionID:        session.ID,
		Code:             outcome.code,
		SampleCount:      rec.SampleCount,
	})
}

// runService scans for hardware periodically until shutdown. Scan
// results reach external consumers through the MQTT event mirror.
func runService(ctx context.Context, mgr *manager.Manager, influxClient *influxdb.Client, log *logging.Logger) error {
	scan := func() {
		started := time.Now()
		devices, err := mgr.DetectHardware(ctx, false)
		if err != nil {
			log.Warn("hardware scan failed", "error", err)
			return
		}
		if influxClient != nil {
			influxClient.WriteDetectionMetric("all", len(devices), time.Since(started))
		}
		log.Info("hardware scan complete", "devices", len(devices))
	}

	scan()

	log.Info("initialisation complete, waiting for shutdown signal")

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			scan()
		case <-ctx.Done():
			log.Info("shutdown signal received, cleaning up")
			log.Info("Capture Core stopped")
			return nil
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
