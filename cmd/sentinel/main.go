package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sre-sentinel/sentinel/pkg/anomaly"
	"github.com/sre-sentinel/sentinel/pkg/api"
	"github.com/sre-sentinel/sentinel/pkg/bus"
	"github.com/sre-sentinel/sentinel/pkg/config"
	"github.com/sre-sentinel/sentinel/pkg/engine"
	"github.com/sre-sentinel/sentinel/pkg/incident"
	"github.com/sre-sentinel/sentinel/pkg/inference"
	"github.com/sre-sentinel/sentinel/pkg/ingest"
	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/registry"
	"github.com/sre-sentinel/sentinel/pkg/remedy"
	"github.com/sre-sentinel/sentinel/pkg/rootcause"
	"github.com/sre-sentinel/sentinel/pkg/sampler"
	"github.com/sre-sentinel/sentinel/pkg/verify"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// process exit codes
const (
	exitOK               = 0
	exitConfigError      = 1
	exitEngineDisconnect = 2
)

// engine watchdog: this many consecutive failed pings means the engine is
// gone for good
const watchdogFailureLimit = 8

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "SRE Sentinel - autonomous monitoring and self-healing for containers",
	Long: `SRE Sentinel watches containers that opt in with the
sre-sentinel.monitor=true label, streams their logs and resource metrics,
classifies log windows for anomalies, analyzes confirmed faults for root
cause, and heals them through a remediation tool gateway - publishing the
whole lifecycle as a live event stream.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"SRE Sentinel version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	if err := log.Setup(log.Options{Level: logLevel, JSON: logJSON}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfigError)
	}
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Sentinel daemon",
	Long: `Start discovery, log ingestion, metrics sampling, the anomaly
pipeline, and the dashboard API. Runs until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		os.Exit(run(configPath))
		return nil
	},
}

func init() {
	startCmd.Flags().String("config", "", "Optional YAML config file (environment overrides it)")
}

func run(configPath string) int {
	logger := log.WithComponent("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("configuration invalid")
		return exitConfigError
	}

	eng, err := engine.NewDocker()
	if err != nil {
		logger.Error().Err(err).Msg("cannot create engine client")
		return exitEngineDisconnect
	}
	defer eng.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = eng.Ping(bootCtx)
	bootCancel()
	if err != nil {
		logger.Error().Err(err).Msg("container engine unreachable")
		return exitEngineDisconnect
	}

	var journal *bus.Journal
	if cfg.EventBusPath != "" {
		journal, err = bus.OpenJournal(cfg.EventBusPath, cfg.EventBusTopics)
		if err != nil {
			logger.Error().Err(err).Msg("cannot open event journal")
			return exitConfigError
		}
		logger.Info().Str("path", cfg.EventBusPath).Msg("durable event fan-out enabled")
	}
	eventBus := bus.New(journal)
	defer eventBus.Close()

	// pipeline contexts: runCtx stops the monitors, driverCtx lets
	// in-flight remediation finish its per-call timeout on shutdown
	runCtx, stopRun := context.WithCancel(context.Background())
	driverCtx, stopDrivers := context.WithCancel(context.Background())
	defer stopDrivers()
	defer stopRun()

	executor := remedy.New(cfg.ToolGatewayURL)
	defer executor.Close()

	classifier := inference.NewClassifier(inference.Endpoint{
		URL:   cfg.FastClassifierURL,
		Key:   cfg.FastClassifierKey,
		Model: cfg.FastClassifierModel,
	})
	analyzer := inference.NewAnalyzer(inference.Endpoint{
		URL:   cfg.DeepAnalyzerURL,
		Key:   cfg.DeepAnalyzerKey,
		Model: cfg.DeepAnalyzerModel,
	})

	reg := registry.New(eng, eventBus)
	store := incident.NewStore(eventBus)
	rcEngine := rootcause.New(analyzer, eng, reg, executor)
	verifier := verify.New(eng, reg)
	manager := incident.NewManager(driverCtx, store, rcEngine, executor, verifier, cfg.AutoHealEnabled)

	gate := anomaly.New(classifier, reg, manager)
	gate.Start(runCtx)

	ingester := ingest.New(eng, eventBus, gate, cfg.LogLinesPerCheck)
	smp := sampler.New(eng, eventBus, reg, cfg.LogCheckInterval)
	reg.RegisterStarters(ingester, smp)
	reg.Start(runCtx)

	server := api.New(cfg.APIPort, reg, store, smp, eventBus)
	serverErr := make(chan error, 1)
	server.Start(serverErr)

	logger.Info().
		Bool("auto_heal", cfg.AutoHealEnabled).
		Int("window_size", cfg.LogLinesPerCheck).
		Dur("sample_interval", cfg.LogCheckInterval).
		Msg("SRE Sentinel started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := exitOK
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("API server failed")
		exitCode = exitConfigError
	case <-watchdog(runCtx, eng):
		logger.Error().Msg("container engine disconnected and did not return")
		exitCode = exitEngineDisconnect
	}

	// stop discovery, ingesters, samplers, and the gate
	reg.Stop()
	stopRun()

	// drain incident drivers: in-flight gateway calls get their per-call
	// timeout, then are forcibly aborted
	drained := make(chan struct{})
	go func() {
		manager.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(130 * time.Second):
		logger.Warn().Msg("forcing incident drivers to stop")
	}
	stopDrivers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("API shutdown incomplete")
	}

	logger.Info().Msg("shutdown complete")
	return exitCode
}

// watchdog pings the engine periodically and fires once it has been gone
// long enough to call the disconnect unrecoverable
func watchdog(ctx context.Context, eng engine.Engine) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(registry.DiscoveryInterval)
		defer ticker.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := eng.Ping(pingCtx)
				cancel()
				if err == nil {
					failures = 0
					continue
				}
				failures++
				if failures >= watchdogFailureLimit {
					close(ch)
					return
				}
			}
		}
	}()
	return ch
}
