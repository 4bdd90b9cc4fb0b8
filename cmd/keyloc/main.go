// keyloc analyzes key-value access traces and charts their cache locality:
// how often keys repeat, how accesses spread over keys and time, and how
// unique the accesses inside a sliding window are.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kvtrace/keyloc/internal/config"
	"github.com/kvtrace/keyloc/internal/engine"
	"github.com/kvtrace/keyloc/internal/metrics"
	"github.com/kvtrace/keyloc/internal/notifier"
	"github.com/kvtrace/keyloc/internal/reader"
	"github.com/kvtrace/keyloc/internal/render"
	"github.com/kvtrace/keyloc/internal/scheduler"
	"github.com/kvtrace/keyloc/internal/server"
)

var (
	// Version information (set at build time via -ldflags)
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// flags holds the command-line values that override the configuration file.
type flags struct {
	inputPath     string
	outputDir     string
	targetTableID uint64
	maxTSBucket   uint64
	maxKeyBucket  uint64
	binSec        uint64
	width         int
	height        int
	stats         config.StatisticsConfig
	xlsx          bool
	schedule      string
}

func main() {
	var f flags
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	registerFlags(flag.CommandLine, &f)
	flag.Parse()

	if *showVersion {
		fmt.Printf("keyloc %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	applyFlags(flag.CommandLine, cfg, &f)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := setupLogging(&cfg.Logging); err != nil {
		log.Fatalf("Invalid logging configuration: %v", err)
	}

	log.Infof("keyloc %s starting...", version)

	// Initialize trace source
	src, err := reader.New(context.Background(), &cfg.Input, *cfg.Analysis.TargetTableID)
	if err != nil {
		log.Fatalf("Failed to open trace source: %v", err)
	}
	defer src.Close()

	// Test database connection
	pinger, _ := src.(server.Pinger)
	if pinger != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := pinger.Ping(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		log.Info("Database connection established")
	}
	log.Infof("Trace source: %s", src.Name())

	// Initialize renderers and analysis engine
	renderers := render.Multi{render.NewPNG(cfg.Output.Dir, cfg.Output.Width, cfg.Output.Height)}
	if cfg.Output.XLSX {
		renderers = append(renderers, render.NewXLSX(cfg.Output.Dir))
	}
	eng := engine.New(cfg, src, renderers)

	// Initialize notifiers; the console summary is always printed
	notify := notifier.Multi{notifier.NewConsoleNotifier()}
	if cfg.Notifier.Type == "wecom" {
		wecom, err := notifier.NewWeComNotifier(&cfg.Notifier)
		if err != nil {
			log.Fatalf("Failed to initialize WeCom notifier: %v", err)
		}
		notify = append(notify, wecom)
	}
	log.Infof("Notifier initialized: %s", notify.Name())

	recorder, err := metrics.NewRecorder()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	sched := scheduler.New(eng, notify, cfg.Schedule.Location)
	sched.SetRecorder(recorder)
	if timeout, err := cfg.Schedule.AnalysisTimeoutParsed(); err == nil {
		sched.SetAnalysisTimeout(timeout)
	}

	// Run-once mode
	if cfg.Schedule.Cron == "" {
		if err := sched.RunNow(); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	// Initialize health server
	var healthServer *server.Server
	if cfg.Server.Enabled {
		healthServer = server.New(&cfg.Server, pinger, recorder.Handler())
		sched.OnReport(healthServer.SetReport)
		if err := healthServer.Start(); err != nil {
			log.Fatalf("Failed to start health server: %v", err)
		}
	}

	// Cron is interpreted in the configured timezone; Location set by config.Validate
	if err := sched.Schedule(cfg.Schedule.Cron); err != nil {
		log.Fatalf("Failed to schedule job: %v", err)
	}
	sched.Start()
	log.Infof("Scheduler started with cron: %s (timezone: %s)", cfg.Schedule.Cron, cfg.Schedule.Timezone)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("Received signal %v, shutting down...", sig)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop scheduler
	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
	case <-shutdownCtx.Done():
	}

	// Stop health server
	if healthServer != nil {
		if err := healthServer.Stop(shutdownCtx); err != nil {
			log.Errorf("Error stopping health server: %v", err)
		}
	}

	log.Info("Shutdown complete")
}

// registerFlags defines the analysis flags on fs. Defaults match config.Default.
func registerFlags(fs *flag.FlagSet, f *flags) {
	fs.StringVar(&f.inputPath, "input-path", "", "Trace file, glob, s3://bucket/key URL, or - for stdin")
	fs.StringVar(&f.outputDir, "output-dir", ".", "Directory charts are written to")
	fs.Uint64Var(&f.targetTableID, "target-table-id", 0, "Table whose records are analyzed (required)")
	fs.Uint64Var(&f.maxTSBucket, "max-timestamp-bucket", 1000, "Maximum number of time buckets")
	fs.Uint64Var(&f.maxKeyBucket, "max-key-bucket", 1_000_000_000, "Maximum number of key buckets")
	fs.Uint64Var(&f.binSec, "locality-over-time-bin-sec", 600, "Sliding window of the uniqueness-over-time statistic, in seconds")
	fs.IntVar(&f.width, "output-width", 2048, "Chart width in pixels")
	fs.IntVar(&f.height, "output-height", 1536, "Chart height in pixels")
	fs.BoolVar(&f.stats.AppearanceCDF, "key-appearance-cdf", false, "Chart the key appearance CDF")
	fs.BoolVar(&f.stats.AccessCount, "key-access-count", false, "Chart the access count per key bucket")
	fs.BoolVar(&f.stats.TimeSeries, "key-time-series", false, "Chart key accesses over time")
	fs.BoolVar(&f.stats.ReusePeriod, "key-reuse-period", false, "Chart the key reuse period histogram")
	fs.BoolVar(&f.stats.LocalityOverTime, "locality-over-time", false, "Chart key uniqueness over time")
	fs.BoolVar(&f.stats.TimeSpan, "key-time-span", false, "Chart the key time span distribution")
	fs.BoolVar(&f.xlsx, "xlsx", false, "Also export every series to "+render.WorkbookName)
	fs.StringVar(&f.schedule, "schedule", "", "Cron expression (with seconds) to re-run the analysis on")
}

// applyFlags copies the flags explicitly set on fs over the configuration.
func applyFlags(fs *flag.FlagSet, cfg *config.Config, f *flags) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "input-path":
			cfg.Input.Path = f.inputPath
		case "output-dir":
			cfg.Output.Dir = f.outputDir
		case "target-table-id":
			id := f.targetTableID
			cfg.Analysis.TargetTableID = &id
		case "max-timestamp-bucket":
			cfg.Analysis.MaxTimestampBuckets = f.maxTSBucket
		case "max-key-bucket":
			cfg.Analysis.MaxKeyBuckets = f.maxKeyBucket
		case "locality-over-time-bin-sec":
			cfg.Analysis.LocalityWindowSec = f.binSec
		case "output-width":
			cfg.Output.Width = f.width
		case "output-height":
			cfg.Output.Height = f.height
		case "key-appearance-cdf":
			cfg.Analysis.Statistics.AppearanceCDF = f.stats.AppearanceCDF
		case "key-access-count":
			cfg.Analysis.Statistics.AccessCount = f.stats.AccessCount
		case "key-time-series":
			cfg.Analysis.Statistics.TimeSeries = f.stats.TimeSeries
		case "key-reuse-period":
			cfg.Analysis.Statistics.ReusePeriod = f.stats.ReusePeriod
		case "locality-over-time":
			cfg.Analysis.Statistics.LocalityOverTime = f.stats.LocalityOverTime
		case "key-time-span":
			cfg.Analysis.Statistics.TimeSpan = f.stats.TimeSpan
		case "xlsx":
			cfg.Output.XLSX = f.xlsx
		case "schedule":
			cfg.Schedule.Cron = f.schedule
		}
	})

	if cfg.Input.Type == config.InputFile && strings.HasPrefix(cfg.Input.Path, "s3://") {
		cfg.Input.Type = config.InputS3
	}
}

// setupLogging configures the global logger.
func setupLogging(cfg *config.LoggingConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
