package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/raptrack/raptrack/pkg/fiscal"
	"github.com/raptrack/raptrack/pkg/logging"
	"github.com/raptrack/raptrack/pkg/lookback"
	"github.com/raptrack/raptrack/pkg/metrics"
	"github.com/raptrack/raptrack/pkg/report"
	"github.com/raptrack/raptrack/pkg/roster"
	"github.com/raptrack/raptrack/pkg/types"
	"github.com/raptrack/raptrack/reporter/internal/config"
	"github.com/raptrack/raptrack/reporter/internal/render"
	"github.com/raptrack/raptrack/reporter/internal/shipper"
	"github.com/raptrack/raptrack/reporter/internal/source"
)

const defaultConfigPath = "reporter.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, time.Now))
}

// run executes one report and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, now func() time.Time) int {
	fs := flag.NewFlagSet("raptrack-reporter", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	input := fs.String("input", "", "roster CSV path (overrides reporter.source)")
	month := fs.String("month", "", "fiscal month number or calendar month name to report for")
	format := fs.String("format", "", "output format: text|json|yaml|csv")
	envFile := fs.String("env", "", "optional .env file with secrets")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logging.Init(stderr, slog.LevelInfo)

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			slog.Error("failed to load env file", "path", *envFile, "err", err)
			return 1
		}
	}

	cfg, err := loadConfig(*configPath, isSet(fs, "config"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return 1
	}
	applyFlags(cfg, *input, *format)
	if *month != "" {
		n, err := fiscal.ParseMonth(*month)
		if err != nil {
			slog.Error("invalid -month", "err", err)
			return 1
		}
		cfg.Reporter.TargetMonth = n
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		return 1
	}
	logging.Init(stderr, logging.ParseLevel(cfg.Reporter.LogLevel))

	rep, err := generate(ctx, cfg, now())
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			fmt.Fprintln(stderr, "File not found. Please check the file name and try again.")
		}
		slog.Error("report failed", "err", err)
		return 1
	}

	if err := render.Render(stdout, cfg.Reporter.Output.Format, rep); err != nil {
		slog.Error("render failed", "err", err)
		return 1
	}

	if path := cfg.Reporter.Output.MetricsFile; path != "" {
		if err := metrics.WriteTextfile(path, rep); err != nil {
			slog.Error("metrics textfile failed", "path", path, "err", err)
			return 1
		}
		slog.Info("metrics textfile written", "path", path)
	}

	if cfg.Reporter.Ship.Enabled() {
		resp, err := shipper.New(cfg.Reporter.Ship).Ship(ctx, rep)
		if err != nil {
			slog.Error("shipping report failed", "endpoint", cfg.Reporter.Ship.Endpoint, "err", err)
			return 1
		}
		slog.Info("report shipped", "endpoint", cfg.Reporter.Ship.Endpoint, "run_id", resp.RunID)
	}
	return 0
}

// generate fetches, parses and evaluates the configured roster.
func generate(ctx context.Context, cfg *config.Config, now time.Time) (*types.Report, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	target := cfg.Reporter.TargetMonth
	if target == 0 {
		target = fiscal.TargetMonth(now)
	}
	slog.Info("running RAP report",
		"roster", cfg.Reporter.Source.ID,
		"target_month", target,
		"reported_month", reportedMonth(target),
	)
	if target < lookback.MinRegressionMonth {
		slog.Warn("target month too early for a full prior window; regression is never flagged",
			"target_month", target, "min", lookback.MinRegressionMonth)
	}

	src, err := source.New(cfg.Reporter.Source)
	if err != nil {
		return nil, err
	}
	rc, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	records, err := roster.ParseWith(rc, roster.Options{HeaderRows: cfg.Reporter.Source.HeaderRows})
	if err != nil {
		if records == nil {
			return nil, err
		}
		logRowErrors(err)
	}

	results, err := lookback.EvaluateBatch(ctx, reg, records, target, cfg.Reporter.Workers)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return report.Build(cfg.Reporter.Source.ID, target, results, now), nil
}

// reportedMonth names the calendar month a target month's one-month window covers.
func reportedMonth(target int) string {
	if target <= 1 {
		return ""
	}
	return fiscal.MonthName(target - 1)
}

func logRowErrors(err error) {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		slog.Warn("skipped roster row", "err", err)
		return
	}
	for _, e := range joined.Unwrap() {
		var re *roster.RowError
		if errors.As(e, &re) {
			slog.Warn("skipped roster row", "line", re.Line, "name", re.Name, "err", re.Err)
			continue
		}
		slog.Warn("skipped roster row", "err", e)
	}
}

// loadConfig reads path. A missing file is only an error when the path was
// given explicitly; otherwise built-in defaults are used.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config file, using defaults", "path", path)
		return config.Defaults(), nil
	}
	return nil, err
}

func applyFlags(cfg *config.Config, input, format string) {
	if input != "" {
		cfg.Reporter.Source.Type = "file"
		cfg.Reporter.Source.Path = input
	}
	if format != "" {
		cfg.Reporter.Output.Format = format
	}
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
