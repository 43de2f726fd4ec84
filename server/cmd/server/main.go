package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/raptrack/raptrack/pkg/logging"
	"github.com/raptrack/raptrack/pkg/threshold"
	"github.com/raptrack/raptrack/server/internal/alerts"
	"github.com/raptrack/raptrack/server/internal/api"
	"github.com/raptrack/raptrack/server/internal/auth"
	"github.com/raptrack/raptrack/server/internal/config"
	"github.com/raptrack/raptrack/server/internal/history"
	"github.com/raptrack/raptrack/server/internal/receiver"
	"github.com/raptrack/raptrack/server/internal/schedule"
	"github.com/raptrack/raptrack/server/internal/store"
	"github.com/raptrack/raptrack/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

// run starts the server and blocks until ctx is cancelled. It returns the
// process exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("raptrack-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to config file")
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

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return 1
	}
	logging.Init(stderr, logging.ParseLevel(cfg.Server.LogLevel))

	slog.Info("raptrack-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Server.Storage.Backend,
		"report_ttl", cfg.Server.Report.TTL,
		"history_retention", cfg.Server.Storage.Retention,
	)

	a, err := newApp(cfg)
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}
	defer a.Close()

	var wg sync.WaitGroup
	a.start(ctx, &wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			logging.Init(stderr, logging.ParseLevel(next.Server.LogLevel))
			a.reload(next)
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err := <-errc:
		slog.Error("HTTP server stopped", "err", err)
		code = 1
	}

	slog.Info("raptrack-server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	wg.Wait()
	return code
}

// app holds the wired server components.
type app struct {
	registry  atomic.Pointer[threshold.Registry]
	store     *store.Store
	history   *history.DB // nil with the memory backend
	retention time.Duration
	alerts    *alerts.Engine
	hub       *ws.Hub
	receiver  *receiver.Receiver
	sched     *schedule.Scheduler // nil when no cron is configured
	handler   http.Handler
}

func newApp(cfg *config.Config) (*app, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	a := &app{
		store:  store.New(cfg.Server.Report.TTL),
		alerts: alerts.New(cfg.Server.Alerts),
	}
	a.registry.Store(reg)
	a.hub = ws.New(a.store, cfg.Server.BroadcastInterval)

	opts := receiver.Options{
		Store:    a.store,
		Registry: a.registry.Load,
		Alerts:   a.alerts,
		Notifier: a.hub,
		Workers:  cfg.Server.Workers,
	}
	apiOpts := api.Options{
		Store:    a.store,
		Registry: a.registry.Load,
		Alerts:   a.alerts,
	}
	if cfg.Server.Storage.Backend == "sqlite" {
		db, err := history.Open(cfg.Server.Storage.Path)
		if err != nil {
			return nil, err
		}
		a.history = db
		a.retention = cfg.Server.Storage.Retention
		opts.History = db
		apiOpts.History = db
	}
	a.receiver = receiver.New(opts)
	apiOpts.Ingester = a.receiver

	if cfg.Server.Schedule.Enabled() {
		a.sched, err = schedule.New(cfg.Server.Schedule, a.receiver)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	mw := auth.APIKey(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key())
	apiHandler := api.New(apiOpts)
	mux := http.NewServeMux()
	mux.Handle("/api/", mw(apiHandler))
	mux.Handle("/metrics", apiHandler)
	mux.Handle("/ws/stream", a.hub)
	a.handler = mux
	return a, nil
}

// start launches the background loops. Each adds itself to wg and returns
// when ctx is cancelled.
func (a *app) start(ctx context.Context, wg *sync.WaitGroup) {
	loops := []func(context.Context){a.store.Run, a.hub.Run}
	if a.sched != nil {
		loops = append(loops, a.sched.Run)
	}
	if a.history != nil && a.retention > 0 {
		loops = append(loops, func(ctx context.Context) { a.history.RunRetention(ctx, a.retention) })
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(loop func(context.Context)) {
			defer wg.Done()
			loop(ctx)
		}(loop)
	}
}

// reload applies a changed config file: thresholds and alert rules are
// swapped in and every stored report is classified again.
func (a *app) reload(cfg *config.Config) {
	reg, err := cfg.Registry()
	if err != nil {
		slog.Error("config: thresholds rejected, keeping previous registry", "err", err)
		return
	}
	a.registry.Store(reg)
	a.alerts.SetConfig(cfg.Server.Alerts)

	n := a.store.Reevaluate(reg)
	for _, r := range a.store.Reports() {
		a.alerts.Evaluate(r)
	}
	a.hub.Notify()
	slog.Info("config: thresholds applied", "codes", reg.Len(), "reports_reevaluated", n)
}

// Close waits for in-flight webhook deliveries and closes the history database.
func (a *app) Close() {
	a.alerts.Wait()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			slog.Warn("history: close", "err", err)
		}
	}
}
