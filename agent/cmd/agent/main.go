package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/obsidianstack/logshipper/agent/internal/config"
	"github.com/obsidianstack/logshipper/agent/internal/ingest"
	"github.com/obsidianstack/logshipper/agent/internal/pipeline"
	"github.com/obsidianstack/logshipper/agent/internal/security"
	"github.com/obsidianstack/logshipper/agent/internal/shipper"
	"github.com/obsidianstack/logshipper/agent/internal/slogbridge"
	"github.com/obsidianstack/logshipper/pkg/types"
)

// currentShipper resolves the live shipper on every call so that hot
// reloads take effect for the slog bridge and the pipeline alike.
type currentShipper struct {
	p *atomic.Pointer[shipper.Shipper]
}

func (c currentShipper) Ship(rec types.Record)  { c.p.Load().Ship(rec) }
func (c currentShipper) MinLevel() types.Level { return c.p.Load().MinLevel() }

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("logshipper-agent", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "config.yaml", "path to config file")
	workers := flags.Int("workers", 0, "concurrent shipping goroutines (overrides agent.workers)")
	metricsAddr := flags.String("metrics-addr", "", "serve /metrics on this address (overrides agent.metrics_addr)")
	flags.Usage = func() {
		io.WriteString(os.Stderr, "usage: logshipper-agent [flags] [file ...]\n") //nolint:errcheck
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	stdout := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(stdout)
	slog.SetDefault(logger)

	slog.Info("logshipper-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return 1
	}
	if *workers > 0 {
		cfg.Agent.Workers = *workers
	}
	if *metricsAddr != "" {
		cfg.Agent.MetricsAddr = *metricsAddr
	}

	slog.Info("config loaded",
		"push_url", cfg.Shipper.PushURL(),
		"min_level", cfg.Shipper.MinLevel.Label(),
		"auth_mode", cfg.Shipper.Auth.Mode,
		"compression", cfg.Shipper.Compression,
		"workers", cfg.Agent.Workers,
	)

	// Counters outlive any single shipper so reloads do not reset them.
	metrics := shipper.NewMetrics()
	diag := logger.With("component", "shipper")
	build := func(sc config.ShipperConfig) (*shipper.Shipper, error) {
		return shipper.New(sc, shipper.WithMetrics(metrics), shipper.WithDiagnostics(diag))
	}

	var live atomic.Pointer[shipper.Shipper]
	s, err := build(cfg.Shipper)
	if err != nil {
		slog.Error("failed to build shipper", "err", err)
		return 1
	}
	live.Store(s)

	if cfg.Agent.SelfChannel != "" {
		bridge := slogbridge.NewHandler(currentShipper{&live}, slogbridge.Options{Channel: cfg.Agent.SelfChannel})
		slog.SetDefault(slog.New(slogbridge.Tee(stdout, bridge)))
		slog.Info("shipping agent logs", "channel", cfg.Agent.SelfChannel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go checkCert(ctx, cfg.Shipper)

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			next, err := build(updated.Shipper)
			if err != nil {
				slog.Error("config reload rejected, keeping previous shipper", "err", err)
				return
			}
			live.Store(next)
			slog.Info("config hot-reloaded",
				"push_url", updated.Shipper.PushURL(),
				"min_level", updated.Shipper.MinLevel.Label(),
			)
			checkCert(ctx, updated.Shipper)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.Agent.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics)
		metricsSrv = &http.Server{Addr: cfg.Agent.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("metrics listening", "addr", cfg.Agent.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
	}

	dec := ingest.NewDecoder(cfg.Agent.Channel)
	current := func() pipeline.Pusher { return live.Load() }

	done := make(chan int, 1)
	go func() {
		done <- shipInputs(ctx, flags.Args(), dec, cfg.Agent.Workers, current)
	}()

	code := 0
	select {
	case code = <-done:
	case <-ctx.Done():
		slog.Info("logshipper-agent shutting down")
	}

	if metricsSrv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		metricsSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}

	slog.Info("logshipper-agent finished",
		"delivered", metrics.Count(shipper.OutcomeDelivered),
		"filtered_out", metrics.Count(shipper.OutcomeFilteredOut),
		"transport_errors", metrics.Count(shipper.OutcomeTransportError),
		"remote_rejected", metrics.Count(shipper.OutcomeRemoteRejected),
		"degraded", metrics.Degraded(),
	)
	return code
}

// checkCert logs the state of the aggregator's TLS certificate.
func checkCert(ctx context.Context, sc config.ShipperConfig) {
	cs := security.Check(ctx, sc)
	if cs == nil {
		return
	}
	attrs := []any{
		"endpoint", cs.Endpoint,
		"state", cs.State,
		"issuer", cs.Issuer,
		"days_left", cs.DaysLeft,
	}
	if cs.Err != nil {
		attrs = append(attrs, "err", cs.Err)
	}
	if cs.State == security.StateValid {
		slog.Info("aggregator certificate checked", attrs...)
		return
	}
	slog.Warn("aggregator certificate needs attention", attrs...)
}

// shipInputs ships each named file in turn, or stdin when paths is empty.
// It returns the process exit code.
func shipInputs(ctx context.Context, paths []string, dec *ingest.Decoder, workers int, current func() pipeline.Pusher) int {
	if len(paths) == 0 {
		paths = []string{"-"}
	}

	code := 0
	for _, path := range paths {
		r, closeFn, err := openInput(path)
		if err != nil {
			slog.Error("cannot open input", "path", path, "err", err)
			code = 1
			continue
		}

		stats, err := pipeline.Run(ctx, r, dec, workers, current)
		closeFn()
		slog.Info("input drained",
			"path", path,
			"lines", stats.Lines,
			"invalid", stats.Invalid,
			"delivered", stats.Delivered,
			"filtered_out", stats.Filtered,
			"failed", stats.Failed,
		)
		if err != nil {
			if ctx.Err() != nil {
				return code
			}
			slog.Error("input aborted", "path", path, "err", err)
			code = 1
		}
	}
	return code
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
