package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/obsidianstack/logshipper/pkg/types"
	"github.com/obsidianstack/logshipper/server/internal/auth"
	"github.com/obsidianstack/logshipper/server/internal/config"
	"github.com/obsidianstack/logshipper/server/internal/receiver"
	"github.com/obsidianstack/logshipper/server/internal/store"
	"github.com/obsidianstack/logshipper/server/internal/tail"
)

func main() {
	flags := pflag.NewFlagSet("logshipper-sink", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to config file; empty runs on defaults")
	port := flags.IntP("port", "p", 0, "listen port (overrides sink.http_port)")
	debug := flags.Bool("debug", false, "log every accepted push")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("logshipper-sink starting", "config", *configPath)

	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	if *port > 0 {
		cfg.Sink.HTTPPort = *port
	}

	slog.Info("config loaded",
		"http_port", cfg.Sink.HTTPPort,
		"auth_mode", cfg.Sink.Auth.Mode,
		"stream_ttl", cfg.Sink.Streams.TTL,
		"max_entries", cfg.Sink.Streams.MaxEntries,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Stream store with background TTL eviction.
	st := store.New(cfg.Sink.Streams.TTL, cfg.Sink.Streams.MaxEntries)
	go st.Run(ctx)

	// Live tail hub, fed by the receiver after each accepted push.
	hub := tail.New()
	go hub.Run(ctx)

	rcv := receiver.New(st, cfg.Sink.MaxBodyBytes, receiver.WithPublisher(hub))
	protected := auth.APIKey(
		cfg.Sink.Auth.Mode,
		cfg.Sink.Auth.EffectiveHeader(),
		cfg.Sink.Auth.Key(),
		rcv,
	)

	mux := http.NewServeMux()
	mux.Handle(types.PushPath, protected)
	mux.Handle(receiver.StreamsPath, protected)
	mux.Handle(tail.Path, auth.APIKey(
		cfg.Sink.Auth.Mode,
		cfg.Sink.Auth.EffectiveHeader(),
		cfg.Sink.Auth.Key(),
		hub,
	))
	mux.Handle("/ready", rcv)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Sink.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Sink.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("logshipper-sink shutting down", "streams", st.Count(), "tail_clients", hub.Count())
	shutdownCtx, stop := context.WithTimeout(context.Background(), config.DefaultShutdownGrace)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
