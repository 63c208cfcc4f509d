package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prisminsights/prism/monitor/internal/api"
	"github.com/prisminsights/prism/monitor/internal/auth"
	"github.com/prisminsights/prism/monitor/internal/config"
	"github.com/prisminsights/prism/monitor/internal/datasource"
	"github.com/prisminsights/prism/monitor/internal/grpchealth"
	"github.com/prisminsights/prism/monitor/internal/inbox"
	"github.com/prisminsights/prism/monitor/internal/metrics"
	"github.com/prisminsights/prism/monitor/internal/monitor"
	"github.com/prisminsights/prism/monitor/internal/security"
	"github.com/prisminsights/prism/monitor/internal/webhook"
	"github.com/prisminsights/prism/monitor/internal/ws"
	"github.com/prisminsights/prism/pkg/types"
)

const (
	certCheckTTL    = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	logLevel := flag.String("log-level", "", "override log.level (debug|info|warn|error)")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("prism-monitor starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		level.Set(config.LogConfig{Level: *logLevel}.SlogLevel())
	} else {
		level.Set(cfg.Log.SlogLevel())
	}

	slog.Info("config loaded",
		"data_source", cfg.DataSource.BaseURL,
		"layout", cfg.DataSource.Layout,
		"poll_interval", cfg.Monitor.PollInterval,
		"http_port", cfg.HTTP.Port,
		"grpc_port", cfg.GRPC.Port,
		"webhooks", len(cfg.Webhooks),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := metrics.NewRegistry()

	// Inbox: every new alert fans out to webhooks and WebSocket clients.
	store := inbox.New(cfg.Inbox.MaxAlerts)
	reg.GaugeFunc("prism_inbox_alerts", "Alerts currently held in the inbox.",
		func() float64 { return float64(store.Count()) })
	reg.GaugeFunc("prism_inbox_unread_alerts", "Unread alerts in the inbox.",
		func() float64 { return float64(store.UnreadCount()) })

	deliverer := webhook.New(cfg.Webhooks)
	store.Subscribe(deliverer.Notify)

	hub := ws.New(store, cfg.HTTP.BroadcastInterval)
	store.Subscribe(hub.Notify)
	go hub.Run(ctx)
	reg.GaugeFunc("prism_ws_clients", "Connected WebSocket clients.",
		func() float64 { return float64(hub.Count()) })

	store.Subscribe(func(a types.Alert) {
		slog.Info("alert raised",
			"id", a.ID,
			"type", a.Kind,
			"severity", a.Severity,
			"title", a.Title,
			"unread", store.UnreadCount(),
		)
	})

	src := datasource.New(cfg.DataSource)
	mon := monitor.New(src, store,
		monitor.WithRecorder(metrics.NewMonitor(reg)),
		monitor.WithCollections(collections(cfg.Monitor.Collections)...),
	)
	if err := mon.Start(cfg.Monitor.PollInterval); err != nil {
		slog.Error("failed to start monitor", "err", err)
		os.Exit(1)
	}

	certs := security.NewCache(cfg.DataSource, certCheckTTL)

	rl := &reloader{
		current:     cfg,
		mon:         mon,
		hooks:       deliverer,
		level:       &level,
		pinnedLevel: *logLevel != "",
	}
	go func() {
		if err := config.Watch(ctx, *configPath, rl.apply); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Optional gRPC health service for orchestrator probes.
	var grpcStop func()
	if cfg.GRPC.Port != 0 {
		reporter := grpchealth.NewReporter(mon.Status)
		go reporter.Run(ctx, cfg.Monitor.PollInterval)

		grpcSrv := grpchealth.NewServer(cfg.GRPC, reporter)
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			slog.Error("failed to listen on gRPC port", "port", cfg.GRPC.Port, "err", err)
			os.Exit(1)
		}
		go func() {
			slog.Info("gRPC health service listening", "port", cfg.GRPC.Port)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
		grpcStop = grpcSrv.GracefulStop
	}

	// REST API, WebSocket stream and metrics share HTTPPort.
	apiHandler := auth.Middleware(
		cfg.HTTP.Auth.Mode,
		cfg.HTTP.Auth.EffectiveHeader(),
		cfg.HTTP.Auth.Key(),
		api.New(store, mon, certs),
	)
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/ws/alerts", hub)
	httpMux.Handle("/metrics", reg.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTP.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("prism-monitor shutting down")

	mon.Stop()
	if grpcStop != nil {
		grpcStop()
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	deliverer.Wait()
}

// collections converts the validated config names to types.Collection.
func collections(names []string) []types.Collection {
	out := make([]types.Collection, 0, len(names))
	for _, n := range names {
		out = append(out, types.Collection(n))
	}
	return out
}
