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
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/mrhavens/becomingone/mesh/internal/alerts"
	"github.com/mrhavens/becomingone/mesh/internal/api"
	"github.com/mrhavens/becomingone/mesh/internal/auth"
	"github.com/mrhavens/becomingone/mesh/internal/config"
	"github.com/mrhavens/becomingone/mesh/internal/receiver"
	"github.com/mrhavens/becomingone/mesh/internal/store"
	"github.com/mrhavens/becomingone/mesh/internal/ws"
	"github.com/mrhavens/becomingone/pkg/wire"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level})))

	slog.Info("meshd starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	mc := cfg.Mesh
	level.Set(parseLevel(mc.LogLevel))

	slog.Info("config loaded",
		"grpc_port", mc.GRPCPort,
		"http_port", mc.HTTPPort,
		"auth_mode", mc.Auth.Mode,
		"snapshot_ttl", mc.Snapshot.TTL,
		"coherence_threshold", mc.CoherenceThreshold,
		"alert_rules", len(mc.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			level.Set(parseLevel(next.Mesh.LogLevel))
			slog.Info("config reloaded", "log_level", next.Mesh.LogLevel)
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	st := store.New(mc.Snapshot.TTL)
	go st.Run(ctx)

	alertEngine, err := alerts.New(mc.Alerts)
	if err != nil {
		slog.Error("failed to build alert rules", "err", err)
		os.Exit(1)
	}

	var grpcOpts []grpc.ServerOption
	switch mc.Auth.Mode {
	case "mtls":
		creds, err := auth.ServerCredentials(mc.Auth.CertFile, mc.Auth.KeyFile, mc.Auth.ClientCAFile)
		if err != nil {
			slog.Error("failed to load TLS credentials", "err", err)
			os.Exit(1)
		}
		grpcOpts = append(grpcOpts, grpc.Creds(creds))
	default:
		grpcOpts = append(grpcOpts, grpc.UnaryInterceptor(auth.APIKeyInterceptor(
			mc.Auth.Mode, mc.Auth.EffectiveHeader(), mc.Auth.Key(),
		)))
	}
	grpcSrv := grpc.NewServer(grpcOpts...)
	rec := receiver.New(st, alertEngine, mc.CoherenceThreshold)
	wire.RegisterMeshServer(grpcSrv, rec)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", mc.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", mc.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC receiver listening", "port", mc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	hub := ws.New(st, mc.CoherenceThreshold, mc.BroadcastInterval)
	go hub.Run(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", auth.Middleware(mc.Auth.Mode, mc.Auth.EffectiveHeader(), mc.Auth.Key(),
		api.New(st, alertEngine, mc.CoherenceThreshold)))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", newMetrics(rec, st, alertEngine, hub).Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", mc.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", mc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("meshd shutting down")
	grpcSrv.GracefulStop()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
