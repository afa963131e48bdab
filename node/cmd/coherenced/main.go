package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mrhavens/becomingone/node/internal/api"
	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/node/internal/engine"
	"github.com/mrhavens/becomingone/node/internal/memory"
	"github.com/mrhavens/becomingone/node/internal/metrics"
	"github.com/mrhavens/becomingone/node/internal/shipper"
	"github.com/mrhavens/becomingone/node/internal/sink"
	"github.com/mrhavens/becomingone/node/internal/source"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	logLevel := flag.String("log-level", "", "debug | info | warn | error (overrides node.log_level)")
	flag.Parse()

	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level})))

	slog.Info("coherenced starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.Node.LogLevel))
	if *logLevel != "" {
		level.Set(parseLevel(*logLevel))
	}

	node := cfg.Node
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	slog.Info("config loaded",
		"node_id", node.ID,
		"preset", node.Engine.Preset,
		"inputs", len(node.Inputs),
		"storage", node.Storage.Backend,
		"mesh_endpoint", node.Mesh.Endpoint,
		"http_port", node.HTTPPort,
		"tracing", node.Tracing.Exporter,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []engine.Option
	if ex := node.Tracing.Exporter; ex != "" && ex != "none" {
		w, err := traceOutput(node.Tracing)
		if err != nil {
			slog.Error("failed to open trace output", "err", err)
			os.Exit(1)
		}
		defer w.Close()
		tp, err := newTracerProvider(node.Tracing, node.ID, w)
		if err != nil {
			slog.Error("failed to set up tracing", "err", err)
			os.Exit(1)
		}
		defer func() {
			ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			if err := tp.Shutdown(ctx); err != nil {
				slog.Warn("tracer shutdown", "err", err)
			}
		}()
		opts = append(opts, engine.WithTracer(tp.Tracer("coherenced")))
		slog.Info("tracing enabled", "exporter", ex, "sample_ratio", node.Tracing.SampleRatio)
	}
	if node.Storage.Backend == "sqlite" {
		db, err := memory.OpenSQLite(node.Storage.Path)
		if err != nil {
			slog.Error("failed to open storage", "path", node.Storage.Path, "err", err)
			os.Exit(1)
		}
		opts = append(opts, engine.WithBackend(db), engine.WithRecorder(db))
	}

	eng, err := engine.New(node.Engine, opts...)
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		os.Exit(1)
	}
	defer eng.Close()

	m := metrics.New()
	m.Attach(eng)

	ingest := newIngestRouter()
	for _, in := range node.Inputs {
		switch in.Type {
		case "prometheus":
			p, err := source.NewPrometheus(in)
			if err != nil {
				slog.Error("skipping input, could not build it", "input", in.ID, "err", err)
				continue
			}
			eng.AddInput(p)
		case "http":
			h, err := source.NewHTTP(in, node.Engine.QueueSize)
			if err != nil {
				slog.Error("skipping input, could not build it", "input", in.ID, "err", err)
				continue
			}
			eng.AddInput(h)
			ingest.add(in.ID, h)
		case "replay":
			r, err := source.NewReplay(in)
			if err != nil {
				slog.Error("skipping input, could not build it", "input", in.ID, "err", err)
				continue
			}
			eng.AddInput(r)
		}
		slog.Info("registered input", "id", in.ID, "type", in.Type, "encoder", in.Encoder)
	}
	if len(node.Inputs) == 0 {
		slog.Warn("no inputs configured, engine will idle")
	}

	if node.Outputs.Log.Enabled {
		eng.AddOutput(sink.NewLog(slog.Default()))
	}
	if node.Outputs.Speech.Enabled {
		sp := sink.NewSpeech(node.Outputs.Speech, nil)
		eng.AddOutput(sp)
		go sp.Run(ctx)
	}

	var ship *shipper.Shipper
	if node.Mesh.Endpoint != "" {
		ship = shipper.New(node.ID, node.Mesh, eng.Witness().SelfModel)
		eng.AddOutput(ship)
		go ship.Run(ctx)
	}

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			if *logLevel == "" {
				level.Set(parseLevel(updated.Node.LogLevel))
			}
			slog.Info("config hot-reloaded", "log_level", updated.Node.LogLevel)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	apiOpts := api.Options{NodeID: node.ID, Engine: eng, Metrics: m.Handler()}
	if ingest.len() > 0 {
		apiOpts.Ingest = ingest
	}
	if ship != nil {
		apiOpts.Mesh = ship.Mesh
	}
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", node.HTTPPort),
		Handler:           api.New(apiOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", node.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine stopped", "err", err)
	}

	slog.Info("coherenced shutting down",
		"collapse_events", eng.CollapseEvents(),
		"dropped_samples", eng.Dropped(),
	)
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	fmt.Fprint(os.Stderr, eng.Witness().Report())
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
