package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/raftd/pkg/adminhttp"
	"github.com/cuemby/raftd/pkg/config"
	"github.com/cuemby/raftd/pkg/control"
	"github.com/cuemby/raftd/pkg/engine"
	"github.com/cuemby/raftd/pkg/kv"
	"github.com/cuemby/raftd/pkg/log"
	"github.com/cuemby/raftd/pkg/metrics"
	"github.com/cuemby/raftd/pkg/queue"
	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/cuemby/raftd/pkg/storage"
	"github.com/cuemby/raftd/pkg/transport"
	"github.com/cuemby/raftd/pkg/worker"
	"github.com/spf13/cobra"
)

var configPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this node, joining or forming the cluster described in its config file",
	RunE:  runNode,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "raftd.yaml", "Path to the node's configuration file")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	selfID := raftpb.NodeId(cfg.NodeID)

	entries, err := config.ParseInitialCluster(cfg.InitialCluster)
	if err != nil {
		store.Close()
		return fmt.Errorf("parse initial_cluster: %w", err)
	}

	initialConfig := raftpb.Configuration{Nodes: make(map[raftpb.NodeId]raftpb.Endpoint, len(entries))}
	var peers []transport.PeerConfig
	for _, e := range entries {
		id := raftpb.NodeId(e.ID)
		ep := raftpb.Endpoint{Host: e.Host, Port: e.Port}
		initialConfig.Nodes[id] = ep
		if id != selfID {
			peers = append(peers, transport.PeerConfig{ID: id, Endpoint: ep})
		}
	}

	sm := kv.New()
	engineCfg := engine.Config{
		ID:             selfID,
		ElectionTicks:  cfg.ElectionTimeoutMS / cfg.TickIntervalMS,
		HeartbeatTicks: cfg.HeartbeatIntervalMS / cfg.TickIntervalMS,
		Logger:         log.Logger,
	}

	eng, err := worker.Recover(engineCfg, store, initialConfig, sm, log.Logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("recover engine state: %w", err)
	}

	tr, err := transport.New(selfID, cfg.ClusterName, cfg.ListenEndpoint, peers, log.Logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("start transport: %w", err)
	}

	q := queue.New(queue.DefaultCapacity)
	pub := queue.NewPublished()

	w := worker.New(eng, store, tr, q, pub, sm, worker.Config{
		TickInterval:      time.Duration(cfg.TickIntervalMS) * time.Millisecond,
		SnapshotThreshold: cfg.SnapshotThreshold,
		Logger:            log.Logger,
	})
	w.Start()
	defer w.Stop()

	ctrl := control.New(q, pub, sm)

	admin := adminhttp.New(cfg.AdminAddr, ctrl, log.Logger)
	admin.Start()

	metrics.RegisterComponent("engine", true, "recovered")
	metrics.RegisterComponent("storage", true, "opened")
	metrics.RegisterComponent("transport", true, "listening")
	metrics.RegisterComponent("worker", true, "running")

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/healthz", metrics.HealthHandler())
		mux.Handle("/readyz", metrics.ReadyHandler())
		mux.Handle("/livez", metrics.LivenessHandler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("metrics server stopped unexpectedly")
			}
		}()
	}

	log.Logger.Info().
		Uint64("node_id", cfg.NodeID).
		Str("listen", cfg.ListenEndpoint).
		Str("admin_addr", cfg.AdminAddr).
		Msg("raftd node started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Logger.Info().Msg("shutting down")
	metrics.UpdateComponent("worker", false, "shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := admin.Stop(ctx); err != nil {
		log.Logger.Error().Err(err).Msg("admin server shutdown error")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}

	log.Logger.Info().Msg("shutdown complete")
	return nil
}
