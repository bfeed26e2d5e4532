package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/sdfs/pkg/client"
	"github.com/cuemby/sdfs/pkg/coordinator"
	"github.com/cuemby/sdfs/pkg/dispatch"
	"github.com/cuemby/sdfs/pkg/events"
	"github.com/cuemby/sdfs/pkg/leaderservice"
	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/membership"
	"github.com/cuemby/sdfs/pkg/metrics"
	"github.com/cuemby/sdfs/pkg/storage"
	"github.com/cuemby/sdfs/pkg/storagenode"
	"github.com/cuemby/sdfs/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Join the cluster and run the interactive command loop",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("node-id", "127.0.0.1", "IP address this node advertises to peers")
	serveCmd.Flags().String("bind", "0.0.0.0", "Local address to bind listeners on")
	serveCmd.Flags().String("data-dir", storagenode.DefaultBaseDir, "Local storage root")
	serveCmd.Flags().String("introducer", "", "host:port of an existing member to gossip-join through; empty starts a new cluster")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the /metrics HTTP listener")
	serveCmd.Flags().Int("map-workers", 4, "Max concurrent MAP/REDUCE subprocess executions on this node")
	serveCmd.Flags().String("config", "", "Optional YAML file supplying defaults for the flags above")
}

func runServe(cmd *cobra.Command, args []string) error {
	nodeIP, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	introducer, _ := cmd.Flags().GetString("introducer")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	mapWorkers, _ := cmd.Flags().GetInt("map-workers")

	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		cfg, err := loadClusterConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading cluster config: %w", err)
		}
		if !cmd.Flags().Changed("node-id") && cfg.NodeID != "" {
			nodeIP = cfg.NodeID
		}
		if !cmd.Flags().Changed("bind") && cfg.Bind != "" {
			bindAddr = cfg.Bind
		}
		if !cmd.Flags().Changed("data-dir") && cfg.DataDir != "" {
			dataDir = cfg.DataDir
		}
		if !cmd.Flags().Changed("introducer") && cfg.Introducer != "" {
			introducer = cfg.Introducer
		}
		if !cmd.Flags().Changed("metrics-addr") && cfg.MetricsAddr != "" {
			metricsAddr = cfg.MetricsAddr
		}
		if !cmd.Flags().Changed("map-workers") && cfg.MapWorkers != 0 {
			mapWorkers = cfg.MapWorkers
		}
	}

	logger := log.WithComponent("main")
	self := types.NewNodeID(nodeIP, storagenode.ServicePort, time.Now())
	logger.Info().Str("node", string(self)).Msg("starting sdfsd")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	view := membership.NewView(self)

	snapshot, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening leader snapshot store: %w", err)
	}
	defer snapshot.Close()

	store, err := storagenode.NewFileStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening local file store: %w", err)
	}

	cli := client.New()

	gossiper, err := membership.NewGossiper(view, introducer)
	if err != nil {
		return fmt.Errorf("binding gossip socket: %w", err)
	}
	defer gossiper.Close()
	go gossiper.Run(ctx)

	monitor := membership.NewMonitor(view)
	go monitor.Run(ctx)

	elector, err := membership.NewElector(view, broker)
	if err != nil {
		return fmt.Errorf("binding election socket: %w", err)
	}
	defer elector.Close()
	go elector.Run(ctx)

	replicas := coordinator.NewReplicaTable(snapshot)
	if err := replicas.LoadSnapshot(); err != nil {
		logger.Warn().Err(err).Msg("replica table warm-start failed")
	}
	keyIndex := dispatch.NewKeyIndex(snapshot)
	if err := keyIndex.LoadSnapshot(); err != nil {
		logger.Warn().Err(err).Msg("key index warm-start failed")
	}

	// Forward every removed node to the coordinator, first starting an
	// election when the removed node was the current leader.
	failures := make(chan types.NodeID, cap(monitor.Failures))
	go func() {
		for id := range monitor.Failures {
			if id == elector.Leader() {
				elector.Trigger(ctx)
			}
			failures <- id
		}
	}()

	coord := coordinator.New(view, replicas, broker)
	go coord.Reconcile(ctx, failures, cli.Replicate)

	mapper := dispatch.NewMapDispatcher(view, replicas, keyIndex, cli)
	reducer := dispatch.NewReduceDispatcher(view, replicas, keyIndex, cli)

	mapRunner := storagenode.NewMapRunner(store, cli, mapWorkers)
	reduceRunner := storagenode.NewReduceRunner(store, cli, mapWorkers)
	node := storagenode.NewService(store, mapRunner, reduceRunner, cli)
	if err := node.Listen(fmt.Sprintf("%s:%d", bindAddr, storagenode.ServicePort)); err != nil {
		return fmt.Errorf("binding storage node port: %w", err)
	}
	go func() {
		if err := node.Serve(ctx); err != nil {
			logger.Error().Err(err).Msg("storage node service stopped")
		}
	}()

	leader := leaderservice.New(coord, mapper, reducer, cli)
	leaderAddr := fmt.Sprintf("%s:%d", bindAddr, leaderservice.Port)
	go runLeaderServiceWhenElected(ctx, elector, leader, leaderAddr)

	http.Handle("/metrics", metrics.Handler())
	go func() {
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			logger.Warn().Err(err).Msg("metrics listener stopped")
		}
	}()

	fmt.Printf("sdfsd running as %s (data dir %s)\n", self, dataDir)
	fmt.Println("Type 'leave' to exit, or see spec CLI surface for commands.")

	replDone := make(chan struct{})
	go func() {
		defer close(replDone)
		runREPL(ctx, self, view, elector, store, cli)
	}()

	select {
	case <-ctx.Done():
	case <-replDone:
		cancel()
	}

	logger.Info().Msg("shutting down, purging local storage")
	if err := store.Purge(); err != nil {
		logger.Warn().Err(err).Msg("purge failed")
	}
	return nil
}

// runLeaderServiceWhenElected binds and serves the leader request port
// only while this node holds the bully election, per the standby-leader
// design: a non-leader never answers client PUT/GET traffic. The port is
// re-bound fresh each leadership term since Serve closes its listener on
// term end.
func runLeaderServiceWhenElected(ctx context.Context, elector *membership.Elector, leader *leaderservice.Service, addr string) {
	logger := log.WithComponent("main")
	for {
		select {
		case <-ctx.Done():
			return
		case <-elector.LeaderWakeup:
		}
		if !elector.IsLeader() {
			continue
		}

		if err := leader.Listen(addr); err != nil {
			logger.Error().Err(err).Msg("binding leader request port failed")
			continue
		}

		termCtx, cancelTerm := context.WithCancel(ctx)
		go func() {
			for {
				select {
				case <-termCtx.Done():
					return
				case <-elector.LeaderWakeup:
					if !elector.IsLeader() {
						cancelTerm()
						return
					}
				}
			}
		}()
		_ = leader.Serve(termCtx)
		cancelTerm()
	}
}

func newLineReader() *bufio.Scanner {
	return bufio.NewScanner(os.Stdin)
}
