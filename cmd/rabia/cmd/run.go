package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rabia-project/rabia/consensus"
	"github.com/rabia-project/rabia/internal/debug"
	"github.com/rabia-project/rabia/internal/testutils/kvstore"
	"github.com/rabia-project/rabia/logger"
	"github.com/rabia-project/rabia/network"
	"github.com/rabia-project/rabia/network/tcp"
	"github.com/rabia-project/rabia/node"
	"github.com/rabia-project/rabia/observability"
	"github.com/rabia-project/rabia/persistence"
	"github.com/rabia-project/rabia/rpc"
	"github.com/rabia-project/rabia/topology"
)

type runFlags struct {
	topologyFile string
	dataDir      string
	listenAddr   string
	rpcAddr      string
	logLevel     string
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Rabia replica against a topology file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.topologyFile, "topology", "t", "cluster.yaml", "path to the topology file")
	cmd.Flags().StringVarP(&f.dataDir, "data", "d", ".", "directory for this replica's persistent state")
	cmd.Flags().StringVar(&f.listenAddr, "listen", "", "override the listen address (default: derived from the topology file)")
	cmd.Flags().StringVar(&f.rpcAddr, "rpc", "127.0.0.1:8088", "address for the /metrics and /status HTTP endpoints")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}

func runNode(ctx context.Context, f *runFlags) error {
	cfg, err := topology.LoadConfig(f.topologyFile)
	if err != nil {
		return fmt.Errorf("loading topology: %w", err)
	}

	level := parseLogLevel(f.logLevel)
	log := logger.New(level)
	registry := prometheus.NewRegistry()
	obs, err := observability.NewFactory(log, registry)
	if err != nil {
		return fmt.Errorf("building observability: %w", err)
	}
	defer func() {
		if err := obs.Shutdown(); err != nil {
			log.Warn("observability shutdown failed", logger.Error(err))
		}
	}()

	addrs, err := tcp.AddrsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("deriving peer addresses: %w", err)
	}
	codec := network.NewGobCodec()
	consensus.RegisterWireTypes(codec)
	node.RegisterWireTypes(codec)

	transport := tcp.New(cfg.Self, addrs, codec, log)
	listenAddr := f.listenAddr
	if listenAddr == "" {
		listenAddr = addrs[cfg.Self]
	}
	if err := transport.Listen(ctx, listenAddr); err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}

	store, err := persistence.Open(filepath.Join(f.dataDir, "state.db"))
	if err != nil {
		return fmt.Errorf("opening persistent store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("closing persistent store failed", logger.Error(err))
		}
	}()

	n, err := node.New(node.Conf{
		Topology:     cfg,
		Transport:    transport,
		StateMachine: kvstore.New(),
		Persistence:  store,
		Obs:          obs,
	})
	if err != nil {
		return fmt.Errorf("constructing node: %w", err)
	}

	log.Info(fmt.Sprintf("starting rabia replica: build=%s", debug.ReadBuildInfo()), logger.NodeID(string(cfg.Self)), logger.Component("cmd"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Run(ctx) })
	g.Go(func() error {
		srv := rpc.NewServer(f.rpcAddr, registry, n)
		return srv.Run(ctx)
	})

	<-ctx.Done()
	n.Stop()
	return g.Wait()
}

func parseLogLevel(s string) slog.Level {
	switch s {
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
