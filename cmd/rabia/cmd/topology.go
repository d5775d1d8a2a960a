package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rabia-project/rabia/topology"
	"github.com/rabia-project/rabia/types"
)

func newTopologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Generate or inspect a cluster topology file",
	}
	cmd.AddCommand(newTopologyGenerateCmd())
	cmd.AddCommand(newTopologyShowCmd())
	return cmd
}

type topologyGenerateFlags struct {
	out      string
	nodes    []string
	basePort int
	self     string
}

func newTopologyGenerateCmd() *cobra.Command {
	f := &topologyGenerateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a cluster.yaml listing every core node's id and address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopologyGenerate(f)
		},
	}
	cmd.Flags().StringVarP(&f.out, "out", "o", "cluster.yaml", "path to write the topology file to")
	cmd.Flags().StringSliceVarP(&f.nodes, "node", "n", nil, "node id, repeatable (e.g. -n n1 -n n2 -n n3)")
	cmd.Flags().IntVar(&f.basePort, "base-port", 7000, "first TCP port assigned, incrementing per node")
	cmd.Flags().StringVar(&f.self, "self", "", "which of --node this file's self should be (default: first one)")
	return cmd
}

func runTopologyGenerate(f *topologyGenerateFlags) error {
	if len(f.nodes) < 3 {
		return fmt.Errorf("at least 3 nodes are required for a crash-fault-tolerant cluster, got %d", len(f.nodes))
	}
	self := f.self
	if self == "" {
		self = f.nodes[0]
	}

	cfg := topology.Config{Self: types.NodeId(self)}
	for i, id := range f.nodes {
		cfg.CoreNodes = append(cfg.CoreNodes, topology.CoreNode{
			ID:      types.NodeId(id),
			Address: fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", f.basePort+i),
		})
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("generated topology is invalid: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding topology: %w", err)
	}
	if err := os.WriteFile(f.out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", f.out, err)
	}
	fmt.Printf("wrote %s with %d core nodes\n", f.out, len(cfg.CoreNodes))
	return nil
}

func newTopologyShowCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a topology file's derived consensus thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := topology.LoadConfig(path)
			if err != nil {
				return err
			}
			info, err := cfg.TopologyInfo()
			if err != nil {
				return err
			}
			fmt.Printf("self:           %s\n", cfg.Self)
			fmt.Printf("cluster size:   %d\n", info.ClusterSize)
			fmt.Printf("quorum:         %d\n", info.Quorum)
			fmt.Printf("f+1:            %d\n", info.FPlusOne)
			fmt.Printf("super-majority: %d\n", info.SuperMajority)
			for _, n := range cfg.CoreNodes {
				fmt.Printf("  - %s  %s\n", n.ID, n.Address)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "topology", "t", "cluster.yaml", "path to the topology file")
	return cmd
}
