package topology

import (
	"fmt"
	"os"
	"time"

	"github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"

	"github.com/rabia-project/rabia/types"
)

// CoreNode is one statically configured cluster member: its protocol
// identity and its dial address (§6.3: "coreNodes: ordered list of
// (NodeId, address)").
type CoreNode struct {
	ID      types.NodeId `yaml:"id"`
	Address string       `yaml:"address"`
}

// Multiaddr parses the node's configured address, the way the teacher's
// p2p layer accepts libp2p multiaddrs for bootstrap/announce addresses.
func (c CoreNode) Multiaddr() (multiaddr.Multiaddr, error) {
	return multiaddr.NewMultiaddr(c.Address)
}

// Config is the recognized topology configuration of §6.3: self, the fixed
// set of core nodes, and the topology layer's timing parameters.
type Config struct {
	Self                   types.NodeId `yaml:"self"`
	CoreNodes              []CoreNode   `yaml:"coreNodes"`
	PingInterval           time.Duration `yaml:"pingInterval"`
	ReconciliationInterval time.Duration `yaml:"reconciliationInterval"`
}

// DefaultPingInterval and DefaultReconciliationInterval are used when a
// loaded Config leaves the corresponding field at its zero value.
const (
	DefaultPingInterval           = 2 * time.Second
	DefaultReconciliationInterval = 10 * time.Second
)

// LoadConfig reads and validates a YAML topology file (cluster.yaml),
// applying defaults for any omitted interval.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing topology config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.ReconciliationInterval == 0 {
		c.ReconciliationInterval = DefaultReconciliationInterval
	}
}

// Validate checks the config is internally consistent: self is non-empty,
// core node ids are unique, self appears among them, and every address
// parses as a multiaddr.
func (c *Config) Validate() error {
	if c.Self == "" {
		return fmt.Errorf("self node id must not be empty")
	}
	if len(c.CoreNodes) == 0 {
		return fmt.Errorf("coreNodes must not be empty")
	}
	seen := make(map[types.NodeId]struct{}, len(c.CoreNodes))
	selfPresent := false
	for _, n := range c.CoreNodes {
		if n.ID == "" {
			return fmt.Errorf("core node entry missing id")
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate core node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
		if n.ID == c.Self {
			selfPresent = true
		}
		if _, err := n.Multiaddr(); err != nil {
			return fmt.Errorf("core node %q has invalid address %q: %w", n.ID, n.Address, err)
		}
	}
	if !selfPresent {
		return fmt.Errorf("self node id %q is not listed in coreNodes", c.Self)
	}
	return nil
}

// ClusterSize returns the fixed number of core nodes.
func (c *Config) ClusterSize() int { return len(c.CoreNodes) }

// NodeIds returns the ascending-sorted list of every core node id.
func (c *Config) NodeIds() []types.NodeId {
	ids := make([]types.NodeId, len(c.CoreNodes))
	for i, n := range c.CoreNodes {
		ids[i] = n.ID
	}
	return types.SortNodeIds(ids)
}

// TopologyInfo derives the fixed TopologyInfo for this config (§3).
func (c *Config) TopologyInfo() (types.TopologyInfo, error) {
	return types.NewTopologyInfo(c.Self, c.ClusterSize())
}
