package node_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/consensus"
	"github.com/rabia-project/rabia/internal/testutils/kvstore"
	"github.com/rabia-project/rabia/network"
	"github.com/rabia-project/rabia/network/simnet"
	"github.com/rabia-project/rabia/node"
	"github.com/rabia-project/rabia/topology"
	"github.com/rabia-project/rabia/types"
)

// simnetTransport adapts simnet.Peer (whose Inbox yields simnet.Delivery)
// to node.Transport (which wants a bare network.Wired channel), the same
// gap network/tcp.Transport closes for a real socket.
type simnetTransport struct {
	*simnet.Peer
	out chan network.Wired
}

func newSimnetTransport(p *simnet.Peer) *simnetTransport {
	t := &simnetTransport{Peer: p, out: make(chan network.Wired, 256)}
	go func() {
		for d := range p.Inbox() {
			t.out <- d.Msg
		}
	}()
	return t
}

func (t *simnetTransport) Inbox() <-chan network.Wired { return t.out }

func cfgFor(self types.NodeId, ids []types.NodeId, ports map[types.NodeId]int) *topology.Config {
	cfg := &topology.Config{
		Self:         self,
		PingInterval: 15 * time.Millisecond,
	}
	for _, id := range ids {
		cfg.CoreNodes = append(cfg.CoreNodes, topology.CoreNode{
			ID:      id,
			Address: fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", ports[id]),
		})
	}
	return cfg
}

type cluster struct {
	nodes map[types.NodeId]*node.Node
	kv    map[types.NodeId]*kvstore.Store
	bus   *simnet.Bus
	stop  func()
}

func newCluster(t *testing.T, ids []types.NodeId) *cluster {
	t.Helper()
	bus := simnet.NewBus()
	ports := make(map[types.NodeId]int)
	for i, id := range ids {
		ports[id] = 5000 + i
	}

	c := &cluster{nodes: make(map[types.NodeId]*node.Node), kv: make(map[types.NodeId]*kvstore.Store), bus: bus}
	for _, id := range ids {
		kv := kvstore.New()
		c.kv[id] = kv

		cfg := cfgFor(id, ids, ports)

		// simnet.Peer's connected func plays the role network/tcp.Transport
		// fills by fanning Broadcast out to every configured address: the
		// full known member list minus self, not topology.Manager's
		// confirmed-reachable view, since that view only grows once Ping
		// traffic (itself a Broadcast) starts arriving.
		self := id
		allOthers := make([]types.NodeId, 0, len(ids)-1)
		for _, other := range ids {
			if other != self {
				allOthers = append(allOthers, other)
			}
		}
		connected := func() []types.NodeId { return allOthers }
		transport := newSimnetTransport(simnet.NewPeer(bus, id, connected, 256))

		n, err := node.New(node.Conf{
			Topology:     cfg,
			Transport:    transport,
			StateMachine: kv,
			EngineOpts:   []consensus.Option{consensus.WithVoteTimeout(15 * time.Millisecond), consensus.WithCleanupInterval(time.Hour)},
		})
		require.NoError(t, err)
		c.nodes[id] = n
	}

	ctx, cancel := context.WithCancel(context.Background())
	for _, n := range c.nodes {
		go n.Run(ctx)
	}
	c.stop = func() {
		for _, n := range c.nodes {
			n.Stop()
		}
		cancel()
	}
	return c
}

// The simnet Peers broadcast to a fixed member list, but each Node's
// topology.Manager only learns of its peers through Ping exchange. Tests use
// waitConnected to wait until every node has reached quorum (engine ACTIVE)
// before exercising Apply.
func waitConnected(t *testing.T, c *cluster) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, n := range c.nodes {
			if n.Mode() != consensus.Active {
				return false
			}
		}
		return true
	}, 3*time.Second, 5*time.Millisecond)
}

func ids(n int) []types.NodeId {
	out := make([]types.NodeId, n)
	for i := range out {
		out[i] = types.NodeId(fmt.Sprintf("n%d", i+1))
	}
	return out
}

func TestNode_threeNodeApplyReachesAllStateMachines(t *testing.T) {
	nodeIds := ids(3)
	c := newCluster(t, nodeIds)
	defer c.stop()
	waitConnected(t, c)

	leader := c.nodes[nodeIds[0]]
	_, err := leader.Apply(context.Background(), [][]byte{kvstore.Encode(kvstore.Command{Op: "PUT", Key: "x", Value: "1"})})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, kv := range c.kv {
			if v, ok := kv.Get("x"); !ok || v != "1" {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond, "all replicas should converge on the applied command")
}

func TestNode_quorumLossBlocksNewApplies(t *testing.T) {
	nodeIds := ids(3)
	c := newCluster(t, nodeIds)
	defer c.stop()
	waitConnected(t, c)

	c.bus.Cut(nodeIds[0], nodeIds[1])
	c.bus.Cut(nodeIds[0], nodeIds[2])

	require.Eventually(t, func() bool {
		return c.nodes[nodeIds[0]].Mode() == consensus.Dormant
	}, 2*time.Second, 5*time.Millisecond, "isolated node should fall back to dormant once quorum is lost")

	_, err := c.nodes[nodeIds[0]].Apply(context.Background(), [][]byte{kvstore.Encode(kvstore.Command{Op: "PUT", Key: "y", Value: "2"})})
	require.ErrorIs(t, err, consensus.ErrDormant)
}
