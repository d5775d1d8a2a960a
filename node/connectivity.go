package node

import (
	"context"
	"time"

	"github.com/rabia-project/rabia/logger"
	"github.com/rabia-project/rabia/network"
	"github.com/rabia-project/rabia/types"
)

// Ping is the connectivity heartbeat carried over the cluster network.
// The protocol spec leaves wire-level liveness detection out of scope
// (spec.md §1); a node still needs some signal to drive topology.Manager's
// PeerConnected/PeerDisconnected calls, so this package supplies the
// simplest one the transport supports: a periodic broadcast plus a
// missed-deadline sweep, the same shape as the teacher's own libp2p
// connectivity notifiee but driven over network.ClusterNetwork instead of
// a libp2p host's own connection events.
type Ping struct {
	SenderId types.NodeId
}

// MessageKind implements network.Wired.
func (Ping) MessageKind() string { return "Ping" }

// RegisterWireTypes registers Ping with codec, for real (non-simnet)
// transports that need to gob-encode it.
func RegisterWireTypes(codec *network.GobCodec) {
	codec.Register(Ping{})
}

// missedPingsBeforeDisconnect is the number of missed ping intervals after which a peer is
// considered disconnected.
const missedPingsBeforeDisconnect = 3

func (n *Node) handlePing(msg Ping) {
	n.topo.PeerConnected(msg.SenderId)
	n.lastSeen.Store(msg.SenderId, time.Now())
}

// pingLoop periodically broadcasts a liveness heartbeat and sweeps peers
// that have gone quiet for missedPingsBeforeDisconnect intervals.
func (n *Node) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.conf.Transport.Broadcast(ctx, Ping{SenderId: n.self}); err != nil {
				n.log.Warn("ping broadcast failed", logger.Error(err))
			}
			n.sweepStalePeers(interval)
		}
	}
}

func (n *Node) sweepStalePeers(interval time.Duration) {
	deadline := time.Now().Add(-interval * missedPingsBeforeDisconnect)
	for _, id := range n.topo.Connected() {
		if id == n.self {
			continue
		}
		last, ok := n.lastSeen.Load(id)
		if !ok {
			continue
		}
		if last.(time.Time).Before(deadline) {
			n.topo.PeerDisconnected(id)
		}
	}
}
