// Package simnet is an in-memory ClusterNetwork used by tests and
// simulations, grounded on the teacher's internal/testutils/network
// MockNet: a shared bus holding one inbox per node, with links that can be
// cut to reproduce the quorum-loss and partition scenarios without any real
// sockets.
package simnet

import (
	"context"
	"sync"

	"github.com/rabia-project/rabia/network"
	"github.com/rabia-project/rabia/types"
)

// Bus is the shared medium every Peer in a simulated cluster sends
// through. It is not itself a ClusterNetwork; each node gets its own
// *Peer view obtained via NewPeer.
type Bus struct {
	mu    sync.Mutex
	boxes map[types.NodeId]*Peer
	// cut[a][b] == true means messages between a and b are dropped in both
	// directions: deliver checks the entry in either order, and Cut/Heal
	// always set or clear both.
	cut map[types.NodeId]map[types.NodeId]bool
}

// NewBus returns an empty bus with no registered peers and no cut links.
func NewBus() *Bus {
	return &Bus{
		boxes: make(map[types.NodeId]*Peer),
		cut:   make(map[types.NodeId]map[types.NodeId]bool),
	}
}

// Peer is one node's handle onto the Bus: a network.ClusterNetwork
// implementation plus an inbox the owning node drains.
type Peer struct {
	bus    *Bus
	self   types.NodeId
	inbox  chan Delivery
	closed chan struct{}

	mu        sync.Mutex
	connected network.ConnectedFunc
}

// Delivery is one message arriving at a Peer's inbox.
type Delivery struct {
	From types.NodeId
	Msg  network.Wired
}

// NewPeer registers id on the bus and returns its network handle. connected
// reports the set of peer ids Broadcast should fan out to; pass a
// topology.Manager's Connected method (minus self) in production, or a
// fixed slice in tests.
func NewPeer(bus *Bus, id types.NodeId, connected network.ConnectedFunc, inboxSize int) *Peer {
	p := &Peer{
		bus:       bus,
		self:      id,
		inbox:     make(chan Delivery, inboxSize),
		closed:    make(chan struct{}),
		connected: connected,
	}
	bus.mu.Lock()
	bus.boxes[id] = p
	bus.mu.Unlock()
	return p
}

// Inbox exposes the channel of messages addressed to this peer, drained by
// the node's receive loop.
func (p *Peer) Inbox() <-chan Delivery { return p.inbox }

// Send implements network.ClusterNetwork. Delivery is best-effort: a full
// inbox, a cut link, or an unregistered target all silently drop the
// message, matching real-network semantics (§4.3).
func (p *Peer) Send(ctx context.Context, target types.NodeId, msg network.Wired) error {
	p.bus.deliver(p.self, target, msg)
	return nil
}

// Broadcast implements network.ClusterNetwork, fanning out to every id
// reported by the connected function, self excluded.
func (p *Peer) Broadcast(ctx context.Context, msg network.Wired) error {
	for _, id := range p.connected() {
		if id == p.self {
			continue
		}
		p.bus.deliver(p.self, id, msg)
	}
	return nil
}

func (b *Bus) deliver(from, to types.NodeId, msg network.Wired) {
	b.mu.Lock()
	if b.cut[from][to] || b.cut[to][from] {
		b.mu.Unlock()
		return
	}
	target, ok := b.boxes[to]
	b.mu.Unlock()
	if !ok {
		return
	}
	select {
	case target.inbox <- Delivery{From: from, Msg: msg}:
	default:
		// inbox full: drop, the same best-effort contract a real socket gives.
	}
}

// Cut severs the link between a and b in both directions, simulating a
// network partition between those two nodes.
func (b *Bus) Cut(a, b2 types.NodeId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureCutLocked(a)[b2] = true
	b.ensureCutLocked(b2)[a] = true
}

// Heal restores a previously Cut link between a and b.
func (b *Bus) Heal(a, b2 types.NodeId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ensureCutLocked(a), b2)
	delete(b.ensureCutLocked(b2), a)
}

func (b *Bus) ensureCutLocked(id types.NodeId) map[types.NodeId]bool {
	m, ok := b.cut[id]
	if !ok {
		m = make(map[types.NodeId]bool)
		b.cut[id] = m
	}
	return m
}
