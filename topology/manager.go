// Package topology tracks the set of cluster peers currently connected to
// this node and publishes edge-triggered notifications when that set (or
// the derived quorum state) changes, per spec.md §4.2.
package topology

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/rabia-project/rabia/logger"
	"github.com/rabia-project/rabia/router"
	"github.com/rabia-project/rabia/types"
)

// QuorumState is edge-triggered: ESTABLISHED when the connected-peer count
// (including self) reaches the quorum threshold, DISAPPEARED otherwise.
type QuorumState int

const (
	Disappeared QuorumState = iota
	Established
)

func (s QuorumState) String() string {
	if s == Established {
		return "ESTABLISHED"
	}
	return "DISAPPEARED"
}

// QuorumStateNotification is a Local message published whenever the
// quorum state transitions.
type QuorumStateNotification struct {
	State QuorumState
}

// NodeAdded is a Local message published whenever a peer joins the
// connected set, carrying the full connected topology (self included),
// ascending-sorted.
type NodeAdded struct {
	Added    types.NodeId
	Topology []types.NodeId
}

// NodeRemoved is a Local message published whenever a peer leaves the
// connected set, carrying the full connected topology (self included)
// after removal.
type NodeRemoved struct {
	Removed  types.NodeId
	Topology []types.NodeId
}

// Manager owns the currently-connected-peers view and the TopologyInfo
// derived from the fixed cluster size.
type Manager struct {
	info types.TopologyInfo
	r    *router.Router
	log  *slog.Logger

	mu        sync.Mutex
	connected map[types.NodeId]struct{} // always includes Self
	lastState QuorumState
}

// NewManager constructs a Manager. The manager starts with only Self
// connected, so quorum state begins DISAPPEARED unless a 1-node cluster.
func NewManager(info types.TopologyInfo, r *router.Router, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		info:      info,
		r:         r,
		log:       log,
		connected: map[types.NodeId]struct{}{info.Self: {}},
		lastState: Disappeared,
	}
	m.lastState = m.computeState()
	return m
}

// Info returns the fixed TopologyInfo this manager was built with.
func (m *Manager) Info() types.TopologyInfo { return m.info }

// Connected returns the ascending-sorted list of currently connected peers
// (self included).
func (m *Manager) Connected() []types.NodeId {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() []types.NodeId {
	out := make([]types.NodeId, 0, len(m.connected))
	for id := range m.connected {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// QuorumState reports the last-published quorum state.
func (m *Manager) QuorumState() QuorumState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastState
}

func (m *Manager) computeState() QuorumState {
	if len(m.connected) >= m.info.Quorum {
		return Established
	}
	return Disappeared
}

// PeerConnected records a peer joining the connected set. A repeat call for
// an already-connected peer is a no-op.
func (m *Manager) PeerConnected(id types.NodeId) {
	m.mu.Lock()
	if _, already := m.connected[id]; already {
		m.mu.Unlock()
		return
	}
	m.connected[id] = struct{}{}
	newState := m.computeState()
	crossedUp := newState == Established && m.lastState == Disappeared
	m.lastState = newState
	topo := m.snapshotLocked()
	m.mu.Unlock()

	// Ordering guarantee (spec.md §4.2): ESTABLISHED is published after the
	// NodeAdded that crosses the threshold.
	m.log.Info("peer connected", logger.NodeID(string(id)), logger.Component("topology"))
	m.r.Route(NodeAdded{Added: id, Topology: topo})
	if crossedUp {
		m.log.Info("quorum established", logger.Component("topology"))
		m.r.Route(QuorumStateNotification{State: Established})
	}
}

// PeerDisconnected records a peer leaving the connected set. A call for a
// peer that is not connected (or is Self) is a no-op.
func (m *Manager) PeerDisconnected(id types.NodeId) {
	m.mu.Lock()
	if id == m.info.Self {
		m.mu.Unlock()
		return
	}
	if _, present := m.connected[id]; !present {
		m.mu.Unlock()
		return
	}
	newState := m.computeState3(id)
	crossedDown := newState == Disappeared && m.lastState == Established
	// Ordering guarantee: DISAPPEARED must be delivered before the
	// NodeRemoved that takes the count below threshold, so the crossing is
	// previewed here (before mutating state) and routed ahead of NodeRemoved
	// below.
	m.lastState = newState
	delete(m.connected, id)
	topo := m.snapshotLocked()
	m.mu.Unlock()

	if crossedDown {
		m.log.Warn("quorum lost", logger.Component("topology"))
		m.r.Route(QuorumStateNotification{State: Disappeared})
	}
	m.log.Info("peer disconnected", logger.NodeID(string(id)), logger.Component("topology"))
	m.r.Route(NodeRemoved{Removed: id, Topology: topo})
}

// computeState3 previews the quorum state that removing id would produce,
// without mutating the connected set.
func (m *Manager) computeState3(id types.NodeId) QuorumState {
	count := len(m.connected) - 1
	if count >= m.info.Quorum {
		return Established
	}
	return Disappeared
}
