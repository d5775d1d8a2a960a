// Package leader implements the Leader Witness (spec.md §4.5): a pure
// function of the currently connected topology, recomputed whenever the
// connected set changes, publishing LeaderChange whenever the answer
// differs from last time. It has no administrative authority over the
// leaderless Rabia engine; it exists purely so operators and auxiliary
// tooling (e.g. the status HTTP endpoint) have a stable notion of "who to
// ask first".
package leader

import (
	"log/slog"
	"sync"

	"github.com/rabia-project/rabia/events"
	"github.com/rabia-project/rabia/logger"
	"github.com/rabia-project/rabia/router"
	"github.com/rabia-project/rabia/topology"
	"github.com/rabia-project/rabia/types"
)

// Witness recomputes the cluster leader on every topology change.
type Witness struct {
	self types.NodeId
	r    *router.Router
	log  *slog.Logger

	mu      sync.Mutex
	current types.NodeId // zero value means "no leader"
}

// New constructs a Witness and subscribes it to topology notifications.
func New(self types.NodeId, r *router.Router, log *slog.Logger) *Witness {
	if log == nil {
		log = slog.Default()
	}
	w := &Witness{self: self, r: r, log: log}
	router.AddRoute(r, w.onNodeAdded)
	router.AddRoute(r, w.onNodeRemoved)
	router.AddRoute(r, w.onQuorumState)
	return w
}

func (w *Witness) onNodeAdded(ev topology.NodeAdded) { w.recompute(ev.Topology) }
func (w *Witness) onNodeRemoved(ev topology.NodeRemoved) { w.recompute(ev.Topology) }

// onQuorumState clears the leader and publishes LeaderChange{"", false} when
// quorum disappears. ESTABLISHED is ignored, and quorum state does not gate
// onNodeAdded/onNodeRemoved: they recompute and publish the leader whether
// or not quorum currently holds.
func (w *Witness) onQuorumState(ev topology.QuorumStateNotification) {
	if ev.State != topology.Disappeared {
		return
	}
	w.mu.Lock()
	changed := w.current != ""
	w.current = ""
	w.mu.Unlock()
	if changed {
		w.log.Info("leader cleared: quorum disappeared", logger.Component("leader"))
		w.r.Route(events.LeaderChange{Leader: "", IsSelf: false})
	}
}

func (w *Witness) recompute(connectedTopology []types.NodeId) {
	if len(connectedTopology) == 0 {
		return
	}
	sorted := types.SortNodeIds(connectedTopology)
	newLeader := sorted[0]

	w.mu.Lock()
	changed := newLeader != w.current
	w.current = newLeader
	w.mu.Unlock()
	if !changed {
		return
	}
	w.log.Info("leader changed", logger.NodeID(string(newLeader)), logger.Component("leader"))
	w.r.Route(events.LeaderChange{Leader: newLeader, IsSelf: newLeader == w.self})
}

// Current reports the last-computed leader, or "" if none (quorum lost or
// no topology event has arrived yet).
func (w *Witness) Current() types.NodeId {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
