// Package node wires every component described in the specification into
// one running replica: topology, network, batch store, the Rabia engine,
// the state machine adapter, the leader witness, and persistence. It plays
// the role the teacher's partition.Node plays for a transaction-system
// validator, but for a Rabia replica instead.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rabia-project/rabia/batchstore"
	"github.com/rabia-project/rabia/consensus"
	"github.com/rabia-project/rabia/leader"
	"github.com/rabia-project/rabia/logger"
	"github.com/rabia-project/rabia/network"
	"github.com/rabia-project/rabia/observability"
	"github.com/rabia-project/rabia/persistence"
	"github.com/rabia-project/rabia/router"
	"github.com/rabia-project/rabia/statemachine"
	"github.com/rabia-project/rabia/topology"
	"github.com/rabia-project/rabia/types"
)

// Transport is what a Node needs from its network layer beyond the
// engine-facing network.ClusterNetwork: an inbox of decoded messages to
// route, since the engine itself never touches raw bytes.
type Transport interface {
	network.ClusterNetwork
	Inbox() <-chan network.Wired
}

// Conf bundles the configuration a Node needs at construction. Functional
// options tune the consensus engine and the state machine adapter.
// Topology, Transport and StateMachine are required; Persistence and Obs
// may be left nil, and New handles their absence.
type Conf struct {
	Topology         *topology.Config
	Transport        Transport
	StateMachine     statemachine.StateMachine
	Persistence      *persistence.Store
	Obs              observability.Observability
	EngineOpts       []consensus.Option
	StateMachineOpts []statemachine.Option
}

// Node is one running Rabia replica.
type Node struct {
	conf    Conf
	self    types.NodeId
	log     *slog.Logger
	r       *router.Router
	topo    *topology.Manager
	store   *batchstore.Store
	engine  *consensus.Engine
	sm      *statemachine.Adapter
	witness *leader.Witness

	lastSeen sync.Map // types.NodeId -> time.Time, last Ping received

	fatalCh chan error

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs a Node from conf. The consensus engine starts DORMANT
// until the topology manager observes quorum; callers must still call
// Run to start background processing.
func New(conf Conf) (*Node, error) {
	if conf.Topology == nil {
		return nil, fmt.Errorf("node: topology config is required")
	}
	if conf.Transport == nil {
		return nil, fmt.Errorf("node: transport is required")
	}
	if conf.StateMachine == nil {
		return nil, fmt.Errorf("node: state machine is required")
	}
	obs := conf.Obs
	if obs == nil {
		obs = observability.NoOp(logger.New(slog.LevelInfo))
	}
	log := obs.Logger()

	info, err := conf.Topology.TopologyInfo()
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}

	r := router.New(log, 256)
	topo := topology.NewManager(info, r, log)
	store := batchstore.New()

	appliedPhase := types.Phase(0)
	if conf.Persistence != nil {
		if reason, poisoned, err := conf.Persistence.Poisoned(); err != nil {
			return nil, fmt.Errorf("node: checking poison marker: %w", err)
		} else if poisoned {
			return nil, fmt.Errorf("node: refusing to start: replica was poisoned by a prior fatal invariant violation: %s", reason)
		}
		if saved, ok, err := conf.Persistence.Load(); err != nil {
			return nil, fmt.Errorf("node: loading persisted state: %w", err)
		} else if ok {
			if err := conf.StateMachine.RestoreSnapshot(saved.Snapshot); err != nil {
				return nil, fmt.Errorf("node: restoring snapshot: %w", err)
			}
			appliedPhase = saved.AppliedPhase
		} else {
			conf.StateMachine.Reset()
		}
	} else {
		conf.StateMachine.Reset()
	}

	sm := statemachine.New(conf.StateMachine, store, r, log, appliedPhase, conf.StateMachineOpts...)

	connected := func() []types.NodeId {
		out := topo.Connected()
		filtered := make([]types.NodeId, 0, len(out))
		for _, id := range out {
			if id != info.Self {
				filtered = append(filtered, id)
			}
		}
		return filtered
	}

	eng := consensus.New(info, conf.Topology.NodeIds(), connected, r, conf.Transport, store, sm, log, conf.EngineOpts...)
	eng.SeedAppliedPhase(appliedPhase)

	witness := leader.New(info.Self, r, log)

	n := &Node{
		conf:    conf,
		self:    info.Self,
		log:     log,
		r:       r,
		topo:    topo,
		store:   store,
		engine:  eng,
		sm:      sm,
		witness: witness,
		fatalCh: make(chan error, 1),
	}
	router.AddRoute(r, n.handlePing)
	r.SetFatalHandler(n.onFatal)
	return n, nil
}

// onFatal handles a router.FatalPanic surfaced by a consensus invariant
// violation (§4.4.6, §7): log it, write a poison marker so a restart
// refuses to resume this replica's state, and surface the failure to Run
// so the host can stop the process instead of limping along.
func (n *Node) onFatal(rec any) {
	err := fmt.Errorf("node: fatal invariant violation: %v", rec)
	n.log.Error("fatal invariant violation, stopping node", logger.Error(err))
	if n.conf.Persistence != nil {
		if perr := n.conf.Persistence.MarkPoisoned(err.Error()); perr != nil {
			n.log.Error("failed to write poison marker", logger.Error(perr))
		}
	}
	select {
	case n.fatalCh <- err:
	default:
	}
}

// Apply submits commands to the engine (host-exposed API, §6.2).
func (n *Node) Apply(ctx context.Context, commands [][]byte) ([][]byte, error) {
	return n.engine.Apply(ctx, commands)
}

// Leader reports the current leader witness's view.
func (n *Node) Leader() types.NodeId { return n.witness.Current() }

// Mode reports the consensus engine's current lifecycle mode.
func (n *Node) Mode() consensus.Mode { return n.engine.Mode() }

// AppliedPhase reports the last phase applied to the state machine.
func (n *Node) AppliedPhase() types.Phase { return n.engine.AppliedPhase() }

// Run starts the router, the engine, the transport's receive pump, and a
// background periodic snapshotter, blocking until ctx is cancelled or a
// supervised goroutine fails.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	group, ctx := errgroup.WithContext(ctx)
	n.group = group

	n.r.Start(ctx, 8)
	n.engine.Start(ctx)
	n.sm.Start(ctx)

	group.Go(func() error {
		n.pumpInbox(ctx)
		return nil
	})

	group.Go(func() error {
		n.pingLoop(ctx, n.conf.Topology.PingInterval)
		return nil
	})

	group.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-n.fatalCh:
			return err
		}
	})

	if n.conf.Persistence != nil {
		group.Go(func() error {
			n.snapshotLoop(ctx)
			return nil
		})
	}

	<-ctx.Done()
	return group.Wait()
}

func (n *Node) pumpInbox(ctx context.Context) {
	inbox := n.conf.Transport.Inbox()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbox:
			n.r.Route(msg)
		}
	}
}

// snapshotLoop captures SavedState every K applied phases, K = PhasesToKeep
// / 2 by default (§4.7), rather than on a fixed wall-clock timer: it polls
// AppliedPhase and fires once the delta since the last snapshot reaches K.
func (n *Node) snapshotLoop(ctx context.Context) {
	k := types.Phase(n.engine.PhasesToKeep() / 2)
	if k == 0 {
		k = 1
	}
	last := n.engine.AppliedPhase()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cur := n.engine.AppliedPhase(); cur >= last+k {
				n.snapshotNow()
				last = cur
			}
		}
	}
}

func (n *Node) snapshotNow() {
	data, phase, err := n.sm.Snapshot()
	if err != nil {
		n.log.Warn("periodic snapshot failed", logger.Error(err))
		return
	}
	if err := n.conf.Persistence.Save(types.SavedState{AppliedPhase: phase, Snapshot: data}); err != nil {
		n.log.Warn("persisting snapshot failed", logger.Error(err))
	}
}

// Stop flushes outstanding Apply promises, writes a final snapshot, and
// halts background processing (§5 "Cancellation").
func (n *Node) Stop() {
	n.engine.Stop()
	n.sm.Stop()
	if n.conf.Persistence != nil {
		n.snapshotNow()
	}
	if n.cancel != nil {
		n.cancel()
	}
	if n.group != nil {
		_ = n.group.Wait()
	}
	n.r.Stop()
}
