// Package statemachine is the adapter between the Rabia engine's decision
// log and the user-supplied deterministic state machine (spec.md §4.6):
// it applies decided batches strictly in phase order, captures/restores
// snapshots for recovery, and publishes a StateMachineNotification per
// processed command.
package statemachine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabia-project/rabia/batchstore"
	"github.com/rabia-project/rabia/events"
	"github.com/rabia-project/rabia/logger"
	"github.com/rabia-project/rabia/router"
	"github.com/rabia-project/rabia/types"
)

// Config tunes the adapter's stall detection.
type Config struct {
	// BatchGracePeriod is how long drainLocked will sit on a decided V1
	// batch whose data hasn't arrived locally before signalling the engine
	// to enter SYNCING (§4.4.1's second ACTIVE -> SYNCING trigger).
	BatchGracePeriod time.Duration
}

func DefaultConfig() Config {
	return Config{BatchGracePeriod: 2 * time.Second}
}

type Option func(*Config)

func WithBatchGracePeriod(d time.Duration) Option { return func(c *Config) { c.BatchGracePeriod = d } }

// StateMachine is the contract the user's deterministic logic must satisfy
// (§4.6): Process is pure with respect to externally visible inputs,
// MakeSnapshot captures the complete state, RestoreSnapshot replaces it,
// and Reset returns to a known initial state.
type StateMachine interface {
	Process(command []byte) (result []byte, err error)
	MakeSnapshot() ([]byte, error)
	RestoreSnapshot(data []byte) error
	Reset()
}

// Adapter applies events.PhaseDecided notifications to a StateMachine in
// strict phase order, buffering out-of-order decisions until their
// predecessor arrives (order preservation, §8 property 4).
type Adapter struct {
	sm    StateMachine
	store *batchstore.Store
	r     *router.Router
	log   *slog.Logger
	cfg   Config

	mu               sync.Mutex
	appliedPhase     types.Phase
	pendingDecisions map[types.Phase]events.PhaseDecided
	stalledSince     time.Time // zero when draining isn't blocked on a missing batch

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires an Adapter for sm, reading batches from store and publishing
// through r. initialAppliedPhase should come from a restored SavedState
// (persistence.Load), or 0 on a fresh start after sm.Reset(). Start must be
// called separately to run the stall-detection loop.
func New(sm StateMachine, store *batchstore.Store, r *router.Router, log *slog.Logger, initialAppliedPhase types.Phase, opts ...Option) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	a := &Adapter{
		sm:               sm,
		store:            store,
		r:                r,
		log:              log,
		cfg:              cfg,
		appliedPhase:     initialAppliedPhase,
		pendingDecisions: make(map[types.Phase]events.PhaseDecided),
		stopCh:           make(chan struct{}),
	}
	router.AddRoute(r, a.onPhaseDecided)
	return a
}

// Start launches the background loop that watches for a stalled drain and
// signals the engine to sync (§4.4.1).
func (a *Adapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.stallLoop(ctx)
}

// Stop halts the stall-detection loop.
func (a *Adapter) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *Adapter) stallLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.BatchGracePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.checkStall()
		}
	}
}

func (a *Adapter) checkStall() {
	a.mu.Lock()
	stalledSince := a.stalledSince
	next := a.appliedPhase + 1
	a.mu.Unlock()
	if stalledSince.IsZero() || time.Since(stalledSince) < a.cfg.BatchGracePeriod {
		return
	}
	a.r.Route(events.SyncNeeded{Phase: next})
}

func (a *Adapter) onPhaseDecided(ev events.PhaseDecided) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingDecisions[ev.Phase] = ev
	a.drainLocked()
}

// drainLocked applies every contiguous decision starting at appliedPhase+1
// that has arrived, stopping at the first gap or the first batch that isn't
// resolvable locally yet. A stalled entry stays in pendingDecisions: once
// checkStall's grace period trips, the engine enters SYNCING and eventually
// republishes this phase's decision from a SyncResponse, which retries it.
func (a *Adapter) drainLocked() {
	for {
		next := a.appliedPhase + 1
		ev, ok := a.pendingDecisions[next]
		if !ok {
			a.stalledSince = time.Time{}
			return
		}
		if !a.applyLocked(ev) {
			if a.stalledSince.IsZero() {
				a.stalledSince = time.Now()
			}
			return
		}
		delete(a.pendingDecisions, next)
		a.appliedPhase = next
		a.stalledSince = time.Time{}
	}
}

// applyLocked runs ev's batch through the state machine and reports whether
// it could: a missing batch (invariants 3/4 — "a BatchId in a decision must
// be resolvable locally before its phase can be applied") must halt the
// drain rather than silently skip the phase.
func (a *Adapter) applyLocked(ev events.PhaseDecided) bool {
	if ev.Value != types.V1 || ev.BatchId.IsSkip() {
		a.r.Route(events.BatchApplied{Phase: ev.Phase})
		return true
	}
	b, ok := a.store.Get(ev.BatchId)
	if !ok {
		a.log.Warn("decided batch not yet in local store, deferring apply",
			logger.Phase(uint64(ev.Phase)), logger.BatchID(ev.BatchId.String()))
		return false
	}
	results := make([][]byte, len(b.Commands))
	var firstErr error
	for i, cmd := range b.Commands {
		res, err := a.sm.Process(cmd)
		results[i] = res
		a.r.Route(events.StateMachineNotification{Phase: ev.Phase, Index: i, Command: cmd, Result: res, Err: err})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.r.Route(events.BatchApplied{Phase: ev.Phase, CorrelationId: b.CorrelationId, Results: results, Err: firstErr})
	return true
}

// Snapshot implements consensus.SnapshotProvider: it captures the current
// state and reports the phase it reflects.
func (a *Adapter) Snapshot() ([]byte, types.Phase, error) {
	a.mu.Lock()
	phase := a.appliedPhase
	a.mu.Unlock()
	data, err := a.sm.MakeSnapshot()
	if err != nil {
		return nil, 0, fmt.Errorf("statemachine: snapshot failed: %w", err)
	}
	return data, phase, nil
}

// Restore implements consensus.SnapshotProvider: it replaces the state
// machine's content and fast-forwards the applied-phase counter, discarding
// any buffered out-of-order decisions older than the new floor.
func (a *Adapter) Restore(data []byte, appliedPhase types.Phase) error {
	if err := a.sm.RestoreSnapshot(data); err != nil {
		return fmt.Errorf("statemachine: restore failed: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appliedPhase = appliedPhase
	for p := range a.pendingDecisions {
		if p <= appliedPhase {
			delete(a.pendingDecisions, p)
		}
	}
	return nil
}

// AppliedPhase reports the highest phase applied so far.
func (a *Adapter) AppliedPhase() types.Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appliedPhase
}
