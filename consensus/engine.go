// Package consensus implements the Rabia phase/round voting state machine
// (spec.md §4.4): batch propagation, the two-round randomized vote with
// coin-flip tie-breaking and super-majority fast path, the decision log,
// and snapshot-based recovery via sync request/response. It is deliberately
// leaderless; the only notion of "whose turn" lives in proposerFor, a pure
// function of phase number and the currently connected topology.
package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rabia-project/rabia/batchstore"
	"github.com/rabia-project/rabia/events"
	"github.com/rabia-project/rabia/logger"
	"github.com/rabia-project/rabia/network"
	"github.com/rabia-project/rabia/router"
	"github.com/rabia-project/rabia/topology"
	"github.com/rabia-project/rabia/types"
)

// Mode is the engine's operating state (§4.4.1).
type Mode int

const (
	Dormant Mode = iota
	Active
	Syncing
)

func (m Mode) String() string {
	switch m {
	case Active:
		return "ACTIVE"
	case Syncing:
		return "SYNCING"
	default:
		return "DORMANT"
	}
}

// SnapshotProvider is the narrow interface the engine needs from the state
// machine adapter to serve SyncRequest/SyncResponse (§4.4.1, §4.7) without
// importing the statemachine package: Go's structural typing lets
// statemachine.Adapter satisfy this without either package depending on the
// other.
type SnapshotProvider interface {
	Snapshot() (data []byte, appliedPhase types.Phase, err error)
	Restore(data []byte, appliedPhase types.Phase) error
}

var (
	// ErrDormant is returned by Apply while the engine has no quorum.
	ErrDormant = fmt.Errorf("consensus: engine is dormant")
	// ErrStopping is returned by Apply once Stop has been called.
	ErrStopping = fmt.Errorf("consensus: engine is stopping")
	// ErrEvicted is returned to a caller whose batch aged out unresolved.
	ErrEvicted = fmt.Errorf("consensus: batch evicted before being decided")
)

type decisionEntry struct {
	value   types.StateValue
	batchId types.BatchId
}

type pendingApply struct {
	ch chan applyResult
}

type applyResult struct {
	results [][]byte
	err     error
}

// Engine is the Rabia protocol engine for one node.
type Engine struct {
	info      types.TopologyInfo
	members   []types.NodeId // fixed cluster, ascending-sorted
	connected network.ConnectedFunc
	r         *router.Router
	net       network.ClusterNetwork
	store     *batchstore.Store
	snapshots SnapshotProvider
	log       *slog.Logger
	cfg       Config
	clusterId string

	mu           sync.Mutex
	mode         Mode
	phases       map[types.Phase]*phaseState
	decisionLog  map[types.Phase]decisionEntry
	appliedPhase types.Phase
	currentPhase types.Phase
	counter      uint64
	pending      map[types.CorrelationId]pendingApply
	stopping     bool
	syncSince    time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Engine. members is the fixed cluster's node ids
// (unsorted is fine, New sorts a copy); connected reports the currently
// reachable peers with self excluded (see network.ConnectedFunc), typically
// topology.Manager.Connected filtered to drop self. The engine counts itself
// as connected when choosing a phase's proposer.
func New(
	info types.TopologyInfo,
	members []types.NodeId,
	connected network.ConnectedFunc,
	r *router.Router,
	net network.ClusterNetwork,
	store *batchstore.Store,
	snapshots SnapshotProvider,
	log *slog.Logger,
	opts ...Option,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	e := &Engine{
		info:        info,
		members:     types.SortNodeIds(members),
		connected:   connected,
		r:           r,
		net:         net,
		store:       store,
		snapshots:   snapshots,
		log:         log,
		cfg:         cfg,
		phases:      make(map[types.Phase]*phaseState),
		decisionLog: make(map[types.Phase]decisionEntry),
		pending:     make(map[types.CorrelationId]pendingApply),
		stopCh:      make(chan struct{}),
	}
	e.clusterId = clusterId(e.members)
	e.registerRoutes()
	return e
}

func (e *Engine) registerRoutes() {
	router.AddRoute(e.r, e.handlePropose)
	router.AddRoute(e.r, e.handleVoteRound1)
	router.AddRoute(e.r, e.handleVoteRound2)
	router.AddRoute(e.r, e.handleDecision)
	router.AddRoute(e.r, e.handleNewBatch)
	router.AddRoute(e.r, e.handleSyncRequest)
	router.AddRoute(e.r, e.handleSyncResponse)
	router.AddRoute(e.r, e.onQuorumState)
	router.AddRoute(e.r, e.onBatchApplied)
	router.AddRoute(e.r, e.onSyncNeeded)
}

// SeedAppliedPhase primes the engine's mirrored applied-phase counter from
// persisted state on startup, before Start is called (§4.7 step 1).
func (e *Engine) SeedAppliedPhase(p types.Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appliedPhase = p
	e.currentPhase = p + 1
}

// Mode reports the engine's current operating mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Engine) isActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode == Active
}

func (e *Engine) isSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode == Syncing
}

// Start launches the proposer-drive loop and the periodic cleanup timer.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(2)
	go e.driveLoop(ctx)
	go e.cleanupLoop(ctx)
}

// Stop flushes every outstanding Apply promise with ErrStopping and halts
// background goroutines. In-flight network messages are abandoned (§5).
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopping = true
	for id, p := range e.pending {
		p.ch <- applyResult{err: ErrStopping}
		delete(e.pending, id)
	}
	e.mu.Unlock()
	close(e.stopCh)
	e.wg.Wait()
}

// Apply submits commands from a client, blocking until the batch is decided
// and applied or ctx is cancelled (§4.4 "apply").
func (e *Engine) Apply(ctx context.Context, commands [][]byte) ([][]byte, error) {
	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return nil, ErrStopping
	}
	if e.mode != Active {
		e.mu.Unlock()
		return nil, ErrDormant
	}
	e.counter++
	counter := e.counter
	e.mu.Unlock()

	serialized := serializeCommands(commands)
	batchId := types.NewBatchId(e.info.Self, counter, serialized)
	corrId := types.NewCorrelationId()

	e.store.Put(batchstore.Batch{
		ID:            batchId,
		Origin:        e.info.Self,
		Commands:      commands,
		CorrelationId: corrId,
	})
	e.store.PushProposable(batchId)

	ch := make(chan applyResult, 1)
	e.mu.Lock()
	e.pending[corrId] = pendingApply{ch: ch}
	e.mu.Unlock()

	msg := NewBatch{BatchId: batchId, Origin: e.info.Self, Commands: commands, CorrelationId: corrId, SenderId: e.info.Self}
	if err := e.net.Broadcast(ctx, msg); err != nil {
		e.log.Warn("broadcast of NewBatch failed", logger.Error(err), logger.BatchID(batchId.String()))
	}

	select {
	case res := <-ch:
		return res.results, res.err
	case <-ctx.Done():
		e.mu.Lock()
		delete(e.pending, corrId)
		e.mu.Unlock()
		return nil, ctx.Err()
	case <-e.stopCh:
		return nil, ErrStopping
	}
}

func serializeCommands(commands [][]byte) []byte {
	var buf []byte
	for _, c := range commands {
		buf = append(buf, c...)
		buf = append(buf, 0)
	}
	return buf
}

func (e *Engine) phaseFor(p types.Phase) *phaseState {
	e.mu.Lock()
	defer e.mu.Unlock()
	ps, ok := e.phases[p]
	if !ok {
		ps = newPhaseState(p)
		e.phases[p] = ps
	}
	return ps
}

func (e *Engine) broadcastAsync(msg network.Wired) {
	go func() {
		if err := e.net.Broadcast(context.Background(), msg); err != nil {
			e.log.Warn("broadcast failed", logger.Error(err), logger.Component("consensus"))
		}
	}()
}

// --- mode transitions -------------------------------------------------

func (e *Engine) onQuorumState(ev topology.QuorumStateNotification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch ev.State {
	case topology.Established:
		if e.mode == Dormant {
			e.mode = Active
			e.log.Info("engine active", logger.Component("consensus"))
		}
	case topology.Disappeared:
		e.mode = Dormant
		e.log.Warn("engine dormant: quorum lost", logger.Component("consensus"))
	}
}

func (e *Engine) enterSyncing(reason string) {
	e.mu.Lock()
	if e.mode == Syncing {
		e.mu.Unlock()
		return
	}
	e.mode = Syncing
	e.syncSince = time.Now()
	fromPhase := e.appliedPhase + 1
	e.mu.Unlock()
	e.log.Warn("entering syncing mode", logger.Component("consensus"), logger.Data(reason))
	e.sendSyncRequest(fromPhase)
}

func (e *Engine) sendSyncRequest(fromPhase types.Phase) {
	msg := SyncRequest{FromPhase: fromPhase, SenderId: e.info.Self}
	if err := e.net.Broadcast(context.Background(), msg); err != nil {
		e.log.Warn("sync request broadcast failed", logger.Error(err))
	}
}

// retrySyncRequest re-issues SyncRequest when the one enterSyncing sent has
// gone unanswered for SyncRetryInterval (§6.3, §4.4.1): without this, a
// syncing node whose lone request was dropped would wait forever, since
// tickDrive otherwise only drives phases while ACTIVE.
func (e *Engine) retrySyncRequest() {
	e.mu.Lock()
	fromPhase := e.appliedPhase + 1
	e.syncSince = time.Now()
	e.mu.Unlock()
	e.log.Warn("sync request unanswered, retrying", logger.Component("consensus"))
	e.sendSyncRequest(fromPhase)
}

// onSyncNeeded handles the state machine adapter's signal that it stalled
// applying a decided batch (§4.4.1's second ACTIVE -> SYNCING trigger):
// the batch's data never arrived locally within the adapter's grace period.
func (e *Engine) onSyncNeeded(ev events.SyncNeeded) {
	if !e.isActive() {
		return
	}
	e.enterSyncing("state machine adapter stalled applying a decided batch")
}

// --- batch propagation (§4.4.2) ---------------------------------------

func (e *Engine) handleNewBatch(msg NewBatch) {
	if msg.SenderId == e.info.Self {
		return
	}
	e.store.Put(batchstore.Batch{
		ID:       msg.BatchId,
		Origin:   msg.Origin,
		Commands: msg.Commands,
	})
}

// --- phase lifecycle (§4.4.3) ------------------------------------------

// proposerFor implements the round-robin rule (p mod N over the fixed,
// sorted member list, skipping currently-disconnected members) that
// resolves the "phase ownership" open question (spec.md §9).
func proposerFor(phase types.Phase, members []types.NodeId, connected []types.NodeId) types.NodeId {
	n := len(members)
	if n == 0 {
		return ""
	}
	connectedSet := make(map[types.NodeId]bool, len(connected))
	for _, id := range connected {
		connectedSet[id] = true
	}
	start := int(uint64(phase) % uint64(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if connectedSet[members[idx]] {
			return members[idx]
		}
	}
	return ""
}

func (e *Engine) propose(phase types.Phase) {
	ps := e.phaseFor(phase)
	ps.mu.Lock()
	if ps.proposal != nil {
		ps.mu.Unlock()
		return
	}
	ps.mu.Unlock()

	batchId, ok := e.store.PopProposable()
	if !ok {
		batchId = types.SkipBatchId
	}
	ps.mu.Lock()
	ps.proposal = &batchId
	ps.selfProposed = true
	ps.mu.Unlock()

	msg := Propose{Phase: phase, BatchId: batchId, SenderId: e.info.Self}
	e.broadcastAsync(msg)
	e.handlePropose(msg)
}

func (e *Engine) handlePropose(msg Propose) {
	if !e.isActive() {
		return
	}
	if e.isStalePhase(msg.Phase) {
		return
	}
	if e.isFuturePhase(msg.Phase) {
		e.enterSyncing("propose for far-future phase")
		return
	}
	ps := e.phaseFor(msg.Phase)
	ps.mu.Lock()
	if ps.proposal == nil {
		b := msg.BatchId
		ps.proposal = &b
	}
	alreadySentR1 := ps.round1Sent
	ps.round1Sent = true
	ps.mu.Unlock()
	if alreadySentR1 {
		return
	}

	willing := msg.BatchId.IsSkip() || e.store.Has(msg.BatchId)
	v := types.V0
	if willing {
		v = types.V1
	}
	e.castRound1(msg.Phase, v)
}

func (e *Engine) castRound1(phase types.Phase, v types.StateValue) {
	msg := VoteRound1{Phase: phase, Value: v, SenderId: e.info.Self}
	e.broadcastAsync(msg)
	e.handleVoteRound1(msg)
}

func (e *Engine) handleVoteRound1(msg VoteRound1) {
	if !e.isActive() {
		return
	}
	if e.isStalePhase(msg.Phase) {
		return
	}
	if e.isFuturePhase(msg.Phase) {
		e.enterSyncing("round1 vote for far-future phase")
		return
	}
	ps := e.phaseFor(msg.Phase)
	if !ps.recordRound1(msg.SenderId, msg.Value) {
		return // duplicate, idempotent (§4.4.6, property 7)
	}
	votes := ps.round1Snapshot()
	if len(votes) < e.info.Quorum {
		return
	}
	outcome := classifyRound1(votes, e.info.FPlusOne, e.info.SuperMajority)
	if outcome.fastPath {
		e.decide(ps, msg.Phase, outcome.fastValue)
		return
	}
	ps.mu.Lock()
	already := ps.round2Sent
	ps.round2Sent = true
	ps.mu.Unlock()
	if already {
		return
	}
	e.castRound2(msg.Phase, outcome.round2Input)
}

func (e *Engine) castRound2(phase types.Phase, v types.StateValue) {
	msg := VoteRound2{Phase: phase, Value: v, SenderId: e.info.Self}
	e.broadcastAsync(msg)
	e.handleVoteRound2(msg)
}

func (e *Engine) handleVoteRound2(msg VoteRound2) {
	if !e.isActive() {
		return
	}
	if e.isStalePhase(msg.Phase) {
		return
	}
	if e.isFuturePhase(msg.Phase) {
		e.enterSyncing("round2 vote for far-future phase")
		return
	}
	ps := e.phaseFor(msg.Phase)
	if !ps.recordRound2(msg.SenderId, msg.Value) {
		return
	}
	votes := ps.round2Snapshot()
	if len(votes) < e.info.Quorum {
		return
	}
	outcome := classifyRound2(votes, e.info.FPlusOne)
	if outcome.decided {
		e.decide(ps, msg.Phase, outcome.value)
		return
	}
	ps.mu.Lock()
	already := ps.coinFlipped
	ps.coinFlipped = true
	ps.mu.Unlock()
	if already {
		return
	}
	e.decide(ps, msg.Phase, sharedCoin(e.clusterId, msg.Phase))
}

func (e *Engine) resolveBatchId(ps *phaseState, value types.StateValue) types.BatchId {
	if value != types.V1 {
		return types.SkipBatchId
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.proposal != nil {
		return *ps.proposal
	}
	return types.SkipBatchId
}

func (e *Engine) decide(ps *phaseState, phase types.Phase, value types.StateValue) {
	batchId := e.resolveBatchId(ps, value)
	e.finalizeDecision(phase, value, batchId, true)
}

func (e *Engine) handleDecision(msg Decision) {
	if !e.isActive() && !e.isSyncing() {
		return
	}
	if e.isActive() && e.hasDecisionGap(msg.Phase) {
		e.enterSyncing("decision observed beyond appliedPhase+1 with a gap in the decision log")
		return
	}
	e.finalizeDecision(msg.Phase, msg.Value, msg.BatchId, false)
}

// hasDecisionGap is the primary ACTIVE -> SYNCING trigger of §4.4.1: a
// decision for a phase beyond appliedPhase+1 that leaves an unfilled hole
// behind it means this node fell behind without isFuturePhase's PhasesToKeep
// threshold ever tripping on a propose/vote message.
func (e *Engine) hasDecisionGap(phase types.Phase) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if phase <= e.appliedPhase+1 {
		return false
	}
	for p := e.appliedPhase + 1; p < phase; p++ {
		if _, ok := e.decisionLog[p]; !ok {
			return true
		}
	}
	return false
}

func (e *Engine) finalizeDecision(phase types.Phase, value types.StateValue, batchId types.BatchId, broadcast bool) {
	ps := e.phaseFor(phase)
	already, conflict := ps.setDecision(value, batchId, time.Now())
	if conflict {
		e.log.Error("conflicting decision for already-decided phase", logger.Phase(uint64(phase)), logger.Component("consensus"))
		panic(router.FatalPanic{Err: fmt.Errorf("consensus: conflicting decision observed for phase %d (invariant violation)", phase)})
	}
	if already {
		return
	}
	e.mu.Lock()
	e.decisionLog[phase] = decisionEntry{value: value, batchId: batchId}
	e.mu.Unlock()

	if broadcast {
		e.broadcastAsync(Decision{Phase: phase, Value: value, BatchId: batchId, SenderId: e.info.Self})
	}
	e.carryOverOnSkip(ps, value)
	e.r.Route(events.PhaseDecided{Phase: phase, Value: value, BatchId: batchId})
	e.advancePast(phase)
}

// carryOverOnSkip implements §4.4.7: a node that authored the phase's
// proposal re-queues it when the phase decides the skip value.
func (e *Engine) carryOverOnSkip(ps *phaseState, value types.StateValue) {
	if value != types.V0 {
		return
	}
	ps.mu.Lock()
	self := ps.selfProposed
	b := ps.proposal
	ps.mu.Unlock()
	if self && b != nil && !b.IsSkip() {
		e.store.PushProposableFront(*b)
	}
}

func (e *Engine) advancePast(phase types.Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if phase >= e.currentPhase {
		e.currentPhase = phase + 1
	}
}

// --- recovery (§4.4.1, §4.7) -------------------------------------------

func sortTrailing(td []TrailingDecision) {
	sort.Slice(td, func(i, j int) bool { return td[i].Phase < td[j].Phase })
}

func (e *Engine) handleSyncRequest(msg SyncRequest) {
	if !e.isActive() {
		return
	}
	data, appliedPhase, err := e.snapshots.Snapshot()
	if err != nil {
		e.log.Warn("snapshot failed while answering sync request", logger.Error(err))
		return
	}
	e.mu.Lock()
	var trailing []TrailingDecision
	for p, d := range e.decisionLog {
		if p >= msg.FromPhase {
			trailing = append(trailing, TrailingDecision{Phase: p, BatchId: d.batchId, Value: d.value})
		}
	}
	e.mu.Unlock()
	sortTrailing(trailing)

	resp := SyncResponse{AppliedPhase: appliedPhase, Snapshot: data, TrailingDecisions: trailing, SenderId: e.info.Self}
	if err := e.net.Send(context.Background(), msg.SenderId, resp); err != nil {
		e.log.Warn("sync response send failed", logger.Error(err), logger.NodeID(string(msg.SenderId)))
	}
}

func (e *Engine) handleSyncResponse(msg SyncResponse) {
	if !e.isSyncing() {
		return
	}
	if err := e.snapshots.Restore(msg.Snapshot, msg.AppliedPhase); err != nil {
		e.log.Error("restoring snapshot from sync response failed", logger.Error(err))
		return
	}
	e.mu.Lock()
	e.appliedPhase = msg.AppliedPhase
	e.currentPhase = msg.AppliedPhase + 1
	for _, d := range msg.TrailingDecisions {
		e.decisionLog[d.Phase] = decisionEntry{value: d.Value, batchId: d.BatchId}
		if d.Phase >= e.currentPhase {
			e.currentPhase = d.Phase + 1
		}
	}
	e.mode = Active
	e.mu.Unlock()
	e.log.Info("sync complete, engine active", logger.Phase(uint64(msg.AppliedPhase)), logger.Component("consensus"))
	for _, d := range msg.TrailingDecisions {
		e.r.Route(events.PhaseDecided{Phase: d.Phase, Value: d.Value, BatchId: d.BatchId})
	}
}

func (e *Engine) onBatchApplied(ev events.BatchApplied) {
	e.mu.Lock()
	if ev.Phase > e.appliedPhase {
		e.appliedPhase = ev.Phase
	}
	var zero types.CorrelationId
	p, ok := e.pending[ev.CorrelationId]
	if ok && ev.CorrelationId != zero {
		delete(e.pending, ev.CorrelationId)
	}
	e.mu.Unlock()
	if ok && ev.CorrelationId != zero {
		p.ch <- applyResult{results: ev.Results, err: ev.Err}
	}
}

// --- staleness classification (§4.4.6) ----------------------------------

func (e *Engine) isStalePhase(phase types.Phase) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.appliedPhase < types.Phase(e.cfg.PhasesToKeep) {
		return false
	}
	return phase < e.appliedPhase-types.Phase(e.cfg.PhasesToKeep)
}

func (e *Engine) isFuturePhase(phase types.Phase) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return phase > e.appliedPhase+types.Phase(e.cfg.PhasesToKeep)
}

// --- background loops ----------------------------------------------------

func (e *Engine) driveLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.VoteTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tickDrive()
		}
	}
}

func (e *Engine) tickDrive() {
	e.mu.Lock()
	mode := e.mode
	phase := e.currentPhase
	syncSince := e.syncSince
	e.mu.Unlock()

	if mode == Syncing {
		if time.Since(syncSince) >= e.cfg.SyncRetryInterval {
			e.retrySyncRequest()
		}
		return
	}
	if mode != Active {
		return
	}

	connected := append([]types.NodeId{e.info.Self}, e.connected()...)
	proposer := proposerFor(phase, e.members, connected)
	ps := e.phaseFor(phase)

	if proposer == e.info.Self {
		ps.mu.Lock()
		proposed := ps.proposal != nil
		ps.mu.Unlock()
		if !proposed {
			e.propose(phase)
			return
		}
	}

	// Timeout fallback (§4.4.3 step 2): no Propose recognised yet, vote V0.
	ps.mu.Lock()
	stale := !ps.round1Sent && time.Since(ps.createdAt) >= e.cfg.VoteTimeout
	if stale {
		ps.round1Sent = true
	}
	ps.mu.Unlock()
	if stale {
		e.castRound1(phase, types.V0)
	}
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.cleanup()
		}
	}
}

// cleanup prunes phaseState entries and decisionLog entries older than the
// retention window (§4.4.8).
func (e *Engine) cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.appliedPhase < types.Phase(e.cfg.PhasesToKeep) {
		return
	}
	threshold := e.appliedPhase - types.Phase(e.cfg.PhasesToKeep)
	var evicted []types.BatchId
	for p, ps := range e.phases {
		if p >= threshold {
			continue
		}
		ps.mu.Lock()
		if ps.proposal != nil {
			evicted = append(evicted, *ps.proposal)
		}
		ps.mu.Unlock()
		delete(e.phases, p)
	}
	for p := range e.decisionLog {
		if p < threshold {
			delete(e.decisionLog, p)
		}
	}
	if len(evicted) > 0 {
		e.store.Evict(evicted)
	}
}

// AppliedPhase reports the engine's mirrored applied-phase counter.
func (e *Engine) AppliedPhase() types.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.appliedPhase
}

// PhasesToKeep reports the configured retention window, so a caller like
// node.Node can derive a snapshot cadence from it (§4.7).
func (e *Engine) PhasesToKeep() uint64 {
	return e.cfg.PhasesToKeep
}
