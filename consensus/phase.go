package consensus

import (
	"sync"
	"time"

	"github.com/rabia-project/rabia/types"
)

// phaseState is the per-phase working set (spec.md §3 "PhaseState"). Each
// instance owns its own mutex so per-phase critical regions can run in
// parallel with each other while still serializing access within one phase
// (spec.md §5).
type phaseState struct {
	phase types.Phase

	mu           sync.Mutex
	proposal     *types.BatchId // the phase's recognised proposal, if any
	selfProposed bool           // true if this node authored that proposal
	round1Votes  map[types.NodeId]types.StateValue
	round1Sent   bool
	round2Votes  map[types.NodeId]types.StateValue
	round2Sent   bool
	coinFlipped  bool
	decision     *types.BatchId
	decisionVal  types.StateValue
	decided      bool
	decidedAt    time.Time
	createdAt    time.Time
}

func newPhaseState(p types.Phase) *phaseState {
	return &phaseState{
		phase:       p,
		round1Votes: make(map[types.NodeId]types.StateValue),
		round2Votes: make(map[types.NodeId]types.StateValue),
		createdAt:   time.Now(),
	}
}

// recordRound1 stores sender's round-1 ballot unless one is already on file
// for that sender, per the idempotent re-delivery rule (§4.4.6, §8.7).
// Returns false if the vote was a duplicate and thus ignored.
func (ps *phaseState) recordRound1(sender types.NodeId, v types.StateValue) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.round1Votes[sender]; ok {
		return false
	}
	ps.round1Votes[sender] = v
	return true
}

func (ps *phaseState) recordRound2(sender types.NodeId, v types.StateValue) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.round2Votes[sender]; ok {
		return false
	}
	ps.round2Votes[sender] = v
	return true
}

// tally counts votes of each value in m.
func tally(m map[types.NodeId]types.StateValue) (v0, v1, vq int) {
	for _, v := range m {
		switch v {
		case types.V0:
			v0++
		case types.V1:
			v1++
		case types.VQuestion:
			vq++
		}
	}
	return
}

func (ps *phaseState) round1Snapshot() map[types.NodeId]types.StateValue {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make(map[types.NodeId]types.StateValue, len(ps.round1Votes))
	for k, v := range ps.round1Votes {
		out[k] = v
	}
	return out
}

func (ps *phaseState) round2Snapshot() map[types.NodeId]types.StateValue {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make(map[types.NodeId]types.StateValue, len(ps.round2Votes))
	for k, v := range ps.round2Votes {
		out[k] = v
	}
	return out
}

func (ps *phaseState) setDecision(val types.StateValue, batchId types.BatchId, now time.Time) (alreadyDecided bool, conflict bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.decided {
		if ps.decisionVal != val || (val == types.V1 && ps.decision != nil && *ps.decision != batchId) {
			return true, true
		}
		return true, false
	}
	ps.decided = true
	ps.decisionVal = val
	b := batchId
	ps.decision = &b
	ps.decidedAt = now
	return false, false
}

func (ps *phaseState) isDecided() (types.StateValue, types.BatchId, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if !ps.decided {
		return 0, types.BatchId{}, false
	}
	var id types.BatchId
	if ps.decision != nil {
		id = *ps.decision
	}
	return ps.decisionVal, id, true
}

func (ps *phaseState) age(now time.Time) time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if !ps.decided {
		return 0
	}
	return now.Sub(ps.decidedAt)
}

// round1Outcome implements the §4.4.3 step 3 classification: whether the
// fast path applies, and if not, the round-2 input value x.
type round1Outcome struct {
	fastPath   bool
	fastValue  types.StateValue
	round2Input types.StateValue
}

func classifyRound1(votes map[types.NodeId]types.StateValue, fPlusOne, superMajority int) round1Outcome {
	v0, v1, _ := tally(votes)
	if v1 >= superMajority {
		return round1Outcome{fastPath: true, fastValue: types.V1}
	}
	if v0 >= superMajority {
		return round1Outcome{fastPath: true, fastValue: types.V0}
	}
	switch {
	case v1 >= fPlusOne:
		return round1Outcome{round2Input: types.V1}
	case v0 >= fPlusOne:
		return round1Outcome{round2Input: types.V0}
	default:
		return round1Outcome{round2Input: types.VQuestion}
	}
}

// round2Outcome is the §4.4.3 step 4 classification: a clear decision or a
// coin flip.
type round2Outcome struct {
	decided    bool
	value      types.StateValue
	needsCoin  bool
}

func classifyRound2(votes map[types.NodeId]types.StateValue, fPlusOne int) round2Outcome {
	v0, v1, _ := tally(votes)
	switch {
	case v1 >= fPlusOne:
		return round2Outcome{decided: true, value: types.V1}
	case v0 >= fPlusOne:
		return round2Outcome{decided: true, value: types.V0}
	default:
		return round2Outcome{needsCoin: true}
	}
}
