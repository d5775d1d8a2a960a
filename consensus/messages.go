package consensus

import (
	"github.com/rabia-project/rabia/network"
	"github.com/rabia-project/rabia/types"
)

// RegisterWireTypes registers every consensus wire message with codec, so a
// gob-based transport can encode and decode them. Callers constructing a
// network.GobCodec for a real deployment must call this once before first
// use; network/simnet does not need it, since it never serializes messages.
func RegisterWireTypes(codec *network.GobCodec) {
	codec.Register(Propose{})
	codec.Register(VoteRound1{})
	codec.Register(VoteRound2{})
	codec.Register(Decision{})
	codec.Register(SyncRequest{})
	codec.Register(SyncResponse{})
	codec.Register(NewBatch{})
}

// The Rabia wire messages (spec.md §6.1), each a closed, flat struct rather
// than a tagged union: Go has no sum types, so the router's per-concrete-
// type dispatch (router.AddRoute) plays the role of the exhaustive match
// the source language gets from a sealed hierarchy.

// Propose carries the proposer's chosen batch (or the skip sentinel) for a
// phase, synchronous: the protocol cannot advance without it.
type Propose struct {
	Phase    types.Phase
	BatchId  types.BatchId
	SenderId types.NodeId
}

func (Propose) MessageKind() string { return "Propose" }

// VoteRound1 carries one node's round-1 ballot for a phase.
type VoteRound1 struct {
	Phase    types.Phase
	Value    types.StateValue
	SenderId types.NodeId
}

func (VoteRound1) MessageKind() string { return "VoteRound1" }

// VoteRound2 carries one node's round-2 ballot, which additionally allows
// VQuestion when round 1 was inconclusive for that voter.
type VoteRound2 struct {
	Phase    types.Phase
	Value    types.StateValue
	SenderId types.NodeId
}

func (VoteRound2) MessageKind() string { return "VoteRound2" }

// Decision announces a phase's final value and, if committed, its batch id.
type Decision struct {
	Phase    types.Phase
	Value    types.StateValue
	BatchId  types.BatchId
	SenderId types.NodeId
}

func (Decision) MessageKind() string { return "Decision" }

// SyncRequest asks peers for everything from fromPhase onward. Asynchronous:
// the requester does not block waiting for a particular responder.
type SyncRequest struct {
	FromPhase types.Phase
	SenderId  types.NodeId
}

func (SyncRequest) MessageKind() string { return "SyncRequest" }

// TrailingDecision is one entry of a SyncResponse's decision tail.
type TrailingDecision struct {
	Phase   types.Phase
	BatchId types.BatchId
	Value   types.StateValue
}

// SyncResponse carries a snapshot plus any decisions made after it, letting
// a recovering node catch up without a persistent command log.
type SyncResponse struct {
	AppliedPhase      types.Phase
	Snapshot          []byte
	TrailingDecisions []TrailingDecision
	SenderId          types.NodeId
}

func (SyncResponse) MessageKind() string { return "SyncResponse" }

// NewBatch propagates a freshly submitted batch to every peer so they can
// vote on it once proposed. Asynchronous: receivers cache it and move on.
type NewBatch struct {
	BatchId       types.BatchId
	Origin        types.NodeId
	Commands      [][]byte
	CorrelationId types.CorrelationId
	SenderId      types.NodeId
}

func (NewBatch) MessageKind() string { return "NewBatch" }
