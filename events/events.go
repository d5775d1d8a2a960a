// Package events holds the Local (in-process, never serialized) message
// types shared across components that would otherwise need to import one
// another directly. Keeping them here lets the Rabia engine and the state
// machine adapter stay decoupled: each depends on events and the router,
// never on each other (spec.md §9's "central owning actor + weak-by-identity
// references" design note).
package events

import "github.com/rabia-project/rabia/types"

// PhaseDecided is published by the engine once a phase's value is final,
// before the state machine adapter has necessarily applied it.
type PhaseDecided struct {
	Phase   types.Phase
	Value   types.StateValue
	BatchId types.BatchId
}

// BatchApplied is published by the state machine adapter once it has run a
// decided batch's commands through the user state machine. Results and Err
// are only meaningful to the engine when CorrelationId is non-zero, i.e.
// this node originated the batch and is waiting on an apply() promise.
type BatchApplied struct {
	Phase         types.Phase
	CorrelationId types.CorrelationId
	Results       [][]byte
	Err           error
}

// StateMachineNotification is published once per applied command, in
// application order, for observability and external subscribers.
type StateMachineNotification struct {
	Phase   types.Phase
	Index   int // position of this command within its batch
	Command []byte
	Result  []byte
	Err     error
}

// LeaderChange is published by the leader witness whenever the
// lexicographically smallest connected NodeId changes.
type LeaderChange struct {
	Leader types.NodeId // zero value means no leader (quorum disappeared)
	IsSelf bool
}

// SyncNeeded is published by the state machine adapter when it has stalled
// applying a decided batch whose data never arrived locally within the
// grace period, so the engine can enter SYNCING (spec.md §4.4.1's second
// ACTIVE -> SYNCING trigger) without statemachine importing consensus.
type SyncNeeded struct {
	Phase types.Phase
}
