// Package network defines the Cluster Network external collaborator
// (spec.md §4.3, §6.1): best-effort, non-blocking delivery of Wired
// protocol messages to one peer or to every currently connected peer.
// Wire serialization and the Netty-style transport underneath are
// explicitly out of scope (spec.md §1); this package only defines the
// interface the engine programs against plus a reference in-memory bus
// (network/simnet) used by tests and a minimal TCP+gob transport
// (network/tcp) for real deployments.
package network

import (
	"context"

	"github.com/rabia-project/rabia/types"
)

// Wired is the marker interface every message that crosses the network
// must implement. The concrete message types carry their own SenderId
// field, filled in by the sender; the interface does not require it, and
// transports attach nothing on receipt.
type Wired interface {
	// MessageKind returns a stable, short name used for logging/metrics,
	// e.g. "Propose", "VoteRound1", "NewBatch".
	MessageKind() string
}

// ClusterNetwork is the interface the Rabia engine (and every other
// component that needs to talk to peers) is given. Implementations
// guarantee at-most-once delivery per invocation, no ordering across
// different peers, and FIFO delivery per peer (spec.md §4.3).
type ClusterNetwork interface {
	// Send enqueues msg for delivery to target. Non-blocking: if target is
	// not currently reachable the message is silently dropped.
	Send(ctx context.Context, target types.NodeId, msg Wired) error

	// Broadcast enqueues msg for delivery to every currently connected
	// peer (self excluded).
	Broadcast(ctx context.Context, msg Wired) error
}

// ConnectedFunc reports the current set of reachable peer ids (self
// excluded), typically topology.Manager.Connected() filtered to drop self.
type ConnectedFunc func() []types.NodeId
