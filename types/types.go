// Package types holds the Rabia data model shared by every component
// (§3 of the specification): node and batch identifiers, phases, the
// two-round vote values, and the fixed topology info. It has no
// dependencies on the rest of the repository so every other package can
// import it without cycles, the same role drctypes/rctypes play for the
// teacher's rootchain packages.
package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// NodeId is the stable, lexicographically ordered string identifier of a
// cluster member (§3), matching how the spec's own scenarios name nodes
// ("n1", "n2", "n3"). topology.Config separately maps each NodeId to a
// dial address (a multiaddr), but the protocol-level identity itself stays
// a plain string rather than a transport-specific handle.
type NodeId string

func (n NodeId) String() string { return string(n) }

// SortNodeIds returns a new, ascending-sorted copy of ids, the canonical
// order used for round-robin proposer selection (§4.4.3).
func SortNodeIds(ids []NodeId) []NodeId {
	out := make([]NodeId, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BatchId is the opaque, collision-resistant identifier of a Batch.
// It is a content hash of the serialized commands, salted with the
// proposing node's id and an ever-increasing local counter so that the
// same commands submitted twice by the same node never collide, and
// resolves the open question in spec.md §9: only the origin computes it.
type BatchId [sha256.Size]byte

// SkipBatchId is the reserved sentinel BatchId meaning "no batch, decide an
// empty/skip phase" (§4.4.3 step 1).
var SkipBatchId = BatchId{}

// IsSkip reports whether id is the reserved skip sentinel.
func (id BatchId) IsSkip() bool { return id == SkipBatchId }

func (id BatchId) String() string { return hex.EncodeToString(id[:8]) }

// NewBatchId derives a BatchId from serialized commands, the origin node,
// and a strictly increasing per-origin counter.
func NewBatchId(origin NodeId, counter uint64, serializedCommands []byte) BatchId {
	h := sha256.New()
	h.Write([]byte(origin))
	var ctrBuf [8]byte
	binary.BigEndian.PutUint64(ctrBuf[:], counter)
	h.Write(ctrBuf[:])
	h.Write(serializedCommands)
	var id BatchId
	copy(id[:], h.Sum(nil))
	return id
}

// CorrelationId routes a decision's result back to the promise registered by
// apply() on the proposing node; it is meaningful only locally (§3).
type CorrelationId = uuid.UUID

// NewCorrelationId mints a fresh CorrelationId.
func NewCorrelationId() CorrelationId { return uuid.New() }

// Phase is the monotonically increasing consensus slot number (§3).
type Phase uint64

// StateValue is the ternary vote value of §3: round 1 only ever carries
// V0/V1, round 2 additionally allows VQuestion.
type StateValue uint8

const (
	V0 StateValue = iota
	V1
	VQuestion
)

func (v StateValue) String() string {
	switch v {
	case V0:
		return "V0"
	case V1:
		return "V1"
	case VQuestion:
		return "V?"
	default:
		return fmt.Sprintf("StateValue(%d)", uint8(v))
	}
}

// TopologyInfo is the fixed-size cluster view computed once at startup and
// constant for the engine's lifetime (§3).
type TopologyInfo struct {
	Self          NodeId
	ClusterSize   int
	Quorum        int
	FPlusOne      int
	SuperMajority int
}

// NewTopologyInfo derives the consensus thresholds from the cluster size,
// per the formulas in §3: quorum = floor(N/2)+1, f+1 = N-quorum+1,
// super-majority = N-f.
func NewTopologyInfo(self NodeId, clusterSize int) (TopologyInfo, error) {
	if clusterSize < 1 {
		return TopologyInfo{}, fmt.Errorf("cluster size must be at least 1, got %d", clusterSize)
	}
	quorum := clusterSize/2 + 1
	fPlusOne := clusterSize - quorum + 1
	f := fPlusOne - 1
	superMajority := clusterSize - f
	return TopologyInfo{
		Self:          self,
		ClusterSize:   clusterSize,
		Quorum:        quorum,
		FPlusOne:      fPlusOne,
		SuperMajority: superMajority,
	}, nil
}

// SavedState is the persistent anchor used on restart (§3, §4.7): the last
// applied phase and a complete state-machine snapshot.
type SavedState struct {
	AppliedPhase Phase
	Snapshot     []byte
}
