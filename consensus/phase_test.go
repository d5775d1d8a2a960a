package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/types"
)

func TestClassifyRound1_fastPath(t *testing.T) {
	votes := map[types.NodeId]types.StateValue{"n1": types.V1, "n2": types.V1, "n3": types.V1}
	// 3-node cluster: quorum=2, fPlusOne=2, superMajority=2
	out := classifyRound1(votes, 2, 2)
	require.True(t, out.fastPath)
	require.Equal(t, types.V1, out.fastValue)
}

func TestClassifyRound1_round2Input(t *testing.T) {
	// 5-node cluster: quorum=3, fPlusOne=3, superMajority=3
	votes := map[types.NodeId]types.StateValue{"n1": types.V1, "n2": types.V1, "n3": types.V0}
	out := classifyRound1(votes, 3, 3)
	require.False(t, out.fastPath)
	require.Equal(t, types.VQuestion, out.round2Input) // neither reaches f+1=3 yet
}

func TestClassifyRound1_round2InputReachesFPlusOne(t *testing.T) {
	votes := map[types.NodeId]types.StateValue{"n1": types.V1, "n2": types.V1, "n3": types.V1, "n4": types.V0, "n5": types.V0}
	out := classifyRound1(votes, 3, 4)
	require.False(t, out.fastPath)
	require.Equal(t, types.V1, out.round2Input)
}

func TestClassifyRound2_decidesOnFPlusOne(t *testing.T) {
	votes := map[types.NodeId]types.StateValue{"n1": types.V1, "n2": types.V1, "n3": types.VQuestion}
	out := classifyRound2(votes, 2)
	require.True(t, out.decided)
	require.Equal(t, types.V1, out.value)
}

func TestClassifyRound2_needsCoin(t *testing.T) {
	votes := map[types.NodeId]types.StateValue{"n1": types.V1, "n2": types.V0, "n3": types.VQuestion}
	out := classifyRound2(votes, 2)
	require.False(t, out.decided)
	require.True(t, out.needsCoin)
}

func TestPhaseState_round1IdempotentOnDuplicate(t *testing.T) {
	ps := newPhaseState(5)
	require.True(t, ps.recordRound1("n2", types.V1))
	require.False(t, ps.recordRound1("n2", types.V0)) // duplicate sender ignored, §8.7
	votes := ps.round1Snapshot()
	require.Equal(t, types.V1, votes["n2"])
}

func TestPhaseState_setDecisionConflictDetected(t *testing.T) {
	ps := newPhaseState(5)
	id1 := types.NewBatchId("n1", 1, []byte("a"))
	id2 := types.NewBatchId("n1", 2, []byte("b"))

	already, conflict := ps.setDecision(types.V1, id1, time.Now())
	require.False(t, already)
	require.False(t, conflict)

	already, conflict = ps.setDecision(types.V1, id1, time.Now())
	require.True(t, already)
	require.False(t, conflict)

	_, conflict = ps.setDecision(types.V1, id2, time.Now())
	require.True(t, conflict)
}
