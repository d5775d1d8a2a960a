package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTopologyInfo(t *testing.T) {
	tests := []struct {
		name          string
		clusterSize   int
		quorum        int
		fPlusOne      int
		superMajority int
	}{
		{name: "3 nodes", clusterSize: 3, quorum: 2, fPlusOne: 2, superMajority: 2},
		{name: "5 nodes", clusterSize: 5, quorum: 3, fPlusOne: 3, superMajority: 3},
		{name: "7 nodes", clusterSize: 7, quorum: 4, fPlusOne: 4, superMajority: 4},
		{name: "1 node", clusterSize: 1, quorum: 1, fPlusOne: 1, superMajority: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := NewTopologyInfo("n1", tt.clusterSize)
			require.NoError(t, err)
			require.Equal(t, tt.quorum, info.Quorum)
			require.Equal(t, tt.fPlusOne, info.FPlusOne)
			require.Equal(t, tt.superMajority, info.SuperMajority)
		})
	}
}

func TestNewTopologyInfo_invalid(t *testing.T) {
	_, err := NewTopologyInfo("n1", 0)
	require.Error(t, err)
}

func TestNewBatchId_deterministicPerOrigin(t *testing.T) {
	cmds := []byte("put a 1")
	id1 := NewBatchId("n1", 0, cmds)
	id2 := NewBatchId("n1", 0, cmds)
	require.Equal(t, id1, id2)

	id3 := NewBatchId("n1", 1, cmds)
	require.NotEqual(t, id1, id3)

	id4 := NewBatchId("n2", 0, cmds)
	require.NotEqual(t, id1, id4)
}

func TestBatchId_skip(t *testing.T) {
	require.True(t, SkipBatchId.IsSkip())
	require.False(t, NewBatchId("n1", 0, []byte("x")).IsSkip())
}

func TestSortNodeIds(t *testing.T) {
	in := []NodeId{"n3", "n1", "n2"}
	out := SortNodeIds(in)
	require.Equal(t, []NodeId{"n1", "n2", "n3"}, out)
	// original left untouched
	require.Equal(t, []NodeId{"n3", "n1", "n2"}, in)
}
