package hashring_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/hashring"
)

func TestRing_getIsStableAcrossCalls(t *testing.T) {
	r := hashring.New(32)
	r.Add("n1")
	r.Add("n2")
	r.Add("n3")

	owner, ok := r.Get("shard-7")
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		got, _ := r.Get("shard-7")
		require.Equal(t, owner, got)
	}
}

func TestRing_emptyRingHasNoOwner(t *testing.T) {
	r := hashring.New(8)
	_, ok := r.Get("x")
	require.False(t, ok)
}

func TestRing_removeRedistributesOnlyAffectedKeys(t *testing.T) {
	r := hashring.New(64)
	r.Add("n1")
	r.Add("n2")
	r.Add("n3")

	before := make(map[string]string, 1000)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key-%d", i)
		owner, _ := r.Get(key)
		before[key] = owner
	}

	r.Remove("n2")
	moved := 0
	for key, owner := range before {
		got, ok := r.Get(key)
		require.True(t, ok)
		if got == owner {
			continue
		}
		require.Equal(t, "n2", owner, "key %s moved away from a node other than the removed one", key)
		moved++
	}
	require.Greater(t, moved, 0)
}

func TestRing_nodesSortedAndDeduped(t *testing.T) {
	r := hashring.New(4)
	r.Add("n2")
	r.Add("n1")
	r.Add("n1")
	require.Equal(t, []string{"n1", "n2"}, r.Nodes())
}
