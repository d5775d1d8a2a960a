package leader_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/events"
	"github.com/rabia-project/rabia/leader"
	"github.com/rabia-project/rabia/router"
	"github.com/rabia-project/rabia/topology"
	"github.com/rabia-project/rabia/types"
)

func TestWitness_smallestConnectedIdWins(t *testing.T) {
	r := router.New(slog.Default(), 16)
	changes := make(chan events.LeaderChange, 8)
	router.AddRoute(r, func(ev events.LeaderChange) { changes <- ev })
	w := leader.New("n2", r, slog.Default())

	r.Route(topology.NodeAdded{Added: "n3", Topology: []types.NodeId{"n2", "n3"}})
	ev := <-changes
	require.Equal(t, types.NodeId("n2"), ev.Leader)
	require.True(t, ev.IsSelf)
	require.Equal(t, types.NodeId("n2"), w.Current())

	r.Route(topology.NodeAdded{Added: "n1", Topology: []types.NodeId{"n1", "n2", "n3"}})
	ev = <-changes
	require.Equal(t, types.NodeId("n1"), ev.Leader)
	require.False(t, ev.IsSelf)
}

func TestWitness_quorumLostClearsLeader(t *testing.T) {
	r := router.New(slog.Default(), 16)
	changes := make(chan events.LeaderChange, 8)
	router.AddRoute(r, func(ev events.LeaderChange) { changes <- ev })
	leader.New("n1", r, slog.Default())

	r.Route(topology.NodeAdded{Added: "n2", Topology: []types.NodeId{"n1", "n2"}})
	<-changes

	r.Route(topology.QuorumStateNotification{State: topology.Disappeared})
	ev := <-changes
	require.Equal(t, types.NodeId(""), ev.Leader)
	require.False(t, ev.IsSelf)
}
