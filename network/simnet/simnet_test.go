package simnet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/network/simnet"
	"github.com/rabia-project/rabia/types"
)

type ping struct{ N int }

func (ping) MessageKind() string { return "ping" }

func TestPeer_sendDelivers(t *testing.T) {
	bus := simnet.NewBus()
	a := simnet.NewPeer(bus, "n1", func() []types.NodeId { return []types.NodeId{"n1", "n2"} }, 4)
	b := simnet.NewPeer(bus, "n2", func() []types.NodeId { return []types.NodeId{"n1", "n2"} }, 4)
	_ = a

	require.NoError(t, a.Send(context.Background(), "n2", ping{N: 1}))
	select {
	case d := <-b.Inbox():
		require.Equal(t, types.NodeId("n1"), d.From)
		require.Equal(t, ping{N: 1}, d.Msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestPeer_broadcastExcludesSelf(t *testing.T) {
	bus := simnet.NewBus()
	connected := func() []types.NodeId { return []types.NodeId{"n1", "n2", "n3"} }
	a := simnet.NewPeer(bus, "n1", connected, 4)
	b := simnet.NewPeer(bus, "n2", connected, 4)
	c := simnet.NewPeer(bus, "n3", connected, 4)

	require.NoError(t, a.Broadcast(context.Background(), ping{N: 7}))
	for _, p := range []*simnet.Peer{b, c} {
		select {
		case d := <-p.Inbox():
			require.Equal(t, ping{N: 7}, d.Msg)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast delivery")
		}
	}
	select {
	case <-a.Inbox():
		t.Fatal("broadcast should not deliver to self")
	default:
	}
}

func TestBus_cutDropsMessages(t *testing.T) {
	bus := simnet.NewBus()
	connected := func() []types.NodeId { return []types.NodeId{"n1", "n2"} }
	a := simnet.NewPeer(bus, "n1", connected, 4)
	b := simnet.NewPeer(bus, "n2", connected, 4)

	bus.Cut("n1", "n2")
	require.NoError(t, a.Send(context.Background(), "n2", ping{N: 1}))
	select {
	case <-b.Inbox():
		t.Fatal("message should have been dropped by cut link")
	case <-time.After(50 * time.Millisecond):
	}

	bus.Heal("n1", "n2")
	require.NoError(t, a.Send(context.Background(), "n2", ping{N: 2}))
	select {
	case d := <-b.Inbox():
		require.Equal(t, ping{N: 2}, d.Msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery after heal")
	}
}
