package tcp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/network"
	"github.com/rabia-project/rabia/network/tcp"
	"github.com/rabia-project/rabia/topology"
	"github.com/rabia-project/rabia/types"
)

type ping struct {
	From types.NodeId
	Seq  int
}

func (ping) MessageKind() string { return "ping" }

func newCodec() *network.GobCodec {
	c := network.NewGobCodec()
	c.Register(ping{})
	return c
}

func TestTransport_sendDeliversToInbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &topology.Config{
		Self: "n1",
		CoreNodes: []topology.CoreNode{
			{ID: "n1", Address: "/ip4/127.0.0.1/tcp/17601"},
			{ID: "n2", Address: "/ip4/127.0.0.1/tcp/17602"},
		},
	}
	addrs, err := tcp.AddrsFromConfig(cfg)
	require.NoError(t, err)

	codec1 := newCodec()
	codec2 := newCodec()

	t1 := tcp.New("n1", addrs, codec1, nil)
	t2 := tcp.New("n2", addrs, codec2, nil)

	require.NoError(t, t1.Listen(ctx, addrs["n1"]))
	require.NoError(t, t2.Listen(ctx, addrs["n2"]))

	require.NoError(t, t1.Send(ctx, "n2", ping{From: "n1", Seq: 1}))

	select {
	case msg := <-t2.Inbox():
		got, ok := msg.(ping)
		require.True(t, ok)
		require.Equal(t, types.NodeId("n1"), got.From)
		require.Equal(t, 1, got.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestTransport_broadcastReachesAllPeersExceptSelf(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &topology.Config{
		Self: "n1",
		CoreNodes: []topology.CoreNode{
			{ID: "n1", Address: "/ip4/127.0.0.1/tcp/17611"},
			{ID: "n2", Address: "/ip4/127.0.0.1/tcp/17612"},
			{ID: "n3", Address: "/ip4/127.0.0.1/tcp/17613"},
		},
	}
	addrs, err := tcp.AddrsFromConfig(cfg)
	require.NoError(t, err)

	t1 := tcp.New("n1", addrs, newCodec(), nil)
	t2 := tcp.New("n2", addrs, newCodec(), nil)
	t3 := tcp.New("n3", addrs, newCodec(), nil)

	require.NoError(t, t1.Listen(ctx, addrs["n1"]))
	require.NoError(t, t2.Listen(ctx, addrs["n2"]))
	require.NoError(t, t3.Listen(ctx, addrs["n3"]))

	require.NoError(t, t1.Broadcast(ctx, ping{From: "n1", Seq: 7}))

	for _, inbox := range []<-chan network.Wired{t2.Inbox(), t3.Inbox()} {
		select {
		case msg := <-inbox:
			got, ok := msg.(ping)
			require.True(t, ok)
			require.Equal(t, 7, got.Seq)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for broadcast delivery")
		}
	}

	select {
	case <-t1.Inbox():
		t.Fatal("broadcast must not deliver to self")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransport_sendToUnknownPeerFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &topology.Config{
		Self: "n1",
		CoreNodes: []topology.CoreNode{
			{ID: "n1", Address: "/ip4/127.0.0.1/tcp/17621"},
			{ID: "n2", Address: "/ip4/127.0.0.1/tcp/17622"},
		},
	}
	addrs, err := tcp.AddrsFromConfig(cfg)
	require.NoError(t, err)

	t1 := tcp.New("n1", addrs, newCodec(), nil)
	require.NoError(t, t1.Listen(ctx, addrs["n1"]))

	err = t1.Send(ctx, "ghost", ping{From: "n1"})
	require.Error(t, err)
}

func TestAddrsFromConfig_derivesHostPort(t *testing.T) {
	cfg := &topology.Config{
		Self: "n1",
		CoreNodes: []topology.CoreNode{
			{ID: "n1", Address: "/ip4/10.0.0.1/tcp/9001"},
		},
	}
	addrs, err := tcp.AddrsFromConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:9001", addrs["n1"])
}
