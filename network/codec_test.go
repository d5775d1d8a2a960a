package network_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/network"
)

type testMsg struct {
	Value string
}

func (testMsg) MessageKind() string { return "testMsg" }

func TestGobCodec_roundTrip(t *testing.T) {
	c := network.NewGobCodec()
	c.Register(testMsg{})

	data, err := c.Encode(testMsg{Value: "hello"})
	require.NoError(t, err)

	decoded, err := c.Decode(data)
	require.NoError(t, err)
	require.Equal(t, testMsg{Value: "hello"}, decoded)
}

func TestGobCodec_unregisteredKindRejected(t *testing.T) {
	producer := network.NewGobCodec()
	producer.Register(testMsg{})
	data, err := producer.Encode(testMsg{Value: "x"})
	require.NoError(t, err)

	consumer := network.NewGobCodec()
	_, err = consumer.Decode(data)
	require.ErrorContains(t, err, "unregistered message kind")
}

func TestGobCodec_duplicateRegisterPanics(t *testing.T) {
	c := network.NewGobCodec()
	c.Register(testMsg{})
	require.Panics(t, func() { c.Register(testMsg{}) })
}
