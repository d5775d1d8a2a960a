package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/consensus"
	"github.com/rabia-project/rabia/rpc"
	"github.com/rabia-project/rabia/types"
)

type fakeStatus struct{}

func (fakeStatus) Mode() consensus.Mode     { return consensus.Active }
func (fakeStatus) AppliedPhase() types.Phase { return types.Phase(42) }
func (fakeStatus) Leader() types.NodeId      { return types.NodeId("n2") }

func TestServer_statusReportsNodeState(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := rpc.NewServer("127.0.0.1:18181", reg, fakeStatus{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18181/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status rpc.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, "ACTIVE", status.Mode)
	require.Equal(t, uint64(42), status.AppliedPhase)
	require.Equal(t, "n2", status.Leader)

	cancel()
	require.NoError(t, <-done)
}
