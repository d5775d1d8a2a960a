// Package rpc exposes a node's health over plain HTTP: a Prometheus
// metrics endpoint and a JSON status endpoint, grounded on the teacher's
// own rpc.MetricsEndpoints/rpc.NewHTTPServer pairing (cli/ubft/cmd's
// shard_node_run.go wires both the same way). Consensus itself has no RPC
// surface (spec.md §1, "wire serialization... out of scope"); this package
// only serves observability, not the Apply API, which callers reach
// in-process via node.Node.Apply or their own transport of choice.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rabia-project/rabia/consensus"
	"github.com/rabia-project/rabia/types"
)

// StatusProvider is the subset of node.Node the status endpoint reports on.
type StatusProvider interface {
	Mode() consensus.Mode
	AppliedPhase() types.Phase
	Leader() types.NodeId
}

// StatusResponse is the /status JSON payload.
type StatusResponse struct {
	Mode         string `json:"mode"`
	AppliedPhase uint64 `json:"appliedPhase"`
	Leader       string `json:"leader"`
}

// Server is a minimal HTTP server exposing /metrics and /status.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server bound to addr, serving Prometheus metrics from
// registry and status from node. addr is not listened on until Run is
// called.
func NewServer(addr string, registry prometheus.Gatherer, node StatusProvider) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Mode:         node.Mode().String(),
			AppliedPhase: uint64(node.AppliedPhase()),
			Leader:       string(node.Leader()),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc: serving: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc: shutting down: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
