package topology_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/topology"
)

const validYAML = `
self: n1
coreNodes:
  - id: n1
    address: /ip4/127.0.0.1/tcp/9001
  - id: n2
    address: /ip4/127.0.0.1/tcp/9002
  - id: n3
    address: /ip4/127.0.0.1/tcp/9003
pingInterval: 1s
`

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig_valid(t *testing.T) {
	path := writeFile(t, validYAML)
	cfg, err := topology.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.ClusterSize())
	require.Equal(t, topology.DefaultReconciliationInterval, cfg.ReconciliationInterval)

	info, err := cfg.TopologyInfo()
	require.NoError(t, err)
	require.Equal(t, 2, info.Quorum)
}

func TestLoadConfig_selfNotListed(t *testing.T) {
	path := writeFile(t, `
self: n9
coreNodes:
  - id: n1
    address: /ip4/127.0.0.1/tcp/9001
`)
	_, err := topology.LoadConfig(path)
	require.ErrorContains(t, err, "not listed")
}

func TestLoadConfig_badAddress(t *testing.T) {
	path := writeFile(t, `
self: n1
coreNodes:
  - id: n1
    address: not-a-multiaddr
`)
	_, err := topology.LoadConfig(path)
	require.ErrorContains(t, err, "invalid address")
}

func TestLoadConfig_duplicateIds(t *testing.T) {
	path := writeFile(t, `
self: n1
coreNodes:
  - id: n1
    address: /ip4/127.0.0.1/tcp/9001
  - id: n1
    address: /ip4/127.0.0.1/tcp/9002
`)
	_, err := topology.LoadConfig(path)
	require.ErrorContains(t, err, "duplicate")
}
