package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTopologySpec_ParsesYAML(t *testing.T) {
	// GIVEN a topology file on disk
	dir := t.TempDir()
	path := filepath.Join(dir, "topo.yaml")
	contents := `
kernel:
  seed: 7
  trace: true
routers:
  - name: r1
    hosts: [h1]
links:
  - name: r1-h1
    end1: r1
    end2: h1
    prop_delay: 0.001
    baud_rate: 1000000
    mtu: 1500
    discipline: fifo
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	// WHEN it is loaded
	spec, err := LoadTopologySpec(path)

	// THEN the fields round-trip
	require.NoError(t, err)
	assert.Equal(t, int64(7), spec.Kernel.Seed)
	assert.True(t, spec.Kernel.Trace)
	require.Len(t, spec.Routers, 1)
	assert.Equal(t, "r1", spec.Routers[0].Name)
	require.Len(t, spec.Links, 1)
	assert.Equal(t, DisciplineFIFO, spec.Links[0].Discipline)
	assert.Equal(t, 1500, spec.Links[0].MTU)
}

func TestLoadTopologySpec_MissingFile(t *testing.T) {
	_, err := LoadTopologySpec("/nonexistent/path/topo.yaml")
	assert.Error(t, err)
}
