package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "abyss version ")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	stl, err := mesh.Box(domain.V(0, 0, 0), domain.V(1, 1, 1)).Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cube.stl"), stl, 0o644))

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("mesh: {file: cube.stl}\nsolver: {nelx: 8}\n"), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("mesh: {file: cube.stl}\nsolver: {volume_fraction: 2}\n"), 0o644))

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "good.yaml is valid!")
	assert.Contains(t, out, "Configuration is valid!")

	_, err = execute(t, "validate", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
	assert.NotContains(t, err.Error(), "good.yaml")
}

func TestValidateCommand_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "abyss.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server: {store: etcd}\n"), 0o644))

	_, err := execute(t, "validate", "--config", cfgPath)
	assert.ErrorContains(t, err, "validation failed")
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", "--current", "running")
	require.NoError(t, err)
	assert.Contains(t, out, "stateDiagram-v2")
	assert.Contains(t, out, "class running current")
}
