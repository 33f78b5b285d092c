package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soypat/hrtfgrade/internal/testmesh"
	"github.com/soypat/hrtfgrade/mesh"
	"github.com/soypat/hrtfgrade/meshio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHead(t *testing.T) (input, output string) {
	t.Helper()
	dir := t.TempDir()
	m, err := mesh.New(testmesh.Head(3))
	require.NoError(t, err)
	input = filepath.Join(dir, "head.ply")
	require.NoError(t, meshio.Save(input, m, true))
	return input, filepath.Join(dir, "graded.ply")
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var o, e bytes.Buffer
	code = run(args, &o, &e)
	return code, o.String(), e.String()
}

func TestUsage(t *testing.T) {
	code, _, stderr := runCLI()
	assert.Equal(t, 1, code)
	for _, want := range []string{
		"Example usage", "-x", "-y", "-e", "-s", "-l, r", "-g, h",
		"-m", "-i", "-o", "-v", "-b", "Note", "[1] T. Palm", "[2] H. Ziegelwanger",
	} {
		assert.Contains(t, stderr, want)
	}
}

func TestUsageErrors(t *testing.T) {
	input, output := writeHead(t)
	full := []string{"-x", "4", "-y", "20", "-s", "left", "-i", input, "-o", output}
	for name, args := range map[string][]string{
		"no min":       {"-y", "20", "-s", "left", "-i", input, "-o", output},
		"no max":       {"-x", "4", "-s", "left", "-i", input, "-o", output},
		"no side":      {"-x", "4", "-y", "20", "-i", input, "-o", output},
		"no input":     {"-x", "4", "-y", "20", "-s", "left", "-o", output},
		"bad side":     {"-x", "4", "-y", "20", "-s", "middle", "-i", input, "-o", output},
		"unknown flag": append([]string{"-q"}, full...),
		"bad number":   append([]string{"-e", "one"}, full...),
		"stray arg":    append(full, "extra"),
		"min>max":      append(full, "-x", "30"),
	} {
		code, _, stderr := runCLI(args...)
		assert.Equal(t, 1, code, name)
		assert.Contains(t, stderr, "Example usage", name)
	}
	_, err := os.Stat(output)
	assert.True(t, os.IsNotExist(err), "output written on usage error")
}

func TestInvalidMode(t *testing.T) {
	input, output := writeHead(t)
	code, _, stderr := runCLI("-x", "4", "-y", "20", "-s", "left", "-m", "hyper", "-i", input, "-o", output)
	assert.Equal(t, 134, code)
	assert.Contains(t, stderr, "Invalid mode! Mode must be 'hybrid' or 'distance'")
}

func TestVerboseRun(t *testing.T) {
	input, output := writeHead(t)
	code, stdout, stderr := runCLI("-x", "4", "-y", "20", "-s", "both", "-m", "distance", "-i", input, "-o", output, "-v")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "mode: distance\n")
	assert.Contains(t, stdout, "side: both\n")
	assert.Contains(t, stdout, "gamma scaling left/right: 0.15/0.15\n")
	assert.Contains(t, stdout, "estimated ear channel entrance left:   65.4298\n")
	assert.Contains(t, stdout, "Faces before remeshing:  1280\n")
	m, err := meshio.Load(output)
	require.NoError(t, err)
	assert.Greater(t, m.NumFaces(), 0)
}

func TestExplicitEntrances(t *testing.T) {
	input, output := writeHead(t)
	code, stdout, stderr := runCLI("-x", "4", "-y", "20", "-s", "left", "-i", input, "-o", output, "-v",
		"-l", "60", "-r", "-60")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "ear channel entrance left:   60\n")
	assert.Contains(t, stdout, "ear channel entrance right: -60\n")
	assert.NotContains(t, stdout, "estimated")
}

func TestRepeatedFlags(t *testing.T) {
	input, output := writeHead(t)
	code, stdout, stderr := runCLI("-x", "4", "-y", "20", "-s", "left", "-i", input, "-o", output, "-v",
		"-g", "0", "-e", "2", "-g", "0.18")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "gamma scaling left/right: 0.18/0.15\n")
	assert.Contains(t, stdout, "max. error: 2\n")
	assert.Contains(t, stdout, "estimated ear channel entrance left:   59.6963\n")
}

func TestQuietRun(t *testing.T) {
	input, output := writeHead(t)
	code, stdout, _ := runCLI("-x", "4", "-y", "20", "-s", "right", "-b", "-i", input, "-o", output)
	require.Equal(t, 0, code)
	assert.Empty(t, stdout)
	_, err := os.Stat(output)
	assert.NoError(t, err)
}

func TestConfigFile(t *testing.T) {
	input, output := writeHead(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("remesh:\n  iterations: 2\n  workers: 2\n"), 0o644))
	code, _, stderr := runCLI("-x", "4", "-y", "20", "-s", "left", "-i", input, "-o", output, "-c", good)
	assert.Equal(t, 0, code, stderr)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("remesh: [not, a, map]\n"), 0o644))
	code, _, stderr = runCLI("-x", "4", "-y", "20", "-s", "left", "-i", input, "-o", output, "-c", bad)
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, strings.TrimSpace(stderr))

	code, _, _ = runCLI("-x", "4", "-y", "20", "-s", "left", "-i", input, "-o", output, "-c", filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, 1, code)
}

func TestMissingInput(t *testing.T) {
	dir := t.TempDir()
	code, _, stderr := runCLI("-x", "4", "-y", "20", "-s", "left",
		"-i", filepath.Join(dir, "none.ply"), "-o", filepath.Join(dir, "out.ply"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error:")
}
