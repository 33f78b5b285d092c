package hrtfgrade_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soypat/hrtfgrade"
	"github.com/soypat/hrtfgrade/earcanal"
	"github.com/soypat/hrtfgrade/grading"
	"github.com/soypat/hrtfgrade/internal/testmesh"
	"github.com/soypat/hrtfgrade/mesh"
	"github.com/soypat/hrtfgrade/meshio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// writeHead writes the synthetic reference head to dir and returns its path.
func writeHead(t *testing.T, dir string) string {
	t.Helper()
	m, err := mesh.New(testmesh.Head(3))
	require.NoError(t, err)
	path := filepath.Join(dir, "head.ply")
	require.NoError(t, meshio.Save(path, m, true))
	return path
}

func baseParams(dir, input string) hrtfgrade.Params {
	p := hrtfgrade.DefaultParams()
	p.Input = input
	p.Output = filepath.Join(dir, "graded.ply")
	p.MinEdge = 4
	p.MaxEdge = 20
	p.Side = earcanal.Left
	return p
}

func grade(t *testing.T, p hrtfgrade.Params) (hrtfgrade.Result, string) {
	t.Helper()
	var stdout bytes.Buffer
	res, err := hrtfgrade.Grade(context.Background(), p, hrtfgrade.DefaultOptions(), &stdout, nil)
	require.NoError(t, err)
	return res, stdout.String()
}

func TestGradeVerbose(t *testing.T) {
	dir := t.TempDir()
	p := baseParams(dir, writeHead(t, dir))
	p.Verbose = true
	res, out := grade(t, p)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 12, out)
	assert.Equal(t, "input: "+p.Input, lines[0])
	assert.Equal(t, "output: "+p.Output, lines[1])
	assert.Equal(t, "mode: hybrid", lines[2])
	assert.Equal(t, "side: left", lines[3])
	assert.Equal(t, "min. edge length: 4", lines[4])
	assert.Equal(t, "max. edge length: 20", lines[5])
	assert.Equal(t, "max. error: 1", lines[6])
	assert.Equal(t, "gamma scaling left/right: 0.15/0.15", lines[7])
	assert.Equal(t, "estimated ear channel entrance left:   65.4298", lines[8])
	assert.Equal(t, "estimated ear channel entrance right: -68.3508", lines[9])
	assert.True(t, strings.HasPrefix(lines[10], "Faces before remeshing:  "), lines[10])
	assert.True(t, strings.HasPrefix(lines[11], "Faces after remeshing:  "), lines[11])
	assert.Equal(t, 1280, res.FacesBefore)

	m, err := meshio.Load(p.Output)
	require.NoError(t, err)
	assert.Equal(t, res.FacesAfter, m.NumFaces())
}

func TestGradeGamma(t *testing.T) {
	dir := t.TempDir()
	input := writeHead(t, dir)
	tests := []struct {
		gl, gr      float64
		left, right string
	}{
		{0.15, 0.15, "65.4298", "-68.3508"},
		{0.18, 0.15, "59.6963", "-68.3508"},
		{0.15, 0.2, "65.4298", "-58.795"},
		{0.18, 0.2, "59.6963", "-58.795"},
	}
	for _, test := range tests {
		p := baseParams(dir, input)
		p.GammaLeft, p.GammaRight = test.gl, test.gr
		p.Verbose = true
		p.Mode = grading.ModeDistance
		_, out := grade(t, p)
		assert.Contains(t, out, "estimated ear channel entrance left:   "+test.left+"\n")
		assert.Contains(t, out, "estimated ear channel entrance right: "+test.right+"\n")
	}
}

func TestGradeExplicit(t *testing.T) {
	dir := t.TempDir()
	p := baseParams(dir, writeHead(t, dir))
	left, right := 70.5, -66.25
	p.EarLeft, p.EarRight = &left, &right
	p.Verbose = true
	res, out := grade(t, p)
	assert.NotContains(t, out, "estimated")
	assert.Contains(t, out, "ear channel entrance left:   70.5\n")
	assert.Contains(t, out, "ear channel entrance right: -66.25\n")
	assert.True(t, res.Left.Explicit)
	assert.Equal(t, 70.5, res.Left.Lateral)
}

func TestGradeQuiet(t *testing.T) {
	dir := t.TempDir()
	p := baseParams(dir, writeHead(t, dir))
	_, out := grade(t, p)
	assert.Empty(t, out)
}

func TestGradeBinaryAscii(t *testing.T) {
	dir := t.TempDir()
	input := writeHead(t, dir)
	p := baseParams(dir, input)
	p.Output = filepath.Join(dir, "ascii.ply")
	grade(t, p)
	p.Output = filepath.Join(dir, "binary.ply")
	p.Binary = true
	grade(t, p)

	ascii, err := os.Stat(filepath.Join(dir, "ascii.ply"))
	require.NoError(t, err)
	binary, err := os.Stat(filepath.Join(dir, "binary.ply"))
	require.NoError(t, err)
	assert.Less(t, binary.Size(), ascii.Size())

	va := loadVerts(t, filepath.Join(dir, "ascii.ply"))
	vb := loadVerts(t, filepath.Join(dir, "binary.ply"))
	require.Equal(t, len(va), len(vb))
	for i := range va {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(va[i], vb[i])), 0.01, "vertex %d", i)
	}
}

func loadVerts(t *testing.T, path string) []r3.Vec {
	t.Helper()
	m, err := meshio.Load(path)
	require.NoError(t, err)
	verts, _ := m.Export()
	return verts
}

func TestGradeDeterministic(t *testing.T) {
	dir := t.TempDir()
	input := writeHead(t, dir)
	p := baseParams(dir, input)
	p.Output = filepath.Join(dir, "a.ply")
	grade(t, p)
	p.Output = filepath.Join(dir, "b.ply")
	grade(t, p)
	a, err := os.ReadFile(filepath.Join(dir, "a.ply"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "b.ply"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "repeated runs differ")
}

func TestGradeModesDiffer(t *testing.T) {
	dir := t.TempDir()
	input := writeHead(t, dir)
	p := baseParams(dir, input)
	p.MinEdge = 2
	hybrid, _ := grade(t, p)
	p.Mode = grading.ModeDistance
	distance, _ := grade(t, p)
	assert.NotEqual(t, hybrid.FacesAfter, distance.FacesAfter)
}

func TestGradeDiagnostics(t *testing.T) {
	dir := t.TempDir()
	p := baseParams(dir, writeHead(t, dir))
	opts := hrtfgrade.DefaultOptions()
	opts.PreviewPNG = filepath.Join(dir, "preview.png")
	opts.HistogramPNG = filepath.Join(dir, "hist.png")
	_, err := hrtfgrade.Grade(context.Background(), p, opts, nil, nil)
	require.NoError(t, err)
	for _, path := range []string{opts.PreviewPNG, opts.HistogramPNG} {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestGradeErrors(t *testing.T) {
	dir := t.TempDir()
	input := writeHead(t, dir)
	for name, mod := range map[string]func(*hrtfgrade.Params){
		"no input":  func(p *hrtfgrade.Params) { p.Input = "" },
		"no output": func(p *hrtfgrade.Params) { p.Output = "" },
		"no side":   func(p *hrtfgrade.Params) { p.Side = 0 },
		"no min":    func(p *hrtfgrade.Params) { p.MinEdge = 0 },
		"no max":    func(p *hrtfgrade.Params) { p.MaxEdge = 0 },
		"min>max":   func(p *hrtfgrade.Params) { p.MinEdge = 30 },
		"error":     func(p *hrtfgrade.Params) { p.MaxError = -1 },
	} {
		p := baseParams(dir, input)
		mod(&p)
		_, err := hrtfgrade.Grade(context.Background(), p, hrtfgrade.DefaultOptions(), nil, nil)
		assert.True(t, errors.Is(err, hrtfgrade.ErrUsage), "%s: %v", name, err)
	}

	p := baseParams(dir, input)
	p.Mode = 5
	_, err := hrtfgrade.Grade(context.Background(), p, hrtfgrade.DefaultOptions(), nil, nil)
	assert.ErrorIs(t, err, grading.ErrInvalidMode)

	p = baseParams(dir, filepath.Join(dir, "missing.ply"))
	_, err = hrtfgrade.Grade(context.Background(), p, hrtfgrade.DefaultOptions(), nil, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, hrtfgrade.ErrUsage))
	_, err = os.Stat(p.Output)
	assert.True(t, os.IsNotExist(err), "output written on failure")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = baseParams(dir, input)
	_, err = hrtfgrade.Grade(ctx, p, hrtfgrade.DefaultOptions(), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = os.Stat(p.Output)
	assert.True(t, os.IsNotExist(err), "output written on failure")
}

func TestGradeRefinesEntrance(t *testing.T) {
	dir := t.TempDir()
	p := baseParams(dir, writeHead(t, dir))
	p.MinEdge = 2
	p.Mode = grading.ModeDistance
	res, _ := grade(t, p)

	m, err := meshio.Load(p.Output)
	require.NoError(t, err)
	nearest := math.Inf(1)
	for _, e := range m.Edges() {
		a, b := m.Vertex(e[0]), m.Vertex(e[1])
		mid := r3.Scale(0.5, r3.Add(a, b))
		if r3.Norm(r3.Sub(mid, res.Left.Point)) < 10 {
			nearest = math.Min(nearest, r3.Norm(r3.Sub(a, b)))
		}
	}
	assert.Less(t, nearest, 2*p.MinEdge, "entrance region not refined")
	assert.InDelta(t, 65.4298, res.Left.Lateral, 1e-4)
}
