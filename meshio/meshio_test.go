package meshio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/soypat/hrtfgrade/internal/testmesh"
	"github.com/soypat/hrtfgrade/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// float32Verts rounds vertices the same way the writers do.
func float32Verts(verts []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(verts))
	for i, v := range verts {
		out[i] = r3.Vec{X: float64(float32(v.X)), Y: float64(float32(v.Y)), Z: float64(float32(v.Z))}
	}
	return out
}

func TestPLYRoundTrip(t *testing.T) {
	verts, faces := testmesh.Icosphere(2, 3.3)
	want := float32Verts(verts)
	var sizes [2]int
	for i, bin := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, WritePLY(&buf, verts, faces, bin))
		sizes[i] = buf.Len()
		gotVerts, gotFaces, err := ReadPLY(&buf)
		require.NoError(t, err)
		if diff := cmp.Diff(want, gotVerts); diff != "" {
			t.Errorf("binary=%v vertices mismatch (-want +got):\n%s", bin, diff)
		}
		if diff := cmp.Diff(faces, gotFaces); diff != "" {
			t.Errorf("binary=%v faces mismatch (-want +got):\n%s", bin, diff)
		}
	}
	assert.Less(t, sizes[1], sizes[0], "binary output should be smaller than ascii")
}

func TestPLYEncodingsAgree(t *testing.T) {
	verts := []r3.Vec{{X: 2.807147741317749, Y: -0.1, Z: 1e-3}, {X: 1.0 / 3, Y: 94.09705}, {Z: -97.01805}}
	faces := [][3]int{{0, 1, 2}}
	var decoded [2][]r3.Vec
	for i, bin := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, WritePLY(&buf, verts, faces, bin))
		got, _, err := ReadPLY(&buf)
		require.NoError(t, err)
		decoded[i] = got
	}
	if diff := cmp.Diff(decoded[1], decoded[0]); diff != "" {
		t.Errorf("ascii and binary decode differently (-binary +ascii):\n%s", diff)
	}
	assert.Equal(t, float32Verts(verts), decoded[0])
}

func TestPLYHeaderVariants(t *testing.T) {
	const ascii = `ply
format ascii 1.0
comment quad with extra properties
element vertex 4
property double x
property double y
property double z
property uchar red
element face 1
property uchar flags
property list uchar uint vertex_index
element edge 1
property int vertex1
property int vertex2
end_header
0 0 0 255
1 0 0 0
1 1 0 0
0 1 0 7
9 4 0 1 2 3
0 1
`
	verts, faces, err := ReadPLY(strings.NewReader(ascii))
	require.NoError(t, err)
	assert.Equal(t, []r3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}, verts)
	assert.Equal(t, [][3]int{{0, 1, 2}, {0, 2, 3}}, faces)

	var buf bytes.Buffer
	buf.WriteString("ply\nformat binary_big_endian 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\n")
	buf.WriteString("element face 1\nproperty list uchar int vertex_indices\nend_header\n")
	for _, v := range []float32{0, 0, 0, 2, 0, 0, 0, 2, 0} {
		binary.Write(&buf, binary.BigEndian, math.Float32bits(v))
	}
	buf.WriteByte(3)
	for _, idx := range []int32{0, 1, 2} {
		binary.Write(&buf, binary.BigEndian, idx)
	}
	verts, faces, err = ReadPLY(&buf)
	require.NoError(t, err)
	assert.Equal(t, []r3.Vec{{}, {X: 2}, {Y: 2}}, verts)
	assert.Equal(t, [][3]int{{0, 1, 2}}, faces)
}

func TestPLYErrors(t *testing.T) {
	for name, src := range map[string]string{
		"magic":            "plx\nformat ascii 1.0\nend_header\n",
		"no format":        "ply\nelement vertex 0\nend_header\n",
		"no faces":         "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n",
		"truncated":        "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n",
		"range":            "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n3 0 1 5\n",
		"bad type":         "ply\nformat ascii 1.0\nelement vertex 1\nproperty quad x\nend_header\n",
		"fractional index": "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n3 0 1.5 2\n",
		"count overflow":   "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n300 0 1 2\n",
		"negative count":   "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n-3 0 1 2\n",
		"bad float":        "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 zero\n3 0 1 2\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ReadPLY(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestSTLRoundTrip(t *testing.T) {
	verts, faces := testmesh.Icosphere(1, 2)
	want := float32Verts(verts)
	for _, bin := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, WriteSTL(&buf, verts, faces, bin))
		if bin {
			assert.Equal(t, sizeOfSTLHeader+sizeOfSTLTriangle*len(faces), buf.Len())
		}
		gotVerts, gotFaces, err := ReadSTL(&buf)
		require.NoError(t, err)
		require.Len(t, gotVerts, len(verts), "binary=%v", bin)
		require.Len(t, gotFaces, len(faces), "binary=%v", bin)
		// Welding assigns indices in first-seen order so compare geometry.
		for i, face := range faces {
			for j := range face {
				a := [3]float32{float32(want[face[j]].X), float32(want[face[j]].Y), float32(want[face[j]].Z)}
				g := gotVerts[gotFaces[i][j]]
				b := [3]float32{float32(g.X), float32(g.Y), float32(g.Z)}
				assert.True(t, equalWithin3F32(a, b, 1e-6), "binary=%v face %d corner %d: %v != %v", bin, i, j, a, b)
			}
		}
	}
}

func TestSTLBadInput(t *testing.T) {
	_, _, err := ReadSTL(strings.NewReader("not a mesh"))
	assert.Error(t, err)
	_, _, err = ReadSTL(strings.NewReader("solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 0 0\nvertex 1 0\n"))
	assert.Error(t, err)
	assert.Error(t, WriteSTL(&bytes.Buffer{}, nil, nil, true))
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	m, err := mesh.New(testmesh.Icosphere(1, 5))
	require.NoError(t, err)
	for _, name := range []string{"sphere.ply", "sphere.stl", "sphere.PLY"} {
		for _, bin := range []bool{false, true} {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, m, bin))
			got, err := Load(path)
			require.NoError(t, err, "%s binary=%v", name, bin)
			assert.Equal(t, m.NumFaces(), got.NumFaces())
			assert.Equal(t, m.NumVertices(), got.NumVertices())
		}
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".meshio-"), "temporary file %s left behind", e.Name())
	}

	_, err = Load(filepath.Join(dir, "missing.ply"))
	assert.Error(t, err)
	err = Save(filepath.Join(dir, "nodir", "out.ply"), m, false)
	assert.Error(t, err)
	_, err = os.Stat(filepath.Join(dir, "nodir", "out.ply"))
	assert.True(t, os.IsNotExist(err))
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatSTL, FormatFromPath("a/b/head.STL"))
	assert.Equal(t, FormatPLY, FormatFromPath("head.ply"))
	assert.Equal(t, FormatPLY, FormatFromPath("head"))
	assert.Equal(t, "stl", FormatSTL.String())
}
