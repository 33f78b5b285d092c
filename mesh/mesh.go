// Package mesh implements an indexed triangle mesh suited for frequent
// topological mutation and a static reference surface for closest point
// queries against the original geometry.
//
// Vertices and faces live in contiguous arrays addressed by integer index.
// Removing an element marks its slot dead; slots are never shifted until
// Compact is called, so indices held by callers stay valid while a mesh
// is being remeshed.
package mesh

import (
	"errors"
	"fmt"

	"github.com/soypat/hrtfgrade/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a triangle mesh with vertex to face incidence.
// Faces are stored with counter-clockwise winding.
type Mesh struct {
	verts []r3.Vec
	faces [][3]int
	vdead []bool
	fdead []bool
	// incident contains the faces incident to each vertex. It is derived
	// from faces and kept up to date by the topology operations.
	incident [][]int
	nverts   int
	nfaces   int
}

// New creates a mesh from vertex positions and triangles. The slices are copied.
// Triangles referencing out of range vertices or repeating a vertex are rejected.
func New(vertices []r3.Vec, triangles [][3]int) (*Mesh, error) {
	if len(triangles) == 0 {
		return nil, errors.New("mesh has no faces")
	}
	m := &Mesh{
		verts: append([]r3.Vec(nil), vertices...),
		vdead: make([]bool, len(vertices)),
		faces: make([][3]int, 0, len(triangles)),
	}
	for i, v := range m.verts {
		if !d3.IsFinite(v) {
			return nil, fmt.Errorf("vertex %d has non-finite coordinates %v", i, v)
		}
	}
	for i, tri := range triangles {
		for _, vi := range tri {
			if vi < 0 || vi >= len(vertices) {
				return nil, fmt.Errorf("face %d references vertex %d out of range [0,%d)", i, vi, len(vertices))
			}
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
			return nil, fmt.Errorf("face %d is degenerate: %v", i, tri)
		}
		m.faces = append(m.faces, tri)
	}
	m.fdead = make([]bool, len(m.faces))
	m.nverts = len(m.verts)
	m.nfaces = len(m.faces)
	m.buildIncidence()
	return m, nil
}

func (m *Mesh) buildIncidence() {
	m.incident = make([][]int, len(m.verts))
	for f, face := range m.faces {
		if m.fdead[f] {
			continue
		}
		for _, v := range face {
			if m.incident[v] == nil {
				m.incident[v] = make([]int, 0, 8)
			}
			m.incident[v] = append(m.incident[v], f)
		}
	}
}

// NumFaces returns the number of live faces.
func (m *Mesh) NumFaces() int { return m.nfaces }

// NumVertices returns the number of live vertices.
func (m *Mesh) NumVertices() int { return m.nverts }

// VertexSlots returns the number of vertex slots, live or dead.
// Valid vertex indices are in [0, VertexSlots()).
func (m *Mesh) VertexSlots() int { return len(m.verts) }

// FaceSlots returns the number of face slots, live or dead.
func (m *Mesh) FaceSlots() int { return len(m.faces) }

// VertexAlive reports whether vertex v has not been removed.
func (m *Mesh) VertexAlive(v int) bool { return !m.vdead[v] }

// FaceAlive reports whether face f has not been removed.
func (m *Mesh) FaceAlive(f int) bool { return !m.fdead[f] }

// Vertex returns the position of vertex v.
func (m *Mesh) Vertex(v int) r3.Vec { return m.verts[v] }

// SetVertex moves vertex v to p.
func (m *Mesh) SetVertex(v int, p r3.Vec) { m.verts[v] = p }

// Face returns the vertex indices of face f.
func (m *Mesh) Face(f int) [3]int { return m.faces[f] }

// Triangle returns the geometry of face f.
func (m *Mesh) Triangle(f int) d3.Triangle {
	face := m.faces[f]
	return d3.Triangle{m.verts[face[0]], m.verts[face[1]], m.verts[face[2]]}
}

// IncidentFaces returns the live faces containing vertex v.
// The returned slice must not be modified and is invalidated by topology operations.
func (m *Mesh) IncidentFaces(v int) []int { return m.incident[v] }

// Bounds returns the bounding box of the live vertices.
func (m *Mesh) Bounds() d3.Box {
	bb := d3.EmptyBox()
	for v, p := range m.verts {
		if m.vdead[v] || len(m.incident[v]) == 0 {
			continue
		}
		bb = bb.Include(p)
	}
	return bb
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		verts:    append([]r3.Vec(nil), m.verts...),
		faces:    append([][3]int(nil), m.faces...),
		vdead:    append([]bool(nil), m.vdead...),
		fdead:    append([]bool(nil), m.fdead...),
		incident: make([][]int, len(m.incident)),
		nverts:   m.nverts,
		nfaces:   m.nfaces,
	}
	for i := range m.incident {
		c.incident[i] = append([]int(nil), m.incident[i]...)
	}
	return c
}

// Export returns compacted copies of the live vertices and faces.
// Vertices not referenced by any live face are dropped.
func (m *Mesh) Export() (vertices []r3.Vec, triangles [][3]int) {
	remap := make([]int, len(m.verts))
	vertices = make([]r3.Vec, 0, m.nverts)
	for v := range m.verts {
		remap[v] = -1
		if m.vdead[v] || len(m.incident[v]) == 0 {
			continue
		}
		remap[v] = len(vertices)
		vertices = append(vertices, m.verts[v])
	}
	triangles = make([][3]int, 0, m.nfaces)
	for f, face := range m.faces {
		if m.fdead[f] {
			continue
		}
		triangles = append(triangles, [3]int{remap[face[0]], remap[face[1]], remap[face[2]]})
	}
	return vertices, triangles
}

// Compact drops dead slots and reindexes vertices and faces in their
// original relative order. Indices held before the call are invalidated.
func (m *Mesh) Compact() {
	verts, faces := m.Export()
	m.verts = verts
	m.faces = faces
	m.vdead = make([]bool, len(verts))
	m.fdead = make([]bool, len(faces))
	m.nverts = len(verts)
	m.nfaces = len(faces)
	m.buildIncidence()
}

func (m *Mesh) addVertex(p r3.Vec) int {
	m.verts = append(m.verts, p)
	m.vdead = append(m.vdead, false)
	m.incident = append(m.incident, make([]int, 0, 8))
	m.nverts++
	return len(m.verts) - 1
}

func (m *Mesh) addFace(face [3]int) int {
	f := len(m.faces)
	m.faces = append(m.faces, face)
	m.fdead = append(m.fdead, false)
	for _, v := range face {
		m.incident[v] = append(m.incident[v], f)
	}
	m.nfaces++
	return f
}

func (m *Mesh) killFace(f int) {
	if m.fdead[f] {
		panic("bug: face removed twice")
	}
	for _, v := range m.faces[f] {
		m.removeIncident(v, f)
	}
	m.fdead[f] = true
	m.nfaces--
}

func (m *Mesh) killVertex(v int) {
	if len(m.incident[v]) != 0 {
		panic("bug: removing vertex with incident faces")
	}
	m.vdead[v] = true
	m.incident[v] = nil
	m.nverts--
}

func (m *Mesh) removeIncident(v, f int) {
	inc := m.incident[v]
	for i, g := range inc {
		if g == f {
			// Preserve order so iteration stays deterministic.
			m.incident[v] = append(inc[:i], inc[i+1:]...)
			return
		}
	}
	panic("bug: face not incident to vertex")
}

// slot returns the position of vertex v within face, or -1.
func slot(face [3]int, v int) int {
	switch v {
	case face[0]:
		return 0
	case face[1]:
		return 1
	case face[2]:
		return 2
	}
	return -1
}
