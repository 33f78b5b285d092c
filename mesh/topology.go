package mesh

import "gonum.org/v1/gonum/spatial/r3"

// Edge is an undirected edge stored with the lower vertex index first.
type Edge [2]int

// MakeEdge returns the edge joining a and b.
func MakeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{a, b}
}

// Edges returns all unique live edges in the order they are first
// encountered when walking the faces.
func (m *Mesh) Edges() []Edge {
	seen := make(map[Edge]struct{}, 3*m.nfaces/2)
	edges := make([]Edge, 0, 3*m.nfaces/2+1)
	for f, face := range m.faces {
		if m.fdead[f] {
			continue
		}
		for i := range face {
			e := MakeEdge(face[i], face[(i+1)%3])
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
		}
	}
	return edges
}

// EdgeFaces appends the faces containing both a and b to dst.
func (m *Mesh) EdgeFaces(a, b int, dst []int) []int {
	for _, f := range m.incident[a] {
		if slot(m.faces[f], b) >= 0 {
			dst = append(dst, f)
		}
	}
	return dst
}

// HasEdge reports whether a and b are joined by an edge.
func (m *Mesh) HasEdge(a, b int) bool {
	for _, f := range m.incident[a] {
		if slot(m.faces[f], b) >= 0 {
			return true
		}
	}
	return false
}

// Neighbors appends the one-ring of v to dst, each vertex once,
// in the order of v's incident faces.
func (m *Mesh) Neighbors(v int, dst []int) []int {
	start := len(dst)
	for _, f := range m.incident[v] {
		face := m.faces[f]
	NEXT:
		for _, n := range face {
			if n == v {
				continue
			}
			for _, existing := range dst[start:] {
				if existing == n {
					continue NEXT
				}
			}
			dst = append(dst, n)
		}
	}
	return dst
}

// Valence returns the number of edges incident to v.
func (m *Mesh) Valence(v int) int {
	var buf [16]int
	return len(m.Neighbors(v, buf[:0]))
}

// IsBoundaryEdge reports whether the edge ab has exactly one incident face.
func (m *Mesh) IsBoundaryEdge(a, b int) bool {
	var buf [4]int
	return len(m.EdgeFaces(a, b, buf[:0])) == 1
}

// IsBoundaryVertex reports whether v lies on a mesh boundary.
// Isolated vertices are considered boundary.
func (m *Mesh) IsBoundaryVertex(v int) bool {
	if len(m.incident[v]) == 0 {
		return true
	}
	var buf [16]int
	for _, n := range m.Neighbors(v, buf[:0]) {
		if m.IsBoundaryEdge(v, n) {
			return true
		}
	}
	return false
}

// VertexNormal returns the area weighted unit normal at v.
func (m *Mesh) VertexNormal(v int) r3.Vec {
	var n r3.Vec
	for _, f := range m.incident[v] {
		face := m.faces[f]
		a, b, c := m.verts[face[0]], m.verts[face[1]], m.verts[face[2]]
		// Cross product norm is twice the area.
		n = r3.Add(n, r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
	}
	l := r3.Norm(n)
	if l == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/l, n)
}

// opposite returns the vertex of face f that is neither a nor b and
// whether the face traverses a to b in its winding order.
func (m *Mesh) opposite(f, a, b int) (c int, forward bool) {
	face := m.faces[f]
	ia := slot(face, a)
	forward = face[(ia+1)%3] == b
	for _, v := range face {
		if v != a && v != b {
			return v, forward
		}
	}
	panic("bug: face does not contain a third vertex")
}

// Split inserts a new vertex at p on edge ab and retriangulates
// the incident faces. It returns the new vertex index and false if
// the edge does not exist or is non-manifold.
func (m *Mesh) Split(a, b int, p r3.Vec) (int, bool) {
	var buf [4]int
	fs := m.EdgeFaces(a, b, buf[:0])
	if len(fs) == 0 || len(fs) > 2 {
		return -1, false
	}
	v := m.addVertex(p)
	for _, f := range fs {
		face := m.faces[f]
		ia, ib := slot(face, a), slot(face, b)
		// Old face keeps the a side, new face takes the b side.
		// Replacing in place preserves winding.
		nf := face
		nf[ia] = v
		face[ib] = v
		m.faces[f] = face
		m.removeIncident(b, f)
		m.incident[v] = append(m.incident[v], f)
		m.addFace(nf)
	}
	return v, true
}

// CanCollapse checks the topological conditions for merging vertex
// remove into vertex keep along their shared edge. The link condition
// must hold, an interior edge may not join two boundary vertices and
// vertices opposite the edge keep a valid valence.
func (m *Mesh) CanCollapse(keep, remove int) bool {
	var fbuf [4]int
	fs := m.EdgeFaces(keep, remove, fbuf[:0])
	if len(fs) == 0 || len(fs) > 2 {
		return false
	}
	if len(fs) == 2 && m.IsBoundaryVertex(keep) && m.IsBoundaryVertex(remove) {
		return false
	}
	if len(fs) == 1 && m.nfaces <= 1 {
		return false
	}
	var opp [2]int
	for i, f := range fs {
		opp[i], _ = m.opposite(f, keep, remove)
		// The opposite vertex loses one edge.
		minValence := 3
		if m.IsBoundaryVertex(opp[i]) {
			minValence = 2
		}
		if m.Valence(opp[i]) <= minValence {
			return false
		}
	}
	if len(fs) == 2 && opp[0] == opp[1] {
		return false
	}
	// Link condition: common neighbors are exactly the opposite vertices.
	var kbuf, rbuf [16]int
	kn := m.Neighbors(keep, kbuf[:0])
	rn := m.Neighbors(remove, rbuf[:0])
	common := 0
	for _, a := range kn {
		for _, b := range rn {
			if a != b {
				continue
			}
			if a != opp[0] && (len(fs) == 1 || a != opp[1]) {
				return false
			}
			common++
		}
	}
	if common != len(fs) {
		return false
	}
	// Collapsing a tetrahedron-like closed patch would leave a doubled face.
	return m.nfaces > 4
}

// Collapse merges vertex remove into vertex keep. Faces containing both
// vertices are deleted and remove is marked dead. The position of keep is
// unchanged. Collapse does not check CanCollapse.
func (m *Mesh) Collapse(keep, remove int) {
	faces := append([]int(nil), m.incident[remove]...)
	for _, f := range faces {
		face := m.faces[f]
		if slot(face, keep) >= 0 {
			m.killFace(f)
			continue
		}
		face[slot(face, remove)] = keep
		m.faces[f] = face
		m.incident[keep] = append(m.incident[keep], f)
	}
	m.incident[remove] = m.incident[remove][:0]
	m.killVertex(remove)
}

// CanFlip reports whether the interior edge ab can be flipped: it has two
// consistently oriented faces whose opposite vertices are not yet joined.
func (m *Mesh) CanFlip(a, b int) bool {
	_, _, c, d, ok := m.flipQuad(a, b)
	if !ok {
		return false
	}
	return c != d && !m.HasEdge(c, d)
}

// FlipOpposite returns the vertices opposite the edge ab that a flip would join.
func (m *Mesh) FlipOpposite(a, b int) (c, d int, ok bool) {
	_, _, c, d, ok = m.flipQuad(a, b)
	return c, d, ok
}

// flipQuad returns the face traversing a->b (f0, opposite c) and the face
// traversing b->a (f1, opposite d).
func (m *Mesh) flipQuad(a, b int) (f0, f1, c, d int, ok bool) {
	var buf [4]int
	fs := m.EdgeFaces(a, b, buf[:0])
	if len(fs) != 2 {
		return 0, 0, 0, 0, false
	}
	f0, f1 = fs[0], fs[1]
	c, fwd0 := m.opposite(f0, a, b)
	d, fwd1 := m.opposite(f1, a, b)
	if fwd0 == fwd1 {
		return 0, 0, 0, 0, false // inconsistent winding
	}
	if !fwd0 {
		f0, f1 = f1, f0
		c, d = d, c
	}
	return f0, f1, c, d, true
}

// Flip replaces edge ab with the edge joining its opposite vertices.
// It returns false if CanFlip does not hold.
func (m *Mesh) Flip(a, b int) bool {
	f0, f1, c, d, ok := m.flipQuad(a, b)
	if !ok || c == d || m.HasEdge(c, d) {
		return false
	}
	// Quad boundary in winding order is a, d, b, c.
	m.faces[f0] = [3]int{a, d, c}
	m.faces[f1] = [3]int{d, b, c}
	m.removeIncident(a, f1)
	m.removeIncident(b, f0)
	m.incident[c] = append(m.incident[c], f1)
	m.incident[d] = append(m.incident[d], f0)
	return true
}

// FaceNormalAfterMove returns the unit normal of face f if vertex v were at p.
func (m *Mesh) FaceNormalAfterMove(f, v int, p r3.Vec) r3.Vec {
	tri := m.Triangle(f)
	tri[slot(m.faces[f], v)] = p
	return tri.Normal()
}

// FaceNormal returns the unit normal of face f.
func (m *Mesh) FaceNormal(f int) r3.Vec {
	return m.Triangle(f).Normal()
}
