package mesh

import (
	"math"

	"github.com/soypat/hrtfgrade/internal/d3"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// nearestCandidates is the number of triangles kept during a kd-tree
// search. The tree is keyed on triangle centroids so the true closest
// triangle is not always the one with the nearest centroid; keeping a few
// candidates widens the search.
const nearestCandidates = 8

// Surface is an immutable snapshot of a mesh used as the reference geometry
// during remeshing. It answers closest point queries and provides per-vertex
// curvature. Surface methods are safe for concurrent use.
type Surface struct {
	bb        d3.Box
	vertices  []r3.Vec
	faces     [][3]int
	tree      kdtree.Tree
	curvature []float64
}

// SurfacePoint is the result of a closest point query.
type SurfacePoint struct {
	// Point is the closest point on the surface.
	Point r3.Vec
	// Face is the index of the surface face containing Point.
	Face int
	// Bary holds the barycentric coordinates of Point within Face.
	Bary [3]float64
	// Dist is the distance from the query point to Point.
	Dist float64
}

// NewSurface snapshots the live geometry of m.
func NewSurface(m *Mesh) *Surface {
	verts, faces := m.Export()
	s := &Surface{
		bb:       d3.BoxOf(verts),
		vertices: verts,
		faces:    faces,
	}
	tris := make(surfaceTriangles, len(faces))
	for i, face := range faces {
		tri := d3.Triangle{verts[face[0]], verts[face[1]], verts[face[2]]}
		tris[i] = surfaceTriangle{C: tri.Centroid(), T: tri, idx: i}
	}
	s.tree = *kdtree.New(tris, false)
	s.curvature = maxAbsCurvature(verts, faces)
	return s
}

// Bounds returns the bounding box of the surface.
func (s *Surface) Bounds() d3.Box { return s.bb }

// NumVertices returns the number of surface vertices.
func (s *Surface) NumVertices() int { return len(s.vertices) }

// Vertex returns surface vertex i.
func (s *Surface) Vertex(i int) r3.Vec { return s.vertices[i] }

// NumFaces returns the number of faces of the reference surface.
func (s *Surface) NumFaces() int { return len(s.faces) }

// Closest returns the point on the surface closest to p.
func (s *Surface) Closest(p r3.Vec) SurfacePoint {
	keeper := kdtree.NewNKeeper(nearestCandidates)
	s.tree.NearestSet(keeper, &surfaceTriangle{C: p, idx: -1})
	best := SurfacePoint{Face: -1, Dist: math.Inf(1)}
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		tri := cd.Comparable.(*surfaceTriangle)
		if tri.isPoint() {
			continue
		}
		closest, bary := tri.T.Closest(p)
		d := r3.Norm(r3.Sub(p, closest))
		if d < best.Dist || (d == best.Dist && tri.idx < best.Face) {
			best = SurfacePoint{Point: closest, Face: tri.idx, Bary: bary, Dist: d}
		}
	}
	return best
}

// Distance returns the unsigned distance from p to the surface.
func (s *Surface) Distance(p r3.Vec) float64 {
	return s.Closest(p).Dist
}

// VertexCurvature returns the maximum absolute principal curvature
// estimated at surface vertex i.
func (s *Surface) VertexCurvature(i int) float64 { return s.curvature[i] }

// Curvature interpolates the vertex curvature at a surface point.
func (s *Surface) Curvature(sp SurfacePoint) float64 {
	if sp.Face < 0 {
		return 0
	}
	face := s.faces[sp.Face]
	return sp.Bary[0]*s.curvature[face[0]] +
		sp.Bary[1]*s.curvature[face[1]] +
		sp.Bary[2]*s.curvature[face[2]]
}

// surfaceTriangle is the kd-tree element. Query points are represented
// with a negative idx and only C set.
type surfaceTriangle struct {
	C   r3.Vec // Centroid
	T   d3.Triangle
	idx int
}

func (t *surfaceTriangle) isPoint() bool { return t.idx < 0 }

func (t *surfaceTriangle) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(*surfaceTriangle)
	switch d {
	case 0:
		return t.C.X - q.C.X
	case 1:
		return t.C.Y - q.C.Y
	case 2:
		return t.C.Z - q.C.Z
	}
	panic("unreachable")
}

func (t *surfaceTriangle) Dims() int { return 3 }

// Distance returns the squared distance between a query point and a triangle.
// It does not store any state so concurrent searches are safe.
func (t *surfaceTriangle) Distance(c kdtree.Comparable) float64 {
	point := c.(*surfaceTriangle)
	if t.isPoint() {
		if point.isPoint() {
			return r3.Norm2(r3.Sub(t.C, point.C))
		}
		point, t = t, point // make sure `t` is the triangle.
	}
	closest, _ := t.T.Closest(point.C)
	return r3.Norm2(r3.Sub(point.C, closest))
}

type surfaceTriangles []surfaceTriangle

// Index returns the ith element of the list of points.
func (s surfaceTriangles) Index(i int) kdtree.Comparable { return &s[i] }

// Len returns the length of the list.
func (s surfaceTriangles) Len() int { return len(s) }

// Pivot partitions the list based on the dimension specified.
func (s surfaceTriangles) Pivot(d kdtree.Dim) int {
	p := kdPlane{dim: int(d), triangles: s}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// Slice returns a slice of the list using zero-based half
// open indexing equivalent to built-in slice indexing.
func (s surfaceTriangles) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}

type kdPlane struct {
	dim       int
	triangles surfaceTriangles
}

func (p kdPlane) Less(i, j int) bool {
	ti := &p.triangles[i]
	tj := &p.triangles[j]
	return ti.Compare(tj, kdtree.Dim(p.dim)) < 0
}
func (p kdPlane) Swap(i, j int) {
	p.triangles[i], p.triangles[j] = p.triangles[j], p.triangles[i]
}
func (p kdPlane) Len() int {
	return len(p.triangles)
}
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.triangles = p.triangles[start:end]
	return p
}
