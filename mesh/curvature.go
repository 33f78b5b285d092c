package mesh

import (
	"math"

	"github.com/soypat/hrtfgrade/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxAbsCurvature estimates the maximum absolute principal curvature at
// every vertex. Mean curvature comes from the cotangent Laplacian and
// Gaussian curvature from the angle deficit, both normalized by the
// barycentric vertex area:
//
//	kappa = |H| + sqrt(max(0, H^2 - K))
//
// Boundary and isolated vertices get zero curvature.
func maxAbsCurvature(verts []r3.Vec, faces [][3]int) []float64 {
	n := len(verts)
	area := make([]float64, n)
	angles := make([]float64, n)
	laplace := make([]r3.Vec, n)
	edgeUse := make(map[Edge]int, 3*len(faces)/2)
	for _, face := range faces {
		tri := d3.Triangle{verts[face[0]], verts[face[1]], verts[face[2]]}
		a := tri.Area() / 3
		for i := 0; i < 3; i++ {
			vi, vj, vk := face[i], face[(i+1)%3], face[(i+2)%3]
			pi, pj, pk := verts[vi], verts[vj], verts[vk]
			area[vi] += a
			angles[vi] += d3.Angle(r3.Sub(pj, pi), r3.Sub(pk, pi))
			// Corner at vk weighs edge (vi,vj).
			w := d3.Cot(r3.Sub(pi, pk), r3.Sub(pj, pk))
			d := r3.Scale(w, r3.Sub(pi, pj))
			laplace[vi] = r3.Add(laplace[vi], d)
			laplace[vj] = r3.Sub(laplace[vj], d)
			edgeUse[MakeEdge(vi, vj)]++
		}
	}
	boundary := make([]bool, n)
	for e, uses := range edgeUse {
		if uses == 1 {
			boundary[e[0]] = true
			boundary[e[1]] = true
		}
	}
	kappa := make([]float64, n)
	for v := range verts {
		if boundary[v] || area[v] <= 0 {
			continue
		}
		h := r3.Norm(laplace[v]) / (4 * area[v])
		k := (2*math.Pi - angles[v]) / area[v]
		kappa[v] = h + math.Sqrt(math.Max(0, h*h-k))
	}
	return kappa
}
