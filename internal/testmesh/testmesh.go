// Package testmesh builds small synthetic meshes for tests.
package testmesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Icosphere returns a unit-radius sphere scaled by radius, obtained by
// subdividing an icosahedron subdiv times. Faces wind counter-clockwise
// seen from outside.
func Icosphere(subdiv int, radius float64) ([]r3.Vec, [][3]int) {
	t := (1 + math.Sqrt(5)) / 2
	verts := []r3.Vec{
		{X: -1, Y: t}, {X: 1, Y: t}, {X: -1, Y: -t}, {X: 1, Y: -t},
		{Y: -1, Z: t}, {Y: 1, Z: t}, {Y: -1, Z: -t}, {Y: 1, Z: -t},
		{X: t, Z: -1}, {X: t, Z: 1}, {X: -t, Z: -1}, {X: -t, Z: 1},
	}
	faces := [][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	for i := range verts {
		verts[i] = r3.Unit(verts[i])
	}
	for s := 0; s < subdiv; s++ {
		cache := make(map[[2]int]int)
		mid := func(a, b int) int {
			key := [2]int{a, b}
			if a > b {
				key = [2]int{b, a}
			}
			if v, ok := cache[key]; ok {
				return v
			}
			verts = append(verts, r3.Unit(r3.Add(verts[a], verts[b])))
			cache[key] = len(verts) - 1
			return len(verts) - 1
		}
		next := make([][3]int, 0, 4*len(faces))
		for _, f := range faces {
			a, b, c := mid(f[0], f[1]), mid(f[1], f[2]), mid(f[2], f[0])
			next = append(next,
				[3]int{f[0], a, c},
				[3]int{f[1], b, a},
				[3]int{f[2], c, b},
				[3]int{a, b, c},
			)
		}
		faces = next
	}
	for i := range verts {
		verts[i] = r3.Scale(radius, verts[i])
	}
	return verts, faces
}

// Ellipsoid returns an icosphere stretched to the given semi-axes.
func Ellipsoid(subdiv int, axes r3.Vec) ([]r3.Vec, [][3]int) {
	verts, faces := Icosphere(subdiv, 1)
	for i, v := range verts {
		verts[i] = r3.Vec{X: v.X * axes.X, Y: v.Y * axes.Y, Z: v.Z * axes.Z}
	}
	return verts, faces
}

// Head returns a coarse head-like ellipsoid whose lateral (Y) extent
// is [-97.01805, 94.09705], matching the reference head used to calibrate
// the ear canal estimate.
func Head(subdiv int) ([]r3.Vec, [][3]int) {
	const ymax, ymin = 94.09705, -97.01805
	verts, faces := Ellipsoid(subdiv, r3.Vec{X: 100, Y: (ymax - ymin) / 2, Z: 115})
	// Subdivided icosahedra have no vertex on the Y poles, rescale so the
	// extent is exact.
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range verts {
		lo = math.Min(lo, v.Y)
		hi = math.Max(hi, v.Y)
	}
	for i := range verts {
		verts[i].Y = ymin + (verts[i].Y-lo)*(ymax-ymin)/(hi-lo)
	}
	return verts, faces
}

// Grid returns a flat n-by-n quad grid in the XY plane split into
// 2*n*n triangles, spanning [0,size] on both axes.
func Grid(n int, size float64) ([]r3.Vec, [][3]int) {
	verts := make([]r3.Vec, 0, (n+1)*(n+1))
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			verts = append(verts, r3.Vec{X: size * float64(i) / float64(n), Y: size * float64(j) / float64(n)})
		}
	}
	idx := func(i, j int) int { return j*(n+1) + i }
	faces := make([][3]int, 0, 2*n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			a, b, c, d := idx(i, j), idx(i+1, j), idx(i+1, j+1), idx(i, j+1)
			faces = append(faces, [3]int{a, b, c}, [3]int{a, c, d})
		}
	}
	return verts, faces
}
