package remesh

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"
)

// relax moves every interior vertex toward the area weighted centroid of
// its incident faces, keeping only the tangential part of the move, and
// projects the result onto the reference surface. New positions are all
// computed from the current ones before any is written.
func (r *remesher) relax(ctx context.Context) (int, error) {
	n := r.m.VertexSlots()
	next := make([]r3.Vec, n)
	moved := make([]bool, n)
	err := r.parallelRange(ctx, n, func(lo, hi int) {
		for v := lo; v < hi; v++ {
			next[v], moved[v] = r.relaxedPosition(v)
		}
	})
	if err != nil {
		return 0, err
	}
	count := 0
	for v, ok := range moved {
		if ok {
			r.m.SetVertex(v, next[v])
			count++
		}
	}
	return count, nil
}

func (r *remesher) relaxedPosition(v int) (r3.Vec, bool) {
	faces := r.m.IncidentFaces(v)
	if !r.m.VertexAlive(v) || len(faces) == 0 || r.m.IsBoundaryVertex(v) {
		return r3.Vec{}, false
	}
	p := r.m.Vertex(v)
	var (
		sum  r3.Vec
		area float64
	)
	for _, f := range faces {
		tri := r.m.Triangle(f)
		a := tri.Area()
		sum = r3.Add(sum, r3.Scale(a, tri.Centroid()))
		area += a
	}
	if area == 0 {
		return r3.Vec{}, false
	}
	n := r.m.VertexNormal(v)
	d := r3.Sub(r3.Scale(1/area, sum), p)
	d = r3.Sub(d, r3.Scale(r3.Dot(d, n), n))
	target := r.ref.Closest(r3.Add(p, d)).Point
	if target == p {
		return r3.Vec{}, false
	}
	for _, f := range faces {
		before := r.m.FaceNormal(f)
		after := r.m.FaceNormalAfterMove(f, v, target)
		if r3.Dot(before, after) < minNormalDot {
			return r3.Vec{}, false
		}
	}
	return target, true
}
