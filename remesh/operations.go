package remesh

import (
	"context"
	"sort"

	"github.com/soypat/hrtfgrade/internal/d3"
	"github.com/soypat/hrtfgrade/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// maxSplitPasses bounds the split passes of one iteration. Every pass
	// halves the offending edges so few passes are ever needed.
	maxSplitPasses = 16
	// minNormalDot is the smallest cosine allowed between a face normal
	// before and after an operation.
	minNormalDot = 0.2
	// minAreaRatio rejects operations producing slivers.
	minAreaRatio = 1e-6
)

type edgeCandidate struct {
	e      mesh.Edge
	length float64
}

// edgeCandidates measures all live edges in parallel and returns those
// selected by keep, in Edges order.
func (r *remesher) edgeCandidates(ctx context.Context, keep func(length, target float64) bool) ([]edgeCandidate, error) {
	edges := r.m.Edges()
	lengths := make([]float64, len(edges))
	selected := make([]bool, len(edges))
	err := r.parallelRange(ctx, len(edges), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			a, b := r.m.Vertex(edges[i][0]), r.m.Vertex(edges[i][1])
			lengths[i] = d3.Dist(a, b)
			selected[i] = keep(lengths[i], r.field.TargetLength(d3.Midpoint(a, b)))
		}
	})
	if err != nil {
		return nil, err
	}
	var cands []edgeCandidate
	for i, e := range edges {
		if selected[i] {
			cands = append(cands, edgeCandidate{e: e, length: lengths[i]})
		}
	}
	return cands, nil
}

// splitLong splits edges longer than SplitFactor times the target length
// at their midpoints, longest first, until none remain.
func (r *remesher) splitLong(ctx context.Context) (int, error) {
	total := 0
	for pass := 0; pass < maxSplitPasses; pass++ {
		cands, err := r.edgeCandidates(ctx, func(length, target float64) bool {
			return length > r.opts.SplitFactor*target
		})
		if err != nil {
			return total, err
		}
		if len(cands) == 0 {
			break
		}
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].length > cands[j].length })
		for _, c := range cands {
			a, b := c.e[0], c.e[1]
			if _, ok := r.m.Split(a, b, d3.Midpoint(r.m.Vertex(a), r.m.Vertex(b))); ok {
				total++
			}
		}
	}
	return total, nil
}

// collapseShort collapses edges shorter than CollapseFactor times the
// target length, shortest first. Collapses that would break the mesh or
// the error bound are skipped.
func (r *remesher) collapseShort(ctx context.Context) (int, error) {
	cands, err := r.edgeCandidates(ctx, func(length, target float64) bool {
		return length < r.opts.CollapseFactor*target
	})
	if err != nil {
		return 0, err
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].length < cands[j].length })
	total := 0
	for _, c := range cands {
		a, b := c.e[0], c.e[1]
		if !r.m.VertexAlive(a) || !r.m.VertexAlive(b) || !r.m.HasEdge(a, b) {
			continue
		}
		pa, pb := r.m.Vertex(a), r.m.Vertex(b)
		// Neighboring collapses may have stretched the edge.
		if d3.Dist(pa, pb) >= r.opts.CollapseFactor*r.field.TargetLength(d3.Midpoint(pa, pb)) {
			continue
		}
		ba, bb := r.m.IsBoundaryVertex(a), r.m.IsBoundaryVertex(b)
		tries := [][2]int{{a, b}, {b, a}} // {keep, remove}
		switch {
		case ba && !bb:
			tries = tries[:1]
		case bb && !ba:
			tries = tries[1:]
		}
		for _, kr := range tries {
			if r.canCollapse(kr[0], kr[1]) {
				r.m.Collapse(kr[0], kr[1])
				total++
				break
			}
		}
	}
	return total, nil
}

func (r *remesher) canCollapse(keep, remove int) bool {
	if !r.m.CanCollapse(keep, remove) {
		return false
	}
	pk := r.m.Vertex(keep)
	var nbuf [16]int
	for _, n := range r.m.Neighbors(remove, nbuf[:0]) {
		if n == keep {
			continue
		}
		pn := r.m.Vertex(n)
		if d3.Dist(pk, pn) > r.opts.SplitFactor*r.field.TargetLength(d3.Midpoint(pk, pn)) {
			return false
		}
	}
	for _, f := range r.m.IncidentFaces(remove) {
		face := r.m.Face(f)
		if face[0] == keep || face[1] == keep || face[2] == keep {
			continue
		}
		old := r.m.Triangle(f)
		tri := old
		for i := range face {
			if face[i] == remove {
				tri[i] = pk
			}
		}
		if !r.replaceable(old, tri) {
			return false
		}
	}
	return true
}

// flipEdges flips interior edges when this brings the valence of the
// four vertices involved closer to the ideal valence.
func (r *remesher) flipEdges() int {
	total := 0
	for _, e := range r.m.Edges() {
		a, b := e[0], e[1]
		if !r.m.CanFlip(a, b) {
			continue
		}
		c, d, _ := r.m.FlipOpposite(a, b)
		va, vb, vc, vd := r.m.Valence(a), r.m.Valence(b), r.m.Valence(c), r.m.Valence(d)
		if va <= 3 || vb <= 3 {
			continue
		}
		before := r.valenceDeviation(a, va) + r.valenceDeviation(b, vb) +
			r.valenceDeviation(c, vc) + r.valenceDeviation(d, vd)
		after := r.valenceDeviation(a, va-1) + r.valenceDeviation(b, vb-1) +
			r.valenceDeviation(c, vc+1) + r.valenceDeviation(d, vd+1)
		if after >= before {
			continue
		}
		pa, pb, pc, pd := r.m.Vertex(a), r.m.Vertex(b), r.m.Vertex(c), r.m.Vertex(d)
		old0 := d3.Triangle{pa, pb, pc}
		old1 := d3.Triangle{pb, pa, pd}
		new0 := d3.Triangle{pa, pd, pc}
		new1 := d3.Triangle{pd, pb, pc}
		if r3.Dot(new0.Normal(), new1.Normal()) < minNormalDot ||
			!r.replaceable(old0, new0) || !r.replaceable(old1, new1) {
			continue
		}
		if r.m.Flip(a, b) {
			total++
		}
	}
	return total
}

func (r *remesher) valenceDeviation(v, valence int) int {
	target := 6
	if r.m.IsBoundaryVertex(v) {
		target = 4
	}
	d := valence - target
	return d * d
}

// replaceable reports whether triangle old may be replaced by tri: tri
// must not be a sliver, must not fold over and must stay within the error
// bound of the reference surface.
func (r *remesher) replaceable(old, tri d3.Triangle) bool {
	if tri.Area() <= minAreaRatio*old.Area() {
		return false
	}
	if r3.Dot(old.Normal(), tri.Normal()) < minNormalDot {
		return false
	}
	return r.withinError(tri)
}

// withinError checks the centroid and edge midpoints of tri against the
// reference surface.
func (r *remesher) withinError(tri d3.Triangle) bool {
	samples := [4]r3.Vec{
		tri.Centroid(),
		d3.Midpoint(tri[0], tri[1]),
		d3.Midpoint(tri[1], tri[2]),
		d3.Midpoint(tri[2], tri[0]),
	}
	for _, p := range samples {
		if r.ref.Distance(p) > r.opts.MaxError {
			return false
		}
	}
	return true
}
