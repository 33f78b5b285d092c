package mesh

import (
	"sort"

	"github.com/soypat/hrtfgrade/internal/d3"
	"gonum.org/v1/gonum/stat"
)

// EdgeStats summarizes the edge lengths of a mesh.
type EdgeStats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Median float64
}

// EdgeLengths returns the length of every live edge in Edges order.
func (m *Mesh) EdgeLengths() []float64 {
	edges := m.Edges()
	lengths := make([]float64, len(edges))
	for i, e := range edges {
		lengths[i] = d3.Dist(m.verts[e[0]], m.verts[e[1]])
	}
	return lengths
}

// Stats computes edge length statistics of the mesh.
func (m *Mesh) Stats() EdgeStats {
	lengths := m.EdgeLengths()
	if len(lengths) == 0 {
		return EdgeStats{}
	}
	sort.Float64s(lengths)
	return EdgeStats{
		Count:  len(lengths),
		Min:    lengths[0],
		Max:    lengths[len(lengths)-1],
		Mean:   stat.Mean(lengths, nil),
		StdDev: stat.StdDev(lengths, nil),
		Median: stat.Quantile(0.5, stat.Empirical, lengths, nil),
	}
}
