// Package remesh implements adaptive isotropic remeshing of a triangle mesh
// toward a target edge length field.
//
// Each iteration runs four phases over the mesh: long edges are split,
// short edges collapsed, edges flipped to regularize vertex valence and
// vertices relaxed tangentially and projected back onto the reference
// surface. Iteration stops once the face count settles or after a fixed
// number of iterations.
package remesh

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/soypat/hrtfgrade/mesh"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// SizingField returns the desired edge length around a point.
type SizingField interface {
	TargetLength(p r3.Vec) float64
}

// Options controls the remeshing loop.
type Options struct {
	// Iterations is the maximum number of iterations.
	Iterations int
	// Convergence stops iteration once the relative change of the face
	// count between two iterations drops below it.
	Convergence float64
	// Edges longer than SplitFactor times the target length are split.
	SplitFactor float64
	// Edges shorter than CollapseFactor times the target length are collapsed.
	CollapseFactor float64
	// MaxError is the largest distance a modified face may deviate from
	// the reference surface.
	MaxError float64
	// Workers bounds the goroutines used for candidate detection and
	// relaxation. Zero uses GOMAXPROCS.
	Workers int
}

// DefaultOptions returns the options used by the command line tool.
func DefaultOptions() Options {
	return Options{
		Iterations:     10,
		Convergence:    0.001,
		SplitFactor:    4. / 3,
		CollapseFactor: 4. / 5,
		MaxError:       1,
	}
}

func (o Options) validate() error {
	switch {
	case o.Iterations <= 0:
		return fmt.Errorf("iterations must be positive, got %d", o.Iterations)
	case o.Convergence < 0:
		return fmt.Errorf("convergence must not be negative, got %g", o.Convergence)
	case !(o.CollapseFactor > 0) || o.CollapseFactor >= o.SplitFactor:
		return fmt.Errorf("need 0 < collapse factor (%g) < split factor (%g)", o.CollapseFactor, o.SplitFactor)
	case !(o.MaxError > 0):
		return fmt.Errorf("max. error must be positive, got %g", o.MaxError)
	case o.Workers < 0:
		return errors.New("workers must not be negative")
	}
	return nil
}

// Stats summarizes a remeshing run.
type Stats struct {
	FacesBefore int
	FacesAfter  int
	Iterations  int
	Splits      int
	Collapses   int
	Flips       int
	Relaxed     int
}

type remesher struct {
	m     *mesh.Mesh
	ref   *mesh.Surface
	field SizingField
	opts  Options
	log   *zap.Logger
}

// Run remeshes m in place. The reference surface ref is used for error
// checks and projection and must not be derived from m after Run starts.
// Results are deterministic for a given input regardless of Workers.
func Run(ctx context.Context, m *mesh.Mesh, ref *mesh.Surface, field SizingField, opts Options, log *zap.Logger) (Stats, error) {
	if err := opts.validate(); err != nil {
		return Stats{}, err
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &remesher{m: m, ref: ref, field: field, opts: opts, log: log}
	st := Stats{FacesBefore: m.NumFaces()}
	prev := m.NumFaces()
	for it := 0; it < opts.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		splits, err := r.splitLong(ctx)
		if err != nil {
			return st, err
		}
		collapses, err := r.collapseShort(ctx)
		if err != nil {
			return st, err
		}
		flips := r.flipEdges()
		relaxed, err := r.relax(ctx)
		if err != nil {
			return st, err
		}
		st.Iterations++
		st.Splits += splits
		st.Collapses += collapses
		st.Flips += flips
		st.Relaxed += relaxed
		faces := m.NumFaces()
		if log.Core().Enabled(zap.DebugLevel) {
			es := m.Stats()
			log.Debug("remesh iteration",
				zap.Int("iteration", it+1),
				zap.Int("faces", faces),
				zap.Int("splits", splits),
				zap.Int("collapses", collapses),
				zap.Int("flips", flips),
				zap.Int("relaxed", relaxed),
				zap.Float64("edge_mean", es.Mean),
				zap.Float64("edge_stddev", es.StdDev),
			)
		}
		change := math.Abs(float64(faces-prev)) / float64(prev)
		prev = faces
		if change < opts.Convergence {
			break
		}
	}
	st.FacesAfter = m.NumFaces()
	return st, nil
}
