// Package hrtfgrade grades and remeshes head meshes for HRTF simulation.
//
// Grade loads a head mesh, locates the ear canal entrances, refines the
// mesh around the selected ear(s) and coarsens it elsewhere, then writes
// the result. The mesh is expected with the interaural axis along Y and
// the left ear at positive Y. Coordinates are used as given; callers must
// keep lengths and the mesh in the same unit.
package hrtfgrade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/soypat/hrtfgrade/earcanal"
	"github.com/soypat/hrtfgrade/grading"
	"github.com/soypat/hrtfgrade/internal/preview"
	"github.com/soypat/hrtfgrade/mesh"
	"github.com/soypat/hrtfgrade/meshio"
	"github.com/soypat/hrtfgrade/remesh"
	"go.uber.org/zap"
)

// ErrUsage is wrapped by errors caused by missing or inconsistent parameters.
var ErrUsage = errors.New("usage error")

// Params are the per-invocation grading parameters.
type Params struct {
	Input  string
	Output string
	// MinEdge and MaxEdge bound the target edge length.
	MinEdge float64
	MaxEdge float64
	// MaxError is the admissible deviation from the input surface.
	MaxError   float64
	Mode       grading.Mode
	Side       earcanal.Side
	GammaLeft  float64
	GammaRight float64
	// EarLeft and EarRight, when set, are explicit lateral entrance coordinates.
	EarLeft  *float64
	EarRight *float64
	Binary   bool
	Verbose  bool
}

// DefaultParams returns parameters with every optional value set to its default.
func DefaultParams() Params {
	return Params{
		MaxError:   1,
		Mode:       grading.ModeHybrid,
		GammaLeft:  earcanal.DefaultGamma,
		GammaRight: earcanal.DefaultGamma,
	}
}

// Validate checks that required parameters are present and consistent.
// Returned errors wrap ErrUsage, except for an invalid mode which is
// reported as grading.ErrInvalidMode.
func (p Params) Validate() error {
	if p.Mode != grading.ModeHybrid && p.Mode != grading.ModeDistance {
		return grading.ErrInvalidMode
	}
	switch {
	case p.Input == "":
		return fmt.Errorf("%w: no input mesh", ErrUsage)
	case p.Output == "":
		return fmt.Errorf("%w: no output mesh", ErrUsage)
	case p.Side != earcanal.Left && p.Side != earcanal.Right && p.Side != earcanal.Both:
		return fmt.Errorf("%w: side must be left, right or both", ErrUsage)
	case !(p.MinEdge > 0) || math.IsInf(p.MinEdge, 0):
		return fmt.Errorf("%w: min. edge length must be positive", ErrUsage)
	case !(p.MaxEdge > 0) || math.IsInf(p.MaxEdge, 0):
		return fmt.Errorf("%w: max. edge length must be positive", ErrUsage)
	case p.MinEdge > p.MaxEdge:
		return fmt.Errorf("%w: min. edge length %g exceeds max. edge length %g", ErrUsage, p.MinEdge, p.MaxEdge)
	case !(p.MaxError > 0) || math.IsInf(p.MaxError, 0):
		return fmt.Errorf("%w: max. error must be positive", ErrUsage)
	case math.IsNaN(p.GammaLeft) || math.IsNaN(p.GammaRight):
		return fmt.Errorf("%w: gamma must be a number", ErrUsage)
	}
	return nil
}

// Options holds tunables that are rarely changed between invocations.
type Options struct {
	Remesh          remesh.Options
	FalloffRadius   float64
	CurvatureWeight float64
	MidlineBand     float64
	// PreviewPNG and HistogramPNG name optional diagnostic images.
	PreviewPNG   string
	HistogramPNG string
}

// DefaultOptions returns the tunables used when none are configured.
func DefaultOptions() Options {
	return Options{
		Remesh:          remesh.DefaultOptions(),
		CurvatureWeight: grading.DefaultCurvatureWeight,
		MidlineBand:     grading.DefaultMidlineBand,
	}
}

// Result reports the outcome of Grade.
type Result struct {
	Left        earcanal.Entrance
	Right       earcanal.Entrance
	FacesBefore int
	FacesAfter  int
	Remesh      remesh.Stats
	Edges       mesh.EdgeStats
}

// Grade runs a complete grading. When p.Verbose is set progress is
// printed to stdout. The output file is only written after remeshing
// succeeded.
func Grade(ctx context.Context, p Params, opts Options, stdout io.Writer, log *zap.Logger) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	out := verbose{w: stdout, on: p.Verbose}
	out.printf("input: %s\n", p.Input)
	out.printf("output: %s\n", p.Output)
	out.printf("mode: %v\n", p.Mode)
	out.printf("side: %v\n", p.Side)
	out.printf("min. edge length: %g\n", p.MinEdge)
	out.printf("max. edge length: %g\n", p.MaxEdge)
	out.printf("max. error: %g\n", p.MaxError)
	out.printf("gamma scaling left/right: %g/%g\n", p.GammaLeft, p.GammaRight)

	m, err := meshio.Load(p.Input)
	if err != nil {
		return Result{}, err
	}
	ref := mesh.NewSurface(m)
	var res Result
	res.Left, err = earcanal.Locate(earcanal.Left, ref, p.GammaLeft, p.EarLeft)
	if err != nil {
		return Result{}, err
	}
	res.Right, err = earcanal.Locate(earcanal.Right, ref, p.GammaRight, p.EarRight)
	if err != nil {
		return Result{}, err
	}
	out.printf("%sear channel entrance left:   %s\n", estimated(res.Left), formatLateral(res.Left))
	out.printf("%sear channel entrance right: %s\n", estimated(res.Right), formatLateral(res.Right))
	log.Info("located ear canal entrances",
		zap.Float64("left", res.Left.Lateral),
		zap.Float64("right", res.Right.Lateral),
		zap.Any("left_point", res.Left.Point),
		zap.Any("right_point", res.Right.Point),
	)

	field, err := grading.New(grading.Params{
		MinEdge:         p.MinEdge,
		MaxEdge:         p.MaxEdge,
		Mode:            p.Mode,
		Side:            p.Side,
		FalloffRadius:   opts.FalloffRadius,
		CurvatureWeight: opts.CurvatureWeight,
		MidlineBand:     opts.MidlineBand,
	}, ref, res.Left, res.Right)
	if err != nil {
		return Result{}, err
	}
	ropts := opts.Remesh
	ropts.MaxError = p.MaxError
	res.Remesh, err = remesh.Run(ctx, m, ref, field, ropts, log)
	if err != nil {
		return Result{}, err
	}
	m.Compact()
	res.FacesBefore = res.Remesh.FacesBefore
	res.FacesAfter = res.Remesh.FacesAfter
	res.Edges = m.Stats()
	out.printf("Faces before remeshing:  %d\n", res.FacesBefore)
	out.printf("Faces after remeshing:  %d\n", res.FacesAfter)
	log.Info("remeshed",
		zap.Int("iterations", res.Remesh.Iterations),
		zap.Int("faces", res.FacesAfter),
		zap.Float64("edge_min", res.Edges.Min),
		zap.Float64("edge_median", res.Edges.Median),
		zap.Float64("edge_max", res.Edges.Max),
	)

	if err := meshio.Save(p.Output, m, p.Binary); err != nil {
		return Result{}, err
	}
	if err := writeDiagnostics(m, p, opts, res); err != nil {
		// The graded mesh is already written; images are best effort.
		log.Warn("writing diagnostics", zap.Error(err))
	}
	return res, out.err
}

func writeDiagnostics(m *mesh.Mesh, p Params, opts Options, res Result) error {
	if opts.PreviewPNG != "" {
		lateral := res.Left.Lateral
		if p.Side == earcanal.Right {
			lateral = res.Right.Lateral
		}
		verts, faces := m.Export()
		if err := preview.Render(opts.PreviewPNG, verts, faces, 800, 600, preview.SideView(lateral)); err != nil {
			return err
		}
	}
	if opts.HistogramPNG != "" {
		return preview.Histogram(opts.HistogramPNG, m.EdgeLengths(), p.MinEdge, p.MaxEdge)
	}
	return nil
}

func estimated(e earcanal.Entrance) string {
	if e.Explicit {
		return ""
	}
	return "estimated "
}

// formatLateral prints explicit coordinates as given and estimates with
// six significant digits.
func formatLateral(e earcanal.Entrance) string {
	if e.Explicit {
		return strconv.FormatFloat(e.Lateral, 'g', -1, 64)
	}
	return strconv.FormatFloat(e.Lateral, 'g', 6, 64)
}

// verbose prints only when enabled and keeps the first write error.
type verbose struct {
	w   io.Writer
	on  bool
	err error
}

func (v *verbose) printf(format string, args ...any) {
	if !v.on || v.err != nil {
		return
	}
	_, v.err = fmt.Fprintf(v.w, format, args...)
}
