// Package grading defines the target edge length field used to grade a
// head mesh around the ear canal entrances.
//
// The field grows linearly from the minimum edge length at an entrance to
// the maximum edge length at the falloff radius. In hybrid mode the length
// is additionally pulled toward the minimum where the reference surface is
// strongly curved, which keeps the folds of the pinna resolved away from
// the canal itself. Only the half of the head belonging to a selected ear
// is graded; everything else gets the maximum edge length.
package grading

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/hrtfgrade/earcanal"
	"github.com/soypat/hrtfgrade/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidMode is returned by ParseMode for unknown mode names.
var ErrInvalidMode = errors.New("Invalid mode! Mode must be 'hybrid' or 'distance'")

// Mode selects how the edge length field is computed.
type Mode int

const (
	// ModeHybrid combines distance to the entrance with surface curvature.
	ModeHybrid Mode = iota
	// ModeDistance uses distance to the entrance only.
	ModeDistance
)

// ParseMode parses "hybrid" or "distance".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "hybrid":
		return ModeHybrid, nil
	case "distance":
		return ModeDistance, nil
	}
	return 0, ErrInvalidMode
}

func (m Mode) String() string {
	switch m {
	case ModeHybrid:
		return "hybrid"
	case ModeDistance:
		return "distance"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Defaults for the tunable parameters of the field.
const (
	DefaultCurvatureWeight = 0.5
	DefaultMidlineBand     = 0.1
)

// Params configures a Field.
type Params struct {
	MinEdge float64
	MaxEdge float64
	Mode    Mode
	Side    earcanal.Side
	// FalloffRadius is the distance from an entrance at which the field
	// reaches MaxEdge. Zero selects the lateral distance between the
	// entrance and the mid-sagittal plane.
	FalloffRadius float64
	// CurvatureWeight scales the curvature term of hybrid mode.
	CurvatureWeight float64
	// MidlineBand is the width, as a fraction of the head width, of the
	// band next to the mid-sagittal plane across which the graded side
	// blends into MaxEdge. Must be in (0, 0.5].
	MidlineBand float64
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	switch {
	case !(p.MinEdge > 0) || math.IsInf(p.MinEdge, 0):
		return fmt.Errorf("min. edge length must be positive, got %g", p.MinEdge)
	case !(p.MaxEdge > 0) || math.IsInf(p.MaxEdge, 0):
		return fmt.Errorf("max. edge length must be positive, got %g", p.MaxEdge)
	case p.MinEdge > p.MaxEdge:
		return fmt.Errorf("min. edge length %g exceeds max. edge length %g", p.MinEdge, p.MaxEdge)
	case p.Mode != ModeHybrid && p.Mode != ModeDistance:
		return ErrInvalidMode
	case p.Side != earcanal.Left && p.Side != earcanal.Right && p.Side != earcanal.Both:
		return fmt.Errorf("invalid side %v", p.Side)
	case p.FalloffRadius < 0 || p.CurvatureWeight < 0:
		return errors.New("field tunables must not be negative")
	case !(p.MidlineBand > 0) || p.MidlineBand > 0.5:
		return fmt.Errorf("midline band must be in (0, 0.5], got %g", p.MidlineBand)
	}
	return nil
}

type ear struct {
	side   earcanal.Side
	point  r3.Vec
	radius float64
}

// Field maps points near the reference surface to a target edge length.
// Its methods are safe for concurrent use.
type Field struct {
	p       Params
	surf    *mesh.Surface
	midline float64
	band    float64
	ears    []ear
}

// New builds the field for the sides selected in p. Entrances for sides
// that are not selected are ignored.
func New(p Params, surf *mesh.Surface, left, right earcanal.Entrance) (*Field, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	bb := surf.Bounds()
	f := &Field{
		p:       p,
		surf:    surf,
		midline: (bb.Min.Y + bb.Max.Y) / 2,
		band:    p.MidlineBand * (bb.Max.Y - bb.Min.Y),
	}
	if !(f.band > 0) {
		return nil, errors.New("head has no lateral extent")
	}
	for _, e := range []earcanal.Entrance{left, right} {
		if !p.Side.Includes(e.Side) {
			continue
		}
		radius := p.FalloffRadius
		if radius == 0 {
			radius = math.Abs(e.Point.Y - f.midline)
		}
		// An entrance placed on the midline would otherwise turn the
		// falloff into a step.
		radius = math.Max(radius, p.MaxEdge)
		f.ears = append(f.ears, ear{side: e.Side, point: e.Point, radius: radius})
	}
	if len(f.ears) == 0 {
		return nil, fmt.Errorf("no entrance given for side %v", p.Side)
	}
	return f, nil
}

// Midline returns the lateral coordinate of the mid-sagittal plane.
func (f *Field) Midline() float64 { return f.midline }

// TargetLength returns the desired edge length at p, in [MinEdge, MaxEdge].
func (f *Field) TargetLength(p r3.Vec) float64 {
	lmin, lmax := f.p.MinEdge, f.p.MaxEdge
	curv := -1.0
	target := lmax
	for _, e := range f.ears {
		if !f.onSide(e.side, p) {
			continue
		}
		d := r3.Norm(r3.Sub(p, e.point))
		l := lmin + (lmax-lmin)*math.Min(1, d/e.radius)
		if f.p.Mode == ModeHybrid {
			if curv < 0 {
				curv = f.surf.Curvature(f.surf.Closest(p))
			}
			l -= f.curvatureFactor(curv) * (l - lmin)
		}
		// Both halves meet at MaxEdge on the midline.
		l = lmax - f.midlineWeight(p)*(lmax-l)
		target = math.Min(target, l)
	}
	return math.Max(lmin, math.Min(lmax, target))
}

func (f *Field) onSide(side earcanal.Side, p r3.Vec) bool {
	if side == earcanal.Left {
		return p.Y >= f.midline
	}
	return p.Y <= f.midline
}

func (f *Field) curvatureFactor(curv float64) float64 {
	return math.Max(0, math.Min(1, f.p.CurvatureWeight*curv*f.p.MaxEdge))
}

// midlineWeight is 0 on the mid-sagittal plane and 1 beyond the band.
func (f *Field) midlineWeight(p r3.Vec) float64 {
	return math.Min(1, math.Abs(p.Y-f.midline)/f.band)
}
