// Package earcanal locates the ear canal entrances of a head mesh.
//
// The head is expected in the usual HRTF coordinate frame: the interaural
// axis is Y with the left ear at positive Y. An entrance is either given
// explicitly as a lateral (Y) coordinate or estimated from the lateral
// extent of the mesh with a gamma scaling factor.
package earcanal

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/hrtfgrade/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultGamma is the gamma scaling used when none is given.
const DefaultGamma = 0.15

// Side selects one or both ears.
type Side int

const (
	Left Side = iota + 1
	Right
	Both
)

// ParseSide parses "left", "right" or "both".
func ParseSide(s string) (Side, error) {
	switch s {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "both":
		return Both, nil
	}
	return 0, fmt.Errorf("invalid side %q, must be 'left', 'right' or 'both'", s)
}

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	case Both:
		return "both"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// Includes reports whether selecting s grades the ear on side ear.
func (s Side) Includes(ear Side) bool {
	return s == ear || (s == Both && (ear == Left || ear == Right))
}

// Entrance is the located ear canal entrance of one side.
type Entrance struct {
	Side Side
	// Lateral is the Y coordinate of the entrance.
	Lateral float64
	// Point is the entrance on the head surface: the surface point closest
	// to (x, Lateral, z), where x and z are those of the most lateral
	// vertex on Side.
	Point r3.Vec
	// Explicit is set when Lateral was supplied rather than estimated.
	Explicit bool
}

// Estimate returns the lateral entrance coordinate for a head whose lateral
// extent is [ymin, ymax]. Gamma is the fraction of the head width the
// entrance lies inward from the outermost point of that side, so increasing
// gamma moves the estimate toward the center of the head.
func Estimate(side Side, ymin, ymax, gamma float64) float64 {
	width := ymax - ymin
	switch side {
	case Left:
		return ymax - gamma*width
	case Right:
		return ymin + gamma*width
	}
	panic("bug: estimate requires Left or Right side")
}

// Locate returns the entrance for a single side of the head surface s.
// If explicit is not nil its value is used as the lateral coordinate and
// gamma is ignored.
func Locate(side Side, s *mesh.Surface, gamma float64, explicit *float64) (Entrance, error) {
	if side != Left && side != Right {
		return Entrance{}, fmt.Errorf("cannot locate entrance for side %v", side)
	}
	if s.NumVertices() == 0 || s.NumFaces() == 0 {
		return Entrance{}, errors.New("cannot locate entrance on empty mesh")
	}
	outer := s.Vertex(0)
	for v := 1; v < s.NumVertices(); v++ {
		if p := s.Vertex(v); moreLateral(side, p.Y, outer.Y) {
			outer = p
		}
	}
	bb := s.Bounds()
	e := Entrance{Side: side}
	if explicit != nil {
		if math.IsNaN(*explicit) || math.IsInf(*explicit, 0) {
			return Entrance{}, fmt.Errorf("%v entrance coordinate %v is not finite", side, *explicit)
		}
		e.Lateral = *explicit
		e.Explicit = true
	} else {
		if math.IsNaN(gamma) || math.IsInf(gamma, 0) {
			return Entrance{}, fmt.Errorf("%v gamma %v is not finite", side, gamma)
		}
		e.Lateral = Estimate(side, bb.Min.Y, bb.Max.Y, gamma)
	}
	e.Point = s.Closest(r3.Vec{X: outer.X, Y: e.Lateral, Z: outer.Z}).Point
	return e, nil
}

func moreLateral(side Side, y, than float64) bool {
	if side == Left {
		return y > than
	}
	return y < than
}
