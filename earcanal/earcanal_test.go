package earcanal_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/soypat/hrtfgrade/earcanal"
	"github.com/soypat/hrtfgrade/internal/testmesh"
	"github.com/soypat/hrtfgrade/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const refMin, refMax = -97.01805, 94.09705

func TestEstimateCalibration(t *testing.T) {
	tests := []struct {
		side  earcanal.Side
		gamma float64
		want  string
	}{
		{earcanal.Left, 0.15, "65.4298"},
		{earcanal.Right, 0.15, "-68.3508"},
		{earcanal.Left, 0.18, "59.6963"},
		{earcanal.Right, 0.2, "-58.795"},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v/%g", test.side, test.gamma), func(t *testing.T) {
			got := earcanal.Estimate(test.side, refMin, refMax, test.gamma)
			assert.Equal(t, test.want, fmt.Sprintf("%.6g", got))
		})
	}
}

func TestEstimateMonotone(t *testing.T) {
	prevL, prevR := earcanal.Estimate(earcanal.Left, refMin, refMax, 0), earcanal.Estimate(earcanal.Right, refMin, refMax, 0)
	assert.Equal(t, refMax, prevL)
	assert.Equal(t, refMin, prevR)
	for g := 0.05; g <= 0.5; g += 0.05 {
		l := earcanal.Estimate(earcanal.Left, refMin, refMax, g)
		r := earcanal.Estimate(earcanal.Right, refMin, refMax, g)
		assert.Less(t, l, prevL, "left must move toward the center")
		assert.Greater(t, r, prevR, "right must move toward the center")
		prevL, prevR = l, r
	}
}

func TestLocate(t *testing.T) {
	m, err := mesh.New(testmesh.Head(3))
	require.NoError(t, err)
	surf := mesh.NewSurface(m)
	bb := surf.Bounds()

	left, err := earcanal.Locate(earcanal.Left, surf, 0.15, nil)
	require.NoError(t, err)
	assert.False(t, left.Explicit)
	assert.InDelta(t, 65.4298, left.Lateral, 1e-4)
	// The entrance lies on the surface, outward of the lateral coordinate.
	assert.InDelta(t, 0, surf.Distance(left.Point), 1e-9)
	assert.Greater(t, left.Point.Y, left.Lateral)
	// The head is symmetric in X and Z so the entrance is next to the pole.
	assert.InDelta(t, bb.Max.Y, left.Point.Y, 0.5)
	assert.Less(t, math.Hypot(left.Point.X, left.Point.Z), 5.)

	right, err := earcanal.Locate(earcanal.Right, surf, 0.2, nil)
	require.NoError(t, err)
	assert.InDelta(t, -58.795, right.Lateral, 1e-4)
	assert.InDelta(t, 0, surf.Distance(right.Point), 1e-9)
	assert.InDelta(t, bb.Min.Y, right.Point.Y, 0.5)
	assert.Less(t, math.Hypot(right.Point.X, right.Point.Z), 5.)

	// Gamma of one side does not move the other.
	left2, err := earcanal.Locate(earcanal.Left, surf, 0.15, nil)
	require.NoError(t, err)
	assert.Equal(t, left, left2)

	explicit := 42.5
	got, err := earcanal.Locate(earcanal.Left, surf, 0.9, &explicit)
	require.NoError(t, err)
	assert.True(t, got.Explicit)
	assert.Equal(t, 42.5, got.Lateral)
	assert.InDelta(t, 0, surf.Distance(got.Point), 1e-9)

	nan := math.NaN()
	_, err = earcanal.Locate(earcanal.Left, surf, 0.15, &nan)
	assert.Error(t, err)
	_, err = earcanal.Locate(earcanal.Both, surf, 0.15, nil)
	assert.Error(t, err)
}

// An entrance deep inside a flat-sided head snaps to the nearest side wall.
func TestLocateOffAxis(t *testing.T) {
	verts, faces := testmesh.Ellipsoid(3, r3.Vec{X: 20, Y: 90, Z: 80})
	m, err := mesh.New(verts, faces)
	require.NoError(t, err)
	surf := mesh.NewSurface(m)
	lateral := 10.
	e, err := earcanal.Locate(earcanal.Left, surf, 0, &lateral)
	require.NoError(t, err)
	assert.InDelta(t, 0, surf.Distance(e.Point), 1e-9)
	assert.Greater(t, math.Abs(e.Point.X), 15.)
	assert.Less(t, r3.Norm(r3.Sub(e.Point, r3.Vec{Y: lateral})), 25.)
}

func TestParseSide(t *testing.T) {
	for _, s := range []earcanal.Side{earcanal.Left, earcanal.Right, earcanal.Both} {
		got, err := earcanal.ParseSide(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := earcanal.ParseSide("up")
	assert.Error(t, err)
	assert.True(t, earcanal.Both.Includes(earcanal.Left))
	assert.True(t, earcanal.Both.Includes(earcanal.Right))
	assert.False(t, earcanal.Left.Includes(earcanal.Right))
}
