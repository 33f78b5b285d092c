// Package preview writes diagnostic images of a graded mesh: a shaded
// rendering seen from the graded side and a histogram of edge lengths.
package preview

import (
	"errors"
	"image/color"

	"github.com/fogleman/fauxgl"
	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// View positions the camera of a rendering.
type View struct {
	// what position (point) to look at
	LookAt r3.Vec
	// which way is up (direction)
	Up r3.Vec
	// where the camera/eye located at (point)
	Eye  r3.Vec
	Near float64
	Far  float64
}

// SideView looks at the bi-unit cube from the positive Y axis when
// lateral is positive and from the negative Y axis otherwise.
func SideView(lateral float64) View {
	eyeY := 4.
	if lateral < 0 {
		eyeY = -eyeY
	}
	return View{
		Up:   r3.Vec{Z: 1},
		Eye:  r3.Vec{Y: eyeY},
		Near: 1,
		Far:  10,
	}
}

// Render draws the mesh scaled into a bi-unit cube and saves it as a PNG
// of the given size.
func Render(path string, verts []r3.Vec, faces [][3]int, width, height int, view View) error {
	if len(faces) == 0 {
		return errors.New("preview: no faces to render")
	}
	if width <= 0 || height <= 0 {
		return errors.New("preview: image size must be positive")
	}
	const (
		scale = 2  // supersampling
		fovy  = 30 // vertical field of view in degrees
	)
	tris := make([]*fauxgl.Triangle, len(faces))
	for i, f := range faces {
		a, b, c := verts[f[0]], verts[f[1]], verts[f[2]]
		tris[i] = fauxgl.NewTriangleForPoints(
			fauxgl.V(a.X, a.Y, a.Z),
			fauxgl.V(b.X, b.Y, b.Z),
			fauxgl.V(c.X, c.Y, c.Z),
		)
	}
	mesh := fauxgl.NewTriangleMesh(tris)

	var (
		eye    = fauxgl.V(view.Eye.X, view.Eye.Y, view.Eye.Z)
		center = fauxgl.V(view.LookAt.X, view.LookAt.Y, view.LookAt.Z)
		up     = fauxgl.V(view.Up.X, view.Up.Y, view.Up.Z)
		light  = eye.Sub(center).Normalize()
	)
	// fit mesh in a bi-unit cube centered at the origin
	mesh.BiUnitCube()
	context := fauxgl.NewContext(width*scale, height*scale)
	context.ClearColorBufferWith(fauxgl.HexColor("#FFF8E3"))
	aspect := float64(width) / float64(height)
	matrix := fauxgl.LookAt(eye, center, up).Perspective(fovy, aspect, view.Near, view.Far)
	shader := fauxgl.NewPhongShader(matrix, light, eye)
	shader.ObjectColor = fauxgl.HexColor("#468966")
	context.Shader = shader
	context.DrawMesh(mesh)
	// downsample image for antialiasing
	image := resize.Resize(uint(width), uint(height), context.Image(), resize.Bilinear)
	return fauxgl.SavePNG(path, image)
}

// Histogram plots the distribution of edge lengths with the admissible
// range [lmin, lmax] marked and saves it as a PNG.
func Histogram(path string, lengths []float64, lmin, lmax float64) error {
	if len(lengths) == 0 {
		return errors.New("preview: no edge lengths to plot")
	}
	p := plot.New()
	p.Title.Text = "Edge length distribution"
	p.X.Label.Text = "edge length"
	p.Y.Label.Text = "edges"

	hist, err := plotter.NewHist(plotter.Values(lengths), 40)
	if err != nil {
		return err
	}
	p.Add(hist)
	top := 0.
	for _, bin := range hist.Bins {
		top = max(top, bin.Weight)
	}
	for _, x := range []float64{lmin, lmax} {
		line, err := plotter.NewLine(plotter.XYs{{X: x, Y: 0}, {X: x, Y: top}})
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 200, A: 255}
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
