package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/soypat/hrtfgrade/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// stlHeader defines the STL file header.
type stlHeader struct {
	_     [80]uint8 // Header
	Count uint32    // Number of triangles
}

const (
	sizeOfSTLHeader   = 84
	sizeOfSTLTriangle = 50
)

// stlTriangle defines the triangle data within an STL file.
type stlTriangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
	_       uint16 // Attribute byte count
}

// ReadSTL decodes a binary or ascii STL file. STL stores a triangle soup
// so corners with bitwise equal coordinates are welded into shared vertices.
func ReadSTL(r io.Reader) ([]r3.Vec, [][3]int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	var soup [][3][3]float32
	if isBinarySTL(data) {
		soup, err = readBinarySTL(data)
	} else if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		soup, err = readASCIISTL(data)
	} else {
		err = errors.New("stl: unrecognized file, neither binary nor ascii")
	}
	if err != nil {
		return nil, nil, err
	}
	verts, faces := weld(soup)
	return verts, faces, nil
}

// isBinarySTL checks the size implied by the header triangle count.
// Binary files may also start with "solid" so the prefix alone is not enough.
func isBinarySTL(data []byte) bool {
	if len(data) < sizeOfSTLHeader {
		return false
	}
	count := binary.LittleEndian.Uint32(data[80:84])
	return uint64(len(data)) == sizeOfSTLHeader+uint64(count)*sizeOfSTLTriangle
}

func readBinarySTL(data []byte) (output [][3][3]float32, readErr error) {
	var header stlHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, errors.New("stl: header read failed: " + err.Error())
	}
	if header.Count == 0 {
		return nil, errors.New("stl: header indicates 0 triangles present")
	}
	var (
		d stlTriangle
		i int
	)
	defer func() {
		if readErr != nil {
			readErr = fmt.Errorf("stl: %d/%d triangles read: %w", i+1, header.Count, readErr)
		}
	}()
	output = make([][3][3]float32, 0, header.Count)
	body := data[sizeOfSTLHeader:]
	for i = 0; i < int(header.Count); i++ {
		d.get(body[i*sizeOfSTLTriangle:])
		if err := d.validate(); err != nil {
			return nil, err
		}
		output = append(output, [3][3]float32{d.Vertex1, d.Vertex2, d.Vertex3})
	}
	return output, nil
}

func readASCIISTL(data []byte) ([][3][3]float32, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Split(bufio.ScanWords)
	var (
		output  [][3][3]float32
		current [3][3]float32
		corner  int
	)
	for sc.Scan() {
		if sc.Text() != "vertex" {
			continue
		}
		for k := 0; k < 3; k++ {
			if !sc.Scan() {
				return nil, errors.New("stl: truncated vertex")
			}
			f, err := strconv.ParseFloat(sc.Text(), 32)
			if err != nil {
				return nil, fmt.Errorf("stl: triangle %d: %w", len(output), err)
			}
			current[corner][k] = float32(f)
		}
		if bad3F32(current[corner]) {
			return nil, fmt.Errorf("stl: triangle %d: inf/NaN vertex", len(output))
		}
		corner++
		if corner == 3 {
			output = append(output, current)
			corner = 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if corner != 0 {
		return nil, errors.New("stl: facet with fewer than three vertices")
	}
	if len(output) == 0 {
		return nil, errors.New("stl: no facets found")
	}
	return output, nil
}

// weld merges identical corners and drops triangles that collapse to
// fewer than three distinct vertices.
func weld(soup [][3][3]float32) ([]r3.Vec, [][3]int) {
	cache := make(map[[3]float32]int)
	verts := make([]r3.Vec, 0, len(soup)/2+3)
	faces := make([][3]int, 0, len(soup))
	for _, tri := range soup {
		var face [3]int
		for j, corner := range tri {
			idx, ok := cache[corner]
			if !ok {
				idx = len(verts)
				cache[corner] = idx
				verts = append(verts, r3From3F32(corner))
			}
			face[j] = idx
		}
		if face[0] == face[1] || face[1] == face[2] || face[2] == face[0] {
			continue
		}
		faces = append(faces, face)
	}
	return verts, faces
}

// WriteSTL writes indexed triangles as an STL triangle soup.
func WriteSTL(w io.Writer, verts []r3.Vec, faces [][3]int, binaryOut bool) error {
	if len(faces) == 0 {
		return errors.New("stl: empty triangle slice")
	}
	if !binaryOut {
		return writeASCIISTL(w, verts, faces)
	}
	header := stlHeader{
		Count: uint32(len(faces)),
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	var (
		b [sizeOfSTLTriangle]byte
		d stlTriangle
	)
	for i, face := range faces {
		tri := d3.Triangle{verts[face[0]], verts[face[1]], verts[face[2]]}
		var err error
		if d.Normal, err = toFloat32(tri.Normal()); err != nil {
			return fmt.Errorf("stl: face %d: %w", i, err)
		}
		corners := [3]*[3]float32{&d.Vertex1, &d.Vertex2, &d.Vertex3}
		for j := range tri {
			if *corners[j], err = toFloat32(tri[j]); err != nil {
				return fmt.Errorf("stl: face %d: %w", i, err)
			}
		}
		d.put(b[:])
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeASCIISTL(w io.Writer, verts []r3.Vec, faces [][3]int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "solid hrtf_mesh_grading")
	for _, face := range faces {
		tri := d3.Triangle{verts[face[0]], verts[face[1]], verts[face[2]]}
		n := tri.Normal()
		fmt.Fprintf(bw, "facet normal %g %g %g\n outer loop\n", n.X, n.Y, n.Z)
		for _, v := range tri {
			fmt.Fprintf(bw, "  vertex %g %g %g\n", float32(v.X), float32(v.Y), float32(v.Z))
		}
		fmt.Fprint(bw, " endloop\nendfacet\n")
	}
	fmt.Fprintln(bw, "endsolid hrtf_mesh_grading")
	return bw.Flush()
}

func (t stlTriangle) put(b []byte) {
	if len(b) < sizeOfSTLTriangle {
		panic("need length 50 to marshal stlTriangle")
	}
	put3F32(b, t.Normal)
	put3F32(b[12:], t.Vertex1)
	put3F32(b[24:], t.Vertex2)
	put3F32(b[36:], t.Vertex3)
	binary.LittleEndian.PutUint16(b[48:], 0)
}

func (t *stlTriangle) get(b []byte) {
	if len(b) < sizeOfSTLTriangle {
		panic("need length 50 to unmarshal stlTriangle")
	}
	get3F32(b, &t.Normal)
	get3F32(b[12:], &t.Vertex1)
	get3F32(b[24:], &t.Vertex2)
	get3F32(b[36:], &t.Vertex3)
	// no attributes supported yet.
}

func put3F32(b []byte, f [3]float32) {
	_ = b[11] // early bounds check
	binary.LittleEndian.PutUint32(b, math.Float32bits(f[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(f[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(f[2]))
}

func get3F32(b []byte, f *[3]float32) {
	_ = b[11] // early bounds check
	f[0] = math.Float32frombits(binary.LittleEndian.Uint32(b))
	f[1] = math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))
	f[2] = math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))
}

// validate rejects non-finite data. Normals are recomputed on write so
// a stored normal that disagrees with the winding is not an error.
func (t stlTriangle) validate() error {
	if bad3F32(t.Normal) {
		return errors.New("inf/NaN STL triangle normal")
	}
	if bad3F32(t.Vertex1) || bad3F32(t.Vertex2) || bad3F32(t.Vertex3) {
		return errors.New("inf/NaN STL triangle vertex")
	}
	return nil
}

func equalWithin3F32(a, b [3]float32, tol float32) bool {
	return math32.Abs(a[0]-b[0]) <= tol &&
		math32.Abs(a[1]-b[1]) <= tol &&
		math32.Abs(a[2]-b[2]) <= tol
}

func r3From3F32(f [3]float32) r3.Vec {
	return r3.Vec{X: float64(f[0]), Y: float64(f[1]), Z: float64(f[2])}
}
