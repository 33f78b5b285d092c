package meshio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/spatial/r3"
)

type plyFormat int

const (
	plyASCII plyFormat = iota
	plyBinaryLE
	plyBinaryBE
)

type plyType int

const (
	plyInvalid plyType = iota
	plyInt8
	plyUint8
	plyInt16
	plyUint16
	plyInt32
	plyUint32
	plyFloat32
	plyFloat64
)

func parsePLYType(s string) plyType {
	switch s {
	case "char", "int8":
		return plyInt8
	case "uchar", "uint8":
		return plyUint8
	case "short", "int16":
		return plyInt16
	case "ushort", "uint16":
		return plyUint16
	case "int", "int32":
		return plyInt32
	case "uint", "uint32":
		return plyUint32
	case "float", "float32":
		return plyFloat32
	case "double", "float64":
		return plyFloat64
	}
	return plyInvalid
}

func (t plyType) size() int {
	switch t {
	case plyInt8, plyUint8:
		return 1
	case plyInt16, plyUint16:
		return 2
	case plyInt32, plyUint32, plyFloat32:
		return 4
	case plyFloat64:
		return 8
	}
	panic("bug: size of invalid PLY type")
}

type plyProperty struct {
	name      string
	typ       plyType
	list      bool
	countType plyType
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyHeader struct {
	format   plyFormat
	elements []plyElement
}

func readPLYHeader(r *bufio.Reader) (plyHeader, error) {
	var h plyHeader
	line, err := readHeaderLine(r)
	if err != nil {
		return h, err
	}
	if line != "ply" {
		return h, errors.New("ply: missing magic number")
	}
	gotFormat := false
	for {
		line, err = readHeaderLine(r)
		if err != nil {
			return h, err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "end_header":
			if !gotFormat {
				return h, errors.New("ply: header has no format line")
			}
			return h, nil
		case "comment", "obj_info":
		case "format":
			if len(fields) != 3 {
				return h, fmt.Errorf("ply: bad format line %q", line)
			}
			switch fields[1] {
			case "ascii":
				h.format = plyASCII
			case "binary_little_endian":
				h.format = plyBinaryLE
			case "binary_big_endian":
				h.format = plyBinaryBE
			default:
				return h, fmt.Errorf("ply: unknown format %q", fields[1])
			}
			gotFormat = true
		case "element":
			if len(fields) != 3 {
				return h, fmt.Errorf("ply: bad element line %q", line)
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return h, fmt.Errorf("ply: bad element count in %q", line)
			}
			h.elements = append(h.elements, plyElement{name: fields[1], count: n})
		case "property":
			if len(h.elements) == 0 {
				return h, errors.New("ply: property before any element")
			}
			var p plyProperty
			if len(fields) == 5 && fields[1] == "list" {
				p = plyProperty{name: fields[4], list: true, countType: parsePLYType(fields[2]), typ: parsePLYType(fields[3])}
				if p.countType == plyInvalid || p.countType == plyFloat32 || p.countType == plyFloat64 {
					return h, fmt.Errorf("ply: bad list count type in %q", line)
				}
			} else if len(fields) == 3 {
				p = plyProperty{name: fields[2], typ: parsePLYType(fields[1])}
			} else {
				return h, fmt.Errorf("ply: bad property line %q", line)
			}
			if p.typ == plyInvalid {
				return h, fmt.Errorf("ply: unknown property type in %q", line)
			}
			el := &h.elements[len(h.elements)-1]
			el.props = append(el.props, p)
		default:
			return h, fmt.Errorf("ply: unexpected header line %q", line)
		}
	}
}

func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", errors.New("ply: unexpected end of header")
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// plyDecoder reads scalar values in the body of a PLY file.
type plyDecoder struct {
	format plyFormat
	order  binary.ByteOrder
	r      *bufio.Reader
	words  *bufio.Scanner
	buf    [8]byte
}

func (d *plyDecoder) value(t plyType) (float64, error) {
	if d.format == plyASCII {
		if !d.words.Scan() {
			if err := d.words.Err(); err != nil {
				return 0, err
			}
			return 0, io.ErrUnexpectedEOF
		}
		return parsePLYValue(d.words.Text(), t)
	}
	b := d.buf[:t.size()]
	if _, err := io.ReadFull(d.r, b); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	switch t {
	case plyInt8:
		return float64(int8(b[0])), nil
	case plyUint8:
		return float64(b[0]), nil
	case plyInt16:
		return float64(int16(d.order.Uint16(b))), nil
	case plyUint16:
		return float64(d.order.Uint16(b)), nil
	case plyInt32:
		return float64(int32(d.order.Uint32(b))), nil
	case plyUint32:
		return float64(d.order.Uint32(b)), nil
	case plyFloat32:
		return float64(math.Float32frombits(d.order.Uint32(b))), nil
	case plyFloat64:
		return math.Float64frombits(d.order.Uint64(b)), nil
	}
	panic("bug: invalid PLY type")
}

// parsePLYValue parses an ascii token as a value of type t. Float values
// are rounded to the declared precision so ascii and binary files holding
// the same data decode identically.
func parsePLYValue(tok string, t plyType) (float64, error) {
	switch t {
	case plyFloat32:
		return strconv.ParseFloat(tok, 32)
	case plyFloat64:
		return strconv.ParseFloat(tok, 64)
	case plyInt8, plyInt16, plyInt32:
		v, err := strconv.ParseInt(tok, 10, 8*t.size())
		return float64(v), err
	case plyUint8, plyUint16, plyUint32:
		v, err := strconv.ParseUint(tok, 10, 8*t.size())
		return float64(v), err
	}
	panic("bug: invalid PLY type")
}

// ReadPLY decodes an ascii or binary PLY file. Vertex positions are read
// from the x, y and z properties of the vertex element and polygons from
// the vertex_indices (or vertex_index) list of the face element. Polygons
// with more than three corners are fan triangulated and triangles that
// repeat a vertex are dropped.
func ReadPLY(r io.Reader) ([]r3.Vec, [][3]int, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	h, err := readPLYHeader(br)
	if err != nil {
		return nil, nil, err
	}
	d := &plyDecoder{format: h.format, r: br}
	switch h.format {
	case plyASCII:
		d.words = bufio.NewScanner(br)
		d.words.Split(bufio.ScanWords)
	case plyBinaryLE:
		d.order = binary.LittleEndian
	case plyBinaryBE:
		d.order = binary.BigEndian
	}
	var (
		verts     []r3.Vec
		faces     [][3]int
		seenVerts bool
		seenFaces bool
	)
	for _, el := range h.elements {
		switch el.name {
		case "vertex":
			verts, err = readPLYVertices(d, el)
			seenVerts = true
		case "face":
			faces, err = readPLYFaces(d, el)
			seenFaces = true
		default:
			err = skipPLYElement(d, el)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	if !seenVerts || !seenFaces {
		return nil, nil, errors.New("ply: file needs vertex and face elements")
	}
	for i, face := range faces {
		for _, v := range face {
			if v < 0 || v >= len(verts) {
				return nil, nil, fmt.Errorf("ply: face %d references vertex %d of %d", i, v, len(verts))
			}
		}
	}
	return verts, faces, nil
}

func readPLYVertices(d *plyDecoder, el plyElement) ([]r3.Vec, error) {
	axis := make([]int, len(el.props))
	found := 0
	for i, p := range el.props {
		axis[i] = -1
		if p.list {
			continue
		}
		switch p.name {
		case "x":
			axis[i] = 0
		case "y":
			axis[i] = 1
		case "z":
			axis[i] = 2
		default:
			continue
		}
		found++
	}
	if found != 3 {
		return nil, errors.New("ply: vertex element needs x, y and z properties")
	}
	verts := make([]r3.Vec, el.count)
	for i := range verts {
		var xyz [3]float64
		for j, p := range el.props {
			if p.list {
				if err := skipPLYList(d, p); err != nil {
					return nil, fmt.Errorf("ply: vertex %d: %w", i, err)
				}
				continue
			}
			v, err := d.value(p.typ)
			if err != nil {
				return nil, fmt.Errorf("ply: vertex %d: %w", i, err)
			}
			if axis[j] >= 0 {
				xyz[axis[j]] = v
			}
		}
		verts[i] = r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}
	return verts, nil
}

func readPLYFaces(d *plyDecoder, el plyElement) ([][3]int, error) {
	indexProp := -1
	for i, p := range el.props {
		if p.list && (p.name == "vertex_indices" || p.name == "vertex_index") {
			indexProp = i
			break
		}
	}
	if indexProp < 0 {
		return nil, errors.New("ply: face element needs a vertex_indices list")
	}
	faces := make([][3]int, 0, el.count)
	poly := make([]int, 0, 4)
	for i := 0; i < el.count; i++ {
		for j, p := range el.props {
			if j != indexProp {
				if err := skipPLYProperty(d, p); err != nil {
					return nil, fmt.Errorf("ply: face %d: %w", i, err)
				}
				continue
			}
			n, err := d.value(p.countType)
			if err != nil {
				return nil, fmt.Errorf("ply: face %d: %w", i, err)
			}
			poly = poly[:0]
			for k := 0; k < int(n); k++ {
				v, err := d.value(p.typ)
				if err != nil {
					return nil, fmt.Errorf("ply: face %d: %w", i, err)
				}
				poly = append(poly, int(v))
			}
			for k := 1; k+1 < len(poly); k++ {
				tri := [3]int{poly[0], poly[k], poly[k+1]}
				if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
					continue
				}
				faces = append(faces, tri)
			}
		}
	}
	return faces, nil
}

func skipPLYElement(d *plyDecoder, el plyElement) error {
	for i := 0; i < el.count; i++ {
		for _, p := range el.props {
			if err := skipPLYProperty(d, p); err != nil {
				return fmt.Errorf("ply: %s %d: %w", el.name, i, err)
			}
		}
	}
	return nil
}

func skipPLYProperty(d *plyDecoder, p plyProperty) error {
	if p.list {
		return skipPLYList(d, p)
	}
	_, err := d.value(p.typ)
	return err
}

func skipPLYList(d *plyDecoder, p plyProperty) error {
	n, err := d.value(p.countType)
	if err != nil {
		return err
	}
	for k := 0; k < int(n); k++ {
		if _, err := d.value(p.typ); err != nil {
			return err
		}
	}
	return nil
}

// WritePLY encodes vertices as float32 and faces as uchar/int lists.
// Binary output is little endian. Ascii output prints each coordinate
// with the shortest representation of its float32 value, so both
// encodings carry identical vertices.
func WritePLY(w io.Writer, verts []r3.Vec, faces [][3]int, binaryOut bool) error {
	format := "ascii"
	if binaryOut {
		format = "binary_little_endian"
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ply\nformat %s 1.0\ncomment hrtf_mesh_grading\n", format)
	fmt.Fprintf(bw, "element vertex %d\nproperty float x\nproperty float y\nproperty float z\n", len(verts))
	fmt.Fprintf(bw, "element face %d\nproperty list uchar int vertex_indices\nend_header\n", len(faces))
	var scratch [13]byte
	line := make([]byte, 0, 64)
	for i, v := range verts {
		f, err := toFloat32(v)
		if err != nil {
			return fmt.Errorf("ply: vertex %d: %w", i, err)
		}
		if binaryOut {
			put3F32(scratch[:], f)
			bw.Write(scratch[:12])
			continue
		}
		line = line[:0]
		for j, c := range f {
			if j > 0 {
				line = append(line, ' ')
			}
			line = strconv.AppendFloat(line, float64(c), 'g', -1, 32)
		}
		line = append(line, '\n')
		bw.Write(line)
	}
	for i, face := range faces {
		for _, v := range face {
			if v < 0 || v >= len(verts) || v > math.MaxInt32 {
				return fmt.Errorf("ply: face %d references vertex %d of %d", i, v, len(verts))
			}
		}
		if binaryOut {
			scratch[0] = 3
			binary.LittleEndian.PutUint32(scratch[1:], uint32(face[0]))
			binary.LittleEndian.PutUint32(scratch[5:], uint32(face[1]))
			binary.LittleEndian.PutUint32(scratch[9:], uint32(face[2]))
			bw.Write(scratch[:13])
			continue
		}
		line = append(line[:0], '3')
		for _, v := range face {
			line = append(line, ' ')
			line = strconv.AppendInt(line, int64(v), 10)
		}
		line = append(line, '\n')
		bw.Write(line)
	}
	return bw.Flush()
}

// toFloat32 narrows a vertex to float32 and fails if a coordinate
// does not fit.
func toFloat32(v r3.Vec) ([3]float32, error) {
	f := [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
	if bad3F32(f) {
		return f, fmt.Errorf("coordinates %v not representable as float32", v)
	}
	return f, nil
}

func bad3F32(f [3]float32) bool {
	return math32.IsNaN(f[0]) || math32.IsInf(f[0], 0) ||
		math32.IsNaN(f[1]) || math32.IsInf(f[1], 0) ||
		math32.IsNaN(f[2]) || math32.IsInf(f[2], 0)
}
