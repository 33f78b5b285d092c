// Package meshio reads and writes triangle meshes. PLY (ascii and binary)
// is the primary format; STL is supported for interoperability.
package meshio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soypat/hrtfgrade/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Format identifies a mesh file format.
type Format int

const (
	FormatPLY Format = iota
	FormatSTL
)

func (f Format) String() string {
	switch f {
	case FormatPLY:
		return "ply"
	case FormatSTL:
		return "stl"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatFromPath picks the format from the file extension.
// Unknown extensions default to PLY.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".stl") {
		return FormatSTL
	}
	return FormatPLY
}

// Load reads the mesh file at path.
func Load(path string) (*mesh.Mesh, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	verts, faces, err := Read(bufio.NewReader(fp), FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := mesh.New(verts, faces)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return m, nil
}

// Read decodes vertices and triangles in the given format.
func Read(r io.Reader, format Format) ([]r3.Vec, [][3]int, error) {
	switch format {
	case FormatPLY:
		return ReadPLY(r)
	case FormatSTL:
		return ReadSTL(r)
	}
	return nil, nil, fmt.Errorf("unsupported format %v", format)
}

// Write encodes vertices and triangles in the given format.
func Write(w io.Writer, format Format, verts []r3.Vec, faces [][3]int, binary bool) error {
	switch format {
	case FormatPLY:
		return WritePLY(w, verts, faces, binary)
	case FormatSTL:
		return WriteSTL(w, verts, faces, binary)
	}
	return fmt.Errorf("unsupported format %v", format)
}

// Save writes the live geometry of m to path. The file is first written
// to a temporary file in the same directory and renamed into place, so a
// failed write never leaves a partial mesh at path.
func Save(path string, m *mesh.Mesh, binary bool) (err error) {
	verts, faces := m.Export()
	if len(faces) == 0 {
		return errors.New("refusing to write mesh without faces")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".meshio-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	bw := bufio.NewWriter(tmp)
	if err = Write(bw, FormatFromPath(path), verts, faces, binary); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
