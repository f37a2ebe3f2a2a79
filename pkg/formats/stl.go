package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/brex-it/3dconv/pkg/math3d"
	"github.com/brex-it/3dconv/pkg/mesh"
)

// Binary STL errors.
var (
	ErrTruncatedSTLData = errors.New("truncated STL data")
)

func init() {
	RegisterWriter("stl-bin", WriteSTLBinaryFile)
	RegisterParser("stl-bin", ParseSTLBinaryFile)
}

// stlHeaderSize is the fixed zero-filled header preceding the triangle
// count.
const stlHeaderSize = 80

// WriteSTLBinaryFile serializes the model to a binary STL file on disk.
func WriteSTLBinaryFile(m *mesh.Model, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Filename: path, Err: err}
	}
	defer f.Close()

	if err := WriteSTLBinary(m, f); err != nil {
		var werr *WriteError
		if errors.As(err, &werr) {
			werr.Filename = path
		}
		return err
	}
	return f.Close()
}

// WriteSTLBinary writes the model to w in the binary STL layout: an
// 80-byte zero header, a little-endian uint32 triangle count, then per
// triangle the face normal, the three vertices (each three float32)
// and two attribute bytes. STL holds triangles only, so a
// non-triangulated input is triangulated on a copy; the model passed in
// is never modified.
func WriteSTLBinary(m *mesh.Model, w io.Writer) error {
	model := m.Clone()
	if !model.IsTriangulated() {
		if err := model.Triangulate(); err != nil {
			return &WriteError{Err: err}
		}
	}

	bw := bufio.NewWriter(w)

	var header [stlHeaderSize]byte
	if _, err := bw.Write(header[:]); err != nil {
		return &WriteError{Err: err}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(model.Faces().Len())); err != nil {
		return &WriteError{Err: err}
	}

	for _, f := range model.Faces().All() {
		n, err := f.Normal()
		if err != nil {
			return &WriteError{Err: err}
		}
		buf := [3]float32{n.X, n.Y, n.Z}
		if err := binary.Write(bw, binary.LittleEndian, buf); err != nil {
			return &WriteError{Err: err}
		}
		for _, vi := range f.Vertices() {
			v := model.Vertices()[vi]
			buf = [3]float32{v[0], v[1], v[2]}
			if err := binary.Write(bw, binary.LittleEndian, buf); err != nil {
				return &WriteError{Err: err}
			}
		}
		var attr [2]byte
		if _, err := bw.Write(attr[:]); err != nil {
			return &WriteError{Err: err}
		}
	}

	return bw.Flush()
}

// ParseSTLBinaryFile parses a binary STL file from disk.
func ParseSTLBinaryFile(path string) (*mesh.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Filename: path, Err: err}
	}
	m, err := ParseSTLBinary(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Filename = path
		}
		return nil, err
	}
	return m, nil
}

// ParseSTLBinary parses a binary STL document. STL stores each
// triangle's vertices by value, so identical coordinates are merged
// back into shared model vertices to recover the connectivity the
// format discards.
func ParseSTLBinary(data []byte) (*mesh.Model, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, &ParseError{Err: ErrTruncatedSTLData}
	}
	r := bytes.NewReader(data[stlHeaderSize:])

	var triCnt uint32
	if err := binary.Read(r, binary.LittleEndian, &triCnt); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("%w: reading triangle count", ErrTruncatedSTLData)}
	}

	model := mesh.NewModel()
	vertexIndex := make(map[[3]float32]int)

	addVertex := func(c [3]float32) int {
		if i, ok := vertexIndex[c]; ok {
			return i
		}
		i := len(model.Vertices())
		model.AddVertex(math3d.Vec4{c[0], c[1], c[2], 1})
		vertexIndex[c] = i
		return i
	}

	for t := uint32(0); t < triCnt; t++ {
		var normal [3]float32
		if err := binary.Read(r, binary.LittleEndian, &normal); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("%w: reading triangle %d", ErrTruncatedSTLData, t)}
		}

		var indices [3]int
		for i := 0; i < 3; i++ {
			var c [3]float32
			if err := binary.Read(r, binary.LittleEndian, &c); err != nil {
				return nil, &ParseError{Err: fmt.Errorf("%w: reading triangle %d", ErrTruncatedSTLData, t)}
			}
			indices[i] = addVertex(c)
		}

		var attr [2]byte
		if _, err := io.ReadFull(r, attr[:]); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("%w: reading triangle %d", ErrTruncatedSTLData, t)}
		}

		face := mesh.NewFaceWithIndices(model, indices[:], nil, nil)
		face.SetNormal(math3d.Vec3{X: normal[0], Y: normal[1], Z: normal[2]})
		if err := model.AddFace(face); err != nil {
			return nil, &ParseError{Err: err}
		}
	}

	return model, nil
}
