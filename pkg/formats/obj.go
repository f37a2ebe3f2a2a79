package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/brex-it/3dconv/pkg/math3d"
	"github.com/brex-it/3dconv/pkg/mesh"
)

// OBJ parse errors.
var (
	ErrInvalidStatement    = errors.New("invalid statement")
	ErrVertexArgCount      = errors.New("vertex takes three or four coordinates")
	ErrTexVertexArgCount   = errors.New("texture vertex takes one to three coordinates")
	ErrVertNormalArgCount  = errors.New("vertex normal takes exactly three coordinates")
	ErrMalformedIndexGroup = errors.New("malformed index group")
	ErrMixedIndexGroups    = errors.New("every index group of a face must have the same shape")
	ErrRelativeIndexRange  = errors.New("relative index out of range")
)

func init() {
	RegisterParser("obj", ParseOBJFile)
}

// ParseOBJFile parses a Wavefront OBJ file from disk.
func ParseOBJFile(path string) (*mesh.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Filename: path, Err: err}
	}
	defer f.Close()
	return ParseOBJ(f, path)
}

// ParseOBJ parses a Wavefront OBJ document from r. The name is only
// used for error reporting. The geometry statements v, vt, vn and f are
// interpreted; '#' starts a comment. The returned model is populated
// but not validated, so dangling face indices only surface on the first
// validating operation.
func ParseOBJ(r io.Reader, name string) (*mesh.Model, error) {
	model := mesh.NewModel()

	scanner := bufio.NewScanner(r)
	lcnt := 0
	for scanner.Scan() {
		lcnt++
		line := scanner.Text()
		if hash := strings.IndexByte(line, '#'); hash >= 0 {
			line = line[:hash]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "v":
			err = parseVertex(fields[1:], model)
		case "vt":
			err = parseTextureVertex(fields[1:], model)
		case "vn":
			err = parseVertexNormal(fields[1:], model)
		case "f":
			err = parseFace(fields[1:], model)
		default:
			err = fmt.Errorf("%w: %s", ErrInvalidStatement, line)
		}
		if err != nil {
			return nil, &ParseError{Filename: name, Line: lcnt, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Filename: name, Line: lcnt, Err: err}
	}

	return model, nil
}

func parseCoords(fields []string) ([]float32, error) {
	coords := make([]float32, 0, len(fields))
	for _, f := range fields {
		c, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("not a valid coordinate: %s", f)
		}
		coords = append(coords, float32(c))
	}
	return coords, nil
}

func parseVertex(fields []string, model *mesh.Model) error {
	coords, err := parseCoords(fields)
	if err != nil {
		return err
	}
	switch len(coords) {
	case 3:
		// The fourth coordinate is the homogeneous weight; default 1.
		coords = append(coords, 1)
	case 4:
	default:
		return fmt.Errorf("%w: got %d", ErrVertexArgCount, len(coords))
	}
	model.AddVertex(math3d.Vec4{coords[0], coords[1], coords[2], coords[3]})
	return nil
}

func parseTextureVertex(fields []string, model *mesh.Model) error {
	coords, err := parseCoords(fields)
	if err != nil {
		return err
	}
	if len(coords) < 1 || len(coords) > 3 {
		return fmt.Errorf("%w: got %d", ErrTexVertexArgCount, len(coords))
	}
	var tv math3d.Vec3
	tv.X = coords[0]
	if len(coords) > 1 {
		tv.Y = coords[1]
	}
	if len(coords) > 2 {
		tv.Z = coords[2]
	}
	model.AddTextureVertex(tv)
	return nil
}

func parseVertexNormal(fields []string, model *mesh.Model) error {
	coords, err := parseCoords(fields)
	if err != nil {
		return err
	}
	if len(coords) != 3 {
		return fmt.Errorf("%w: got %d", ErrVertNormalArgCount, len(coords))
	}
	model.AddVertexNormal(math3d.Vec3{X: coords[0], Y: coords[1], Z: coords[2]})
	return nil
}

// parseFace interprets the index groups of an f statement. The accepted
// group shapes are v, v/t, v//n and v/t/n; all groups of one face must
// share a shape. Indices are 1-based, negative values count back from
// the end of the respective array.
func parseFace(groups []string, model *mesh.Model) error {
	face := mesh.NewFace(model)

	shape := -1
	shapeHasTexture := false

	for _, group := range groups {
		if strings.HasSuffix(group, "/") {
			return fmt.Errorf("%w: last char cannot be slash: %s", ErrMalformedIndexGroup, group)
		}

		parts := strings.Split(group, "/")
		if len(parts) > 3 {
			return fmt.Errorf("%w: too many slashes: %s", ErrMalformedIndexGroup, group)
		}

		hasTexture := false
		for n, part := range parts {
			if part == "" {
				if n == 1 {
					continue
				}
				what := "vertex index"
				if n == 2 {
					what = "vertex normal index"
				}
				return fmt.Errorf("%w: %s cannot be omitted: %s", ErrMalformedIndexGroup, what, group)
			}

			val, err := strconv.Atoi(part)
			if err != nil {
				return fmt.Errorf("%w: not a valid integer: %s", ErrMalformedIndexGroup, part)
			}

			var contSz int
			switch n {
			case 0:
				contSz = len(model.Vertices())
			case 1:
				hasTexture = true
				contSz = len(model.TextureVertices())
			case 2:
				contSz = len(model.VertexNormals())
			}

			ind := val - 1
			if val < 0 {
				if -val > contSz {
					return fmt.Errorf("%w: %d", ErrRelativeIndexRange, val)
				}
				ind = contSz + val
			}

			switch n {
			case 0:
				face.AddVertex(ind)
			case 1:
				face.AddTextureVertex(ind)
			case 2:
				face.AddVertexNormal(ind)
			}
		}

		// All groups of one face must agree both in part count and in
		// whether the texture slot is filled ("v/t" vs "v//n").
		nparts := len(parts)
		if nparts == 1 {
			nparts = 0
		}
		if shape == -1 {
			shape = nparts
			shapeHasTexture = hasTexture
		}
		if shape != nparts || shapeHasTexture != hasTexture {
			return fmt.Errorf("%w: %s", ErrMixedIndexGroups, group)
		}
	}

	// AddVertex deduplicates, so these counts reflect distinct indices.
	vsz := len(face.Vertices())
	if vsz < 3 {
		return mesh.ErrFaceVertexCount
	}
	if tvsz := len(face.TextureVertices()); tvsz > 0 && tvsz < vsz {
		return mesh.ErrTextureCount
	}
	if vnsz := len(face.VertexNormals()); vnsz > 0 && vnsz < vsz {
		return mesh.ErrNormalCount
	}

	return model.AddFace(face)
}
