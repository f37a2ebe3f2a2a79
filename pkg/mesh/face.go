package mesh

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/brex-it/3dconv/pkg/math3d"
)

// Face-level topology errors.
var (
	ErrNoModel           = errors.New("face has no associated model")
	ErrFaceVertexCount   = errors.New("face must contain at least 3 vertices")
	ErrTextureCount      = errors.New("face must contain either no texture vertices or one per geometric vertex")
	ErrNormalCount       = errors.New("face must contain either no vertex normals or one per geometric vertex")
	ErrVertexIndexRange  = errors.New("vertex index out of range")
	ErrTextureIndexRange = errors.New("texture vertex index out of range")
	ErrNormalIndexRange  = errors.New("vertex normal index out of range")
)

// Face is the basic building block of a mesh: an ordered list of vertex
// indices into its model's vertex array. The order determines the
// direction of the face normal (counter-clockwise winding points towards
// the viewer). A face optionally carries parallel texture vertex and
// vertex normal index lists and either a pinned or an on-demand computed
// normal vector.
//
// A Face is meaningless without the Model owning the indexed arrays; any
// operation that needs those arrays fails with ErrNoModel when the face
// is not associated with a model.
type Face struct {
	model *Model

	vertices        []int
	textureVertices []int
	vertexNormals   []int

	normal    math3d.Vec3
	normalSet bool
}

// NewFace returns an empty face associated with model.
func NewFace(model *Model) *Face {
	return &Face{model: model}
}

// NewFaceWithIndices returns a face with pre-filled index lists.
// textureVertices and vertexNormals may be nil.
func NewFaceWithIndices(model *Model, vertices, textureVertices, vertexNormals []int) *Face {
	f := &Face{model: model}
	f.vertices = append(f.vertices, vertices...)
	f.textureVertices = append(f.textureVertices, textureVertices...)
	f.vertexNormals = append(f.vertexNormals, vertexNormals...)
	return f
}

// subFace builds a face from a subset of orig's index lists. The given
// indices are positions within orig, not model-global indices. Texture
// and normal attributes are inherited at the same local positions.
func subFace(orig *Face, indices []int) *Face {
	f := &Face{model: orig.model}
	for _, i := range indices {
		f.vertices = append(f.vertices, orig.vertices[i])
	}
	if len(orig.textureVertices) > 0 {
		for _, i := range indices {
			f.textureVertices = append(f.textureVertices, orig.textureVertices[i])
		}
	}
	if len(orig.vertexNormals) > 0 {
		for _, i := range indices {
			f.vertexNormals = append(f.vertexNormals, orig.vertexNormals[i])
		}
	}
	return f
}

// clone returns a deep copy of f associated with model.
func (f *Face) clone(model *Model) *Face {
	c := &Face{
		model:     model,
		normal:    f.normal,
		normalSet: f.normalSet,
	}
	c.vertices = append(c.vertices, f.vertices...)
	c.textureVertices = append(c.textureVertices, f.textureVertices...)
	c.vertexNormals = append(c.vertexNormals, f.vertexNormals...)
	return c
}

// Vertices returns the vertex index list. The returned slice is owned by
// the face and must not be modified.
func (f *Face) Vertices() []int {
	return f.vertices
}

// TextureVertices returns the texture vertex index list.
func (f *Face) TextureVertices() []int {
	return f.textureVertices
}

// VertexNormals returns the vertex normal index list.
func (f *Face) VertexNormals() []int {
	return f.vertexNormals
}

// AddVertex appends a vertex index unless it is already present.
func (f *Face) AddVertex(v int) {
	for _, e := range f.vertices {
		if e == v {
			return
		}
	}
	f.vertices = append(f.vertices, v)
}

// AddTextureVertex appends a texture vertex index unless it is already
// present.
func (f *Face) AddTextureVertex(tv int) {
	for _, e := range f.textureVertices {
		if e == tv {
			return
		}
	}
	f.textureVertices = append(f.textureVertices, tv)
}

// AddVertexNormal appends a vertex normal index. The same normal may be
// shared by several vertices, so duplicates are allowed.
func (f *Face) AddVertexNormal(vn int) {
	f.vertexNormals = append(f.vertexNormals, vn)
}

// SetNormal pins an explicit face normal, bypassing computation.
func (f *Face) SetNormal(n math3d.Vec3) {
	f.normal = n
	f.normalSet = true
}

// Normal returns the cached face normal, computing it on first use.
func (f *Face) Normal() (math3d.Vec3, error) {
	if !f.normalSet {
		n, err := f.computeNormal(true)
		if err != nil {
			return math3d.Vec3{}, err
		}
		f.normal = n
		f.normalSet = true
	}
	return f.normal, nil
}

// ref renders the vertex index list as "i:j:k" for error messages.
func (f *Face) ref() string {
	var sb strings.Builder
	for i, v := range f.vertices {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(strconv.Itoa(v))
	}
	return sb.String()
}

// vertex fetches the model vertex behind face-local position i as Vec3.
func (f *Face) vertex(i int) math3d.Vec3 {
	return f.model.vertices[f.vertices[i]].Vec3()
}

// computeNormal derives the face normal from the vertex positions.
//
// For a triangle the cross product of two edges suffices. For larger
// faces the three vertices spanning the triangle must be picked with
// care: a concave or poorly ordered face can yield a flipped or
// near-degenerate normal. The selection picks the two vertices with the
// maximum pairwise distance, then the vertex farthest from the line
// through them, and recomputes the cross product with the three indices
// in ascending face-local order so the winding is kept.
func (f *Face) computeNormal(normalize bool) (math3d.Vec3, error) {
	vsz := len(f.vertices)
	if vsz < 3 {
		return math3d.Vec3{}, ErrFaceVertexCount
	}
	if f.model == nil {
		return math3d.Vec3{}, ErrNoModel
	}
	for _, v := range f.vertices {
		if v < 0 || v >= len(f.model.vertices) {
			return math3d.Vec3{}, fmt.Errorf("%w: %d", ErrVertexIndexRange, v)
		}
	}

	v0 := f.vertex(0)
	v1 := f.vertex(1)
	v2 := f.vertex(2)
	normal := v1.Sub(v0).Cross(v2.Sub(v0))

	if vsz > 3 {
		var distance float32
		i0, i1, i2 := 0, 1, 2

		// Select the pair of face vertices with the largest distance
		// between them.
		for i := 0; i < vsz; i++ {
			for j := i + 1; j < vsz; j++ {
				if d := f.vertex(i).Distance(f.vertex(j)); d > distance {
					distance = d
					i0, i1 = i, j
				}
			}
		}

		// Select the third vertex as the one farthest from the line
		// through the first two.
		v0 = f.vertex(i0)
		v1 = f.vertex(i1)
		lineNormal := normal.Cross(v1.Sub(v0)).Normalize()
		distance = 0
		for i := 0; i < vsz; i++ {
			d := f.vertex(i).Sub(v0).Dot(lineNormal)
			if d < 0 {
				d = -d
			}
			if d > distance {
				distance = d
				i2 = i
			}
		}

		// Restore the original winding by sorting the selected indices.
		if i0 > i1 {
			i0, i1 = i1, i0
		}
		if i1 > i2 {
			i1, i2 = i2, i1
		}
		if i0 > i1 {
			i0, i1 = i1, i0
		}

		v0 = f.vertex(i0)
		v1 = f.vertex(i1)
		v2 = f.vertex(i2)
		normal = v1.Sub(v0).Cross(v2.Sub(v0))
	}

	if normalize {
		normal = normal.Normalize()
	}
	return normal, nil
}

// validate checks the face-level invariants against the owning model.
func (f *Face) validate() error {
	if len(f.vertices) < 3 {
		return ErrFaceVertexCount
	}
	if len(f.textureVertices) != 0 && len(f.textureVertices) != len(f.vertices) {
		return ErrTextureCount
	}
	if len(f.vertexNormals) != 0 && len(f.vertexNormals) != len(f.vertices) {
		return ErrNormalCount
	}

	if f.model == nil {
		return ErrNoModel
	}
	for _, v := range f.vertices {
		if v < 0 || v >= len(f.model.vertices) {
			return fmt.Errorf("%w: %d", ErrVertexIndexRange, v)
		}
	}
	for _, tv := range f.textureVertices {
		if tv < 0 || tv >= len(f.model.textureVertices) {
			return fmt.Errorf("%w: %d", ErrTextureIndexRange, tv)
		}
	}
	for _, vn := range f.vertexNormals {
		if vn < 0 || vn >= len(f.model.vertexNormals) {
			return fmt.Errorf("%w: %d", ErrNormalIndexRange, vn)
		}
	}
	return nil
}
