// Package mesh implements the in-memory polygon-mesh representation and
// the geometric algorithms operating on it: triangulation, polygon
// convexification, connectivity analysis, convexity testing and the
// formal watertightness check.
package mesh

import (
	"errors"
	"fmt"
	"sort"

	"github.com/brex-it/3dconv/pkg/math3d"
)

// Model-level topology errors.
var (
	ErrForeignFace = errors.New("faces can only be added to their associated model")
)

// Model represents a whole 3D mesh: the global vertex, texture vertex
// and vertex normal arrays plus the set of faces indexing into them.
// Mutations are synchronous and in-place; derived properties are
// memoized and recomputed on demand after mutation.
//
// A Model is not safe for concurrent use.
type Model struct {
	vertices        []math3d.Vec4
	textureVertices []math3d.Vec3
	vertexNormals   []math3d.Vec3
	faces           *FaceSet

	isTriangulated bool
	isValidated    bool

	connected     bool
	convex        bool
	watertight    bool
	watertightMsg string

	recalcConnectivity   bool
	recalcConvexity      bool
	recalcWatertightness bool
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		faces:                NewFaceSet(),
		isTriangulated:       true,
		isValidated:          true,
		connected:            true,
		convex:               true,
		watertight:           true,
		recalcConnectivity:   true,
		recalcConvexity:      true,
		recalcWatertightness: true,
	}
}

// Clone returns a deep copy of the model. Every cloned face is
// re-pointed at the new model, so destructive algorithms can run on the
// copy without touching the original.
func (m *Model) Clone() *Model {
	c := &Model{
		faces:                NewFaceSet(),
		isTriangulated:       m.isTriangulated,
		isValidated:          m.isValidated,
		connected:            m.connected,
		convex:               m.convex,
		watertight:           m.watertight,
		watertightMsg:        m.watertightMsg,
		recalcConnectivity:   m.recalcConnectivity,
		recalcConvexity:      m.recalcConvexity,
		recalcWatertightness: m.recalcWatertightness,
	}
	c.vertices = append(c.vertices, m.vertices...)
	c.textureVertices = append(c.textureVertices, m.textureVertices...)
	c.vertexNormals = append(c.vertexNormals, m.vertexNormals...)
	for _, f := range m.faces.All() {
		c.faces.Insert(f.clone(c))
	}
	return c
}

// Vertices returns the vertex array. The slice is owned by the model.
func (m *Model) Vertices() []math3d.Vec4 {
	return m.vertices
}

// TextureVertices returns the texture vertex array.
func (m *Model) TextureVertices() []math3d.Vec3 {
	return m.textureVertices
}

// VertexNormals returns the vertex normal array.
func (m *Model) VertexNormals() []math3d.Vec3 {
	return m.vertexNormals
}

// Faces returns the face set.
func (m *Model) Faces() *FaceSet {
	return m.faces
}

// AddVertex appends a geometric vertex. The fourth coordinate is the
// homogeneous coordinate; unless used for specific calculations it
// should be a positive value (normally 1).
func (m *Model) AddVertex(v math3d.Vec4) {
	m.vertices = append(m.vertices, v)
	m.needsRecalcProperties()
}

// AddTextureVertex appends a texture vertex.
func (m *Model) AddTextureVertex(tv math3d.Vec3) {
	m.textureVertices = append(m.textureVertices, tv)
}

// AddVertexNormal appends a vertex normal.
func (m *Model) AddVertexNormal(vn math3d.Vec3) {
	m.vertexNormals = append(m.vertexNormals, vn)
}

// AddFace inserts a copy of f into the face set. Only faces associated
// with this model are accepted. Insertion is subject to the set's
// near-duplicate suppression; adding an equivalent face is a no-op.
func (m *Model) AddFace(f *Face) error {
	if f.model == nil {
		return ErrNoModel
	}
	if f.model != m {
		return ErrForeignFace
	}

	m.faces.Insert(f.clone(m))

	if len(f.vertices) > 3 {
		m.isTriangulated = false
	}
	m.isValidated = false
	m.needsRecalcProperties()
	return nil
}

// Validate checks the index consistency of every face. The first
// failure is reported with the offending face's vertex indices.
func (m *Model) Validate() error {
	if m.isValidated {
		return nil
	}
	for _, f := range m.faces.All() {
		if err := f.validate(); err != nil {
			return fmt.Errorf("face %s: %w", f.ref(), err)
		}
	}
	m.isValidated = true
	return nil
}

// Transform applies a 4x4 homogeneous transformation matrix to every
// vertex and the linear part of it to every vertex normal. Normals are
// zero-extended before multiplication, which keeps them
// translation-invariant; for non-uniform scale or skew the
// inverse-transpose rule would be needed and is deliberately not
// applied.
func (m *Model) Transform(tmat math3d.Mat4) {
	for i := range m.vertices {
		m.vertices[i] = tmat.MulVec4(m.vertices[i])
	}
	for i := range m.vertexNormals {
		m.vertexNormals[i] = tmat.MulVec4(math3d.V4(m.vertexNormals[i], 0)).Vec3()
	}
}

func (m *Model) needsRecalcProperties() {
	m.recalcConnectivity = true
	m.recalcConvexity = true
	m.recalcWatertightness = true
}

// IsTriangulated reports whether all faces are triangles.
func (m *Model) IsTriangulated() bool {
	return m.isTriangulated
}

// IsConnected reports whether the faces form a single connected
// component covering every vertex.
func (m *Model) IsConnected() (bool, error) {
	if err := m.Validate(); err != nil {
		return false, err
	}
	if m.recalcConnectivity {
		c, err := checkConnectivity(m.faces.All(), len(m.vertices))
		if err != nil {
			return false, err
		}
		m.connected = c
		m.recalcConnectivity = false
	}
	return m.connected, nil
}

// IsConvex reports whether the model is convex. Any vertex lying
// strictly in front of any face plane (even due to non co-planar face
// vertices) makes the model non-convex.
func (m *Model) IsConvex() (bool, error) {
	if err := m.Validate(); err != nil {
		return false, err
	}
	if m.recalcConvexity {
		concs, err := m.concaveVertices()
		if err != nil {
			return false, err
		}
		m.convex = len(concs) == 0
		m.recalcConvexity = false
	}
	return m.convex, nil
}

// IsWatertight reports whether the model is watertight.
func (m *Model) IsWatertight() (bool, error) {
	ok, _, err := m.IsWatertightDetail()
	return ok, err
}

// IsWatertightDetail reports whether the model is watertight, together
// with a message describing the first violation found, if any.
// "Not watertight" is an expected outcome, so the diagnostic is
// returned as data rather than an error.
func (m *Model) IsWatertightDetail() (bool, string, error) {
	if err := m.Validate(); err != nil {
		return false, "", err
	}
	if m.recalcWatertightness {
		ok, msg, err := m.checkWatertightness()
		if err != nil {
			return false, "", err
		}
		m.watertight = ok
		m.watertightMsg = msg
		m.recalcWatertightness = false
	}
	return m.watertight, m.watertightMsg, nil
}

// SurfaceArea returns the total surface area of the model. Runs on a
// triangulated clone when the model itself is not triangulated.
func (m *Model) SurfaceArea() (float32, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}

	model := m
	if !m.isTriangulated {
		model = m.Clone()
		if err := model.Triangulate(); err != nil {
			return 0, err
		}
	}

	var sum float32
	for _, f := range model.faces.All() {
		n, err := f.computeNormal(false)
		if err != nil {
			return 0, err
		}
		sum += 0.5 * n.Length()
	}
	return sum, nil
}

// Volume returns the enclosed volume of the model using the signed
// tetrahedron sum (https://doi.org/10.1109/ICIP.2001.958278). The
// result only matches the enclosed volume for closed, consistently
// wound meshes. Runs on a triangulated clone when the model itself is
// not triangulated.
func (m *Model) Volume() (float32, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}

	model := m
	if !m.isTriangulated {
		model = m.Clone()
		if err := model.Triangulate(); err != nil {
			return 0, err
		}
	}

	var sum float32
	for _, f := range model.faces.All() {
		fv := f.vertices
		sum += math3d.Det3(
			model.vertices[fv[0]].Vec3(),
			model.vertices[fv[1]].Vec3(),
			model.vertices[fv[2]].Vec3(),
		) / 6
	}
	return sum, nil
}

// edge is an undirected or directed vertex-index pair depending on
// whether the producer normalized it.
type edge [2]int

// ConvexifyFaces splits every non-convex face into convex sub-faces.
// Triangles are convex by definition and pass through untouched.
//
// For each face the edges are scanned for one whose half-plane (edge
// direction x face normal) partitions the remaining vertices into an
// inside and an outside group. Such an edge splits the face into one
// inner sub-face and one outer sub-face per contiguous outside run; the
// pieces are re-examined until no edge induces a split. Edges already
// classified without inducing a split are not rechecked, which bounds
// the scan.
func (m *Model) ConvexifyFaces() error {
	if m.isTriangulated {
		return nil
	}
	if err := m.Validate(); err != nil {
		return err
	}

	result := NewFaceSet()

	for _, orig := range m.faces.All() {
		if len(orig.vertices) == 3 {
			result.Insert(orig)
			continue
		}

		visited := make(map[edge]struct{})
		queue := []*Face{orig}
		for len(queue) > 0 {
			tmpf := queue[0]
			queue = queue[1:]

			v := tmpf.vertices
			vsz := len(v)
			if vsz == 3 {
				visited[edge{v[0], v[1]}] = struct{}{}
				visited[edge{v[1], v[2]}] = struct{}{}
				visited[edge{v[2], v[0]}] = struct{}{}
				result.Insert(tmpf)
				continue
			}

			split := false
			for i := 0; i < vsz && !split; i++ {
				e := edge{v[i], v[(i+1)%vsz]}
				if _, ok := visited[e]; ok {
					continue
				}

				normal, err := tmpf.Normal()
				if err != nil {
					return err
				}
				edgeVec := m.vertices[e[1]].Vec3().Sub(m.vertices[e[0]].Vec3())
				edgeSrc := m.vertices[e[0]].Vec3()

				inner := []int{i, (i + 1) % vsz}
				var outer [][]int
				prevInside := true
				for j := 2; j < vsz; j++ {
					ind := (i + j) % vsz
					p := m.vertices[v[ind]].Vec3()
					inside := edgeVec.Cross(p.Sub(edgeSrc)).Dot(normal) >= 0

					if inside {
						inner = append(inner, ind)
						if !prevInside {
							outer[len(outer)-1] = append(outer[len(outer)-1], ind)
						}
					} else {
						if prevInside {
							outer = append(outer, []int{(vsz + ind - 1) % vsz})
						}
						outer[len(outer)-1] = append(outer[len(outer)-1], ind)
					}
					prevInside = inside
				}
				if !prevInside {
					outer[len(outer)-1] = append(outer[len(outer)-1], i)
				}

				visited[e] = struct{}{}

				if len(outer) > 0 {
					// The half-plane of e splits the face.
					queue = append(queue, subFace(tmpf, inner))
					for _, indices := range outer {
						queue = append(queue, subFace(tmpf, indices))
					}
					split = true
				}
			}
			if !split {
				result.Insert(tmpf)
			}
		}
	}

	m.faces = result
	return nil
}

// Triangulate makes every face triangular. Faces are convexified first
// because the fan construction below is only valid for convex polygons.
//
// An N-gon is decomposed into N-2 triangles by a zig-zag fan: two
// walkers start from the triangles (0,1,2) and (N-1,0,2) and advance
// alternately from both ends toward the middle until they meet.
func (m *Model) Triangulate() error {
	if m.isTriangulated {
		return nil
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if err := m.ConvexifyFaces(); err != nil {
		return err
	}

	result := NewFaceSet()
	for _, f := range m.faces.All() {
		n := len(f.vertices)
		if n <= 3 {
			result.Insert(f)
			continue
		}

		tri := [2][3]int{{0, 1, 2}, {-1, 0, 2}}
		step := [2][3]int{{-1, 1, 1}, {-1, -1, 1}}
	fan:
		for {
			for i := 0; i < 2; i++ {
				a := (tri[i][0]%n + n) % n
				b := (tri[i][1]%n + n) % n
				c := (tri[i][2]%n + n) % n
				if a == c {
					break fan
				}
				result.Insert(subFace(f, []int{a, b, c}))
				tri[i][0] += step[i][0]
				tri[i][1] += step[i][1]
				tri[i][2] += step[i][2]
			}
		}
	}

	m.faces = result
	m.isTriangulated = true
	return nil
}

// checkConnectivity reports whether the given faces connect all of the
// nverts vertices into a single component. Every face contributes a
// vertex-membership bitset; bitsets sharing a set bit with the running
// union are absorbed until a pass makes no progress. The pass count is
// bounded by the initial face count so disconnected components cannot
// loop forever.
func checkConnectivity(faces []*Face, nverts int) (bool, error) {
	if len(faces) == 0 {
		return nverts == 0, nil
	}

	connections := make([]*Bitset, 0, len(faces))
	for _, f := range faces {
		bs := NewBitset(nverts)
		for _, v := range f.vertices {
			if err := bs.Set(v, true); err != nil {
				return false, err
			}
		}
		connections = append(connections, bs)
	}

	union := connections[0].Clone()
	connections = connections[1:]

	npass := len(connections)
	for len(connections) > 0 && npass > 0 {
		npass--
		kept := connections[:0]
		for _, c := range connections {
			common, err := c.And(union)
			if err != nil {
				return false, err
			}
			if common.Any() {
				if err := union.OrAssign(c); err != nil {
					return false, err
				}
			} else {
				kept = append(kept, c)
			}
		}
		connections = kept
	}

	// Vertices with no incident face leave their bit unset, so a model
	// with isolated vertices counts as disconnected.
	return len(connections) == 0 && union.All(), nil
}

// faceConcaveSet pairs a face with the global vertices lying strictly
// in front of its plane.
type faceConcaveSet struct {
	face  *Face
	verts []int
}

// concaveVertices collects, for every face, the model vertices strictly
// on the positive side of the face's plane beyond Epsilon. Faces with
// no such vertex are omitted.
func (m *Model) concaveVertices() ([]faceConcaveSet, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var res []faceConcaveSet
	for _, f := range m.faces.All() {
		normal, err := f.Normal()
		if err != nil {
			return nil, err
		}
		base := m.vertices[f.vertices[0]].Vec3()
		var conc []int
		for i := range m.vertices {
			if m.vertices[i].Vec3().Sub(base).Dot(normal) > math3d.Epsilon {
				conc = append(conc, i)
			}
		}
		if len(conc) > 0 {
			res = append(res, faceConcaveSet{face: f, verts: conc})
		}
	}
	return res, nil
}

// checkWatertightness runs the three sequential watertightness checks
// (https://davidstutz.de/a-formal-definition-of-watertight-meshes/):
// edge manifoldness, vertex manifoldness and self intersection. The
// first failure short-circuits with a diagnostic naming the offending
// entity.
func (m *Model) checkWatertightness() (bool, string, error) {
	// Every undirected edge must have exactly two incident faces.
	edgeOccurrences := make(map[edge]int)
	for _, f := range m.faces.All() {
		v := f.vertices
		vsz := len(v)
		for i := 0; i < vsz; i++ {
			e := edge{v[i], v[(i+1)%vsz]}
			if e[0] > e[1] {
				e[0], e[1] = e[1], e[0]
			}
			edgeOccurrences[e]++
		}
	}
	edges := make([]edge, 0, len(edgeOccurrences))
	for e := range edgeOccurrences {
		edges = append(edges, e)
	}
	sortEdges(edges)
	for _, e := range edges {
		if o := edgeOccurrences[e]; o != 2 {
			kind := "non-manifold edge"
			if o == 1 {
				kind = "boundary edge"
			}
			return false, fmt.Sprintf("edge %d-%d: %s", e[0], e[1], kind), nil
		}
	}

	// Every vertex's incident faces, with the vertex itself removed and
	// the remaining indices remapped to a dense local range, must form a
	// connected local sub-mesh.
	for i := range m.vertices {
		group := NewFaceSet()
		nlocal := 0
		indexMap := make(map[int]int)
		for _, f := range m.faces.All() {
			var selected []int
			incident := false
			for _, vi := range f.vertices {
				if vi == i {
					incident = true
				} else {
					selected = append(selected, vi)
				}
			}
			if !incident {
				continue
			}
			for k, vi := range selected {
				if _, ok := indexMap[vi]; !ok {
					indexMap[vi] = nlocal
					nlocal++
				}
				selected[k] = indexMap[vi]
			}
			group.Insert(NewFaceWithIndices(m, selected, nil, nil))
		}
		ok, err := checkConnectivity(group.All(), nlocal)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("vertex %d: non-manifold vertex", i), nil
		}
	}

	// No edge may pierce the interior of a face. Each edge crossing a
	// face's plane (endpoints split across the concave/non-concave
	// partition) is intersected with the plane; an intersection point on
	// the interior side of every boundary edge is a self intersection.
	concs, err := m.concaveVertices()
	if err != nil {
		return false, "", err
	}
	for _, fc := range concs {
		normal, err := fc.face.Normal()
		if err != nil {
			return false, "", err
		}
		isConc := func(vi int) bool {
			for _, c := range fc.verts {
				if vi == c {
					return true
				}
			}
			return false
		}
		fvert := func(i int) math3d.Vec3 {
			return m.vertices[fc.face.vertices[i]].Vec3()
		}

		for _, e := range edges {
			if isConc(e[0]) == isConc(e[1]) {
				continue
			}

			ev0 := m.vertices[e[0]].Vec3()
			ev1 := m.vertices[e[1]].Vec3()
			evec := ev1.Sub(ev0)
			t := fvert(0).Sub(ev0).Dot(normal) / evec.Dot(normal)
			intersection := ev0.Add(evec.Scale(t))

			inside := true
			num := len(fc.face.vertices)
			for i := 0; i < num; i++ {
				a := fvert(i)
				b := fvert((i + 1) % num)
				if b.Sub(a).Cross(intersection.Sub(a)).Dot(normal) <= 0 {
					inside = false
					break
				}
			}
			if inside {
				return false, fmt.Sprintf("face %s: self intersection", fc.face.ref()), nil
			}
		}
	}

	return true, "", nil
}

// sortEdges orders edges lexicographically so diagnostics are
// deterministic.
func sortEdges(edges []edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
}
