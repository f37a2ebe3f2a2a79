package mesh

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/brex-it/3dconv/pkg/math3d"
)

func TestModelVertexInsertion(t *testing.T) {
	m := NewModel()

	m.AddVertex(math3d.Vec4{-10.01, -0.77, -2, 1})
	for i := 0; i < 20; i++ {
		m.AddVertex(math3d.Vec4{float32(i), 0.5, -3, 1})
		m.AddTextureVertex(math3d.Vec3{X: float32(i)})
	}
	m.AddVertex(math3d.Vec4{3.88, -224.7, 63.1, 1})
	m.AddTextureVertex(math3d.Vec3{X: 0.931, Y: 224.7, Z: -3.3})
	m.AddVertexNormal(math3d.Vec3{X: -3.52, Y: -7.242047, Z: 63.1})

	if len(m.Vertices()) != 22 {
		t.Errorf("got %d vertices, want 22", len(m.Vertices()))
	}
	if m.Vertices()[0] != (math3d.Vec4{-10.01, -0.77, -2, 1}) {
		t.Errorf("vertex 0: got %v", m.Vertices()[0])
	}
	if m.Vertices()[21] != (math3d.Vec4{3.88, -224.7, 63.1, 1}) {
		t.Errorf("vertex 21: got %v", m.Vertices()[21])
	}
	if len(m.TextureVertices()) != 21 {
		t.Errorf("got %d texture vertices, want 21", len(m.TextureVertices()))
	}
	if m.TextureVertices()[20] != (math3d.Vec3{X: 0.931, Y: 224.7, Z: -3.3}) {
		t.Errorf("texture vertex 20: got %v", m.TextureVertices()[20])
	}
	if len(m.VertexNormals()) != 1 {
		t.Errorf("got %d vertex normals, want 1", len(m.VertexNormals()))
	}
}

// validationModel builds the shared fixture of the validation tests:
// five vertices, three texture vertices and three vertex normals.
func validationModel() *Model {
	m := NewModel()
	m.AddVertex(math3d.Vec4{-16.6043, 35.1819, 44.1489, 1})
	m.AddVertex(math3d.Vec4{38.1404, -10.3665, -34.869, 1})
	m.AddVertex(math3d.Vec4{1.38671, -46.6433, -35.3043, 1})
	m.AddVertex(math3d.Vec4{-2, 70, -70, 1})
	m.AddVertex(math3d.Vec4{29.0947, -73.2367, -78.1297, 1})

	m.AddTextureVertex(math3d.Vec3{X: 2.99646, Y: 41.2849, Z: 33.7862})
	m.AddTextureVertex(math3d.Vec3{X: -26.656, Y: 20.1958, Z: 39.978})
	m.AddTextureVertex(math3d.Vec3{X: 1.40029, Y: 43.9466, Z: 37.1571})

	m.AddVertexNormal(math3d.Vec3{X: -13.9796, Y: 30.2638, Z: 38.173})
	m.AddVertexNormal(math3d.Vec3{X: 14.0015, Y: -28.2315, Z: -30.3864})
	m.AddVertexNormal(math3d.Vec3{X: -18.5836, Y: 28.4579, Z: 40.3091})
	return m
}

func TestModelValidation(t *testing.T) {
	tests := []struct {
		name     string
		vertices []int
		textures []int
		normals  []int
		wantErr  error
		wantRef  string
	}{
		{
			name:     "not enough vertices",
			vertices: []int{1, 0},
			wantErr:  ErrFaceVertexCount,
			wantRef:  "face 1:0:",
		},
		{
			name:     "wrong texture vertex count",
			vertices: []int{1, 0, 2},
			textures: []int{3, 1, 2, 0},
			wantErr:  ErrTextureCount,
			wantRef:  "face 1:0:2:",
		},
		{
			name:     "wrong vertex normal count",
			vertices: []int{1, 0, 2},
			normals:  []int{2, 1},
			wantErr:  ErrNormalCount,
			wantRef:  "face 1:0:2:",
		},
		{
			name:     "vertex index out of range",
			vertices: []int{1, 0, 2, 14},
			wantErr:  ErrVertexIndexRange,
			wantRef:  "face 1:0:2:14:",
		},
		{
			name:     "texture vertex index out of range",
			vertices: []int{1, 0, 2},
			textures: []int{0, 2, 9},
			wantErr:  ErrTextureIndexRange,
			wantRef:  "face 1:0:2:",
		},
		{
			name:     "vertex normal index out of range",
			vertices: []int{1, 0, 2},
			normals:  []int{2, 1, 20},
			wantErr:  ErrNormalIndexRange,
			wantRef:  "face 1:0:2:",
		},
		{
			name:     "everything is fine",
			vertices: []int{1, 0, 2, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validationModel()
			f := NewFaceWithIndices(m, tt.vertices, tt.textures, tt.normals)
			if err := m.AddFace(f); err != nil {
				t.Fatal(err)
			}

			err := m.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate: got %v, want %v", err, tt.wantErr)
			}
			if !strings.HasPrefix(err.Error(), tt.wantRef) {
				t.Errorf("error %q should start with %q", err, tt.wantRef)
			}
		})
	}
}

func TestConvexifyFaces(t *testing.T) {
	tests := []struct {
		name     string
		vertices []math3d.Vec4
		face     []int
		want     [][]int
	}{
		{
			name: "one concavity",
			vertices: []math3d.Vec4{
				{1, 0.5, 0, 1},
				{0, 0.5, 0, 1},
				{0.25, 0.5, 1, 1},
				{-1, 0.5, 0.5, 1},
				{-1, 0.5, -1, 1},
				{-0.25, 0.5, -1, 1},
			},
			face: []int{0, 1, 2, 3, 4, 5},
			want: [][]int{
				{0, 1, 4, 5},
				{1, 2, 3, 4},
			},
		},
		{
			name: "more concavities",
			vertices: []math3d.Vec4{
				{-7.8, 2.5, -2, 1},
				{-7.8, 3, 0, 1},
				{-7.8, 2, 1, 1},
				{-7.8, 3, 1.5, 1},
				{-7.8, 4, 1, 1},
				{-7.8, 6, 2.5, 1},
				{-7.8, 6, -1.5, 1},
				{-7.8, 5, -1, 1},
			},
			face: []int{0, 1, 2, 3, 4, 5, 6, 7},
			want: [][]int{
				{7, 0, 1, 4},
				{1, 2, 3, 4},
				{6, 7, 4, 5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel()
			for _, v := range tt.vertices {
				m.AddVertex(v)
			}
			if err := m.AddFace(NewFaceWithIndices(m, tt.face, nil, nil)); err != nil {
				t.Fatal(err)
			}
			if m.Faces().Len() != 1 {
				t.Fatalf("got %d faces before convexification, want 1", m.Faces().Len())
			}

			if err := m.ConvexifyFaces(); err != nil {
				t.Fatal(err)
			}
			if m.Faces().Len() != len(tt.want) {
				t.Fatalf("got %d faces, want %d", m.Faces().Len(), len(tt.want))
			}
			for _, fi := range tt.want {
				if m.Faces().Find(NewFaceWithIndices(m, fi, nil, nil)) == nil {
					t.Errorf("face %v missing from partitioning", fi)
				}
			}
		})
	}
}

func TestTransform(t *testing.T) {
	newFixture := func() *Model {
		m := NewModel()
		m.AddVertex(math3d.Vec4{3, 4, 2, 1})
		m.AddVertexNormal(math3d.Vec3{X: -1, Y: 2, Z: -2})
		return m
	}

	t.Run("translation", func(t *testing.T) {
		m := newFixture()
		m.Transform(math3d.Translate(2, 4, 6))
		if m.Vertices()[0] != (math3d.Vec4{5, 8, 8, 1}) {
			t.Errorf("vertex: got %v, want (5, 8, 8, 1)", m.Vertices()[0])
		}
		// Normals are zero extended during matrix multiplication, so
		// translation must not change them.
		if m.VertexNormals()[0] != (math3d.Vec3{X: -1, Y: 2, Z: -2}) {
			t.Errorf("normal: got %v, want (-1, 2, -2)", m.VertexNormals()[0])
		}
	})

	t.Run("scaling", func(t *testing.T) {
		m := newFixture()
		m.Transform(math3d.Scale(2, 1.5, -3))
		if m.Vertices()[0] != (math3d.Vec4{6, 6, -6, 1}) {
			t.Errorf("vertex: got %v, want (6, 6, -6, 1)", m.Vertices()[0])
		}
		if m.VertexNormals()[0] != (math3d.Vec3{X: -2, Y: 3, Z: 6}) {
			t.Errorf("normal: got %v, want (-2, 3, 6)", m.VertexNormals()[0])
		}
	})
}

func TestTriangulate(t *testing.T) {
	m := NewModel()
	f := NewFace(m)

	// Nine vertices on a circle forming one big polygon.
	for i := 0; i < 9; i++ {
		angle := 2 * math.Pi * float64(i) / 9
		m.AddVertex(math3d.Vec4{
			float32(math.Cos(angle)), 1, float32(math.Sin(angle)), 1,
		})
		f.AddVertex(i)
	}

	if err := m.AddFace(f); err != nil {
		t.Fatal(err)
	}
	if m.IsTriangulated() {
		t.Fatal("9-gon model must not be triangulated")
	}

	if err := m.Triangulate(); err != nil {
		t.Fatal(err)
	}
	if !m.IsTriangulated() {
		t.Error("model should be triangulated")
	}

	// The triangles are created by partitioning the polygon along a
	// zig-zag shaped path; the set orders them by their vertex sets.
	want := [][]int{
		{0, 1, 2},
		{8, 0, 2},
		{8, 2, 3},
		{7, 3, 4},
		{7, 8, 3},
		{6, 4, 5},
		{6, 7, 4},
	}
	faces := m.Faces().All()
	if len(faces) != len(want) {
		t.Fatalf("got %d triangles, want %d", len(faces), len(want))
	}
	for i, f := range faces {
		if !equalInts(f.Vertices(), want[i]) {
			t.Errorf("triangle %d: got %v, want %v", i, f.Vertices(), want[i])
		}
	}
}

func TestConnectivity(t *testing.T) {
	m := NewModel()
	for i := 0; i < 6; i++ {
		m.AddVertex(math3d.Vec4{1, 2, 3, 1})
	}
	for _, fi := range [][]int{{0, 1, 2}, {0, 1, 3}, {4, 5, 3}} {
		if err := m.AddFace(NewFaceWithIndices(m, fi, nil, nil)); err != nil {
			t.Fatal(err)
		}
	}

	conn, err := m.IsConnected()
	if err != nil {
		t.Fatal(err)
	}
	if !conn {
		t.Error("model covering all vertices should be connected")
	}

	// Vertices without any incident face disconnect the model.
	for i := 0; i < 3; i++ {
		m.AddVertex(math3d.Vec4{1, 2, 3, 1})
	}
	conn, err = m.IsConnected()
	if err != nil {
		t.Fatal(err)
	}
	if conn {
		t.Error("model with isolated vertices should be disconnected")
	}

	// Covering the new vertices with a face that does not touch the
	// old component keeps the model disconnected.
	if err := m.AddFace(NewFaceWithIndices(m, []int{6, 7, 8}, nil, nil)); err != nil {
		t.Fatal(err)
	}
	conn, err = m.IsConnected()
	if err != nil {
		t.Fatal(err)
	}
	if conn {
		t.Error("model with two components should be disconnected")
	}
}

func TestConvexity(t *testing.T) {
	mConvex := NewModel()
	mConvex.AddVertex(math3d.Vec4{1, 1, -1, 1})
	mConvex.AddVertex(math3d.Vec4{1, 1, 0, 1})
	mConvex.AddVertex(math3d.Vec4{1, 0, 0, 1})
	mConvex.AddVertex(math3d.Vec4{0, 1.5, -1.5, 1})

	for _, fi := range [][]int{{0, 3, 1}, {0, 2, 3}, {1, 3, 2}} {
		if err := mConvex.AddFace(NewFaceWithIndices(mConvex, fi, nil, nil)); err != nil {
			t.Fatal(err)
		}
	}

	// Keep a copy of the open shape for the concave variant.
	mConcave := mConvex.Clone()

	// Closing face completes the tetrahedron.
	if err := mConvex.AddFace(NewFaceWithIndices(mConvex, []int{0, 1, 2}, nil, nil)); err != nil {
		t.Fatal(err)
	}
	convex, err := mConvex.IsConvex()
	if err != nil {
		t.Fatal(err)
	}
	if !convex {
		t.Error("tetrahedron should be convex")
	}

	// Complete the copy into a concave shape instead.
	mConcave.AddVertex(math3d.Vec4{2, 1, 0, 1})
	mConcave.AddVertex(math3d.Vec4{2, 0, -1, 1})
	for _, fi := range [][]int{
		{0, 1, 4}, {1, 2, 4}, {0, 5, 2}, {0, 4, 5}, {2, 5, 4},
	} {
		if err := mConcave.AddFace(NewFaceWithIndices(mConcave, fi, nil, nil)); err != nil {
			t.Fatal(err)
		}
	}
	convex, err = mConcave.IsConvex()
	if err != nil {
		t.Fatal(err)
	}
	if convex {
		t.Error("dented shape should not be convex")
	}
}

// watertightBoxVertices is a 2x3x2 box with extra vertices splitting
// its edges, so non-manifold situations can be constructed on it.
func watertightBoxVertices() []math3d.Vec4 {
	return []math3d.Vec4{
		{2, -1, 1, 1},   // 0
		{1, -1, 1, 1},   // 1
		{-1, -1, 1, 1},  // 2
		{-2, -1, 1, 1},  // 3
		{1, 1, 1, 1},    // 4
		{-1, 1, 1, 1},   // 5
		{2, 2, 1, 1},    // 6
		{1, 2, 1, 1},    // 7
		{-1, 2, 1, 1},   // 8
		{-2, 2, 1, 1},   // 9
		{2, -1, -1, 1},  // 10
		{1, -1, -1, 1},  // 11
		{-1, -1, -1, 1}, // 12
		{-2, -1, -1, 1}, // 13
		{1, 1, -1, 1},   // 14
		{-1, 1, -1, 1},  // 15
		{2, 2, -1, 1},   // 16
		{1, 2, -1, 1},   // 17
		{-1, 2, -1, 1},  // 18
		{-2, 2, -1, 1},  // 19
	}
}

func TestWatertightness(t *testing.T) {
	tests := []struct {
		name string
		// preVertices are added before the shared box vertices and
		// shift the indices of everything after them.
		preVertices []math3d.Vec4
		faces       [][]int
		want        bool
		wantMsg     string
	}{
		{
			name: "watertight model",
			faces: [][]int{
				{0, 6, 7, 4, 1},
				{1, 4, 5, 2},
				{2, 5, 8, 9, 3},
				{10, 11, 14, 17, 16},
				{11, 12, 15, 14},
				{12, 13, 19, 18, 15},
				{0, 10, 16, 6},
				{4, 7, 17, 14},
				{5, 15, 18, 8},
				{3, 9, 19, 13},
				{6, 16, 17, 7},
				{4, 14, 15, 5},
				{8, 18, 19, 9},
				{0, 1, 2, 3, 13, 12, 11, 10},
			},
			want: true,
		},
		{
			name: "self intersection",
			preVertices: []math3d.Vec4{
				{1, 3, 1, 1},
				{1, 3, -1, 1},
			},
			faces: [][]int{
				{0, 6, 7, 4, 1},
				{1, 4, 5, 2},
				{2, 5, 9, 3},
				{10, 11, 14, 17, 16},
				{11, 12, 15, 14},
				{12, 13, 19, 15},
				{0, 10, 16, 6},
				{4, 8, 18, 14},
				{5, 15, 21, 20},
				{3, 9, 19, 13},
				{6, 16, 17, 18, 8, 7},
				{4, 14, 15, 5},
				{9, 20, 21, 19},
				{0, 1, 2, 3, 13, 12, 11, 10},
				{5, 20, 9},
				{4, 7, 8},
				{14, 18, 17},
				{15, 19, 21},
			},
			want:    false,
			wantMsg: "self intersection",
		},
		{
			name: "boundary edge",
			faces: [][]int{
				{1, 4, 5, 2},
				{1, 11, 14, 4},
				{11, 12, 15, 14},
				{2, 5, 15, 12},
				{4, 14, 15, 5},
			},
			want:    false,
			wantMsg: "edge 1-2: boundary edge",
		},
		{
			name: "non-manifold edge",
			faces: [][]int{
				{1, 4, 5, 2},
				{1, 11, 14, 4},
				{11, 12, 15, 14},
				{2, 5, 15, 12},
				{4, 14, 15, 5},
				{1, 2, 12, 11},
				{1, 6, 16, 11},
				{0, 6, 1},
				{10, 11, 16},
				{0, 10, 16, 6},
				{0, 1, 11, 10},
			},
			want:    false,
			wantMsg: "edge 1-11: non-manifold edge",
		},
		{
			name: "non-manifold vertex",
			faces: [][]int{
				{1, 4, 5, 2},
				{1, 11, 14, 4},
				{11, 12, 15, 14},
				{2, 5, 15, 12},
				{4, 14, 15, 5},
				{1, 2, 12, 11},
				{2, 9, 3},
				{3, 9, 19, 13},
				{2, 19, 9},
				{2, 3, 13},
				{2, 13, 19},
			},
			want:    false,
			wantMsg: "vertex 2: non-manifold vertex",
		},
		{
			name: "disconnected but watertight",
			faces: [][]int{
				{0, 4, 1},
				{10, 11, 14},
				{2, 5, 3},
				{12, 13, 15},
				{0, 10, 14, 4},
				{3, 5, 15, 13},
				{1, 4, 14, 11},
				{2, 12, 15, 5},
				{0, 1, 11, 10},
				{2, 3, 13, 12},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel()
			for _, v := range tt.preVertices {
				m.AddVertex(v)
			}
			for _, v := range watertightBoxVertices() {
				m.AddVertex(v)
			}
			for _, fi := range tt.faces {
				if err := m.AddFace(NewFaceWithIndices(m, fi, nil, nil)); err != nil {
					t.Fatal(err)
				}
			}

			wt, msg, err := m.IsWatertightDetail()
			if err != nil {
				t.Fatal(err)
			}
			if wt != tt.want {
				t.Errorf("watertight: got %v, want %v (msg: %q)", wt, tt.want, msg)
			}
			if tt.want && msg != "" {
				t.Errorf("watertight model should carry no message, got %q", msg)
			}
			if !tt.want && !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("message %q should contain %q", msg, tt.wantMsg)
			}

			// Cached result must agree.
			wt2, err := m.IsWatertight()
			if err != nil {
				t.Fatal(err)
			}
			if wt2 != tt.want {
				t.Errorf("cached watertight: got %v, want %v", wt2, tt.want)
			}
		})
	}
}

func TestSurfaceAreaAndVolume(t *testing.T) {
	// Unit cube with quad faces, consistently wound outward.
	m := NewModel()
	cube := []math3d.Vec4{
		{0, 0, 0, 1}, {1, 0, 0, 1}, {1, 1, 0, 1}, {0, 1, 0, 1},
		{0, 0, 1, 1}, {1, 0, 1, 1}, {1, 1, 1, 1}, {0, 1, 1, 1},
	}
	for _, v := range cube {
		m.AddVertex(v)
	}
	quads := [][]int{
		{0, 3, 2, 1}, // bottom (z=0), facing -z
		{4, 5, 6, 7}, // top (z=1), facing +z
		{0, 1, 5, 4}, // y=0, facing -y
		{2, 3, 7, 6}, // y=1, facing +y
		{0, 4, 7, 3}, // x=0, facing -x
		{1, 2, 6, 5}, // x=1, facing +x
	}
	for _, q := range quads {
		if err := m.AddFace(NewFaceWithIndices(m, q, nil, nil)); err != nil {
			t.Fatal(err)
		}
	}

	area, err := m.SurfaceArea()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(area)-6) > 1e-5 {
		t.Errorf("surface area: got %v, want 6", area)
	}

	vol, err := m.Volume()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(vol)-1) > 1e-5 {
		t.Errorf("volume: got %v, want 1", vol)
	}

	// The property computations run on a triangulated copy; the model
	// itself keeps its quads.
	if m.IsTriangulated() {
		t.Error("property computation must not triangulate the model itself")
	}
	if m.Faces().Len() != 6 {
		t.Errorf("got %d faces, want 6", m.Faces().Len())
	}
}

func TestClone(t *testing.T) {
	m := NewModel()
	m.AddVertex(math3d.Vec4{0, 0, 0, 1})
	m.AddVertex(math3d.Vec4{1, 0, 0, 1})
	m.AddVertex(math3d.Vec4{0, 1, 0, 1})
	if err := m.AddFace(NewFaceWithIndices(m, []int{0, 1, 2}, nil, nil)); err != nil {
		t.Fatal(err)
	}

	c := m.Clone()
	if len(c.Vertices()) != 3 || c.Faces().Len() != 1 {
		t.Fatal("clone lost data")
	}

	// Mutating the clone must not affect the original.
	c.AddVertex(math3d.Vec4{5, 5, 5, 1})
	c.Transform(math3d.Translate(1, 0, 0))
	if len(m.Vertices()) != 3 {
		t.Error("original gained vertices from clone")
	}
	if m.Vertices()[0] != (math3d.Vec4{0, 0, 0, 1}) {
		t.Error("original vertices changed by clone transform")
	}
}

// ngonModel builds a model with one convex n-gon face on a circle.
func ngonModel(t *testing.T, n int) *Model {
	t.Helper()
	m := NewModel()
	f := NewFace(m)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		m.AddVertex(math3d.Vec4{
			float32(math.Cos(angle)), 1, float32(math.Sin(angle)), 1,
		})
		f.AddVertex(i)
	}
	if err := m.AddFace(f); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestTriangulateCount(t *testing.T) {
	for n := 3; n <= 12; n++ {
		m := ngonModel(t, n)
		if err := m.Triangulate(); err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if got, want := m.Faces().Len(), n-2; got != want {
			t.Errorf("n=%d: got %d triangles, want %d", n, got, want)
		}
		for _, f := range m.Faces().All() {
			if len(f.Vertices()) != 3 {
				t.Errorf("n=%d: non-triangular face %v", n, f.Vertices())
			}
		}
	}
}

func TestTriangulateIdempotent(t *testing.T) {
	m := ngonModel(t, 7)
	if err := m.Triangulate(); err != nil {
		t.Fatal(err)
	}
	before := m.Faces().Len()

	// Repeating the operations on an all-triangle model changes nothing.
	if err := m.Triangulate(); err != nil {
		t.Fatal(err)
	}
	if err := m.ConvexifyFaces(); err != nil {
		t.Fatal(err)
	}
	if m.Faces().Len() != before {
		t.Errorf("face count changed from %d to %d", before, m.Faces().Len())
	}
}
