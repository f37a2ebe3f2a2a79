package mesh

import "sort"

// sortedVertexSet returns the face's vertex indices as a sorted set
// (duplicates removed).
func sortedVertexSet(f *Face) []int {
	s := make([]int, len(f.vertices))
	copy(s, f.vertices)
	sort.Ints(s)
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// setLess compares two sorted index sets lexicographically, a shorter
// prefix ordering before its extensions.
func setLess(a, b []int) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// intersectionSize counts the common elements of two sorted index sets.
func intersectionSize(a, b []int) int {
	i, j, n := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			n++
			i++
			j++
		}
	}
	return n
}

// faceLess is the ordering of faces within a FaceSet: a precedes b when
// a's vertex-index set is lexicographically smaller AND the two sets
// share fewer than three vertices. The second clause makes faces with
// three or more common vertices compare equivalent, which suppresses
// near-duplicate faces produced by splitting operations. It also means
// the relation is not a strict weak order on arbitrary meshes; the
// observed behavior is kept as is.
func faceLess(a, b *Face) bool {
	as, bs := sortedVertexSet(a), sortedVertexSet(b)
	return setLess(as, bs) && intersectionSize(as, bs) < 3
}

// faceEquivalent reports whether neither face orders before the other.
func faceEquivalent(a, b *Face) bool {
	return !faceLess(a, b) && !faceLess(b, a)
}

// FaceSet is an ordered collection of faces with the faceLess ordering.
// Insertion rejects faces equivalent to an already stored one. Backed by
// a sorted slice; all operations are linear scans, matching the small
// face counts the kernel deals with.
type FaceSet struct {
	faces []*Face
}

// NewFaceSet returns an empty set.
func NewFaceSet() *FaceSet {
	return &FaceSet{}
}

// Len returns the number of stored faces.
func (s *FaceSet) Len() int {
	return len(s.faces)
}

// Insert adds f unless an equivalent face is already stored. Reports
// whether the face was inserted.
func (s *FaceSet) Insert(f *Face) bool {
	pos := len(s.faces)
	for i, e := range s.faces {
		if faceEquivalent(e, f) {
			return false
		}
		if pos == len(s.faces) && faceLess(f, e) {
			pos = i
		}
	}
	s.faces = append(s.faces, nil)
	copy(s.faces[pos+1:], s.faces[pos:])
	s.faces[pos] = f
	return true
}

// Find returns the stored face equivalent to f, or nil.
func (s *FaceSet) Find(f *Face) *Face {
	for _, e := range s.faces {
		if faceEquivalent(e, f) {
			return e
		}
	}
	return nil
}

// All returns the faces in set order. The returned slice is owned by
// the set and must not be modified.
func (s *FaceSet) All() []*Face {
	return s.faces
}
