// Package formats provides the file format plugins: parsers reading a
// file into a mesh.Model and writers serializing a Model back out.
// Formats are registered by name so the CLI can resolve them from user
// input or file extensions.
package formats

import (
	"errors"
	"fmt"
	"sort"

	"github.com/brex-it/3dconv/pkg/mesh"
)

// Format resolution errors.
var (
	ErrUnknownInputFormat  = errors.New("unknown input format")
	ErrUnknownOutputFormat = errors.New("unknown output format")
)

// ParseFunc reads the file at path into a new model.
type ParseFunc func(path string) (*mesh.Model, error)

// WriteFunc serializes the model to the file at path.
type WriteFunc func(m *mesh.Model, path string) error

var (
	parsers = map[string]ParseFunc{}
	writers = map[string]WriteFunc{}
)

// RegisterParser makes a parser available under the given format name.
// Registering the same name twice overwrites the previous entry.
func RegisterParser(name string, p ParseFunc) {
	parsers[name] = p
}

// RegisterWriter makes a writer available under the given format name.
func RegisterWriter(name string, w WriteFunc) {
	writers[name] = w
}

// Parser returns the parser registered for the named format.
func Parser(name string) (ParseFunc, error) {
	p, ok := parsers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInputFormat, name)
	}
	return p, nil
}

// Writer returns the writer registered for the named format.
func Writer(name string) (WriteFunc, error) {
	w, ok := writers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutputFormat, name)
	}
	return w, nil
}

// ParserNames lists the registered parser format names in sorted order.
func ParserNames() []string {
	names := make([]string, 0, len(parsers))
	for n := range parsers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// WriterNames lists the registered writer format names in sorted order.
func WriterNames() []string {
	names := make([]string, 0, len(writers))
	for n := range writers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseError reports a failure while reading a model file, carrying
// the file name and, when meaningful, the 1-based line number.
type ParseError struct {
	Filename string
	Line     int
	Err      error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Filename, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WriteError reports a failure while serializing a model file.
type WriteError struct {
	Filename string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
