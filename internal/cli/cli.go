// Package cli parses the command line surface of 3dconv: transformation
// strings, property selection strings and the input/output format
// resolution rules.
package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/brex-it/3dconv/pkg/math3d"
	"github.com/brex-it/3dconv/pkg/mesh"
)

// Argument errors.
var (
	ErrUnknownFaceTransform  = errors.New("unknown face transformation")
	ErrUnknownModelTransform = errors.New("unknown model transformation")
	ErrTransformArgs         = errors.New("wrong argument count for transformation")
	ErrInvalidSkewMap        = errors.New("invalid skew map")
	ErrUnknownProperty       = errors.New("unknown property flag")
	ErrFormatSpec            = errors.New("invalid file format specification")
	ErrNoInputFormat         = errors.New("unable to determine input file format")
	ErrNoOutputFormat        = errors.New("unable to determine output file format")
)

// ActionType selects the handler of an Action.
type ActionType int

// The supported action kinds.
const (
	ActionPrintProperties ActionType = iota
	ActionFaceTransform
	ActionModelTransform
)

// Action is one order-sensitive command line request: a property
// printout or a transformation, with its raw argument string. Actions
// are applied to the model in the order they appeared on the command
// line.
type Action struct {
	Type  ActionType
	Value string
}

// ActionFlag adapts an action list to the flag package. Each -p/-F/-T
// occurrence appends to the shared list, preserving the relative order
// of the options.
type ActionFlag struct {
	Type    ActionType
	Actions *[]Action
}

func (a ActionFlag) String() string { return "" }

func (a ActionFlag) Set(value string) error {
	*a.Actions = append(*a.Actions, Action{Type: a.Type, Value: value})
	return nil
}

// FaceTransforms holds the requested face-level transformations. Both
// operations are idempotent, so repeated commands collapse into one.
type FaceTransforms struct {
	Convexify   bool
	Triangulate bool
}

// ParseFaceTransforms interprets a comma separated face transformation
// string. The commands are "c" (convexify) and "t" (triangulate).
func ParseFaceTransforms(trstr string) (FaceTransforms, error) {
	var ft FaceTransforms
	if trstr == "" {
		return ft, nil
	}

	for _, command := range strings.Split(trstr, ",") {
		switch command {
		case "c":
			ft.Convexify = true
		case "t":
			ft.Triangulate = true
		default:
			return FaceTransforms{}, fmt.Errorf("%w: %q", ErrUnknownFaceTransform, command)
		}
	}
	return ft, nil
}

// Apply runs the requested transformations on m.
func (ft FaceTransforms) Apply(m *mesh.Model) error {
	if ft.Convexify {
		if err := m.ConvexifyFaces(); err != nil {
			return err
		}
	}
	if ft.Triangulate {
		if err := m.Triangulate(); err != nil {
			return err
		}
	}
	return nil
}

// ParseModelTransforms interprets a comma separated model
// transformation string and composes the single transformation matrix.
// The commands are:
//
//	ro:<axis-x>:<axis-y>:<axis-z>:<angle-in-rad>
//	sc:<factor>
//	sk:<domain-letter><range-letter>:<angle-in-rad>
//	tr:<direction-x>:<direction-y>:<direction-z>
//
// Operations accumulate by right multiplication, so the matrix applies
// the listed operations to a vertex in reverse order.
func ParseModelTransforms(trstr string) (math3d.Mat4, error) {
	trmat := math3d.Identity()
	if trstr == "" {
		return trmat, nil
	}

	for _, part := range strings.Split(trstr, ",") {
		fields := strings.Split(part, ":")
		opcode, args := fields[0], fields[1:]

		switch opcode {
		case "ro":
			v, err := transformArgs(opcode, args, 4)
			if err != nil {
				return math3d.Mat4{}, err
			}
			axis := math3d.Vec3{X: v[0], Y: v[1], Z: v[2]}
			trmat = trmat.Mul(math3d.RotateAxis(axis, v[3]))
		case "sc":
			v, err := transformArgs(opcode, args, 1)
			if err != nil {
				return math3d.Mat4{}, err
			}
			trmat = trmat.Mul(math3d.ScaleUniform(v[0]))
		case "sk":
			if len(args) != 2 {
				return math3d.Mat4{}, fmt.Errorf("%w: sk takes 2, got %d", ErrTransformArgs, len(args))
			}
			domain, rng, err := parseSkewMap(args[0])
			if err != nil {
				return math3d.Mat4{}, err
			}
			angle, err := parseFloat(args[1])
			if err != nil {
				return math3d.Mat4{}, err
			}
			trmat = trmat.Mul(math3d.Skew(domain, rng, angle))
		case "tr":
			v, err := transformArgs(opcode, args, 3)
			if err != nil {
				return math3d.Mat4{}, err
			}
			trmat = trmat.Mul(math3d.Translate(v[0], v[1], v[2]))
		default:
			return math3d.Mat4{}, fmt.Errorf("%w: %q", ErrUnknownModelTransform, opcode)
		}
	}

	return trmat, nil
}

func transformArgs(opcode string, args []string, want int) ([]float32, error) {
	if len(args) != want {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrTransformArgs, opcode, want, len(args))
	}
	vals := make([]float32, want)
	for i, a := range args {
		v, err := parseFloat(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func parseFloat(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("not a valid number: %s", s)
	}
	return float32(v), nil
}

// parseSkewMap decodes a two-letter axis pair like "zy": move along the
// first axis (domain) to displace along the second (range).
func parseSkewMap(s string) (domain, rng int, err error) {
	if len(s) != 2 || s[0] == s[1] {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSkewMap, s)
	}
	dims := [2]int{}
	for i := 0; i < 2; i++ {
		switch s[i] {
		case 'x':
			dims[i] = 0
		case 'y':
			dims[i] = 1
		case 'z':
			dims[i] = 2
		default:
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSkewMap, s)
		}
	}
	return dims[0], dims[1], nil
}

// ResolveFormats determines the input and output format names. An
// explicit "in:out" specification wins; either side may be left empty
// to fall back to the corresponding file extension. The output format
// stays empty when no output file is requested.
func ResolveFormats(ifile, ofile, ioformats string) (iformat, oformat string, err error) {
	if ioformats != "" {
		if !strings.Contains(ioformats, ":") {
			return "", "", fmt.Errorf("%w: ':' cannot be omitted", ErrFormatSpec)
		}
		parts := strings.Split(ioformats, ":")
		if len(parts) > 2 {
			return "", "", fmt.Errorf("%w: too many ':' separators", ErrFormatSpec)
		}
		iformat, oformat = parts[0], parts[1]
	}

	if iformat == "" {
		if ext := filepath.Ext(ifile); ext != "" {
			iformat = ext[1:]
		} else {
			return "", "", ErrNoInputFormat
		}
	}
	if oformat == "" && ofile != "" {
		if ext := filepath.Ext(ofile); ext != "" {
			oformat = ext[1:]
		} else {
			return "", "", ErrNoOutputFormat
		}
	}
	return iformat, oformat, nil
}

// Properties selects the model properties to report.
type Properties struct {
	All            bool
	Connectivity   bool
	Convexity      bool
	SurfaceArea    bool
	Triangularity  bool
	Volume         bool
	Watertightness bool
}

// ParseProperties interprets a property flag string. One letter per
// property; "a" selects everything and overrides the rest.
func ParseProperties(propStr string) (Properties, error) {
	var p Properties
	for _, c := range propStr {
		switch c {
		case 'a':
			p.All = true
		case 'c':
			p.Connectivity = true
		case 'x':
			p.Convexity = true
		case 's':
			p.SurfaceArea = true
		case 't':
			p.Triangularity = true
		case 'v':
			p.Volume = true
		case 'w':
			p.Watertightness = true
		default:
			return Properties{}, fmt.Errorf("%w: %c", ErrUnknownProperty, c)
		}
	}
	return p, nil
}

// PrintProperties computes and writes the selected properties of m.
func PrintProperties(w io.Writer, m *mesh.Model, p Properties) error {
	yesno := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}

	if p.All || p.Connectivity {
		conn, err := m.IsConnected()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, " * Is connected: %s\n", yesno(conn))
	}
	if p.All || p.Convexity {
		conv, err := m.IsConvex()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, " * Is convex: %s\n", yesno(conv))
	}
	if p.All || p.SurfaceArea {
		area, err := m.SurfaceArea()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, " * Surface area: %g\n", area)
	}
	if p.All || p.Triangularity {
		fmt.Fprintf(w, " * Is triangulated: %s\n", yesno(m.IsTriangulated()))
	}
	if p.All || p.Volume {
		vol, err := m.Volume()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, " * Volume: %g\n", vol)
	}
	if p.All || p.Watertightness {
		wt, msg, err := m.IsWatertightDetail()
		if err != nil {
			return err
		}
		if wt {
			fmt.Fprintln(w, " * Is watertight: yes")
		} else {
			fmt.Fprintf(w, " * Is watertight: no [%s]\n", msg)
		}
	}
	return nil
}
