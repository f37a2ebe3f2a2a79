// 3dconv is a CLI utility for converting, transforming and analyzing
// 3D polygon mesh files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/brex-it/3dconv/internal/cli"
	"github.com/brex-it/3dconv/internal/config"
	"github.com/brex-it/3dconv/internal/logger"
	"github.com/brex-it/3dconv/pkg/formats"
	"github.com/brex-it/3dconv/pkg/mesh"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "convert", "c":
		cmdConvert(args)
	case "info":
		cmdInfo(args)
	case "formats":
		cmdFormats(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`3dconv - 3D polygon mesh converter

Usage:
  3dconv <command> [options]

Commands:
  convert -i <input> [-o <output>] [options]  Convert and transform a model
  info [-f format] <file>                     Show model statistics and properties
  formats                                     List supported file formats

Convert options:
  -i <file>      Input file (required)
  -o <file>      Output file
  -f <in:out>    Input and output file formats (default: file extensions)
  -p <flags>     Print model properties (see below)
  -F <cmds>      Face transformation string
  -T <cmds>      Model transformation string
  -v <level>     Verbosity level (0 = silent)
  -config <file> Config file path

The -p, -F and -T options may be repeated; they are applied in the
order given.

Face transformations (comma separated):
  c    convexification
  t    triangulation

Model transformations (comma separated):
  ro:<axis-x>:<axis-y>:<axis-z>:<angle-in-rad>   rotation
  sc:<factor>                                    scaling
  sk:<domain-letter><range-letter>:<angle>       skew
  tr:<direction-x>:<direction-y>:<direction-z>   translation

Property flags:
  a  all    c  connectivity   x  convexity      s  surface area
  t  triangularity            v  volume         w  water tightness

Examples:
  3dconv convert -i model.obj -o model.stl-bin
  3dconv convert -i model.obj -T sc:3.7,ro:1:1:0:1.57 -p a
  3dconv info model.obj`)
}

func cmdConvert(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	ifile := fs.String("i", "", "Input file")
	ofile := fs.String("o", "", "Output file")
	ioformats := fs.String("f", "", "Input and output file formats as [in]:[out]")
	verbosity := fs.Int("v", -1, "Verbosity level (0 = silent)")
	cfgPath := fs.String("config", "", "Config file path")

	var actions []cli.Action
	fs.Var(cli.ActionFlag{Type: cli.ActionPrintProperties, Actions: &actions},
		"p", "Print model properties")
	fs.Var(cli.ActionFlag{Type: cli.ActionFaceTransform, Actions: &actions},
		"F", "Face transformation string")
	fs.Var(cli.ActionFlag{Type: cli.ActionModelTransform, Actions: &actions},
		"T", "Model transformation string")
	fs.Parse(args)

	if *ifile == "" {
		fmt.Fprintln(os.Stderr, "Usage: 3dconv convert -i <input> [-o <output>] [options]")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbosity >= 0 {
		cfg.Logging.Verbosity = *verbosity
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	report := reporter(cfg.Logging.Verbosity)

	iformat, oformat, err := cli.ResolveFormats(*ifile, *ofile, *ioformats)
	if errors.Is(err, cli.ErrNoOutputFormat) && cfg.Output.DefaultFormat != "" {
		oformat = cfg.Output.DefaultFormat
		err = nil
	}
	if err != nil {
		fail(err)
	}

	model := parseModel(*ifile, iformat, report)

	for _, a := range actions {
		runAction(model, a, report)
	}

	if *ofile != "" {
		write, err := formats.Writer(oformat)
		if err != nil {
			fail(err)
		}
		report(1, "Writing output file: "+*ofile)
		if err := write(model, *ofile); err != nil {
			fail(err)
		}
	}
}

func runAction(model *mesh.Model, a cli.Action, report func(int, string)) {
	switch a.Type {
	case cli.ActionPrintProperties:
		props, err := cli.ParseProperties(a.Value)
		if err != nil {
			fail(err)
		}
		report(1, "Model properties:")
		if err := cli.PrintProperties(os.Stdout, model, props); err != nil {
			fail(err)
		}
	case cli.ActionFaceTransform:
		ft, err := cli.ParseFaceTransforms(a.Value)
		if err != nil {
			fail(err)
		}
		report(1, "Performing face transformations: "+a.Value)
		if err := ft.Apply(model); err != nil {
			fail(err)
		}
	case cli.ActionModelTransform:
		tmat, err := cli.ParseModelTransforms(a.Value)
		if err != nil {
			fail(err)
		}
		report(1, "Performing model transformations: "+a.Value)
		model.Transform(tmat)
	}
}

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	format := fs.String("f", "", "Input file format (default: file extension)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: 3dconv info [-f format] <file>")
		os.Exit(1)
	}
	ifile := fs.Arg(0)

	if err := logger.Init("info", ""); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	spec := ""
	if *format != "" {
		spec = *format + ":"
	}
	iformat, _, err := cli.ResolveFormats(ifile, "", spec)
	if err != nil {
		fail(err)
	}

	model := parseModel(ifile, iformat, func(int, string) {})

	fmt.Printf("File:             %s\n", ifile)
	fmt.Printf("Format:           %s\n", iformat)
	fmt.Printf("Vertices:         %d\n", len(model.Vertices()))
	fmt.Printf("Texture vertices: %d\n", len(model.TextureVertices()))
	fmt.Printf("Vertex normals:   %d\n", len(model.VertexNormals()))
	fmt.Printf("Faces:            %d\n", model.Faces().Len())
	fmt.Println()
	if err := cli.PrintProperties(os.Stdout, model, cli.Properties{All: true}); err != nil {
		fail(err)
	}
}

func cmdFormats(args []string) {
	fmt.Println("Supported file formats:")
	fmt.Println("  INPUT:")
	for _, name := range formats.ParserNames() {
		fmt.Printf("   * %s\n", name)
	}
	fmt.Println("  OUTPUT:")
	for _, name := range formats.WriterNames() {
		fmt.Printf("   * %s\n", name)
	}
}

func parseModel(ifile, iformat string, report func(int, string)) *mesh.Model {
	parse, err := formats.Parser(iformat)
	if err != nil {
		fail(err)
	}

	report(1, "Parsing input file: "+ifile)
	model, err := parse(ifile)
	if err != nil {
		fail(err)
	}
	logger.Debug("model parsed",
		zap.Int("vertices", len(model.Vertices())),
		zap.Int("faces", model.Faces().Len()))

	if err := model.Validate(); err != nil {
		fail(err)
	}
	return model
}

// reporter returns the console progress printer. Messages above the
// configured verbosity level are suppressed.
func reporter(level int) func(int, string) {
	return func(verbosity int, msg string) {
		if verbosity <= level {
			fmt.Println(">>> " + msg)
		}
	}
}

func fail(err error) {
	if logger.Log != nil {
		logger.Error(err.Error())
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
