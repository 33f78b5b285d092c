// Command hrtf_mesh_grading grades a head mesh for HRTF simulation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/soypat/hrtfgrade"
	"github.com/soypat/hrtfgrade/earcanal"
	"github.com/soypat/hrtfgrade/grading"
	"github.com/soypat/hrtfgrade/internal/config"
	"github.com/soypat/hrtfgrade/internal/logger"
	"github.com/soypat/hrtfgrade/remesh"
)

// exitAbort is the status of an aborted run, as after SIGABRT.
const exitAbort = 134

const usageText = `hrtf_mesh_grading refines a head mesh around the ear channel entrance of the
selected side(s) and coarsens it elsewhere for numerical HRTF simulation [1, 2].

Example usage:
  hrtf_mesh_grading -x 1 -y 10 -s left -i head.ply -o head_graded.ply

Flags:
  -x     min. edge length (required)
  -y     max. edge length (required)
  -e     max. geometric error (default 1)
  -s     side to grade: left, right or both (required)
  -m     grading mode: hybrid or distance (default hybrid)
  -l, r  lateral (y) coordinate of the left/right ear channel entrance
         (default: estimated from the head width)
  -g, h  gamma scaling used to estimate the left/right ear channel entrance
         (default 0.15); larger values move the entrance toward the head center
  -i     input mesh, .ply or .stl (required)
  -o     output mesh, .ply or .stl (required)
  -v     verbose output
  -b     write binary output (default ascii)
  -c     YAML file with remeshing settings

Note: the mesh must be aligned with the interaural axis along y and the left
ear at positive y. Lengths and coordinates are given in the unit of the input
mesh, which is not scaled.

[1] T. Palm, S. Koch, F. Brinkmann, and M. Alexa, "Curvature-adaptive mesh
    grading for numerical approximation of head-related transfer functions,"
    in Fortschritte der Akustik - DAGA 2021, Vienna, Austria, 2021.
[2] H. Ziegelwanger, W. Kreuzer, and P. Majdak, "A priori mesh grading for the
    numerical calculation of the head-related transfer functions," Applied
    Acoustics, vol. 114, pp. 99-110, 2016.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 1
	}
	fs := flag.NewFlagSet("hrtf_mesh_grading", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	var (
		minEdge    = fs.Float64("x", 0, "min. edge length")
		maxEdge    = fs.Float64("y", 0, "max. edge length")
		maxError   = fs.Float64("e", 1, "max. geometric error")
		sideName   = fs.String("s", "", "side: left, right or both")
		modeName   = fs.String("m", "hybrid", "mode: hybrid or distance")
		earLeft    = fs.Float64("l", 0, "left ear channel entrance")
		earRight   = fs.Float64("r", 0, "right ear channel entrance")
		gammaLeft  = fs.Float64("g", earcanal.DefaultGamma, "gamma for the left ear")
		gammaRight = fs.Float64("h", earcanal.DefaultGamma, "gamma for the right ear")
		input      = fs.String("i", "", "input mesh")
		output     = fs.String("o", "", "output mesh")
		verbose    = fs.Bool("v", false, "verbose output")
		binary     = fs.Bool("b", false, "binary output")
		configPath = fs.String("c", "", "YAML configuration")
	)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		usage(stderr)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		usage(stderr)
		return 1
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, name := range []string{"x", "y", "s", "i", "o"} {
		if !set[name] {
			fmt.Fprintf(stderr, "missing required flag -%s\n", name)
			usage(stderr)
			return 1
		}
	}
	mode, err := grading.ParseMode(*modeName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitAbort
	}
	side, err := earcanal.ParseSide(*sideName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		usage(stderr)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.LogFile, stderr)
	defer log.Sync()

	p := hrtfgrade.DefaultParams()
	p.Input, p.Output = *input, *output
	p.MinEdge, p.MaxEdge, p.MaxError = *minEdge, *maxEdge, *maxError
	p.Mode, p.Side = mode, side
	p.GammaLeft, p.GammaRight = *gammaLeft, *gammaRight
	if set["l"] {
		p.EarLeft = earLeft
	}
	if set["r"] {
		p.EarRight = earRight
	}
	p.Binary, p.Verbose = *binary, *verbose

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	_, err = hrtfgrade.Grade(ctx, p, optionsFromConfig(cfg), stdout, log)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, grading.ErrInvalidMode):
		fmt.Fprintln(stderr, err)
		return exitAbort
	case errors.Is(err, hrtfgrade.ErrUsage):
		fmt.Fprintln(stderr, err)
		usage(stderr)
		return 1
	}
	fmt.Fprintln(stderr, "error:", err)
	return 1
}

func optionsFromConfig(cfg *config.Config) hrtfgrade.Options {
	opts := hrtfgrade.DefaultOptions()
	opts.Remesh = remesh.Options{
		Iterations:     cfg.Remesh.Iterations,
		Convergence:    cfg.Remesh.Convergence,
		SplitFactor:    cfg.Remesh.SplitFactor,
		CollapseFactor: cfg.Remesh.CollapseFactor,
		Workers:        cfg.Remesh.Workers,
	}
	opts.FalloffRadius = cfg.Field.FalloffRadius
	opts.CurvatureWeight = cfg.Field.CurvatureWeight
	opts.MidlineBand = cfg.Field.MidlineBand
	opts.PreviewPNG = cfg.Diagnostics.PreviewPNG
	opts.HistogramPNG = cfg.Diagnostics.HistogramPNG
	return opts
}
