// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"regexp"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/524D/msdialtools/internal/config"
	"github.com/524D/msdialtools/internal/msflo"
	"github.com/524D/msdialtools/internal/reduce"
)

// Program name and version
const progName = "msdialtools"

var progVersion = `Unknown`

var ErrRangeSpec = errors.New("invalid range specified")

// Command line parameters shared by all subcommands
type params struct {
	configFile string
	verbose    bool // Print more verbose progress information
	quiet      bool // Only print warnings and errors
	debugRows  string
	debug      bool // Enable debug info (environment variable MSDIALTOOLS_DEBUG=1)

	cfg config.Config
	log *zap.Logger
	out io.Writer // reports and listings

	// service replaces the browser driven curation service when set
	service msflo.Service
}

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "0.5:12.0" into 2 values, 0.5 and 12.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "0.5:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

func newLogger(verbose, quiet bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch {
	case verbose:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case quiet:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return cfg.Build()
}

// setup runs before every subcommand: it builds the logger and loads the
// configuration file on top of the defaults.
func (par *params) setup(cmd *cobra.Command) error {
	if par.log == nil {
		log, err := newLogger(par.verbose, par.quiet)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		par.log = log
	}
	if par.out == nil {
		par.out = cmd.OutOrStdout()
	}
	par.debug = os.Getenv("MSDIALTOOLS_DEBUG") == `1`

	cfg, err := config.Load(par.configFile)
	if err != nil {
		return err
	}
	par.cfg = cfg
	if par.configFile != "" {
		par.log.Debug("configuration loaded", zap.String("file", par.configFile))
	}
	return nil
}

// reduceOptions translates the validated configuration into reduction
// options.
func (par *params) reduceOptions() (reduce.Options, error) {
	r := par.cfg.Reduce
	opt := reduce.Options{
		Thresholds: reduce.Thresholds{
			KnownFold:            r.KnownFold,
			UnknownFold:          r.UnknownFold,
			KnownSampleMax:       r.KnownSampleMax,
			UnknownSampleAverage: r.UnknownSampleAverage,
		},
		Markers: reduce.Markers{
			Blank:  par.cfg.Groups.Blank,
			Biorec: par.cfg.Groups.Biorec,
			Pool:   par.cfg.Groups.Pool,
		},
		Logger: par.log,
	}
	if r.RTWindow != "" {
		lo, hi, err := parseFloat64Range(r.RTWindow, -math.MaxFloat64, math.MaxFloat64)
		if err != nil {
			return opt, fmt.Errorf("rt window %q: %w", r.RTWindow, err)
		}
		opt.RTWindow = []float64{lo, hi}
	}
	if par.debug && par.debugRows != `` {
		lo, hi, err := parseIntRange(par.debugRows, 0, math.MaxInt32)
		if err != nil {
			return opt, fmt.Errorf("debug rows %q: %w", par.debugRows, err)
		}
		opt.Trace = debugLogFeatures(par.out, lo, hi, opt.Thresholds)
	}
	return opt, nil
}

func versionString() string {
	if progVersion == `Unknown` {
		return `Unknown
Please build this program with -ldflags "-X main.progVersion=<version>" so that the version is shown here.`
	}
	return progVersion
}

const rootLong = `This program runs the processing pipelines of an MS-Dial metabolomics
lab: feature reduction of alignment exports, curation by the MS-FLO web
service, single point quantification against internal standards,
internal standard identification, and batch alignment.

Settings are read from the YAML file given with --config on top of the
built-in defaults; command line flags override both. Output files are
written next to their input and are never overwritten.

ENVIRONMENT VARIABLES:
  When environment variable MSDIALTOOLS_DEBUG=1, "reduce" and "process"
  print the statistics and keep decision of the feature rows selected with
  --debug.

USAGE EXAMPLES:
  msdialtools reduce --instrument qehf Client_mx123_posCSH.txt
    Reduce an export with the Thermo QEHF thresholds, writing
    Client_mx123_posCSH_reduced.txt, Client_mx123_posCSH_toBeProcessed.txt
    and Client_mx123_posCSH_report.txt.

  msdialtools process --config lab.yaml Client_mx123_posCSH.txt
    Reduce, curate with MS-FLO, and prepare the single point
    quantification sheet in one run.

  msdialtools istd --method csh exports/
    Search every export in exports/ for the CSH internal standards.`

func newRootCmd(par *params) *cobra.Command {
	root := &cobra.Command{
		Use:           progName,
		Short:         "Processing pipelines for MS-Dial metabolomics exports",
		Long:          rootLong,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return par.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if par.log != nil {
				_ = par.log.Sync()
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&par.configFile, "config", "c", "", "YAML configuration `file`")
	pf.BoolVarP(&par.verbose, "verbose", "v", false, "Print more verbose progress information")
	pf.BoolVarP(&par.quiet, "quiet", "q", false, "Don't print any output except for warnings and errors")

	root.AddCommand(
		newReduceCmd(par),
		newMSFLOCmd(par),
		newCurateCmd(par),
		newProcessCmd(par),
		newQuantCmd(par),
		newISTDCmd(par),
		newAlignCmd(par),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var par params
	if err := newRootCmd(&par).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
		stop()
		os.Exit(1)
	}
}
