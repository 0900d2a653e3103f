package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/524D/msdialtools/internal/align"
	"github.com/524D/msdialtools/internal/config"
	"github.com/524D/msdialtools/internal/msdial"
	"github.com/524D/msdialtools/internal/msflo"
	"github.com/524D/msdialtools/internal/quant"
	"github.com/524D/msdialtools/internal/reduce"
	"github.com/524D/msdialtools/internal/standards"
)

// reduceFlags override the reduce section of the configuration.
type reduceFlags struct {
	instrument string
	rt         string
}

func (f *reduceFlags) register(cmd *cobra.Command, par *params) {
	cmd.Flags().StringVar(&f.instrument, "instrument", "",
		"instrument `preset` for the reduction thresholds:\n"+
			"    qtof: Agilent QTOF or Sciex TTOF\n"+
			"    qehf: Thermo QEHF")
	cmd.Flags().StringVar(&f.rt, "rt", "",
		"retention time window `range` in minutes, e.g. 0.5:12.5. Features\n"+
			"eluting outside the window are dropped. Default is all features")
	cmd.Flags().StringVar(&par.debugRows, "debug", "",
		"Print debug output for given feature row `range` e.g. 3:6\n"+
			"(needs MSDIALTOOLS_DEBUG=1)")
}

func (f *reduceFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("instrument") {
		r, err := config.Preset(f.instrument)
		if err != nil {
			return err
		}
		r.RTWindow = cfg.Reduce.RTWindow
		cfg.Reduce = r
	}
	if cmd.Flags().Changed("rt") {
		cfg.Reduce.RTWindow = f.rt
	}
	return nil
}

// msfloFlags override the msflo section of the configuration.
type msfloFlags struct {
	downloads string
	browser   string
	headless  bool
	timeout   time.Duration
}

func (f *msfloFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.downloads, "downloads", "",
		"`directory` the browser saves the curation result in.\n"+
			"Default is the directory of the submitted file")
	cmd.Flags().StringVar(&f.browser, "browser", "",
		"Chromium `binary` to drive. Default is the one found on the\n"+
			"system, or a downloaded one")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "run the browser without a window")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0,
		"maximum `duration` to wait for the curation result (default 30m)")
}

func (f *msfloFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("downloads") {
		cfg.MSFLO.Downloads = f.downloads
	}
	if fl.Changed("browser") {
		cfg.MSFLO.Browser = f.browser
	}
	if fl.Changed("headless") {
		cfg.MSFLO.Headless = f.headless
	}
	if fl.Changed("timeout") {
		cfg.MSFLO.Timeout = f.timeout
	}
}

// runReduce reduces one export and returns the to-be-processed path.
func runReduce(par *params, path string) (string, error) {
	opt, err := par.reduceOptions()
	if err != nil {
		return "", err
	}
	e, err := msdial.Read(path)
	if err != nil {
		return "", err
	}
	res, err := reduce.Run(e, opt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	tbp, err := res.Write(path, par.log)
	if err != nil {
		return "", err
	}
	if !par.quiet {
		if err := res.Report.Render(par.out); err != nil {
			return "", err
		}
	}
	return tbp, nil
}

func (par *params) curationService() msflo.Service {
	if par.service != nil {
		return par.service
	}
	return &msflo.DownloadService{
		Submitter: msflo.NewBrowserSubmitter(par.cfg.MSFLO, par.log),
		Downloads: par.cfg.MSFLO.Downloads,
		Logger:    par.log,
	}
}

// runCuration submits a to-be-processed file and waits at most the
// configured timeout for the curated result.
func runCuration(ctx context.Context, par *params, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, par.cfg.MSFLO.Timeout)
	defer cancel()
	t := time.Now()
	processed, err := par.curationService().Curate(ctx, path)
	if err != nil {
		return "", err
	}
	par.log.Info("curation done", zap.String("file", processed), zap.Duration("elapsed", time.Since(t)))
	return processed, nil
}

func newReduceCmd(par *params) *cobra.Command {
	var rf reduceFlags
	cmd := &cobra.Command{
		Use:   "reduce <export>",
		Short: "Remove background and low intensity features from an MS-Dial export",
		Long: `Reduce classifies every feature of an MS-Dial alignment export as internal
standard (name starts with "1_"), known or unknown, computes blank, sample
and pool statistics, and keeps internal standards plus the knowns and
unknowns that pass the fold change and intensity thresholds.

Outputs, named after the first study sample column:
  <client>_<minix>_<analysis>_reduced.txt        kept features with statistics
  <client>_<minix>_<analysis>_toBeProcessed.txt  kept features, input for MS-FLO
  <client>_<minix>_<analysis>_report.txt         counts and %CV summary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rf.apply(cmd, &par.cfg); err != nil {
				return err
			}
			if err := par.cfg.Validate(); err != nil {
				return err
			}
			_, err := runReduce(par, args[0])
			return err
		},
	}
	rf.register(cmd, par)
	return cmd
}

func newMSFLOCmd(par *params) *cobra.Command {
	var mf msfloFlags
	cmd := &cobra.Command{
		Use:   "msflo <toBeProcessed>",
		Short: "Curate a reduced feature list with the MS-FLO web service",
		Long: `Msflo submits a file to the MS-FLO web service in a browser, waits for
the result archive <stem>.zip in the download directory, and unpacks it
next to the submitted file. The curated list is <stem>_processed.txt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf.apply(cmd, &par.cfg)
			if err := par.cfg.Validate(); err != nil {
				return err
			}
			_, err := runCuration(cmd.Context(), par, args[0])
			return err
		},
	}
	mf.register(cmd)
	return cmd
}

func newCurateCmd(par *params) *cobra.Command {
	return &cobra.Command{
		Use:   "curate <toBeProcessed>",
		Short: "Prepare the curated feature list for single point quantification",
		Long: `Curate reads <stem>_processed.txt, the MS-FLO result for a
to-be-processed file, strips stray "_" from names, fills empty adducts
according to the ionization mode in the file name, and writes
<client>_<minix>_<analysis>_processed.xlsx with the "iSTD Type" and
"Keep for iSTD Single Point Quant" columns added.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := par.cfg.Validate(); err != nil {
				return err
			}
			_, err := msflo.PostProcess(args[0], par.log)
			return err
		},
	}
}

func newProcessCmd(par *params) *cobra.Command {
	var rf reduceFlags
	var mf msfloFlags
	cmd := &cobra.Command{
		Use:   "process <export>",
		Short: "Reduce, curate and prepare an export for quantification in one run",
		Long: `Process runs "reduce", "msflo" and "curate" in sequence on one MS-Dial
export. It stops at the first step that fails; outputs of earlier steps
are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rf.apply(cmd, &par.cfg); err != nil {
				return err
			}
			mf.apply(cmd, &par.cfg)
			if err := par.cfg.Validate(); err != nil {
				return err
			}
			tbp, err := runReduce(par, args[0])
			if err != nil {
				return err
			}
			if _, err := runCuration(cmd.Context(), par, tbp); err != nil {
				return err
			}
			_, err = msflo.PostProcess(tbp, par.log)
			return err
		},
	}
	rf.register(cmd, par)
	mf.register(cmd)
	return cmd
}

func newQuantCmd(par *params) *cobra.Command {
	var (
		stdFile       string
		amount        float64
		amountsFile   string
		skipUnmatched bool
		qc            config.Quant
	)
	cmd := &cobra.Command{
		Use:   "quant <sheet>",
		Short: "Single point quantification of sample heights against internal standards",
		Long: `Quant converts every sample height of the sheet to a concentration:

  height / standard height * ng extracted / amount

The standard of a row is found through its identifier column ("number" or
"iSTD Type"): the last row carrying a standard's name defines the
identifier and height of that standard. The standards file is a CSV with
the columns name and ng_extracted; the amounts file a CSV with the columns
sample and amount. The result is written to <stem>_SinglePointQuant.xlsx.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := cmd.Flags()
			if fl.Changed("match-column") {
				par.cfg.Quant.MatchColumn = qc.MatchColumn
			}
			if fl.Changed("name-column") {
				par.cfg.Quant.NameColumn = qc.NameColumn
			}
			if fl.Changed("sample-pattern") {
				par.cfg.Quant.SamplePattern = qc.SamplePattern
			}
			if err := par.cfg.Validate(); err != nil {
				return err
			}

			stds, err := quant.LoadStandards(stdFile)
			if err != nil {
				return err
			}
			var amounts quant.Amounts
			if amountsFile != "" {
				amounts, err = quant.LoadAmounts(amountsFile)
			} else {
				amounts, err = quant.SingleAmount(amount)
			}
			if err != nil {
				return err
			}
			c := quant.Columns{
				MatchColumn:   par.cfg.Quant.MatchColumn,
				NameColumn:    par.cfg.Quant.NameColumn,
				SamplePattern: par.cfg.Quant.SamplePattern,
			}
			_, err = quant.Run(args[0], c, stds, amounts, quant.Options{
				SkipUnmatched: skipUnmatched,
				Logger:        par.log,
			})
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&stdFile, "standards", "", "CSV `file` with internal standard names and ng extracted")
	fl.Float64Var(&amount, "amount", 0, "extracted `amount` (mL or mg) used for every sample")
	fl.StringVar(&amountsFile, "amounts", "", "CSV `file` with the extracted amount per sample")
	fl.BoolVar(&skipUnmatched, "skip-unmatched", false,
		"leave rows whose identifier matches no standard unchanged instead of failing")
	fl.StringVar(&qc.MatchColumn, "match-column", "", "`regexp` selecting the identifier column")
	fl.StringVar(&qc.NameColumn, "name-column", "", "`regexp` selecting the annotation name column")
	fl.StringVar(&qc.SamplePattern, "sample-pattern", "", "`regexp` selecting the sample columns")
	cmd.MarkFlagRequired("standards")
	cmd.MarkFlagsMutuallyExclusive("amount", "amounts")
	cmd.MarkFlagsOneRequired("amount", "amounts")
	return cmd
}

func newISTDCmd(par *params) *cobra.Command {
	var (
		ic   config.ISTD
		list bool
	)
	cmd := &cobra.Command{
		Use:   "istd [directory]",
		Short: "Identify internal standards in a folder of MS-Dial exports",
		Long: `Istd searches every export (.xlsx, .xls, .txt, .csv) in the directory for
the internal standards of a method. A standard is present when a feature
lies strictly within the retention time and m/z tolerances of it. The
results sheet lists Y or N per standard and export, followed by the count
of standards found per export.

The built-in methods are "hilic" and "csh"; --library reads a YAML
library instead. --list prints the standards of the library as CSV.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := cmd.Flags()
			if fl.Changed("method") {
				par.cfg.ISTD.Method = ic.Method
			}
			if fl.Changed("library") {
				par.cfg.ISTD.Library = ic.Library
			}
			if fl.Changed("output") {
				par.cfg.ISTD.Output = ic.Output
			}
			if fl.Changed("rt-tolerance") {
				par.cfg.ISTD.RTTolerance = ic.RTTolerance
			}
			if fl.Changed("mz-tolerance") {
				par.cfg.ISTD.MZTolerance = ic.MZTolerance
			}
			if err := par.cfg.Validate(); err != nil {
				return err
			}

			lib, err := loadLibrary(par.cfg.ISTD)
			if err != nil {
				return err
			}
			if list {
				return lib.WriteCSV(par.out)
			}
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			w := standards.Window{RT: par.cfg.ISTD.RTTolerance, MZ: par.cfg.ISTD.MZTolerance}
			out, err := standards.Run(dir, par.cfg.ISTD.Output, lib, w, par.log)
			if err != nil {
				return err
			}
			par.log.Info("file saved", zap.String("path", out), zap.String("method", lib.Method))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&ic.Method, "method", "", "built-in `method`: hilic or csh (default hilic)")
	fl.StringVar(&ic.Library, "library", "", "YAML `file` with the standards to search for")
	fl.StringVar(&ic.Output, "output", "", "`name` of the results sheet in the directory (default results.xlsx)")
	fl.Float64Var(&ic.RTTolerance, "rt-tolerance", 0, "retention time `tolerance` in minutes (default 0.05)")
	fl.Float64Var(&ic.MZTolerance, "mz-tolerance", 0, "m/z `tolerance` (default 0.005)")
	fl.BoolVar(&list, "list", false, "print the standards of the library as CSV and exit")
	return cmd
}

func loadLibrary(c config.ISTD) (standards.Library, error) {
	if c.Library != "" {
		return standards.LoadLibrary(c.Library)
	}
	return standards.Builtin(c.Method)
}

func newAlignCmd(par *params) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "align [directory]",
		Short: "Align the sample columns of batch exports by metabolite name",
		Long: `Align merges every export in the directory, in file name order. The first
export is the template; each further export adds its sample columns, and
its sample heights are copied into every template row with the same
metabolite name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := par.cfg.Validate(); err != nil {
				return err
			}
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			out, err := align.Run(dir, filepath.Base(output), par.log)
			if err != nil {
				return err
			}
			par.log.Info("file saved", zap.String("path", out))
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "results.xlsx", "`name` of the aligned sheet in the directory")
	return cmd
}
