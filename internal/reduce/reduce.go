// Package reduce removes background and low intensity features from an
// MS-Dial alignment export. Every feature is classified as internal
// standard, known or unknown, summarized over the blank, sample and pool
// columns, and kept or dropped by fold change and intensity thresholds.
package reduce

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/524D/msdialtools/internal/msdial"
	"github.com/524D/msdialtools/internal/table"
	"go.uber.org/zap"
)

// Output suffixes
const (
	SuffixReduced       = "_reduced.txt"
	SuffixToBeProcessed = "_toBeProcessed.txt"
	SuffixReport        = "_report.txt"
)

// TypeColumn is inserted after retention time and m/z.
const (
	TypeColumn = "Type"
	typeIndex  = 2
)

var (
	ErrEmptyGroup = errors.New("empty sample group")
	ErrNotNumeric = errors.New("value is not numeric")
)

// Thresholds decide which features are kept.
type Thresholds struct {
	KnownFold            float64
	UnknownFold          float64
	KnownSampleMax       float64
	UnknownSampleAverage float64
}

// Keep reports whether a feature passes. Internal standards are always
// kept.
func (t Thresholds) Keep(typ Type, s Summary) bool {
	switch typ {
	case ISTD:
		return true
	case Known:
		return s.FoldChange > t.KnownFold && s.SampleMax > t.KnownSampleMax
	}
	return s.FoldChange > t.UnknownFold && s.SampleAverage > t.UnknownSampleAverage
}

// Options configure a reduction run.
type Options struct {
	Thresholds Thresholds
	Markers    Markers
	// RTWindow is [lo, hi]; features outside it are dropped. Nil keeps
	// every retention time.
	RTWindow []float64
	Logger   *zap.Logger
	// Trace, when set, is called for every feature after its statistics
	// are computed.
	Trace func(row int, f Feature)
}

// Feature is one row of the export after trimming.
type Feature struct {
	Cells      []string // output cells, including Type
	Type       Type
	Annotation Annotation
	RT         float64
	Summary    Summary
}

// Result holds the outputs of a reduction run.
type Result struct {
	BaseName      string // "<client>_<minix>_<analysis>", empty if not derivable
	Header        []string
	Reduced       table.Grid // header + kept features, with statistics
	ToBeProcessed table.Grid // header + kept features, without statistics
	Report        Report
}

// Run reduces an export.
func Run(e *msdial.Export, opt Options) (*Result, error) {
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}

	header, rows, meta := e.Trim()
	header = insertAt(header, typeIndex, TypeColumn)
	meta++

	groups := GroupColumns(header[meta:], meta, opt.Markers)
	if len(groups.Blanks) == 0 {
		return nil, fmt.Errorf("%w: no column contains %q", ErrEmptyGroup, opt.Markers.Blank)
	}
	if len(groups.Samples) == 0 {
		return nil, fmt.Errorf("%w: no study sample columns", ErrEmptyGroup)
	}
	if len(groups.Pools) == 0 {
		log.Warn("no pool QC columns, pool statistics are zero", zap.String("marker", opt.Markers.Pool))
	}
	log.Info("sample columns grouped",
		zap.Int("blanks", len(groups.Blanks)),
		zap.Int("biorecs", len(groups.Biorecs)),
		zap.Int("pools", len(groups.Pools)),
		zap.Int("samples", len(groups.Samples)))

	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		return -1
	}
	rtCol, nameCol, adductCol, keyCol := col(msdial.ColRT), col(msdial.ColName), col(msdial.ColAdduct), col(msdial.ColInChIKey)

	features := make([]Feature, 0, len(rows))
	for i, r := range rows {
		cells := insertAt(r, typeIndex, "")
		f, err := newFeature(cells, groups, rtCol, nameCol)
		if err != nil {
			return nil, fmt.Errorf("feature %d (%s): %w", i+1, cells[nameCol], err)
		}
		f.Annotation = Annotation{Name: cells[nameCol], Adduct: cells[adductCol]}
		if keyCol >= 0 {
			f.Annotation.InChIKey = cells[keyCol]
		}
		if opt.Trace != nil {
			opt.Trace(i, f)
		}
		if w := opt.RTWindow; len(w) == 2 && (f.RT < w[0] || f.RT > w[1]) {
			continue
		}
		features = append(features, f)
	}
	if dropped := len(rows) - len(features); dropped > 0 {
		log.Info("features outside retention time window dropped", zap.Int("count", dropped))
	}

	for i := range features {
		f := &features[i]
		f.Annotation = Tidy(f.Annotation)
		f.Cells[nameCol] = f.Annotation.Name
		f.Cells[adductCol] = f.Annotation.Adduct
		if keyCol >= 0 {
			f.Cells[keyCol] = f.Annotation.InChIKey
		}
	}
	sort.SliceStable(features, func(i, j int) bool {
		return features[i].Annotation.Name < features[j].Annotation.Name
	})

	var istds, knowns, unknowns []Feature
	var rep Report
	for _, f := range features {
		switch f.Type {
		case ISTD:
			istds = append(istds, f)
		case Known:
			rep.KnownBefore++
			if opt.Thresholds.Keep(Known, f.Summary) {
				knowns = append(knowns, f)
			}
		default:
			rep.UnknownBefore++
			if opt.Thresholds.Keep(Unknown, f.Summary) {
				f.Cells[nameCol] = ""
				f.Cells[adductCol] = ""
				if keyCol >= 0 {
					f.Cells[keyCol] = ""
				}
				unknowns = append(unknowns, f)
			}
		}
	}
	rep.KnownAfter = len(knowns)
	rep.UnknownAfter = len(unknowns)
	rep.ISTDs = cvRows(istds)
	rep.Knowns = cvRows(knowns)

	kept := make([]Feature, 0, len(istds)+len(knowns)+len(unknowns))
	kept = append(kept, istds...)
	kept = append(kept, knowns...)
	kept = append(kept, unknowns...)

	res := &Result{
		BaseName: BaseName(header, groups),
		Header:   header,
		Report:   rep,
	}
	res.Reduced = append(res.Reduced, append(append([]string(nil), header...), SummaryColumns...))
	res.ToBeProcessed = append(res.ToBeProcessed, append([]string(nil), header...))
	for _, f := range kept {
		row := append([]string(nil), f.Cells...)
		res.ToBeProcessed = append(res.ToBeProcessed, row)
		for _, v := range f.Summary.Values() {
			row = append(row, table.FormatFloat(v))
		}
		res.Reduced = append(res.Reduced, row)
	}

	log.Info("features reduced",
		zap.Int("istd", len(istds)),
		zap.Int("known_before", rep.KnownBefore),
		zap.Int("known_after", rep.KnownAfter),
		zap.Int("unknown_before", rep.UnknownBefore),
		zap.Int("unknown_after", rep.UnknownAfter))
	return res, nil
}

func newFeature(cells []string, g Groups, rtCol, nameCol int) (Feature, error) {
	f := Feature{Cells: cells}
	f.Type = Classify(cells[nameCol])
	cells[typeIndex] = f.Type.String()

	rt, err := table.Float(cells[rtCol])
	if err != nil {
		return f, fmt.Errorf("%w: retention time %q", ErrNotNumeric, cells[rtCol])
	}
	f.RT = rt

	heights := func(cols []int) ([]float64, error) {
		v := make([]float64, len(cols))
		for i, c := range cols {
			h, err := table.Float(cells[c])
			if err != nil {
				return nil, fmt.Errorf("%w: height %q", ErrNotNumeric, cells[c])
			}
			v[i] = h
		}
		return v, nil
	}
	blanks, err := heights(g.Blanks)
	if err != nil {
		return f, err
	}
	samples, err := heights(g.Samples)
	if err != nil {
		return f, err
	}
	pools, err := heights(g.Pools)
	if err != nil {
		return f, err
	}
	f.Summary = Summarize(blanks, samples, pools)
	return f, nil
}

// BaseName derives the output name from the first study sample column,
// named "<client><3 digits>_<minix>_<analysis>_...". It returns "" when
// the column does not follow that convention.
func BaseName(header []string, g Groups) string {
	if len(g.Samples) == 0 {
		return ""
	}
	parts := strings.Split(header[g.Samples[0]], "_")
	if len(parts) < 3 || len(parts[0]) <= 3 || parts[1] == "" || parts[2] == "" {
		return ""
	}
	client := parts[0][:len(parts[0])-3]
	return client + "_" + parts[1] + "_" + parts[2]
}

// Paths returns the reduced, to-be-processed and report file names for an
// input file.
func (r *Result) Paths(input string) (reduced, toBeProcessed, report string) {
	return table.SiblingPath(input, r.BaseName, SuffixReduced),
		table.SiblingPath(input, r.BaseName, SuffixToBeProcessed),
		table.SiblingPath(input, r.BaseName, SuffixReport)
}

// Write stores the outputs next to input. Nothing is written when any of
// the output files already exists. It returns the to-be-processed path.
func (r *Result) Write(input string, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	reduced, tbp, report := r.Paths(input)
	for _, p := range []string{reduced, tbp, report} {
		if exists(p) {
			return "", &table.ExistsError{Path: p}
		}
	}
	if err := table.Write(reduced, r.Reduced); err != nil {
		return "", err
	}
	log.Info("file saved", zap.String("path", reduced))
	if err := table.Write(tbp, r.ToBeProcessed); err != nil {
		return "", err
	}
	log.Info("file saved", zap.String("path", tbp))
	if err := r.Report.WriteFile(report); err != nil {
		return "", err
	}
	log.Info("file saved", zap.String("path", report))
	return tbp, nil
}

func insertAt(s []string, i int, v string) []string {
	if i > len(s) {
		i = len(s)
	}
	out := make([]string, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	return append(out, s[i:]...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
