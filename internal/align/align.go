// Package align merges MS-Dial exports of several processing batches of
// one LC-MS run. Batches processed against the same mz/rt reference list
// share annotation names, which are used to line up features.
package align

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"go.uber.org/zap"

	"github.com/524D/msdialtools/internal/msdial"
	"github.com/524D/msdialtools/internal/msflo"
	"github.com/524D/msdialtools/internal/quant"
	"github.com/524D/msdialtools/internal/reduce"
	"github.com/524D/msdialtools/internal/table"
)

// Inputs are the export formats read from a folder.
var Inputs = []string{".xlsx", ".xls", ".txt", ".csv"}

var ErrNoInputs = errors.New("no exports found")

// outputSuffixes end the names of files the pipelines write next to the
// exports they read.
var outputSuffixes = []string{
	reduce.SuffixReduced,
	reduce.SuffixToBeProcessed,
	reduce.SuffixReport,
	msflo.ProcessedSuffix,
	msflo.QuantSheetSuffix,
	quant.OutputSuffix,
}

func isOutput(name string) bool {
	for _, s := range outputSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// Batch is one export to align.
type Batch struct {
	Name   string
	Export *msdial.Export
}

// Result is the merged sheet. The first batch is copied whole; every
// further batch adds its sample columns to the right.
type Result struct {
	Grid    table.Grid
	header  int // row index of the header in Grid
	nameCol int
	width   int
	Matched []int // per added batch, features matched by name
}

// New seeds a result with the first batch.
func New(first *msdial.Export) *Result {
	r := &Result{header: len(first.Preamble), nameCol: first.Layout.MustIndex(msdial.ColName)}
	for _, rows := range []table.Grid{first.Preamble, {first.Header}, first.Rows} {
		r.Grid = append(r.Grid, rows.Clone()...)
	}
	r.width = r.Grid.Width()
	for i := range r.Grid {
		r.Grid[i] = pad(r.Grid[i], r.width)
	}
	return r
}

// Add appends the sample columns of e. Preamble cells are aligned to the
// header row. Every result feature with the same annotation name as a
// feature of e receives its sample heights; unnamed features are not
// matched.
func (r *Result) Add(e *msdial.Export) {
	start := r.width
	r.width += len(e.Layout.Samples)
	for i := range r.Grid {
		r.Grid[i] = pad(r.Grid[i], r.width)
	}
	for p, row := range e.Preamble {
		dst := r.header - len(e.Preamble) + p
		if dst < 0 {
			continue
		}
		for j, c := range e.Layout.Samples {
			r.Grid[dst][start+j] = cell(row, c)
		}
	}
	for j, c := range e.Layout.Samples {
		r.Grid[r.header][start+j] = strings.TrimSpace(e.Header[c])
	}

	nameCol := e.Layout.MustIndex(msdial.ColName)
	byName := make(map[string][]int)
	for i := r.header + 1; i < len(r.Grid); i++ {
		name := strings.TrimSpace(r.Grid[i][r.nameCol])
		if name != "" {
			byName[name] = append(byName[name], i)
		}
	}
	matched := 0
	for _, row := range e.Rows {
		dsts, ok := byName[strings.TrimSpace(cell(row, nameCol))]
		if !ok {
			continue
		}
		matched++
		for _, dst := range dsts {
			for j, c := range e.Layout.Samples {
				r.Grid[dst][start+j] = cell(row, c)
			}
		}
	}
	r.Matched = append(r.Matched, matched)
}

func cell(row []string, c int) string {
	if c < len(row) {
		return row[c]
	}
	return ""
}

func pad(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}
	return row
}

// Align merges batches in the given order.
func Align(batches []Batch, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(batches) == 0 {
		return nil, ErrNoInputs
	}
	r := New(batches[0].Export)
	log.Info("alignment seeded", zap.String("batch", batches[0].Name), zap.Int("features", len(batches[0].Export.Rows)))
	for _, b := range batches[1:] {
		r.Add(b.Export)
		log.Info("batch aligned",
			zap.String("batch", b.Name),
			zap.Int("samples", len(b.Export.Layout.Samples)),
			zap.Int("matched", r.Matched[len(r.Matched)-1]),
			zap.Int("features", len(b.Export.Rows)))
	}
	return r, nil
}

// Run aligns every export in dir, in file name order, and writes the
// merged sheet to output in dir. Files written by the other pipelines and
// files without an MS-Dial header are left out.
func Run(dir, output string, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	path := filepath.Join(dir, output)
	if _, err := os.Stat(path); err == nil {
		return "", &table.ExistsError{Path: path}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", pfx.Err(err)
	}
	files, err := table.ListDir(dir, Inputs...)
	if err != nil {
		return "", err
	}
	var batches []Batch
	for _, f := range files {
		if name := filepath.Base(f); name == output || isOutput(name) {
			log.Debug("pipeline output skipped", zap.String("file", name))
			continue
		}
		e, err := msdial.Read(f)
		if errors.Is(err, msdial.ErrNoHeader) {
			log.Warn("not an MS-Dial export, skipped", zap.String("file", filepath.Base(f)))
			continue
		}
		if err != nil {
			return "", err
		}
		batches = append(batches, Batch{Name: filepath.Base(f), Export: e})
	}
	if len(batches) == 0 {
		return "", fmt.Errorf("%s: %w", dir, ErrNoInputs)
	}
	r, err := Align(batches, log)
	if err != nil {
		return "", err
	}
	if err := table.Write(path, r.Grid); err != nil {
		return "", err
	}
	return path, nil
}
