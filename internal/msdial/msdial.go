// Package msdial maps MS-Dial alignment exports onto named columns.
//
// An export starts with a few rows of per-sample information (class, type,
// injection order, batch), followed by the header row and one row per
// aligned feature. Metadata columns come first; the peak heights of the
// samples follow the "MS/MS spectrum" column.
package msdial

import (
	"errors"
	"fmt"
	"strings"

	"github.com/524D/msdialtools/internal/table"
)

// Column names used by MS-Dial
const (
	ColRT          = "Average Rt(min)"
	ColMZ          = "Average Mz"
	ColName        = "Metabolite name"
	ColAdduct      = "Adduct type"
	ColMSMSAssign  = "MS/MS assigned"
	ColInChIKey    = "INCHIKEY"
	ColMSILevel    = "MSI level"
	ColReverseDot  = "Reverse dot product"
	ColSpectrumRef = "Spectrum reference file name"
	ColMSMS        = "MS/MS spectrum"
)

// headerSearchRows is how far down the header row is searched for.
const headerSearchRows = 10

// keptColumns are the metadata columns retained by Trim, in output order.
var keptColumns = []string{
	ColRT,
	ColMZ,
	ColName,
	ColAdduct,
	ColMSMSAssign,
	ColInChIKey,
	ColMSILevel,
	ColReverseDot,
	ColSpectrumRef,
	ColMSMS,
}

var requiredColumns = []string{ColRT, ColMZ, ColName, ColAdduct, ColMSMS}

var ErrNoHeader = errors.New("no MS-Dial header row found")

// MissingColumnError reports a required column absent from the header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("required column %q not found", e.Column)
}

// Layout records where the named columns of an export are.
type Layout struct {
	index   map[string]int
	Samples []int // peak height columns, in file order
}

// Index returns the position of a named column.
func (l Layout) Index(name string) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}

// MustIndex returns the position of a column that Resolve guaranteed.
func (l Layout) MustIndex(name string) int {
	i, ok := l.index[name]
	if !ok {
		panic("msdial: column " + name + " not resolved")
	}
	return i
}

// Export is a parsed alignment export.
type Export struct {
	Preamble table.Grid // rows above the header
	Header   []string
	Rows     table.Grid
	Layout   Layout
}

// Resolve maps a header row. Missing required columns are reported as a
// *MissingColumnError.
func Resolve(header []string) (Layout, error) {
	l := Layout{index: make(map[string]int)}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := l.index[h]; !dup {
			l.index[h] = i
		}
	}
	for _, c := range requiredColumns {
		if _, ok := l.index[c]; !ok {
			return Layout{}, &MissingColumnError{Column: c}
		}
	}
	for i := l.index[ColMSMS] + 1; i < len(header); i++ {
		if strings.TrimSpace(header[i]) == "" || strings.Contains(header[i], "MSMS") {
			continue
		}
		l.Samples = append(l.Samples, i)
	}
	return l, nil
}

// FindHeader returns the index of the first row that names both the
// retention time and m/z columns.
func FindHeader(g table.Grid) (int, error) {
	for r := 0; r < len(g) && r < headerSearchRows; r++ {
		var rt, mz bool
		for _, c := range g[r] {
			switch strings.TrimSpace(c) {
			case ColRT:
				rt = true
			case ColMZ:
				mz = true
			}
		}
		if rt && mz {
			return r, nil
		}
	}
	return 0, ErrNoHeader
}

// Parse splits a grid into preamble, header and feature rows, and resolves
// the column layout. Blank rows after the header are dropped.
func Parse(g table.Grid) (*Export, error) {
	h, err := FindHeader(g)
	if err != nil {
		return nil, err
	}
	layout, err := Resolve(g[h])
	if err != nil {
		return nil, err
	}
	e := &Export{
		Preamble: g[:h],
		Header:   g[h],
		Layout:   layout,
	}
	for _, row := range g[h+1:] {
		if isBlank(row) {
			continue
		}
		e.Rows = append(e.Rows, row)
	}
	return e, nil
}

// Read loads and parses the export at path.
func Read(path string) (*Export, error) {
	g, err := table.Read(path)
	if err != nil {
		return nil, err
	}
	e, err := Parse(g)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// SampleNames returns the header names of the peak height columns.
func (e *Export) SampleNames() []string {
	names := make([]string, len(e.Layout.Samples))
	for i, c := range e.Layout.Samples {
		names[i] = strings.TrimSpace(e.Header[c])
	}
	return names
}

// Value returns the cell of row r in the named column, "" when the column
// is absent.
func (e *Export) Value(r int, name string) string {
	c, ok := e.Layout.Index(name)
	if !ok {
		return ""
	}
	return e.Rows.Cell(r, c)
}

// Trim drops the metadata columns that are not carried into reduced
// outputs, and any MSMS sample columns. The returned header lists the
// retained metadata columns in export order followed by the samples;
// rows are projected the same way.
func (e *Export) Trim() (header []string, rows table.Grid, meta int) {
	var cols []int
	for i := 0; i <= e.Layout.MustIndex(ColMSMS); i++ {
		name := strings.TrimSpace(e.Header[i])
		for _, k := range keptColumns {
			if name == k {
				cols = append(cols, i)
				break
			}
		}
	}
	meta = len(cols)
	cols = append(cols, e.Layout.Samples...)

	header = make([]string, len(cols))
	for j, c := range cols {
		header[j] = strings.TrimSpace(e.Header[c])
	}
	rows = make(table.Grid, len(e.Rows))
	for i := range e.Rows {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = e.Rows.Cell(i, c)
		}
		rows[i] = row
	}
	return header, rows, meta
}
