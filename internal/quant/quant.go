// Package quant estimates concentrations from a single internal standard
// per feature:
//
//	concentration = height / standard height * standard ng extracted / sample amount
//
// Features are linked to their standard through a shared identifier
// column, the "iSTD Type" number written by the curation step.
package quant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/524D/msdialtools/internal/table"
)

var (
	ErrNoStandard         = errors.New("no matching internal standard")
	ErrZeroStandardHeight = errors.New("internal standard height is zero")
	ErrInvalidAmount      = errors.New("sample amount must be positive")
	ErrNotNumeric         = errors.New("value is not numeric")
	ErrNoColumn           = errors.New("no column matches")
	ErrNoSamples          = errors.New("no sample columns")
)

// NoStandardError reports a feature whose identifier matches none of the
// standards.
type NoStandardError struct {
	Row int
	ID  string
}

func (e *NoStandardError) Error() string {
	return fmt.Sprintf("row %d: identifier %q: %v", e.Row, e.ID, ErrNoStandard)
}

func (e *NoStandardError) Unwrap() error { return ErrNoStandard }

// Columns are regular expressions matched against lower-cased header
// names. The first match of MatchColumn and NameColumn is used; every
// match of SamplePattern is a sample.
type Columns struct {
	MatchColumn   string
	NameColumn    string
	SamplePattern string
}

// Sheet is a quantification input with its columns resolved.
type Sheet struct {
	Header  []string
	Rows    table.Grid
	Match   int   // identifier column
	Name    int   // annotation name column
	Samples []int // sample height columns
}

// Discover resolves the columns of a sheet whose first row is the header.
func Discover(g table.Grid, c Columns) (*Sheet, error) {
	if len(g) == 0 {
		return nil, table.ErrEmpty
	}
	match, err := regexp.Compile(c.MatchColumn)
	if err != nil {
		return nil, err
	}
	name, err := regexp.Compile(c.NameColumn)
	if err != nil {
		return nil, err
	}
	sample, err := regexp.Compile(c.SamplePattern)
	if err != nil {
		return nil, err
	}

	s := &Sheet{Header: g[0], Rows: g[1:], Match: -1, Name: -1}
	for i, h := range s.Header {
		lh := strings.ToLower(h)
		if s.Match < 0 && match.MatchString(lh) {
			s.Match = i
		}
		if s.Name < 0 && name.MatchString(lh) {
			s.Name = i
		}
		if sample.MatchString(lh) {
			s.Samples = append(s.Samples, i)
		}
	}
	if s.Match < 0 {
		return nil, fmt.Errorf("%w %q", ErrNoColumn, c.MatchColumn)
	}
	if s.Name < 0 {
		return nil, fmt.Errorf("%w %q", ErrNoColumn, c.NameColumn)
	}
	if len(s.Samples) == 0 {
		return nil, fmt.Errorf("%w: nothing matches %q", ErrNoSamples, c.SamplePattern)
	}
	return s, nil
}

// SampleNames returns the headers of the sample columns.
func (s *Sheet) SampleNames() []string {
	names := make([]string, len(s.Samples))
	for i, c := range s.Samples {
		names[i] = s.Header[c]
	}
	return names
}

// Standard is the amount of an internal standard spiked into every
// sample.
type Standard struct {
	Name        string  `csv:"name"`
	NgExtracted float64 `csv:"ng_extracted"`
}

// reference is a standard located in a sheet.
type reference struct {
	Standard
	row int
	id  string
}

// locate finds the row of every standard by annotation name. Standards
// not present in the sheet are skipped with a warning. When a name occurs
// on several rows the last one wins, and when standards share an
// identifier the one listed first keeps it.
func (s *Sheet) locate(stds []Standard, log *zap.Logger) map[string]reference {
	refs := make(map[string]reference, len(stds))
	for _, std := range stds {
		row, hits := -1, 0
		for r := range s.Rows {
			if strings.TrimSpace(s.Rows.Cell(r, s.Name)) == std.Name {
				row = r
				hits++
			}
		}
		if row < 0 {
			log.Warn("standard not found in sheet", zap.String("standard", std.Name))
			continue
		}
		if hits > 1 {
			log.Warn("standard named on several rows, using the last",
				zap.String("standard", std.Name), zap.Int("rows", hits), zap.Int("row", row+2))
		}
		id := strings.TrimSpace(s.Rows.Cell(row, s.Match))
		if prev, dup := refs[id]; dup {
			log.Warn("identifier shared by several standards, keeping the first",
				zap.String("id", id), zap.String("kept", prev.Name), zap.String("ignored", std.Name))
			continue
		}
		refs[id] = reference{Standard: std, row: row, id: id}
	}
	return refs
}

// Options control a quantification run.
type Options struct {
	// SkipUnmatched leaves rows without a standard unchanged instead of
	// failing.
	SkipUnmatched bool
	Logger        *zap.Logger
}

// Compute returns a copy of the sheet, header included, with every sample
// height replaced by its concentration.
func Compute(s *Sheet, stds []Standard, amounts Amounts, opt Options) (table.Grid, error) {
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	names := s.SampleNames()
	amount := make([]float64, len(names))
	for i, n := range names {
		a, err := amounts.For(n)
		if err != nil {
			return nil, err
		}
		amount[i] = a
	}
	refs := s.locate(stds, log)

	out := make(table.Grid, 0, len(s.Rows)+1)
	out = append(out, append([]string(nil), s.Header...))
	skipped := 0
	for r := range s.Rows {
		row := append([]string(nil), s.Rows[r]...)
		for len(row) < len(s.Header) {
			row = append(row, "")
		}
		id := strings.TrimSpace(s.Rows.Cell(r, s.Match))
		ref, ok := refs[id]
		if !ok {
			if opt.SkipUnmatched {
				skipped++
				out = append(out, row)
				continue
			}
			return nil, &NoStandardError{Row: r + 2, ID: id}
		}
		for i, c := range s.Samples {
			h, err := height(s.Rows, r, c)
			if err != nil {
				return nil, err
			}
			sh, err := height(s.Rows, ref.row, c)
			if err != nil {
				return nil, err
			}
			v, err := Concentration(h, sh, ref.NgExtracted, amount[i])
			if err != nil {
				return nil, fmt.Errorf("row %d, %s (standard %s): %w", r+2, names[i], ref.Name, err)
			}
			row[c] = table.FormatFloat(v)
		}
		out = append(out, row)
	}
	if skipped > 0 {
		log.Warn("rows without internal standard left unchanged", zap.Int("rows", skipped))
	}
	return out, nil
}

// Concentration is height / standardHeight * ngExtracted / amount.
func Concentration(height, standardHeight, ngExtracted, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if standardHeight == 0 {
		return 0, ErrZeroStandardHeight
	}
	return height / standardHeight * ngExtracted / amount, nil
}

func height(g table.Grid, r, c int) (float64, error) {
	v, err := table.Float(g.Cell(r, c))
	if err != nil {
		return 0, fmt.Errorf("row %d, column %d: %w: %q", r+2, c+1, ErrNotNumeric, g.Cell(r, c))
	}
	return v, nil
}
