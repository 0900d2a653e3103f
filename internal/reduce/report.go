package reduce

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/carbocation/pfx"
	"github.com/montanaflynn/stats"

	"github.com/524D/msdialtools/internal/table"
)

// CVLimit is the %CV at and above which a feature is flagged as variable.
const CVLimit = 20.0

// CVRow is the variability of one kept feature.
type CVRow struct {
	Name     string
	SampleCV float64
	PoolCV   float64
}

// Flagged reports whether either %CV reaches CVLimit.
func (r CVRow) Flagged() bool {
	return r.SampleCV >= CVLimit || r.PoolCV >= CVLimit
}

// Report summarizes a reduction run.
type Report struct {
	KnownBefore   int
	KnownAfter    int
	UnknownBefore int
	UnknownAfter  int
	ISTDs         []CVRow
	Knowns        []CVRow
}

func cvRows(fs []Feature) []CVRow {
	rows := make([]CVRow, len(fs))
	for i, f := range fs {
		rows[i] = CVRow{Name: f.Annotation.Name, SampleCV: f.Summary.SampleCV, PoolCV: f.Summary.PoolCV}
	}
	return rows
}

// MedianISTDCV is the median sample %CV of the internal standards, 0 when
// there are none.
func (r Report) MedianISTDCV() float64 {
	data := make(stats.Float64Data, len(r.ISTDs))
	for i, row := range r.ISTDs {
		data[i] = row.SampleCV
	}
	m, err := data.Median()
	if err != nil {
		return 0
	}
	return m
}

// Flagged counts the internal standards and knowns with a high %CV.
func (r Report) Flagged() (istds, knowns int) {
	for _, row := range r.ISTDs {
		if row.Flagged() {
			istds++
		}
	}
	for _, row := range r.Knowns {
		if row.Flagged() {
			knowns++
		}
	}
	return istds, knowns
}

// Render writes the report as aligned plain text.
func (r Report) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "\tbefore\tafter\n")
	fmt.Fprintf(tw, "known\t%d\t%d\n", r.KnownBefore, r.KnownAfter)
	fmt.Fprintf(tw, "unknown\t%d\t%d\n", r.UnknownBefore, r.UnknownAfter)
	fmt.Fprintf(tw, "total\t%d\t%d\n", r.KnownBefore+r.UnknownBefore, r.KnownAfter+r.UnknownAfter)
	fmt.Fprintf(tw, "\nmedian iSTD sample %%CV\t%s\n", table.FormatFloat(r.MedianISTDCV()))
	for _, sec := range []struct {
		title string
		rows  []CVRow
	}{
		{"internal standards", r.ISTDs},
		{"knowns", r.Knowns},
	} {
		fmt.Fprintf(tw, "\n%s\n", sec.title)
		fmt.Fprintf(tw, "Metabolite name\tSample %%CV\tPool %%CV\t\n")
		for _, row := range sec.rows {
			flag := ""
			if row.Flagged() {
				flag = "*"
			}
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%s\n", row.Name, row.SampleCV, row.PoolCV, flag)
		}
	}
	return tw.Flush()
}

// WriteFile renders the report to a new file at path.
func (r Report) WriteFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return &table.ExistsError{Path: path}
		}
		return pfx.Err(err)
	}
	if err := r.Render(f); err != nil {
		f.Close()
		return pfx.Err(err)
	}
	if err := f.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}
