package quant

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"github.com/524D/msdialtools/internal/table"
)

// OutputSuffix is appended to the input stem.
const OutputSuffix = "_SinglePointQuant.xlsx"

func readCSV(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return pfx.Err(err)
	}
	// spreadsheet programs save CSV with a byte order mark
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if err := gocsv.UnmarshalBytes(data, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadStandards reads a CSV file with the columns name and ng_extracted.
func LoadStandards(path string) ([]Standard, error) {
	var stds []Standard
	if err := readCSV(path, &stds); err != nil {
		return nil, err
	}
	if len(stds) == 0 {
		return nil, fmt.Errorf("%s: %w", path, table.ErrEmpty)
	}
	for i := range stds {
		stds[i].Name = strings.TrimSpace(stds[i].Name)
		if stds[i].Name == "" {
			return nil, fmt.Errorf("%s: standard %d has no name", path, i+1)
		}
	}
	return stds, nil
}

// Amounts holds the extracted amount (mL or mg) per sample. All is used
// for samples without an entry.
type Amounts struct {
	All       float64
	PerSample map[string]float64
}

// Amount is a row of a sample amounts file.
type Amount struct {
	Sample string  `csv:"sample"`
	Amount float64 `csv:"amount"`
}

// SingleAmount uses one amount for every sample.
func SingleAmount(v float64) (Amounts, error) {
	if v <= 0 {
		return Amounts{}, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
	}
	return Amounts{All: v}, nil
}

// LoadAmounts reads a CSV file with the columns sample and amount.
func LoadAmounts(path string) (Amounts, error) {
	var rows []Amount
	if err := readCSV(path, &rows); err != nil {
		return Amounts{}, err
	}
	a := Amounts{PerSample: make(map[string]float64, len(rows))}
	for _, r := range rows {
		if r.Amount <= 0 {
			return Amounts{}, fmt.Errorf("%s: sample %s: %w: %v", path, r.Sample, ErrInvalidAmount, r.Amount)
		}
		a.PerSample[strings.TrimSpace(r.Sample)] = r.Amount
	}
	return a, nil
}

// For returns the amount of a sample.
func (a Amounts) For(sample string) (float64, error) {
	v, ok := a.PerSample[sample]
	if !ok {
		v = a.All
	}
	if v <= 0 {
		return 0, fmt.Errorf("sample %s: %w", sample, ErrInvalidAmount)
	}
	return v, nil
}

// Run quantifies the sheet at path and writes <stem>_SinglePointQuant.xlsx
// next to it.
func Run(path string, c Columns, stds []Standard, amounts Amounts, opt Options) (string, error) {
	out := table.SiblingPath(path, "", OutputSuffix)
	if _, err := os.Stat(out); err == nil {
		return "", &table.ExistsError{Path: out}
	}
	g, err := table.Read(path)
	if err != nil {
		return "", err
	}
	s, err := Discover(g, c)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	res, err := Compute(s, stds, amounts, opt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if err := table.Write(out, res); err != nil {
		return "", err
	}
	if opt.Logger != nil {
		opt.Logger.Info("file saved", zap.String("path", out), zap.Int("samples", len(s.Samples)))
	}
	return out, nil
}
