// Package table reads and writes the spreadsheet and text exports the
// pipelines operate on. Every format is reduced to a Grid: the cells of
// the first sheet as strings, row by row.
package table

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
)

// Grid holds the cells of one sheet, row major. Rows may have different
// lengths; missing cells read as empty strings via Cell.
type Grid [][]string

var (
	ErrExists            = errors.New("output file already exists")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmpty             = errors.New("file contains no rows")
)

// Cell returns the value at row r, column c, or "" when out of range.
func (g Grid) Cell(r, c int) string {
	if r < 0 || r >= len(g) || c < 0 || c >= len(g[r]) {
		return ""
	}
	return g[r][c]
}

// Width returns the length of the longest row.
func (g Grid) Width() int {
	w := 0
	for _, row := range g {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// Clone returns a deep copy, so callers can edit cells without touching
// the source grid.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for i, row := range g {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// Float parses a cell as a float64. Empty cells are an error.
func Float(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// FormatFloat renders computed values the way they are written to text
// outputs: shortest representation that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Read loads the first sheet of the file at path. The format is chosen
// from the file extension.
func Read(path string) (Grid, error) {
	var g Grid
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		g, err = readXLSX(path)
	case ".xls":
		g, err = readXLS(path)
	case ".txt", ".tsv", ".tab":
		// MS-Dial text exports are always tab separated
		g, err = readDelimited(path, '\t')
	case ".csv":
		// comma or, in some locales, semicolon
		g, err = readDelimited(path, 0)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, err
	}
	if len(g) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return g, nil
}

// Write stores the grid at path, as an .xlsx workbook or as tab separated
// text. An existing file at path is never replaced.
func Write(path string, g Grid) error {
	if _, err := os.Stat(path); err == nil {
		return &ExistsError{Path: path}
	} else if !errors.Is(err, os.ErrNotExist) {
		return pfx.Err(err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return writeXLSX(path, g)
	case ".txt", ".tsv", ".tab":
		return writeDelimited(path, g, '\t')
	case ".csv":
		return writeDelimited(path, g, ',')
	}
	return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
}

// ExistsError reports an output path that is already taken.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string { return e.Path + " already exists" }

func (e *ExistsError) Unwrap() error { return ErrExists }

// SiblingPath returns a file name in the directory of path with the given
// base name and suffix, e.g. SiblingPath("/d/in.txt", "x", "_reduced.txt")
// is "/d/x_reduced.txt". An empty base means the stem of path.
func SiblingPath(path, base, suffix string) string {
	if base == "" {
		base = Stem(path)
	}
	return filepath.Join(filepath.Dir(path), base+suffix)
}

// Stem returns the file name of path without directory and extension.
func Stem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ListDir returns the files in dir with one of the given extensions,
// sorted by name. Office lock files (starting with "~") are skipped.
func ListDir(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pfx.Err(err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, x := range exts {
			if ext == x {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
