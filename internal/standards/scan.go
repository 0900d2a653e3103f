package standards

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"go.uber.org/zap"

	"github.com/524D/msdialtools/internal/msdial"
	"github.com/524D/msdialtools/internal/msflo"
	"github.com/524D/msdialtools/internal/quant"
	"github.com/524D/msdialtools/internal/reduce"
	"github.com/524D/msdialtools/internal/table"
)

// Inputs are the export formats scanned in a folder.
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

// Dataset is the search result of one export.
type Dataset struct {
	Name     string // file name
	Presence Presence
}

// Scan searches every export in dir for the standards of lib. The file
// named output, files written by the other pipelines, and files without an
// MS-Dial header are not scanned.
func Scan(dir, output string, lib Library, w Window, log *zap.Logger) ([]Dataset, error) {
	if log == nil {
		log = zap.NewNop()
	}
	files, err := table.ListDir(dir, Inputs...)
	if err != nil {
		return nil, err
	}
	var sets []Dataset
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
			return nil, err
		}
		fs, err := Features(e)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		p := Find(fs, lib, w)
		log.Info("standards searched",
			zap.String("file", filepath.Base(f)),
			zap.Int("found", p.Count),
			zap.Int("standards", len(lib.Standards)))
		sets = append(sets, Dataset{Name: filepath.Base(f), Presence: p})
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoInputs)
	}
	return sets, nil
}

// Results lays out the search as a sheet: one row per standard with Y or
// N per dataset, a blank row, then the number of standards found.
func Results(lib Library, sets []Dataset) table.Grid {
	g := make(table.Grid, 0, len(lib.Standards)+3)
	header := []string{"Standard Name"}
	for _, s := range sets {
		header = append(header, s.Name)
	}
	g = append(g, header)
	for i, std := range lib.Standards {
		row := []string{std.Name}
		for _, s := range sets {
			if s.Presence.Found[i] {
				row = append(row, "Y")
			} else {
				row = append(row, "N")
			}
		}
		g = append(g, row)
	}
	g = append(g, []string{})
	count := []string{"Count"}
	for _, s := range sets {
		count = append(count, strconv.Itoa(s.Presence.Count))
	}
	return append(g, count)
}

// Run scans dir and writes the results sheet there. It fails before
// reading any export when the results file already exists.
func Run(dir, output string, lib Library, w Window, log *zap.Logger) (string, error) {
	path := filepath.Join(dir, output)
	if _, err := os.Stat(path); err == nil {
		return "", &table.ExistsError{Path: path}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", pfx.Err(err)
	}
	sets, err := Scan(dir, output, lib, w, log)
	if err != nil {
		return "", err
	}
	if err := table.Write(path, Results(lib, sets)); err != nil {
		return "", err
	}
	return path, nil
}
