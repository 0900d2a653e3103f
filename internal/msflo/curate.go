package msflo

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/524D/msdialtools/internal/msdial"
	"github.com/524D/msdialtools/internal/table"
)

// Columns added for single point quantification
const (
	ColKeep     = "Keep for iSTD Single Point Quant"
	ColISTDType = "iSTD Type"

	keepIndex     = 8
	istdTypeIndex = 9
)

// Ionization modes, the first three characters of the analysis field of
// a file name such as "Client_mx123_posCSH_toBeProcessed.txt".
const (
	ModePositive = "pos"
	ModeNegative = "neg"
)

// QuantSheetSuffix names the single point quantification input.
const QuantSheetSuffix = "_processed.xlsx"

const toBeProcessedSuffix = "_toBeProcessed.txt"

var ErrUnknownMode = errors.New("unknown ionization mode")

// Mode returns the ionization mode encoded in a file name.
func Mode(path string) (string, error) {
	parts := strings.Split(filepath.Base(path), "_")
	if len(parts) >= 3 && len(parts[2]) >= 3 {
		switch m := parts[2][:3]; m {
		case ModePositive, ModeNegative:
			return m, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrUnknownMode, filepath.Base(path))
}

// Method returns the adduct table key ("posCSH", "negCSH", "posHILIC")
// contained in a file name, or "" when there is none.
func Method(path string) string {
	name := filepath.Base(path)
	for _, m := range []string{MethodPosCSH, MethodNegCSH, MethodPosHILIC} {
		if strings.Contains(name, m) {
			return m
		}
	}
	if strings.Contains(name, "HILIC") {
		return "HILIC"
	}
	if strings.Contains(name, "CSH") {
		return "CSH"
	}
	return ""
}

// CleanProcessed tidies a curated feature list in place. Duplicate
// merging leaves a "_" at either end of names, which is removed. Empty
// adducts become [M+H]+ or [M-H]- depending on mode; other modes leave
// them empty.
func CleanProcessed(g table.Grid, mode string) error {
	if len(g) == 0 {
		return table.ErrEmpty
	}
	nameCol, adductCol, err := columns(g[0])
	if err != nil {
		return err
	}
	fill := ""
	switch mode {
	case ModePositive:
		fill = "[M+H]+"
	case ModeNegative:
		fill = "[M-H]-"
	}
	for _, row := range g[1:] {
		if nameCol < len(row) {
			name := strings.TrimSuffix(row[nameCol], "_")
			row[nameCol] = strings.TrimPrefix(name, "_")
		}
		if adductCol < len(row) && strings.TrimSpace(row[adductCol]) == "" {
			row[adductCol] = fill
		}
	}
	return nil
}

func columns(header []string) (name, adduct int, err error) {
	name, adduct = -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case msdial.ColName:
			if name < 0 {
				name = i
			}
		case msdial.ColAdduct:
			if adduct < 0 {
				adduct = i
			}
		}
	}
	if name < 0 {
		return 0, 0, &msdial.MissingColumnError{Column: msdial.ColName}
	}
	if adduct < 0 {
		return 0, 0, &msdial.MissingColumnError{Column: msdial.ColAdduct}
	}
	return name, adduct, nil
}

// standardToken is the part of an annotation name that identifies the
// internal standard class: the first word, without a "1_" prefix.
func standardToken(name string) string {
	f := strings.Fields(name)
	if len(f) == 0 {
		return ""
	}
	tok := f[0]
	if strings.HasPrefix(tok, "1_") {
		tok = strings.Split(tok, "_")[1]
	}
	return tok
}

// SinglePointSheet returns the curated list with two added columns. "iSTD
// Type" numbers the standard classes in order of appearance: per name
// token for CSH methods, per matching adduct table entry for HILIC. "Keep
// for iSTD Single Point Quant" is TRUE when the class is in the adduct
// table of the method and the feature has the class's quantifier adduct.
func SinglePointSheet(g table.Grid, method string) (table.Grid, error) {
	if len(g) == 0 {
		return nil, table.ErrEmpty
	}
	nameCol, adductCol, err := columns(g[0])
	if err != nil {
		return nil, err
	}
	adducts := AdductTable(method)
	hilic := strings.Contains(method, "HILIC")

	numbers := make(map[string]int)
	out := make(table.Grid, len(g))
	out[0] = insertAt(insertAt(g[0], istdTypeIndex, ColISTDType), keepIndex, ColKeep)
	for r, row := range g[1:] {
		tok := standardToken(cell(row, nameCol))
		if hilic && tok != "" {
			for _, a := range adducts {
				if strings.Contains(a.Class, tok) {
					tok = a.Class
					break
				}
			}
		}
		n, ok := numbers[tok]
		if !ok {
			n = len(numbers) + 1
			numbers[tok] = n
		}

		keep := false
		if tok != "" {
			if a, ok := adducts.lookup(tok); ok {
				keep = strings.Contains(cell(row, adductCol), a)
			}
		}
		row = insertAt(row, istdTypeIndex, strconv.Itoa(n))
		out[r+1] = insertAt(row, keepIndex, strings.ToUpper(strconv.FormatBool(keep)))
	}
	return out, nil
}

// QuantSheetPath is the single point quantification input written for a
// reduced feature list.
func QuantSheetPath(toBeProcessed string) string {
	if strings.HasSuffix(toBeProcessed, toBeProcessedSuffix) {
		return strings.TrimSuffix(toBeProcessed, toBeProcessedSuffix) + QuantSheetSuffix
	}
	return table.SiblingPath(toBeProcessed, "", QuantSheetSuffix)
}

// PostProcess reads the curated result of toBeProcessed, tidies it, and
// writes the single point quantification sheet.
func PostProcess(toBeProcessed string, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := QuantSheetPath(toBeProcessed)
	if exists(out) {
		return "", &table.ExistsError{Path: out}
	}
	in := ProcessedPath(toBeProcessed)
	g, err := table.Read(in)
	if err != nil {
		return "", err
	}
	mode, err := Mode(toBeProcessed)
	if err != nil {
		log.Warn("empty adducts left as is", zap.Error(err))
	}
	if err := CleanProcessed(g, mode); err != nil {
		return "", fmt.Errorf("%s: %w", in, err)
	}
	method := Method(toBeProcessed)
	if AdductTable(method) == nil {
		log.Warn("no adduct table for method, no feature is marked for quantification", zap.String("method", method))
	}
	sheet, err := SinglePointSheet(g, method)
	if err != nil {
		return "", fmt.Errorf("%s: %w", in, err)
	}
	if err := table.Write(out, sheet); err != nil {
		return "", err
	}
	log.Info("file saved", zap.String("path", out), zap.String("mode", mode), zap.String("method", method))
	return out, nil
}

func cell(row []string, c int) string {
	if c < len(row) {
		return row[c]
	}
	return ""
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
