package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"

	"github.com/524D/msdialtools/internal/config"
	"github.com/524D/msdialtools/internal/msflo"
	"github.com/524D/msdialtools/internal/reduce"
	"github.com/524D/msdialtools/internal/table"
)

func TestParseFloat64Range(t *testing.T) {
	cases := []struct {
		in       string
		min, max float64
		wantMin  float64
		wantMax  float64
		wantErr  bool
	}{
		{"0.5:1.5", 0.0, 2.0, 0.5, 1.5, false},
		{"", 0.0, 2.0, 0.0, 2.0, false},
		{"2.5:1.5", 0.0, 2.0, 1.5, 1.5, true},
		{":1.5", 0.0, 2.0, 0.0, 1.5, false},
		{"0.5:", 0.0, 2.0, 0.5, 2.0, false},
		{":", 0.0, 2.0, 0.0, 2.0, false},
		{"-2.0e1:3.0e1", -1000.0, 1000.0, -20.0, 30.0, false},
		{"-2.0:2.0", -1.0, 1.0, -1.0, 1.0, false},
	}
	for _, tc := range cases {
		min, max, err := parseFloat64Range(tc.in, tc.min, tc.max)
		if tc.wantErr && !errors.Is(err, ErrRangeSpec) {
			t.Errorf("%q: expected error %v, got: %v", tc.in, ErrRangeSpec, err)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%q: expected no error, got: %v", tc.in, err)
		}
		if min != tc.wantMin || max != tc.wantMax {
			t.Errorf("%q: expected %f:%f, got: %f:%f", tc.in, tc.wantMin, tc.wantMax, min, max)
		}
	}
}

func TestParseIntRange(t *testing.T) {
	min, max, err := parseIntRange("3:6", 0, 100)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 3 || max != 6 {
		t.Errorf("Expected 3:6, got: %d:%d", min, max)
	}

	min, max, err = parseIntRange("-5:", 0, 100)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 0 || max != 100 {
		t.Errorf("Expected 0:100, got: %d:%d", min, max)
	}

	_, _, err = parseIntRange("7:2", 0, 100)
	if !errors.Is(err, ErrRangeSpec) {
		t.Errorf("Expected error: %v, got: %v", ErrRangeSpec, err)
	}
}

func TestReduceOptions(t *testing.T) {
	par := &params{cfg: config.Default(), log: zap.NewNop(), out: &bytes.Buffer{}}
	opt, err := par.reduceOptions()
	if err != nil {
		t.Fatalf("reduceOptions: error return %v", err)
	}
	if opt.RTWindow != nil {
		t.Errorf("Expected no rt window, got: %v", opt.RTWindow)
	}
	if opt.Trace != nil {
		t.Errorf("Expected no trace without MSDIALTOOLS_DEBUG")
	}
	want := reduce.Thresholds{KnownFold: 5, UnknownFold: 5, KnownSampleMax: 1000, UnknownSampleAverage: 3000}
	if diff := cmp.Diff(want, opt.Thresholds); diff != "" {
		t.Errorf("thresholds mismatch (-want +got):\n%s", diff)
	}

	par.cfg.Reduce.RTWindow = "0.5:"
	par.debug = true
	par.debugRows = "0:3"
	opt, err = par.reduceOptions()
	if err != nil {
		t.Fatalf("reduceOptions: error return %v", err)
	}
	if diff := cmp.Diff([]float64{0.5, math.MaxFloat64}, opt.RTWindow); diff != "" {
		t.Errorf("rt window mismatch (-want +got):\n%s", diff)
	}
	if opt.Trace == nil {
		t.Errorf("Expected trace with debug rows set")
	}

	par.cfg.Reduce.RTWindow = "9:1"
	if _, err := par.reduceOptions(); !errors.Is(err, ErrRangeSpec) {
		t.Errorf("Expected error: %v, got: %v", ErrRangeSpec, err)
	}
}

func TestDebugLogFeatures(t *testing.T) {
	var buf bytes.Buffer
	th := reduce.Thresholds{KnownFold: 5, KnownSampleMax: 1000}
	trace := debugLogFeatures(&buf, 1, 1, th)
	known := reduce.Feature{
		Type:       reduce.Known,
		RT:         3.0,
		Annotation: reduce.Annotation{Name: "Glycine"},
		Summary:    reduce.Summary{BlankAverage: 100, SampleMax: 2000, FoldChange: 20},
	}
	trace(0, known)
	if buf.Len() != 0 {
		t.Errorf("Expected no output outside the row range, got: %q", buf.String())
	}
	trace(1, known)
	out := buf.String()
	if !strings.Contains(out, `name:"Glycine"`) || !strings.Contains(out, "kept: +") {
		t.Errorf("Expected Glycine to be reported as kept, got: %q", out)
	}

	buf.Reset()
	trace(1, reduce.Feature{Type: reduce.ISTD, Summary: reduce.Summary{FoldChange: math.Inf(1)}})
	if !strings.Contains(buf.String(), "fold:inf kept: + (internal standard)") {
		t.Errorf("Expected internal standard line, got: %q", buf.String())
	}
}

var exportLines = [][]string{
	{"", "", "", "", "", "", "", "", "", "Class", "blank", "blank", "biorec", "pool", "pool", "sample", "sample"},
	{"Alignment ID", "Average Rt(min)", "Average Mz", "Metabolite name", "Adduct type", "MS/MS assigned", "INCHIKEY", "MSI level", "Fill %", "MS/MS spectrum",
		"MtdBlank_001", "MtdBlank_002", "Biorec_001", "PoolQC_001", "PoolQC_002", "ClientABC123_mx1_posCSH_001", "ClientABC123_mx1_posCSH_002"},
	{"0", "1.16", "341.2799", "1_CUDA iSTD", "[M+H]+", "TRUE", "", "1", "1", "", "10", "10", "5", "900", "1100", "1000", "1000"},
	{"1", "2.0", "90.055", "Alanine", "[M+H]+", "TRUE", "QNAY", "1", "1", "", "100", "100", "5", "400", "400", "500", "300"},
	{"2", "3.0", "76.039", "Glycine", "[M+H]+", "TRUE", "DHMQ", "1", "1", "", "100", "100", "5", "1000", "1000", "2000", "1000"},
	{"3", "4.95", "117.085", "Unknown", "[M+H]+", "FALSE", "", "4", "1", "", "0", "0", "5", "4000", "4000", "4000", "4000"},
	{"4", "6.0", "118.086", "Betaine[M+H]+_KWIG", "[M+Na]+", "TRUE", "", "1", "1", "", "1", "1", "5", "4000", "4000", "5000", "3000"},
}

func writeExport(t *testing.T, dir string) string {
	t.Helper()
	var sb strings.Builder
	for _, l := range exportLines {
		sb.WriteString(strings.Join(l, "\t"))
		sb.WriteString("\n")
	}
	path := filepath.Join(dir, "Area_0_2024.txt")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatalf("Error writing export: %v", err)
	}
	return path
}

// echoService stands in for MS-FLO: it returns the submitted list with a
// trailing "_" on each name, as duplicate merging leaves them.
type echoService struct {
	submitted []string
}

func (s *echoService) Curate(ctx context.Context, path string) (string, error) {
	s.submitted = append(s.submitted, filepath.Base(path))
	g, err := table.Read(path)
	if err != nil {
		return "", err
	}
	for _, row := range g[1:] {
		if row[3] != "" {
			row[3] += "_"
		}
	}
	out := msflo.ProcessedPath(path)
	return out, table.Write(out, g)
}

func execute(t *testing.T, par *params, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	if par.log == nil {
		par.log = zap.NewNop()
	}
	cmd := newRootCmd(par)
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestProcess(t *testing.T) {
	dir := t.TempDir()
	input := writeExport(t, dir)
	svc := &echoService{}
	par := &params{service: svc}

	out, err := execute(t, par, "process", input)
	if err != nil {
		t.Fatalf("process: error return %v", err)
	}
	if !strings.Contains(out, "known") || !strings.Contains(out, "1_CUDA iSTD") {
		t.Errorf("Expected the report on stdout, got: %q", out)
	}
	if diff := cmp.Diff([]string{"ClientABC_mx1_posCSH_toBeProcessed.txt"}, svc.submitted); diff != "" {
		t.Errorf("submitted files mismatch (-want +got):\n%s", diff)
	}
	for _, name := range []string{
		"ClientABC_mx1_posCSH_reduced.txt",
		"ClientABC_mx1_posCSH_report.txt",
		"ClientABC_mx1_posCSH_toBeProcessed_processed.txt",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s, got: %v", name, err)
		}
	}

	g, err := table.Read(filepath.Join(dir, "ClientABC_mx1_posCSH_processed.xlsx"))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	wantHeader := []string{"Average Rt(min)", "Average Mz", "Type", "Metabolite name", "Adduct type", "MS/MS assigned", "INCHIKEY", "MSI level",
		msflo.ColKeep, "MS/MS spectrum", msflo.ColISTDType,
		"MtdBlank_001", "MtdBlank_002", "Biorec_001", "PoolQC_001", "PoolQC_002", "ClientABC123_mx1_posCSH_001", "ClientABC123_mx1_posCSH_002"}
	if diff := cmp.Diff(wantHeader, g[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	var names, adducts, types []string
	for _, row := range g[1:] {
		names = append(names, row[3])
		adducts = append(adducts, row[4])
		types = append(types, row[10])
	}
	if diff := cmp.Diff([]string{"1_CUDA iSTD", "Betaine", "Glycine", ""}, names, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	// the unknown lost its adduct in reduction and gets the positive mode default
	if diff := cmp.Diff([]string{"[M+H]+", "[M+H]+", "[M+H]+", "[M+H]+"}, adducts); diff != "" {
		t.Errorf("adducts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "2", "3", "4"}, types); diff != "" {
		t.Errorf("iSTD types mismatch (-want +got):\n%s", diff)
	}

	// nothing is overwritten on a second run
	_, err = execute(t, &params{service: svc}, "process", input)
	if !errors.Is(err, table.ErrExists) {
		t.Errorf("Expected ErrExists, got: %v", err)
	}
}

func TestReduceInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeExport(t, dir)
	cfgFile := filepath.Join(dir, "lab.yaml")
	yml := "groups:\n  blank: QC\n  biorec: QC\n  pool: Pool\n"
	if err := os.WriteFile(cfgFile, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, &params{}, "reduce", "--config", cfgFile, input)
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got: %v", err)
	}

	_, err = execute(t, &params{}, "reduce", "--instrument", "orbitrap", input)
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Expected ErrInvalid for unknown instrument, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ClientABC_mx1_posCSH_reduced.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no output for an invalid configuration, got: %v", err)
	}
}

func TestReduceInstrument(t *testing.T) {
	dir := t.TempDir()
	input := writeExport(t, dir)
	// QEHF floors drop every known and unknown of the fixture
	if _, err := execute(t, &params{}, "reduce", "--instrument", "qehf", "--rt", "1:", input); err != nil {
		t.Fatalf("reduce: error return %v", err)
	}
	g, err := table.Read(filepath.Join(dir, "ClientABC_mx1_posCSH_toBeProcessed.txt"))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if len(g) != 2 || g[1][3] != "1_CUDA iSTD" {
		t.Errorf("Expected only the internal standard, got: %v", g)
	}
}

func TestISTDList(t *testing.T) {
	out, err := execute(t, &params{}, "istd", "--list", "--method", "csh")
	if err != nil {
		t.Fatalf("istd: error return %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "name,mz,rt" {
		t.Errorf("Expected CSV header, got: %q", lines[0])
	}
	if len(lines) != 27 {
		t.Errorf("Expected 26 CSH standards, got: %d", len(lines)-1)
	}

	_, err = execute(t, &params{}, "istd", "--list", "--method", "c18")
	if err == nil {
		t.Errorf("Expected error for unknown method, got nil")
	}
}

func TestQuantNeedsAmount(t *testing.T) {
	_, err := execute(t, &params{}, "quant", "--standards", "standards.csv", "sheet.xlsx")
	if err == nil || !strings.Contains(err.Error(), "amount") {
		t.Errorf("Expected missing amount error, got: %v", err)
	}
	_, err = execute(t, &params{}, "quant", "--standards", "standards.csv", "--amount", "1", "--amounts", "a.csv", "sheet.xlsx")
	if err == nil {
		t.Errorf("Expected error for both amount flags, got nil")
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, &params{}, "--version")
	if err != nil {
		t.Fatalf("version: error return %v", err)
	}
	if !strings.HasPrefix(out, progName+" version ") {
		t.Errorf("Expected version line, got: %q", out)
	}
}
