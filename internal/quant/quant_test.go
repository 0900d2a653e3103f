package quant

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/524D/msdialtools/internal/table"
)

var testColumns = Columns{
	MatchColumn:   `number|istd type`,
	NameColumn:    `name`,
	SamplePattern: `[a-z0-9]+_[a-z0-9]+_[a-z]+`,
}

var testStandards = []Standard{
	{Name: "1_CUDA iSTD", NgExtracted: 50},
	{Name: "1_PC iSTD", NgExtracted: 20},
	{Name: "1_not measured", NgExtracted: 1},
}

func testSheet() table.Grid {
	return table.Grid{
		{"Average Rt(min)", "Metabolite name", "Keep for iSTD Single Point Quant", "iSTD Type", "Client001_mx1_posCSH_001", "Client001_mx1_posCSH_002"},
		{"0.72", "1_CUDA iSTD", "TRUE", "1", "1000", "500"},
		{"1.50", "Lipid A", "FALSE", "1", "2000", "500"},
		{"3.46", "1_PC iSTD", "TRUE", "2", "400", "100"},
		{"3.50", "Lipid B", "FALSE", "2", "50", "200"},
		{"4.00", "Lipid C", "FALSE", "3", "10", "10"},
	}
}

func TestConcentration(t *testing.T) {
	v, err := Concentration(2000, 1000, 50, 10)
	if err != nil {
		t.Fatalf("Concentration: error return %v", err)
	}
	if v != 10.0 {
		t.Errorf("Expected concentration 10.0, got: %f", v)
	}
	if _, err := Concentration(2000, 0, 50, 10); !errors.Is(err, ErrZeroStandardHeight) {
		t.Errorf("Expected ErrZeroStandardHeight, got: %v", err)
	}
	if _, err := Concentration(2000, 1000, 50, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got: %v", err)
	}
}

func TestDiscover(t *testing.T) {
	s, err := Discover(testSheet(), testColumns)
	if err != nil {
		t.Fatalf("Discover: error return %v", err)
	}
	if s.Match != 3 || s.Name != 1 {
		t.Errorf("Expected match column 3 and name column 1, got: %d and %d", s.Match, s.Name)
	}
	if diff := cmp.Diff([]int{4, 5}, s.Samples); diff != "" {
		t.Errorf("sample columns mismatch (-want +got):\n%s", diff)
	}

	g := testSheet()
	g[0][3] = "Class"
	if _, err := Discover(g, testColumns); !errors.Is(err, ErrNoColumn) {
		t.Errorf("Expected ErrNoColumn, got: %v", err)
	}
	g = testSheet()
	g[0][4], g[0][5] = "A", "B"
	if _, err := Discover(g, testColumns); !errors.Is(err, ErrNoSamples) {
		t.Errorf("Expected ErrNoSamples, got: %v", err)
	}
}

func TestCompute(t *testing.T) {
	s, err := Discover(testSheet(), testColumns)
	if err != nil {
		t.Fatalf("Discover: error return %v", err)
	}
	amounts, err := SingleAmount(10)
	if err != nil {
		t.Fatalf("SingleAmount: error return %v", err)
	}
	got, err := Compute(s, testStandards, amounts, Options{SkipUnmatched: true})
	if err != nil {
		t.Fatalf("Compute: error return %v", err)
	}
	want := table.Grid{
		testSheet()[0],
		{"0.72", "1_CUDA iSTD", "TRUE", "1", "5", "5"},
		{"1.50", "Lipid A", "FALSE", "1", "10", "5"},
		{"3.46", "1_PC iSTD", "TRUE", "2", "2", "2"},
		{"3.50", "Lipid B", "FALSE", "2", "0.25", "4"},
		{"4.00", "Lipid C", "FALSE", "3", "10", "10"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("concentrations mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeRepeatedStandard(t *testing.T) {
	// the last row with a standard's name is its reference
	g := table.Grid{
		testSheet()[0],
		{"0.72", "1_CUDA iSTD", "TRUE", "1", "1000", "500"},
		{"1.50", "Lipid A", "FALSE", "1", "2000", "500"},
		{"0.73", "1_CUDA iSTD", "TRUE", "1", "2000", "1000"},
	}
	s, err := Discover(g, testColumns)
	if err != nil {
		t.Fatalf("Discover: error return %v", err)
	}
	got, err := Compute(s, testStandards[:1], Amounts{All: 10}, Options{})
	if err != nil {
		t.Fatalf("Compute: error return %v", err)
	}
	want := table.Grid{
		g[0],
		{"0.72", "1_CUDA iSTD", "TRUE", "1", "2.5", "2.5"},
		{"1.50", "Lipid A", "FALSE", "1", "5", "2.5"},
		{"0.73", "1_CUDA iSTD", "TRUE", "1", "5", "5"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("concentrations mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeErrors(t *testing.T) {
	amounts := Amounts{All: 10}

	s, _ := Discover(testSheet(), testColumns)
	_, err := Compute(s, testStandards, amounts, Options{})
	var nse *NoStandardError
	if !errors.As(err, &nse) || !errors.Is(err, ErrNoStandard) {
		t.Fatalf("Expected NoStandardError, got: %v", err)
	}
	if nse.ID != "3" || nse.Row != 6 {
		t.Errorf("Expected identifier 3 in row 6, got: %q in row %d", nse.ID, nse.Row)
	}

	g := testSheet()[:5]
	g[3][4] = "0"
	s, _ = Discover(g, testColumns)
	if _, err := Compute(s, testStandards, amounts, Options{}); !errors.Is(err, ErrZeroStandardHeight) {
		t.Errorf("Expected ErrZeroStandardHeight, got: %v", err)
	}

	g = testSheet()[:5]
	g[2][5] = "n/a"
	s, _ = Discover(g, testColumns)
	if _, err := Compute(s, testStandards, amounts, Options{}); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("Expected ErrNotNumeric, got: %v", err)
	}

	s, _ = Discover(testSheet()[:5], testColumns)
	perSample := Amounts{PerSample: map[string]float64{"Client001_mx1_posCSH_001": 5}}
	if _, err := Compute(s, testStandards, perSample, Options{}); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for sample without amount, got: %v", err)
	}
	if _, err := SingleAmount(-1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got: %v", err)
	}
}

func TestLoadInputs(t *testing.T) {
	dir := t.TempDir()
	stdPath := filepath.Join(dir, "standards.csv")
	require.NoError(t, os.WriteFile(stdPath, []byte("\ufeffname,ng_extracted\n1_CUDA iSTD,50\n1_PC iSTD,20\n"), 0644))
	stds, err := LoadStandards(stdPath)
	require.NoError(t, err)
	require.Equal(t, testStandards[:2], stds)

	amtPath := filepath.Join(dir, "amounts.csv")
	require.NoError(t, os.WriteFile(amtPath, []byte("sample,amount\nClient001_mx1_posCSH_001,10\nClient001_mx1_posCSH_002,20\n"), 0644))
	a, err := LoadAmounts(amtPath)
	require.NoError(t, err)
	v, err := a.For("Client001_mx1_posCSH_002")
	require.NoError(t, err)
	require.Equal(t, 20.0, v)

	require.NoError(t, os.WriteFile(amtPath+".bad", []byte("sample,amount\nx,0\n"), 0644))
	_, err = LoadAmounts(amtPath + ".bad")
	require.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "Client_mx1_posCSH_processed.xlsx")
	require.NoError(t, table.Write(in, testSheet()[:5]))

	amounts, _ := SingleAmount(10)
	out, err := Run(in, testColumns, testStandards, amounts, Options{})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "Client_mx1_posCSH_processed_SinglePointQuant.xlsx"), out)

	g, err := table.Read(out)
	require.NoError(t, err)
	require.Equal(t, []string{"Lipid A", "FALSE", "1", "10", "5"}, g[2][1:])

	_, err = Run(in, testColumns, testStandards, amounts, Options{})
	require.True(t, errors.Is(err, table.ErrExists))
}
