package msflo

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/524D/msdialtools/internal/msdial"
	"github.com/524D/msdialtools/internal/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMode(t *testing.T) {
	m, err := Mode("/data/run_1/Client_mx123_posCSH_toBeProcessed.txt")
	require.NoError(t, err)
	require.Equal(t, ModePositive, m)

	m, err = Mode("Client_mx123_negHILIC.txt")
	require.NoError(t, err)
	require.Equal(t, ModeNegative, m)

	_, err = Mode("export.txt")
	require.True(t, errors.Is(err, ErrUnknownMode))
}

func TestMethod(t *testing.T) {
	require.Equal(t, MethodPosCSH, Method("Client_mx1_posCSH_toBeProcessed.txt"))
	require.Equal(t, MethodPosHILIC, Method("Client_mx1_posHILIC_toBeProcessed.txt"))
	require.Equal(t, "HILIC", Method("Client_mx1_negHILIC_toBeProcessed.txt"))
	require.Equal(t, "", Method("export.txt"))
	require.Nil(t, AdductTable("HILIC"))
}

func processedGrid() table.Grid {
	return table.Grid{
		{"Average Rt(min)", "Average Mz", "Type", "Metabolite name", "Adduct type", "MS/MS assigned", "INCHIKEY", "MSI level", "MS/MS spectrum", "S_001"},
		{"0.72", "341.28", "iSTD", "1_CUDA iSTD", "[M+H]+", "", "", "", "", "100"},
		{"3.46", "636.46", "iSTD", "1_PC(12:0/13:0) iSTD_", "[M+H]+", "", "", "", "", "200"},
		{"3.50", "760.58", "known", "_PC 34:1", "", "", "", "", "", "300"},
		{"10.85", "869.83", "iSTD", "1_TAG d5(17:0/17:1/17:0) iSTD", "[M+Na]+", "", "", "", "", "400"},
		{"4.0", "500.0", "unknown", "", "", "", "", "", "", "500"},
	}
}

func TestCleanProcessed(t *testing.T) {
	g := processedGrid()
	require.NoError(t, CleanProcessed(g, ModePositive))
	require.Equal(t, "1_PC(12:0/13:0) iSTD", g[2][3])
	require.Equal(t, "PC 34:1", g[3][3])
	require.Equal(t, "[M+H]+", g[3][4])
	require.Equal(t, "[M+Na]+", g[4][4])

	g = processedGrid()
	require.NoError(t, CleanProcessed(g, ModeNegative))
	require.Equal(t, "[M-H]-", g[5][4])

	g = processedGrid()
	require.NoError(t, CleanProcessed(g, ""))
	require.Equal(t, "", g[5][4])

	var missing *msdial.MissingColumnError
	err := CleanProcessed(table.Grid{{"Metabolite name"}}, ModePositive)
	require.True(t, errors.As(err, &missing))
	require.Equal(t, msdial.ColAdduct, missing.Column)
}

func column(g table.Grid, c int) []string {
	var out []string
	for _, row := range g {
		out = append(out, row[c])
	}
	return out
}

func TestSinglePointSheetCSH(t *testing.T) {
	g := processedGrid()
	require.NoError(t, CleanProcessed(g, ModePositive))
	sheet, err := SinglePointSheet(g, MethodPosCSH)
	require.NoError(t, err)

	require.Equal(t, ColKeep, sheet[0][keepIndex])
	require.Equal(t, ColISTDType, sheet[0][istdTypeIndex+1])
	require.Equal(t, "MS/MS spectrum", sheet[0][istdTypeIndex])
	for i, row := range sheet {
		require.Len(t, row, len(g[0])+2, "row %d", i)
	}
	// CUDA, PC(12:0/13:0), PC, TAG, unnamed
	if diff := cmp.Diff([]string{ColISTDType, "1", "2", "3", "4", "5"}, column(sheet, istdTypeIndex+1)); diff != "" {
		t.Errorf("iSTD types mismatch (-want +got):\n%s", diff)
	}
	// PC 34:1 carries the PC quantifier adduct; TAG is quantified on [M+NH4]+
	if diff := cmp.Diff([]string{ColKeep, "FALSE", "FALSE", "TRUE", "FALSE", "FALSE"}, column(sheet, keepIndex)); diff != "" {
		t.Errorf("keep flags mismatch (-want +got):\n%s", diff)
	}
}

func TestSinglePointSheetHILIC(t *testing.T) {
	g := table.Grid{
		{"Average Rt(min)", "Average Mz", "Type", "Metabolite name", "Adduct type", "MS/MS assigned", "INCHIKEY", "MSI level", "MS/MS spectrum", "S_001"},
		{"5.18", "113.16", "iSTD", "1_D9-Choline iSTD", "[M]+", "", "", "", "", "1"},
		{"4.95", "117.08", "iSTD", "1_D3-Creatinine", "[M+Na]+", "", "", "", "", "1"},
		{"7.25", "127.14", "iSTD", "1_Betaine iSTD", "[M+H]+", "", "", "", "", "1"},
		{"5.20", "104.1", "known", "Choline", "[M]+", "", "", "", "", "1"},
		{"5.21", "113.16", "iSTD", "1_D9-Choline iSTD", "[M+H]+", "", "", "", "", "1"},
	}
	sheet, err := SinglePointSheet(g, MethodPosHILIC)
	require.NoError(t, err)
	// "Betaine" maps onto the D9-Betaine entry, "Choline" onto D9-Choline
	if diff := cmp.Diff([]string{ColISTDType, "1", "2", "3", "1", "1"}, column(sheet, istdTypeIndex+1)); diff != "" {
		t.Errorf("iSTD types mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{ColKeep, "TRUE", "FALSE", "TRUE", "TRUE", "FALSE"}, column(sheet, keepIndex)); diff != "" {
		t.Errorf("keep flags mismatch (-want +got):\n%s", diff)
	}
}

func TestQuantSheetPath(t *testing.T) {
	require.Equal(t, filepath.Join("d", "C_mx1_posCSH_processed.xlsx"), QuantSheetPath(filepath.Join("d", "C_mx1_posCSH_toBeProcessed.txt")))
	require.Equal(t, filepath.Join("d", "export_processed.xlsx"), QuantSheetPath(filepath.Join("d", "export.txt")))
	require.Equal(t, filepath.Join("d", "C_mx1_posCSH_toBeProcessed_processed.txt"), ProcessedPath(filepath.Join("d", "C_mx1_posCSH_toBeProcessed.txt")))
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestUnzip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "result.zip")
	writeZip(t, archive, map[string]string{"a_processed.txt": "x\ty\n", "logs/run.log": "ok"})

	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0755))
	files, err := Unzip(archive, out)
	require.NoError(t, err)
	require.Len(t, files, 2)
	data, err := os.ReadFile(filepath.Join(out, "a_processed.txt"))
	require.NoError(t, err)
	require.Equal(t, "x\ty\n", string(data))

	_, err = Unzip(archive, out)
	require.True(t, errors.Is(err, table.ErrExists))

	evil := filepath.Join(dir, "evil.zip")
	writeZip(t, evil, map[string]string{"../escape.txt": "x"})
	_, err = Unzip(evil, out)
	require.True(t, errors.Is(err, ErrUnsafePath))
	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWaitForFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.zip")
	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(path+".crdownload", []byte("x"), 0644)
		os.Rename(path+".crdownload", path)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, WaitForFile(ctx, path, nil))
}

func TestWaitForFileTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := WaitForFile(ctx, filepath.Join(t.TempDir(), "never.zip"), nil)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

type fakeSubmitter struct {
	downloads string
	closed    bool
}

func (f *fakeSubmitter) Submit(ctx context.Context, path string) (io.Closer, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".zip"
	go func() {
		time.Sleep(20 * time.Millisecond)
		tmp := filepath.Join(f.downloads, "partial.tmp")
		out, err := os.Create(tmp)
		if err != nil {
			return
		}
		zw := zip.NewWriter(out)
		for n, c := range fakeFiles {
			w, _ := zw.Create(n)
			io.WriteString(w, c)
		}
		zw.Close()
		out.Close()
		os.Rename(tmp, filepath.Join(filepath.Dir(tmp), name))
	}()
	return f, nil
}

func (f *fakeSubmitter) Close() error {
	f.closed = true
	return nil
}

var fakeFiles = map[string]string{
	"Client_mx1_posCSH_toBeProcessed_processed.txt": "Average Rt(min)\tAverage Mz\tType\tMetabolite name\tAdduct type\tMS/MS assigned\tINCHIKEY\tMSI level\tMS/MS spectrum\tS_001\n" +
		"0.72\t341.28\tiSTD\t1_CUDA iSTD_\t\t\t\t\t\t100\n",
}

func TestDownloadService(t *testing.T) {
	work := t.TempDir()
	downloads := t.TempDir()
	input := filepath.Join(work, "Client_mx1_posCSH_toBeProcessed.txt")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0644))

	sub := &fakeSubmitter{downloads: downloads}
	svc := &DownloadService{Submitter: sub, Downloads: downloads}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	processed, err := svc.Curate(ctx, input)
	require.NoError(t, err)
	require.Equal(t, ProcessedPath(input), processed)
	require.True(t, sub.closed)

	// the archive is kept, so a second run refuses to start
	_, err = svc.Curate(ctx, input)
	require.True(t, errors.Is(err, table.ErrExists))

	out, err := PostProcess(input, nil)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(work, "Client_mx1_posCSH_processed.xlsx"), out)
	g, err := table.Read(out)
	require.NoError(t, err)
	require.Equal(t, "1_CUDA iSTD", g[1][3])
	require.Equal(t, "[M+H]+", g[1][4])
	require.Equal(t, "FALSE", g[1][keepIndex])
	require.Equal(t, "1", g[1][istdTypeIndex+1])

	_, err = PostProcess(input, nil)
	require.True(t, errors.Is(err, table.ErrExists))
}
