package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"

	"github.com/carbocation/pfx"
	"github.com/csimplestring/go-csv/detector"
	"golang.org/x/net/html/charset"
)

// sniffLen is the number of bytes inspected for encoding and delimiter
// detection.
const sniffLen = 64 * 1024

func readDelimited(path string, comma rune) (Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()
	return ReadDelimited(f, comma)
}

// ReadDelimited parses delimited text. The character set is detected from
// a byte order mark or the content itself (MS-Dial on Windows writes
// UTF-16 or Windows-1252). A zero comma means the delimiter is detected
// from the first lines.
func ReadDelimited(r io.Reader, comma rune) (Grid, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, pfx.Err(err)
	}

	_, name, _ := charset.DetermineEncoding(head, "text/plain")
	decoded, err := charset.NewReaderLabel(name, br)
	if err != nil {
		return nil, pfx.Err(err)
	}
	content, err := io.ReadAll(decoded)
	if err != nil {
		return nil, pfx.Err(err)
	}
	content = bytes.TrimPrefix(content, []byte("\ufeff"))

	cr := csv.NewReader(bytes.NewReader(content))
	if comma == 0 {
		comma = DetectDelimiter(bytes.NewReader(content))
	}
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, pfx.Err(err)
	}
	return Grid(records), nil
}

// DetectDelimiter returns the most likely delimiter of CSV-like text,
// defaulting to a tab when nothing stands out.
func DetectDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')
	if len(delimiters) > 0 && len(delimiters[0]) > 0 {
		return rune(delimiters[0][0])
	}
	return '\t'
}

func writeDelimited(path string, g Grid, comma rune) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return &ExistsError{Path: path}
		}
		return pfx.Err(err)
	}
	w := csv.NewWriter(f)
	w.Comma = comma
	if err := w.WriteAll(g); err != nil {
		f.Close()
		return pfx.Err(err)
	}
	if err := f.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}
