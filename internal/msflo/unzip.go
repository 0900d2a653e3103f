package msflo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/krolaw/zipstream"

	"github.com/524D/msdialtools/internal/table"
)

var ErrUnsafePath = errors.New("archive entry escapes target directory")

// Unzip extracts the archive at src into dir and returns the extracted
// file paths. Entries that would land outside dir are rejected, and
// existing files are never replaced.
func Unzip(src, dir string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, pfx.Err(err)
	}
	var files []string
	zr := zipstream.NewReader(f)
	for {
		hdr, err := zr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return files, fmt.Errorf("%s: %w", src, err)
		}
		target := filepath.Join(root, filepath.FromSlash(hdr.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return files, fmt.Errorf("%s: %w: %s", src, ErrUnsafePath, hdr.Name)
		}
		if hdr.FileInfo().IsDir() || strings.HasSuffix(hdr.Name, "/") {
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, pfx.Err(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return files, pfx.Err(err)
		}
		if err := extract(zr, target); err != nil {
			return files, err
		}
		files = append(files, target)
	}
	return files, nil
}

func extract(r io.Reader, target string) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return &table.ExistsError{Path: target}
		}
		return pfx.Err(err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return pfx.Err(err)
	}
	if err := out.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}
