package ptx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Document is the full text of a target document, read at once.
// A Document value is never modified in place: Rewrite returns a new one.
type Document struct {
	Path string
	Text string

	mode os.FileMode
}

// ReadDocument reads the whole file at path. CRLF line endings are read as LF,
// so a rewritten document is saved with LF endings.
func ReadDocument(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: invalid UTF-8 content", path)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return &Document{Path: path, Text: text, mode: info.Mode().Perm()}, nil
}

// Resolve resolves candidates against the text of the document.
func (d *Document) Resolve(r *Resolver, candidates []Candidate) Resolution {
	return r.Resolve(d.Text, candidates)
}

// Rewrite returns a copy of the document with the fragments inserted, and the
// number of insertions. The points must come from resolving against d.
func (d *Document) Rewrite(points []InsertionPoint) (*Document, int) {
	text, n := Apply(d.Text, points)
	return &Document{Path: d.Path, Text: text, mode: d.mode}, n
}

// WriteFile replaces the file at d.Path with the text of the document.
// The file is written to a temporary file first and then renamed, so a
// failure never leaves a truncated document behind.
func (d *Document) WriteFile() error {
	mode := d.mode
	if mode == 0 {
		mode = 0664
	}
	return writeFileAtomic(d.Path, []byte(d.Text), mode)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := f.Chmod(perm); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
