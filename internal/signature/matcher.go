package signature

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Matcher checks whether a file's content matches the type its name
// claims.
type Matcher struct {
	table       *Table
	headerBytes int
}

// Result represents the outcome of a single content inspection.
//
// ReadErr distinguishes a header that could not be read from a file
// that legitimately has none: both leave Mismatch false, but only the
// former carries an error.
type Result struct {
	Extension  string // claimed extension, "" when the name has none
	Mismatch   bool
	ActualType string // identified content type, set on mismatch
	Header     []byte // header bytes read, nil when no read happened
	ReadErr    error
}

// NewMatcher creates a Matcher that reads headerBytes per file.
func NewMatcher(table *Table, headerBytes int) *Matcher {
	if headerBytes <= 0 {
		headerBytes = 32
	}
	return &Matcher{table: table, headerBytes: headerBytes}
}

// Classify inspects the file at path and reports whether its header
// matches the extension its name claims. Files with no extension, an
// extension outside the table, or a skip_check rule are never
// mismatches and their content is not read.
func (m *Matcher) Classify(path string) Result {
	res := Result{Extension: ExtensionOf(path)}
	if res.Extension == "" {
		return res
	}

	rule, ok := m.table.Lookup(res.Extension)
	if !ok || rule.SkipCheck {
		return res
	}

	header, err := ReadHeader(path, m.headerBytes)
	if err != nil {
		res.ReadErr = err
		return res
	}
	res.Header = header

	// Empty files carry no signature to contradict
	if len(header) == 0 {
		return res
	}

	for _, sig := range rule.Prefixes {
		if bytes.HasPrefix(header, sig) {
			return res
		}
	}

	res.Mismatch = true
	res.ActualType = m.table.Identify(header)
	return res
}

// ExtensionOf returns the lowercased final extension of a filename
// without the dot. Names with no extension, and dotfiles like
// ".bashrc", return "".
func ExtensionOf(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ReadHeader reads up to n leading bytes of the file. A file shorter
// than n bytes is not an error.
func ReadHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return buf[:read], nil
}
