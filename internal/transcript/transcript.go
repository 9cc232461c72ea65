// Package transcript loads meeting transcripts from files, transcript
// folders and URLs.
package transcript

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupported = errors.New("unsupported transcript format")

// Supported reports whether path has a transcript extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

// Load returns the text of a .txt, .md or .pdf transcript.
func Load(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case ".pdf":
		f, r, err := pdf.Open(path)
		if err != nil {
			return "", fmt.Errorf("opening pdf %s: %w", path, err)
		}
		defer f.Close()
		return pdfText(r)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
}

// PDFText extracts the plain text of an in-memory PDF.
func PDFText(b []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	return pdfText(r)
}

func pdfText(r *pdf.Reader) (string, error) {
	rc, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	return buf.String(), nil
}

// User is one transcript folder. Its name doubles as the thread id.
type User struct {
	Name  string
	Files []string
}

// Discover lists the user folders under dir with their transcripts, both
// in name order. Folders without transcripts are included with no files.
func Discover(dir string) ([]User, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading transcript dir: %w", err)
	}
	var users []User
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files, err := Files(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		users = append(users, User{Name: e.Name(), Files: files})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

// Files returns the transcripts directly inside dir, sorted.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && Supported(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Title derives a meeting title from a transcript file name.
func Title(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' }), " ")
}
