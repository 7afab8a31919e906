package modelfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
)

// Format identifies a definition file syntax.
type Format string

const (
	FormatLines Format = "lines"
	FormatCUE   Format = "cue"
)

// ErrUnsupportedFormat is returned for files that are neither .txt nor .cue.
var ErrUnsupportedFormat = errors.New("unsupported model file format")

// FormatOf maps a file name to its format by extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return FormatLines, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Load reads and validates the model definition at path. Each call yields a
// new model id from ids.
func Load(path string, ids domain.IDGenerator) (domain.Model, error) {
	format, err := FormatOf(path)
	if err != nil {
		return domain.Model{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Model{}, fmt.Errorf("read model file: %w", err)
	}

	name := filepath.Base(path)
	if format == FormatCUE {
		return ParseCUE(data, name, ids)
	}
	return ParseLines(bytes.NewReader(data), name, ids)
}

// Entry is one definition file found by a Catalog.
type Entry struct {
	Name   string // file name without extension
	Path   string
	Format Format
}

// Catalog lists the model definitions stored in a directory.
type Catalog struct {
	Dir string
}

// List returns the definition files in the catalog directory, sorted by
// file name. Subdirectories and other files are ignored.
func (c Catalog) List() ([]Entry, error) {
	des, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("list models in %s: %w", c.Dir, err)
	}
	entries := []Entry{}
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		format, err := FormatOf(de.Name())
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:   strings.TrimSuffix(de.Name(), filepath.Ext(de.Name())),
			Path:   filepath.Join(c.Dir, de.Name()),
			Format: format,
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	return entries, nil
}

// Find returns the entry whose Name is name.
func (c Catalog) Find(name string) (Entry, error) {
	entries, err := c.List()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("model %q not found in %s", name, c.Dir)
}
