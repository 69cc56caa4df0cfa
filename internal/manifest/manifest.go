// Package manifest reads the sample declarations of a run.
//
// A manifest is a CSV file with a header naming sample-id, a path column
// (absolute-filepath or filename) and an optional direction column. A
// directory may be given instead, in which case MANIFEST and the optional
// metadata.yml inside it are read.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ampliconflow/internal/services"
)

const (
	// FileName is the manifest file looked up inside a directory input.
	FileName = "MANIFEST"
	// MetadataFileName carries the phred offset of a directory input.
	MetadataFileName = "metadata.yml"

	// DefaultPhredOffset applies when no metadata is present.
	DefaultPhredOffset = 33

	DirectionForward = "forward"
	DirectionReverse = "reverse"
)

// Sample is one declared input.
type Sample struct {
	ID      string
	Forward string
	Reverse string
}

// Paired reports whether the sample declared a reverse read file.
func (s Sample) Paired() bool { return s.Reverse != "" }

// Manifest is the ordered list of declared samples.
type Manifest struct {
	Path        string
	Samples     []Sample
	PhredOffset int
}

// IDs returns sample identifiers in declaration order.
func (m *Manifest) IDs() []string {
	if m == nil {
		return nil
	}
	ids := make([]string, len(m.Samples))
	for i, s := range m.Samples {
		ids[i] = s.ID
	}
	return ids
}

// Paired reports whether any sample declared reverse reads.
func (m *Manifest) Paired() bool {
	if m == nil {
		return false
	}
	for _, s := range m.Samples {
		if s.Paired() {
			return true
		}
	}
	return false
}

type metadata struct {
	PhredOffset int `yaml:"phred-offset"`
}

// Load reads a manifest file or a directory containing one.
func Load(path string) (*Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrValidation, "manifest", "load", "manifest path is empty", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "manifest", "load", "stat manifest", err)
	}
	manifestPath := path
	offset := DefaultPhredOffset
	if info.IsDir() {
		manifestPath = filepath.Join(path, FileName)
		offset, err = readMetadata(filepath.Join(path, MetadataFileName))
		if err != nil {
			return nil, err
		}
	}
	file, err := os.Open(manifestPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "manifest", "open", "open manifest", err)
	}
	defer file.Close()

	m, err := Parse(file, filepath.Dir(manifestPath))
	if err != nil {
		return nil, err
	}
	m.Path = manifestPath
	m.PhredOffset = offset
	return m, nil
}

func readMetadata(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPhredOffset, nil
	}
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "manifest", "metadata", "read metadata", err)
	}
	var meta metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return 0, services.Wrap(services.ErrValidation, "manifest", "metadata", "parse metadata", err)
	}
	switch meta.PhredOffset {
	case 0:
		return DefaultPhredOffset, nil
	case 33, 64:
		return meta.PhredOffset, nil
	default:
		return 0, services.Wrap(services.ErrValidation, "manifest", "metadata",
			fmt.Sprintf("unsupported phred-offset %d", meta.PhredOffset), nil)
	}
}

// Parse reads manifest CSV from r. Relative file paths resolve against baseDir.
func Parse(r io.Reader, baseDir string) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "manifest is empty", nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "read header", err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	m := &Manifest{PhredOffset: DefaultPhredOffset}
	index := make(map[string]int)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "read row", err)
		}
		if blank(record) {
			continue
		}
		id := field(record, cols.id)
		file := field(record, cols.path)
		if id == "" {
			return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "row without sample-id", nil)
		}
		if file == "" {
			return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "sample "+id+" has no file path", nil)
		}
		if !filepath.IsAbs(file) && baseDir != "" {
			file = filepath.Join(baseDir, file)
		}
		direction := strings.ToLower(field(record, cols.direction))
		if direction == "" {
			direction = DirectionForward
		}

		pos, seen := index[id]
		if !seen {
			index[id] = len(m.Samples)
			m.Samples = append(m.Samples, Sample{ID: id})
			pos = len(m.Samples) - 1
		}
		sample := &m.Samples[pos]
		switch direction {
		case DirectionForward:
			if sample.Forward != "" {
				return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "duplicate sample-id "+id, nil)
			}
			sample.Forward = file
		case DirectionReverse:
			if sample.Reverse != "" {
				return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "duplicate sample-id "+id, nil)
			}
			sample.Reverse = file
		default:
			return nil, services.Wrap(services.ErrValidation, "manifest", "parse",
				fmt.Sprintf("sample %s has unknown direction %q", id, direction), nil)
		}
	}
	if len(m.Samples) == 0 {
		return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "manifest declares no samples", nil)
	}
	for _, s := range m.Samples {
		if s.Forward == "" {
			return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "sample "+s.ID+" has no forward reads", nil)
		}
	}
	return m, nil
}

type columns struct {
	id, path, direction int
}

func resolveColumns(header []string) (columns, error) {
	cols := columns{id: -1, path: -1, direction: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "sample-id", "sample_id", "id":
			cols.id = i
		case "absolute-filepath", "filename", "filepath":
			cols.path = i
		case "direction":
			cols.direction = i
		}
	}
	if cols.id < 0 {
		return cols, services.Wrap(services.ErrValidation, "manifest", "parse", "header missing sample-id column", nil)
	}
	if cols.path < 0 {
		return cols, services.Wrap(services.ErrValidation, "manifest", "parse", "header missing absolute-filepath or filename column", nil)
	}
	return cols, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
