package featuretable

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"ampliconflow/internal/services"
)

// HeaderID is the first header cell of the classic OTU table format.
const HeaderID = "#OTU ID"

// Table is a features-by-samples count matrix.
type Table struct {
	features []string
	samples  []string
	counts   map[string]map[string]int64
}

// NewTable creates an empty table with the given sample columns.
func NewTable(samples ...string) *Table {
	t := &Table{counts: make(map[string]map[string]int64)}
	t.EnsureSamples(samples)
	return t
}

// EnsureSamples appends any missing sample columns.
func (t *Table) EnsureSamples(samples []string) {
	have := make(map[string]struct{}, len(t.samples))
	for _, s := range t.samples {
		have[s] = struct{}{}
	}
	for _, s := range samples {
		if _, ok := have[s]; ok {
			continue
		}
		have[s] = struct{}{}
		t.samples = append(t.samples, s)
	}
}

// Set stores a count, adding the feature row and sample column when new.
func (t *Table) Set(feature, sample string, n int64) {
	row, ok := t.counts[feature]
	if !ok {
		row = make(map[string]int64)
		t.counts[feature] = row
		t.features = append(t.features, feature)
	}
	t.EnsureSamples([]string{sample})
	row[sample] = n
}

// Get returns a count, zero when absent.
func (t *Table) Get(feature, sample string) int64 {
	return t.counts[feature][sample]
}

// FeatureIDs returns row identifiers in order.
func (t *Table) FeatureIDs() []string { return append([]string(nil), t.features...) }

// SampleIDs returns column identifiers in order.
func (t *Table) SampleIDs() []string { return append([]string(nil), t.samples...) }

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.features)
}

// RowTotal sums a feature across samples.
func (t *Table) RowTotal(feature string) int64 {
	var total int64
	for _, n := range t.counts[feature] {
		total += n
	}
	return total
}

// ColumnTotals sums every sample column.
func (t *Table) ColumnTotals() map[string]int64 {
	if t == nil {
		return map[string]int64{}
	}
	totals := make(map[string]int64, len(t.samples))
	for _, s := range t.samples {
		totals[s] = 0
	}
	for _, row := range t.counts {
		for s, n := range row {
			totals[s] += n
		}
	}
	return totals
}

// DropEmptyRows removes features whose counts are all zero and returns them.
func (t *Table) DropEmptyRows() []string {
	var kept, dropped []string
	for _, f := range t.features {
		if t.RowTotal(f) == 0 {
			dropped = append(dropped, f)
			delete(t.counts, f)
			continue
		}
		kept = append(kept, f)
	}
	t.features = kept
	return dropped
}

// SortByTotal orders rows by descending total; ties keep their current order.
func (t *Table) SortByTotal() {
	totals := make(map[string]int64, len(t.features))
	for _, f := range t.features {
		totals[f] = t.RowTotal(f)
	}
	sort.SliceStable(t.features, func(i, j int) bool {
		return totals[t.features[i]] > totals[t.features[j]]
	})
}

// Reorder replaces the row order. ids must be a permutation of the rows.
func (t *Table) Reorder(ids []string) error {
	if len(ids) != len(t.features) {
		return fmt.Errorf("reorder: %d ids for %d rows", len(ids), len(t.features))
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := t.counts[id]; !ok {
			return fmt.Errorf("reorder: unknown feature %s", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("reorder: duplicate feature %s", id)
		}
		seen[id] = struct{}{}
	}
	t.features = append([]string(nil), ids...)
	return nil
}

// RelabelSamples renames sample columns; unmapped identifiers are kept.
func (t *Table) RelabelSamples(mapping map[string]string) {
	rename := func(s string) string {
		if v, ok := mapping[s]; ok {
			return v
		}
		return s
	}
	for i, s := range t.samples {
		t.samples[i] = rename(s)
	}
	for f, row := range t.counts {
		next := make(map[string]int64, len(row))
		for s, n := range row {
			next[rename(s)] = n
		}
		t.counts[f] = next
	}
}

// ReadTSV loads a table file written by the engine.
func ReadTSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseTSV(file)
}

// ParseTSV reads the classic tab-separated OTU table format. Counts may be
// written as floats ("12.0").
func ParseTSV(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	t := NewTable()
	headerSeen := false
	var columns []string
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if !headerSeen {
			if !strings.HasPrefix(fields[0], "#") {
				return nil, services.Wrap(services.ErrIntegrity, "feature_table", "parse", "missing header row", nil)
			}
			if strings.HasPrefix(fields[0], "# ") && fields[0] != HeaderID {
				continue
			}
			columns = fields[1:]
			t.EnsureSamples(columns)
			headerSeen = true
			continue
		}
		if len(fields) != len(columns)+1 {
			return nil, services.Wrap(services.ErrIntegrity, "feature_table", "parse",
				fmt.Sprintf("line %d has %d fields, want %d", line, len(fields), len(columns)+1), nil)
		}
		feature := fields[0]
		if _, dup := t.counts[feature]; dup {
			return nil, services.Wrap(services.ErrIntegrity, "feature_table", "parse", "duplicate feature "+feature, nil)
		}
		t.counts[feature] = make(map[string]int64, len(columns))
		t.features = append(t.features, feature)
		for i, cell := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, services.Wrap(services.ErrIntegrity, "feature_table", "parse",
					fmt.Sprintf("line %d: bad count %q", line, cell), err)
			}
			if v < 0 || math.IsInf(v, 0) || v != math.Trunc(v) {
				return nil, services.Wrap(services.ErrIntegrity, "feature_table", "parse",
					fmt.Sprintf("line %d: count %q is not a non-negative integer", line, cell), nil)
			}
			if v != 0 {
				t.counts[feature][columns[i]] = int64(v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrIntegrity, "feature_table", "parse", "scan table", err)
	}
	if !headerSeen {
		return nil, services.Wrap(services.ErrIntegrity, "feature_table", "parse", "missing header row", nil)
	}
	return t, nil
}

// WriteTSV writes the table in the classic OTU table format.
func (t *Table) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, strings.Join(append([]string{HeaderID}, t.samples...), "\t")); err != nil {
		return err
	}
	for _, f := range t.features {
		row := make([]string, 0, len(t.samples)+1)
		row = append(row, f)
		for _, s := range t.samples {
			row = append(row, strconv.FormatInt(t.counts[f][s], 10))
		}
		if _, err := fmt.Fprintln(bw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the table to path.
func (t *Table) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.WriteTSV(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
