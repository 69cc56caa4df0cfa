package stats

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ampliconflow/internal/services"
)

// Table is the per-sample provenance table.
type Table struct {
	samples  []string
	columns  []string
	values   map[string]map[string]float64
	percent  map[string]bool
	summary  string
	restored bool
}

// Aggregate left-joins fragments onto the sample order of the first one.
// Samples absent from a later fragment get zero in that column; samples that
// only appear in later fragments are dropped.
func Aggregate(fragments ...*Fragment) (*Table, error) {
	if len(fragments) == 0 || fragments[0] == nil {
		return nil, services.Wrap(services.ErrValidation, "stats", "aggregate", "no initial fragment", nil)
	}
	t := &Table{
		samples: fragments[0].Samples(),
		values:  make(map[string]map[string]float64),
		percent: make(map[string]bool),
	}
	for _, f := range fragments {
		if f == nil {
			continue
		}
		if _, exists := t.values[f.Column]; exists {
			return nil, services.Wrap(services.ErrValidation, "stats", "aggregate", "duplicate column "+f.Column, nil)
		}
		col := make(map[string]float64, len(t.samples))
		for _, sample := range t.samples {
			v, ok := f.Get(sample)
			if !ok || v == Unknown {
				v = 0
			}
			col[sample] = float64(v)
		}
		t.columns = append(t.columns, f.Column)
		t.values[f.Column] = col
	}
	return t, nil
}

// AddPercent appends name = numerator / denominator * 100. A zero denominator
// yields zero.
func (t *Table) AddPercent(name, numerator, denominator string) error {
	num, ok := t.values[numerator]
	if !ok {
		return services.Wrap(services.ErrValidation, "stats", "percent", "unknown column "+numerator, nil)
	}
	den, ok := t.values[denominator]
	if !ok {
		return services.Wrap(services.ErrValidation, "stats", "percent", "unknown column "+denominator, nil)
	}
	col := make(map[string]float64, len(t.samples))
	for _, sample := range t.samples {
		if den[sample] == 0 {
			col[sample] = 0
			continue
		}
		col[sample] = num[sample] / den[sample] * 100
	}
	if _, exists := t.values[name]; !exists {
		t.columns = append(t.columns, name)
	}
	t.values[name] = col
	t.percent[name] = true
	return nil
}

// SetSummary attaches the pooled-mode summary string, emitted as the last column.
func (t *Table) SetSummary(summary string) { t.summary = summary }

// Summary returns the attached summary string.
func (t *Table) Summary() string { return t.summary }

// Columns returns the table's column names in order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// SampleIDs returns the sample identifiers in row order.
func (t *Table) SampleIDs() []string { return append([]string(nil), t.samples...) }

// Value returns the cell at sample and column.
func (t *Table) Value(sample, column string) (float64, bool) {
	col, ok := t.values[column]
	if !ok {
		return 0, false
	}
	v, ok := col[sample]
	return v, ok
}

// Count returns an integer cell, zero when absent.
func (t *Table) Count(sample, column string) int64 {
	v, _ := t.Value(sample, column)
	return int64(v)
}

// Restored reports whether sample identifiers were already restored.
func (t *Table) Restored() bool { return t.restored }

// RelabelSamples renames rows using mapping. Identifiers missing from the
// mapping are kept.
func (t *Table) RelabelSamples(mapping map[string]string) {
	renamed := make([]string, len(t.samples))
	for i, s := range t.samples {
		renamed[i] = rename(mapping, s)
	}
	for name, col := range t.values {
		next := make(map[string]float64, len(col))
		for s, v := range col {
			next[rename(mapping, s)] = v
		}
		t.values[name] = next
	}
	t.samples = renamed
	t.restored = true
}

func rename(mapping map[string]string, id string) string {
	if v, ok := mapping[id]; ok {
		return v
	}
	return id
}

// WriteTSV writes the table with a leading sample-id column.
func (t *Table) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	header := append([]string{"sample-id"}, t.columns...)
	if t.summary != "" {
		header = append(header, ColumnSummary)
	}
	if _, err := fmt.Fprintln(bw, strings.Join(header, "\t")); err != nil {
		return err
	}
	for _, sample := range t.samples {
		row := make([]string, 0, len(header))
		row = append(row, sample)
		for _, name := range t.columns {
			v := t.values[name][sample]
			if t.percent[name] {
				row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				row = append(row, strconv.FormatInt(int64(v), 10))
			}
		}
		if t.summary != "" {
			row = append(row, t.summary)
		}
		if _, err := fmt.Fprintln(bw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}
