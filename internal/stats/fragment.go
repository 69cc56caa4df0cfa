package stats

// Unknown marks a count that could not be determined.
const Unknown int64 = -1

// Column names of the provenance table.
const (
	ColumnInitial        = "prior_to_maxee_filt"
	ColumnPassed         = "reads_passed_filter"
	ColumnPercentPassed  = "percent_of_input_passed_filter"
	ColumnChimeraMapped  = "reads_mapped_to_chimeras"
	ColumnPercentChimera = "percent_of_input_mapped_to_chimeras"
	ColumnSummary        = "denoise_stats_pooled_mode"
)

// MappedColumn names the mapped-read column for a feature kind ("zotus", "otus").
func MappedColumn(kind string) string { return "reads_mapped_to_" + kind }

// PercentMappedColumn names the mapped-read percentage column for a feature kind.
func PercentMappedColumn(kind string) string { return "percent_of_input_mapped_to_" + kind }

// Fragment is a single named count column keyed by sample identifier.
// Samples keep the order in which they were first added.
type Fragment struct {
	Column string
	order  []string
	values map[string]int64
}

// NewFragment creates an empty fragment for column.
func NewFragment(column string) *Fragment {
	return &Fragment{Column: column, values: make(map[string]int64)}
}

// Add increments the count for sample.
func (f *Fragment) Add(sample string, n int64) {
	if _, ok := f.values[sample]; !ok {
		f.order = append(f.order, sample)
	}
	f.values[sample] += n
}

// Set replaces the count for sample.
func (f *Fragment) Set(sample string, n int64) {
	if _, ok := f.values[sample]; !ok {
		f.order = append(f.order, sample)
	}
	f.values[sample] = n
}

// Get returns the count for sample.
func (f *Fragment) Get(sample string) (int64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f.values[sample]
	return v, ok
}

// Samples returns sample identifiers in insertion order.
func (f *Fragment) Samples() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.order...)
}

// Total sums all counts.
func (f *Fragment) Total() int64 {
	if f == nil {
		return 0
	}
	var total int64
	for _, v := range f.values {
		total += v
	}
	return total
}
