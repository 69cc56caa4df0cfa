package stats

import (
	"strconv"
	"strings"
)

// Summary holds the pooled-mode run totals.
type Summary struct {
	TotalReads  int64 `json:"total_reads"`
	UniqueReads int64 `json:"unique_reads"`
	Singletons  int64 `json:"singletons"`
	Amplicons   int64 `json:"amplicons"`
	Features    int64 `json:"features"`
	Chimeras    int64 `json:"chimeras"`
	// FeatureLabel names the features in the rendered summary ("ZOTUs", "OTUs").
	FeatureLabel string `json:"feature_label"`
	// Reclustered is the feature count after re-clustering, or zero when not run.
	Reclustered int64 `json:"reclustered,omitempty"`
}

// String renders the summary in the pooled-mode stats format.
func (s Summary) String() string {
	label := s.FeatureLabel
	if label == "" {
		label = "Features"
	}
	parts := []string{
		"Total Reads: " + formatCount(s.TotalReads),
		"Unique Reads: " + formatCount(s.UniqueReads),
		"Singletons: " + formatCount(s.Singletons),
		"Amplicons: " + formatCount(s.Amplicons),
		label + ": " + formatCount(s.Features),
	}
	if s.Reclustered > 0 {
		parts = append(parts, "OTUs: "+formatCount(s.Reclustered))
	}
	return strings.Join(parts, " ;")
}

func formatCount(v int64) string {
	if v == Unknown {
		return "unknown"
	}
	return strconv.FormatInt(v, 10)
}
