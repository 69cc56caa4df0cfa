package seqio

// Feature is a single representative sequence.
type Feature struct {
	ID       string
	Sequence string
	// Abundance is the engine-reported size; zero means unknown.
	Abundance int64
	Chimera   bool
}

// FeatureSet is an ordered collection of features. A nil *FeatureSet stands
// for an absent set and is distinct from an empty one.
type FeatureSet struct {
	Features []Feature
}

// Len returns the number of features; nil sets have length zero.
func (s *FeatureSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Features)
}

// IDs returns feature identifiers in order.
func (s *FeatureSet) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.Features))
	for i, f := range s.Features {
		ids[i] = f.ID
	}
	return ids
}

// Lookup returns the feature with the given ID.
func (s *FeatureSet) Lookup(id string) (Feature, bool) {
	if s == nil {
		return Feature{}, false
	}
	for _, f := range s.Features {
		if f.ID == id {
			return f, true
		}
	}
	return Feature{}, false
}

// Index maps feature IDs to their position. Later duplicates are ignored.
func (s *FeatureSet) Index() map[string]int {
	if s == nil {
		return map[string]int{}
	}
	index := make(map[string]int, len(s.Features))
	for i, f := range s.Features {
		if _, ok := index[f.ID]; !ok {
			index[f.ID] = i
		}
	}
	return index
}
