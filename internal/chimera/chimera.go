// Package chimera separates clean features from chimeric ones and assigns
// every feature its content-hash identifier.
package chimera

import (
	"strings"

	"ampliconflow/internal/seqio"
)

// Partition splits amplicons into clean features and chimeras.
//
// With survivors nil, the inline chimera marker on each amplicon decides the
// route. Otherwise an amplicon is clean exactly when its hash matches a
// survivor's hash. Output features carry the hash as ID, an upper-cased
// sequence and no abundance; the clean set keeps amplicon order. The chimera
// set is nil when empty. Duplicate hashes within a subset keep the first.
func Partition(amplicons seqio.FeatureSet, survivors *seqio.FeatureSet) (seqio.FeatureSet, *seqio.FeatureSet) {
	var survivorHashes map[string]struct{}
	if survivors != nil {
		survivorHashes = make(map[string]struct{}, survivors.Len())
		for _, f := range survivors.Features {
			survivorHashes[seqio.HashID(f.Sequence)] = struct{}{}
		}
	}

	var clean, chimeras seqio.FeatureSet
	seenClean := make(map[string]struct{})
	seenChimera := make(map[string]struct{})
	for _, amp := range amplicons.Features {
		id := seqio.HashID(amp.Sequence)
		isChimera := amp.Chimera
		if survivorHashes != nil {
			_, survived := survivorHashes[id]
			isChimera = !survived
		}
		feature := seqio.Feature{ID: id, Sequence: strings.ToUpper(amp.Sequence), Chimera: isChimera}
		if isChimera {
			if _, dup := seenChimera[id]; dup {
				continue
			}
			seenChimera[id] = struct{}{}
			chimeras.Features = append(chimeras.Features, feature)
			continue
		}
		if _, dup := seenClean[id]; dup {
			continue
		}
		seenClean[id] = struct{}{}
		clean.Features = append(clean.Features, feature)
	}
	if len(chimeras.Features) == 0 {
		return clean, nil
	}
	return clean, &chimeras
}
