package cluster

import (
	"context"
	"fmt"

	"ampliconflow/internal/derep"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
)

// Stage names.
const (
	StageDenoise   = "denoise"
	StageCluster   = "cluster"
	StageRecluster = "recluster"
)

// Feature kinds, used in file and column names.
const (
	KindZOTU = "zotus"
	KindOTU  = "otus"
)

// Stats are the feature discovery totals.
type Stats struct {
	Amplicons int64
	Features  int64
	Chimeras  int64
}

// AmplifiedFeatureSet is the outcome of feature discovery.
type AmplifiedFeatureSet struct {
	// Amplicons in non-increasing abundance order.
	Amplicons seqio.FeatureSet
	// Survivors is the non-chimeric subset when the engine does not mark
	// chimeras inline; nil otherwise.
	Survivors *seqio.FeatureSet
	Kind      string
	Stats     Stats
}

// Backend discovers features from dereplicated reads.
type Backend interface {
	Stage() string
	Kind() string
	Cluster(ctx context.Context, uniques derep.UniqueReadSet) (AmplifiedFeatureSet, error)
}

// VerifyAbundanceOrder checks that every feature carries a size and that
// sizes never increase.
func VerifyAbundanceOrder(stage string, set seqio.FeatureSet) error {
	var prev int64
	for i, f := range set.Features {
		if f.Abundance <= 0 {
			return services.Wrap(services.ErrIntegrity, stage, "verify order",
				fmt.Sprintf("feature %s has no size annotation", f.ID), nil)
		}
		if i > 0 && f.Abundance > prev {
			return services.Wrap(services.ErrIntegrity, stage, "verify order",
				fmt.Sprintf("feature %s (size %d) follows a smaller feature (size %d)", f.ID, f.Abundance, prev), nil)
		}
		prev = f.Abundance
	}
	return nil
}

func countChimeras(set seqio.FeatureSet) int64 {
	var n int64
	for _, f := range set.Features {
		if f.Chimera {
			n++
		}
	}
	return n
}
