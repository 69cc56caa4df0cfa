package stats

import (
	"fmt"

	"ampliconflow/internal/services"
)

// Resolver maps a surrogate sample identifier back to the declared one.
type Resolver interface {
	Original(surrogate string) (string, bool)
}

// SampleRelabeler is any sample-keyed output whose identifiers can be rewritten.
type SampleRelabeler interface {
	SampleIDs() []string
	RelabelSamples(mapping map[string]string)
}

// Restore rewrites sample identifiers on every target. It is all-or-nothing:
// if any identifier has no mapping, no target is modified. A nil resolver is a
// no-op, which is the case when no surrogates were assigned.
func Restore(resolver Resolver, targets ...SampleRelabeler) error {
	if resolver == nil {
		return nil
	}
	mapping := make(map[string]string)
	for _, target := range targets {
		if target == nil {
			continue
		}
		if tbl, ok := target.(*Table); ok && tbl.Restored() {
			return services.Wrap(services.ErrIntegrity, "stats", "restore", "sample identifiers already restored", nil)
		}
		for _, id := range target.SampleIDs() {
			original, ok := resolver.Original(id)
			if !ok {
				return services.Wrap(services.ErrIntegrity, "stats", "restore",
					fmt.Sprintf("no declared identifier for sample %q", id), nil)
			}
			mapping[id] = original
		}
	}
	for _, target := range targets {
		if target != nil {
			target.RelabelSamples(mapping)
		}
	}
	return nil
}
