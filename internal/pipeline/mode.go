package pipeline

import (
	"fmt"
	"strings"

	"ampliconflow/internal/services"
)

// Mode selects how features are discovered.
type Mode string

const (
	// ModeDenoise produces zero-radius OTUs.
	ModeDenoise Mode = "denoise"
	// ModeCluster produces 97% OTUs directly from the uniques.
	ModeCluster Mode = "cluster"
	// ModeDenoiseCluster denoises, then re-clusters the zOTUs into OTUs.
	ModeDenoiseCluster Mode = "denoise-cluster"
)

// Modes lists the supported modes.
func Modes() []Mode { return []Mode{ModeDenoise, ModeCluster, ModeDenoiseCluster} }

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(name))); m {
	case ModeDenoise, ModeCluster, ModeDenoiseCluster:
		return m, nil
	case "":
		return ModeDenoise, nil
	default:
		return "", services.Wrap(services.ErrConfiguration, "pipeline", "mode", fmt.Sprintf("unknown mode %q", name), nil)
	}
}
