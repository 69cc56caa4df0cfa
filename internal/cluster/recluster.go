package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ampliconflow/internal/engine"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
	"ampliconflow/internal/workspace"
)

const (
	reclusterInputName = "recluster_input.fasta"
	reclusterOutName   = "reclustered.fasta"
)

// Recluster collapses clean features at identity, keeping the input order
// as the centroid priority. Output IDs are the centroid content hashes.
func Recluster(ctx context.Context, eng *engine.Client, ws *workspace.Workspace, clean seqio.FeatureSet, identity float64, logger *slog.Logger) (seqio.FeatureSet, error) {
	if identity <= 0 || identity > 1 {
		return seqio.FeatureSet{}, services.Wrap(services.ErrConfiguration, StageRecluster, "validate",
			fmt.Sprintf("identity %s outside (0, 1]", engine.FormatFloat(identity)), nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	in := ws.Path(reclusterInputName)
	if err := seqio.WriteFASTA(in, &clean); err != nil {
		return seqio.FeatureSet{}, services.Wrap(services.ErrIntegrity, StageRecluster, "write input", "write features", err)
	}
	out := ws.Path(reclusterOutName)
	cmd := eng.Command(StageRecluster, "cluster_smallmem", in).
		Float("id", identity).
		Option("centroids", out)
	if eng.Backend() == engine.Vsearch {
		cmd.Switch("usersort").Threads()
	} else {
		cmd.Option("sortedby", "other")
	}
	if _, err := eng.Run(ctx, cmd); err != nil {
		return seqio.FeatureSet{}, err
	}

	centroids, err := seqio.ReadFeatures(out)
	if err != nil {
		return seqio.FeatureSet{}, services.Wrap(services.ErrIntegrity, StageRecluster, "read centroids", "read re-clustered features", err)
	}
	for i := range centroids.Features {
		centroids.Features[i].Sequence = strings.ToUpper(centroids.Features[i].Sequence)
		centroids.Features[i].ID = seqio.HashID(centroids.Features[i].Sequence)
		centroids.Features[i].Abundance = 0
	}
	logger.Info("re-clustering finished",
		logging.Int("features_in", clean.Len()),
		logging.Int("otus", centroids.Len()),
		logging.Float64("identity", identity),
	)
	return centroids, nil
}
