package cluster

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"ampliconflow/internal/derep"
	"ampliconflow/internal/engine"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
	"ampliconflow/internal/workspace"
)

// UPARSE defaults. The clustering radius is fixed by the engine.
const (
	DefaultClusterMinSize = 2
	FixedOTUIdentity      = 0.97
)

const (
	otusFileName   = "otus.fasta"
	uparseFileName = "uparse.tsv"
	uparseLogName  = "uparse.log"
)

// ClusterOptions tunes UPARSE.
type ClusterOptions struct {
	MinSize  int
	Identity float64
}

// OTUClusterer produces 97% OTUs with UPARSE.
type OTUClusterer struct {
	eng    *engine.Client
	ws     *workspace.Workspace
	opts   ClusterOptions
	logger *slog.Logger
}

// NewOTUClusterer builds an OTUClusterer; zero options take the defaults.
func NewOTUClusterer(eng *engine.Client, ws *workspace.Workspace, opts ClusterOptions, logger *slog.Logger) *OTUClusterer {
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultClusterMinSize
	}
	if opts.Identity == 0 {
		opts.Identity = FixedOTUIdentity
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OTUClusterer{eng: eng, ws: ws, opts: opts, logger: logger}
}

func (c *OTUClusterer) Stage() string { return StageCluster }

func (c *OTUClusterer) Kind() string { return KindOTU }

// Validate rejects settings the engine cannot honour.
func (c *OTUClusterer) Validate() error {
	if math.Abs(c.opts.Identity-FixedOTUIdentity) > 1e-9 {
		return services.Wrap(services.ErrConfiguration, StageCluster, "validate",
			fmt.Sprintf("UPARSE clusters at a fixed %s identity; got %s", engine.FormatFloat(FixedOTUIdentity), engine.FormatFloat(c.opts.Identity)), nil)
	}
	if c.eng.Backend() != engine.Usearch {
		return services.Wrap(services.ErrConfiguration, StageCluster, "validate",
			fmt.Sprintf("direct OTU clustering requires usearch; %s has no UPARSE equivalent", c.eng.Backend()), nil)
	}
	return nil
}

// Cluster runs UPARSE and re-attaches the uniques it reported as chimeric,
// marked inline.
func (c *OTUClusterer) Cluster(ctx context.Context, uniques derep.UniqueReadSet) (AmplifiedFeatureSet, error) {
	if err := c.Validate(); err != nil {
		return AmplifiedFeatureSet{}, err
	}
	otusPath := c.ws.Path(otusFileName)
	reportPath := c.ws.Path(uparseFileName)
	cmd := c.eng.Command(StageCluster, "cluster_otus", uniques.Path).
		Option("otus", otusPath).
		Option("uparseout", reportPath)
	if c.opts.MinSize != DefaultClusterMinSize {
		cmd.Int("minsize", c.opts.MinSize)
	}
	cmd.Log(c.ws.Path(uparseLogName))
	if _, err := c.eng.Run(ctx, cmd); err != nil {
		return AmplifiedFeatureSet{}, err
	}

	otus, err := seqio.ReadFeatures(otusPath)
	if err != nil {
		return AmplifiedFeatureSet{}, services.Wrap(services.ErrIntegrity, StageCluster, "read otus", "read OTU centroids", err)
	}
	if err := VerifyAbundanceOrder(StageCluster, otus); err != nil {
		return AmplifiedFeatureSet{}, err
	}
	chimeric, err := ParseUparseReport(reportPath)
	if err != nil {
		return AmplifiedFeatureSet{}, err
	}

	amplicons := otus
	if len(chimeric) > 0 {
		all, err := seqio.ReadFeatures(uniques.Path)
		if err != nil {
			return AmplifiedFeatureSet{}, services.Wrap(services.ErrIntegrity, StageCluster, "read uniques", "read dereplicated reads", err)
		}
		var flagged []seqio.Feature
		for _, f := range all.Features {
			if _, ok := chimeric[f.ID]; ok {
				f.Chimera = true
				flagged = append(flagged, f)
			}
		}
		amplicons = mergeByAbundance(otus.Features, flagged)
		if err := VerifyAbundanceOrder(StageCluster, amplicons); err != nil {
			return AmplifiedFeatureSet{}, err
		}
	}
	chimeras := countChimeras(amplicons)
	c.logger.Info("OTU clustering finished",
		logging.Int("otus", otus.Len()),
		logging.Int64("chimeras", chimeras),
	)
	return AmplifiedFeatureSet{
		Amplicons: amplicons,
		Kind:      KindOTU,
		Stats: Stats{
			Amplicons: int64(amplicons.Len()),
			Features:  int64(otus.Len()),
			Chimeras:  chimeras,
		},
	}, nil
}

// mergeByAbundance interleaves two size-ordered lists into one list of
// non-increasing size. On equal sizes the OTU comes first.
func mergeByAbundance(otus, chimeras []seqio.Feature) seqio.FeatureSet {
	merged := make([]seqio.Feature, 0, len(otus)+len(chimeras))
	i, j := 0, 0
	for i < len(otus) && j < len(chimeras) {
		if chimeras[j].Abundance > otus[i].Abundance {
			merged = append(merged, chimeras[j])
			j++
			continue
		}
		merged = append(merged, otus[i])
		i++
	}
	merged = append(merged, otus[i:]...)
	merged = append(merged, chimeras[j:]...)
	return seqio.FeatureSet{Features: merged}
}

// ParseUparseReport returns the label bases classified as chimeric
// (noisy_chimera or perfect_chimera) in a UPARSE report.
func ParseUparseReport(path string) (map[string]struct{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrIntegrity, StageCluster, "read report", "open uparse report", err)
	}
	defer file.Close()

	chimeric := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		switch fields[1] {
		case "noisy_chimera", "perfect_chimera":
			base, _, _ := strings.Cut(fields[0], ";")
			chimeric[base] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrIntegrity, StageCluster, "read report", "scan uparse report", err)
	}
	return chimeric, nil
}
