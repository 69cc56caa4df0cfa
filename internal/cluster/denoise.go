package cluster

import (
	"context"
	"log/slog"

	"ampliconflow/internal/derep"
	"ampliconflow/internal/engine"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
	"ampliconflow/internal/workspace"
)

// Engine defaults; options equal to these are not forwarded.
const (
	DefaultDenoiseMinSize = 8
	DefaultDenoiseAlpha   = 2.0
)

const (
	ampliconsFileName = "amplicons.fasta"
	survivorsFileName = "survivors.fasta"
	denoiseLogName    = "unoise.log"
	uchimeLogName     = "uchime.log"
)

// DenoiseOptions tunes UNOISE.
type DenoiseOptions struct {
	MinSize int
	Alpha   float64
}

// Denoiser produces zOTUs.
type Denoiser struct {
	eng    *engine.Client
	ws     *workspace.Workspace
	opts   DenoiseOptions
	logger *slog.Logger
}

// NewDenoiser builds a Denoiser; zero options take the engine defaults.
func NewDenoiser(eng *engine.Client, ws *workspace.Workspace, opts DenoiseOptions, logger *slog.Logger) *Denoiser {
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultDenoiseMinSize
	}
	if opts.Alpha <= 0 {
		opts.Alpha = DefaultDenoiseAlpha
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Denoiser{eng: eng, ws: ws, opts: opts, logger: logger}
}

func (d *Denoiser) Stage() string { return StageDenoise }

func (d *Denoiser) Kind() string { return KindZOTU }

// Cluster runs UNOISE on the uniques.
func (d *Denoiser) Cluster(ctx context.Context, uniques derep.UniqueReadSet) (AmplifiedFeatureSet, error) {
	var (
		set AmplifiedFeatureSet
		err error
	)
	if d.eng.Backend() == engine.Vsearch {
		set, err = d.vsearch(ctx, uniques)
	} else {
		set, err = d.usearch(ctx, uniques)
	}
	if err != nil {
		return AmplifiedFeatureSet{}, err
	}
	d.logger.Info("denoising finished",
		logging.Int64("amplicons", set.Stats.Amplicons),
		logging.Int64("zotus", set.Stats.Features),
		logging.Int64("chimeras", set.Stats.Chimeras),
	)
	return set, nil
}

func (d *Denoiser) usearch(ctx context.Context, uniques derep.UniqueReadSet) (AmplifiedFeatureSet, error) {
	out := d.ws.Path(ampliconsFileName)
	cmd := d.eng.Command(StageDenoise, "unoise3", uniques.Path).Option("ampout", out)
	d.tuning(cmd, "alpha")
	cmd.Log(d.ws.Path(denoiseLogName))
	if _, err := d.eng.Run(ctx, cmd); err != nil {
		return AmplifiedFeatureSet{}, err
	}

	amplicons, err := d.readOrdered(out)
	if err != nil {
		return AmplifiedFeatureSet{}, err
	}
	chimeras := countChimeras(amplicons)
	return AmplifiedFeatureSet{
		Amplicons: amplicons,
		Kind:      KindZOTU,
		Stats: Stats{
			Amplicons: int64(amplicons.Len()),
			Features:  int64(amplicons.Len()) - chimeras,
			Chimeras:  chimeras,
		},
	}, nil
}

func (d *Denoiser) vsearch(ctx context.Context, uniques derep.UniqueReadSet) (AmplifiedFeatureSet, error) {
	centroids := d.ws.Path(ampliconsFileName)
	cmd := d.eng.Command(StageDenoise, "cluster_unoise", uniques.Path).
		Option("centroids", centroids).
		Switch("sizeout")
	d.tuning(cmd, "unoise_alpha")
	cmd.Threads().Log(d.ws.Path(denoiseLogName))
	if _, err := d.eng.Run(ctx, cmd); err != nil {
		return AmplifiedFeatureSet{}, err
	}

	survivorsPath := d.ws.Path(survivorsFileName)
	uchime := d.eng.Command(StageDenoise, "uchime3_denovo", centroids).
		Option("nonchimeras", survivorsPath).
		Switch("relabel_md5").
		Log(d.ws.Path(uchimeLogName))
	if _, err := d.eng.Run(ctx, uchime); err != nil {
		return AmplifiedFeatureSet{}, err
	}

	amplicons, err := d.readOrdered(centroids)
	if err != nil {
		return AmplifiedFeatureSet{}, err
	}
	survivors, err := seqio.ReadFeatures(survivorsPath)
	if err != nil {
		return AmplifiedFeatureSet{}, services.Wrap(services.ErrIntegrity, StageDenoise, "read survivors", "read chimera-filtered amplicons", err)
	}
	return AmplifiedFeatureSet{
		Amplicons: amplicons,
		Survivors: &survivors,
		Kind:      KindZOTU,
		Stats: Stats{
			Amplicons: int64(amplicons.Len()),
			Features:  int64(survivors.Len()),
			Chimeras:  int64(amplicons.Len() - survivors.Len()),
		},
	}, nil
}

func (d *Denoiser) tuning(cmd *engine.Command, alphaFlag string) {
	if d.opts.MinSize != DefaultDenoiseMinSize {
		cmd.Int("minsize", d.opts.MinSize)
	}
	if d.opts.Alpha != DefaultDenoiseAlpha {
		cmd.Float(alphaFlag, d.opts.Alpha)
	}
}

func (d *Denoiser) readOrdered(path string) (seqio.FeatureSet, error) {
	set, err := seqio.ReadFeatures(path)
	if err != nil {
		return seqio.FeatureSet{}, services.Wrap(services.ErrIntegrity, StageDenoise, "read amplicons", "read denoised amplicons", err)
	}
	if err := VerifyAbundanceOrder(StageDenoise, set); err != nil {
		return seqio.FeatureSet{}, err
	}
	return set, nil
}
