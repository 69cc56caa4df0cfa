package samples

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
	"golang.org/x/sync/errgroup"

	"ampliconflow/internal/logging"
	"ampliconflow/internal/manifest"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
	"ampliconflow/internal/workspace"
)

// PooledFileName is the pooled FASTQ inside the run workspace.
const PooledFileName = "pooled.fastq"

const cancelCheckInterval = 4096

// Options tunes pooling.
type Options struct {
	// Workers bounds concurrent per-sample relabelling; zero uses all CPUs.
	Workers int
	// KeepAnnotations keeps the original read description after the new label.
	KeepAnnotations bool
	Logger          *slog.Logger
}

// PooledReadSet is the single relabelled FASTQ holding all samples' reads.
type PooledReadSet struct {
	Path    string
	Samples []string
	Reads   int64
}

// NormalizeAndPool relabels every sample's forward reads as "<id>.<n>" and
// concatenates them in manifest order. It returns the per-sample initial
// read counts and, when surrogates were assigned, the identifier map.
func NormalizeAndPool(ctx context.Context, m *manifest.Manifest, ws *workspace.Workspace, opts Options) (PooledReadSet, *stats.Fragment, *IdentifierMap, error) {
	if m == nil || len(m.Samples) == 0 {
		return PooledReadSet{}, nil, nil, services.Wrap(services.ErrValidation, "pool", "validate", "manifest declares no samples", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	declared := m.IDs()
	seen := make(map[string]struct{}, len(declared))
	for _, id := range declared {
		if _, dup := seen[id]; dup {
			return PooledReadSet{}, nil, nil, services.Wrap(services.ErrValidation, "pool", "validate", "duplicate sample-id "+id, nil)
		}
		seen[id] = struct{}{}
	}

	active, idmap := Assign(declared)
	if idmap != nil {
		logger.Info("sample identifiers replaced with surrogates",
			logging.Int("samples", idmap.Len()),
			logging.String(logging.FieldEventType, "sample_ids_remapped"),
		)
	}
	if m.Paired() {
		logging.WarnWithContext(logger, "paired input detected; pooling forward reads only", "paired_input_forward_only",
			logging.String(logging.FieldImpact, "reverse reads are ignored"),
			logging.String(logging.FieldErrorHint, "merge read pairs before running the pipeline"),
		)
	}

	partsDir, err := ws.Mkdir("parts")
	if err != nil {
		return PooledReadSet{}, nil, nil, err
	}
	defer os.RemoveAll(partsDir)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	parts := make([]string, len(m.Samples))
	counts := make([]int64, len(m.Samples))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i, sample := range m.Samples {
		parts[i] = ws.Path("parts", strconv.Itoa(i)+".fastq")
		group.Go(func() error {
			n, err := relabel(gctx, sample.Forward, parts[i], active[i], opts.KeepAnnotations)
			if err != nil {
				return services.Wrap(services.ErrValidation, "pool", "relabel", "sample "+sample.ID, err)
			}
			counts[i] = n
			logger.Debug("sample relabelled",
				logging.String(logging.FieldSample, sample.ID),
				logging.String("label", active[i]),
				logging.Int64("reads", n),
			)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return PooledReadSet{}, nil, nil, fmt.Errorf("pool: %w", ctxErr)
		}
		return PooledReadSet{}, nil, nil, err
	}

	pooledPath := ws.Path(PooledFileName)
	if err := concatenate(pooledPath, parts); err != nil {
		_ = os.Remove(pooledPath)
		return PooledReadSet{}, nil, nil, services.Wrap(services.ErrValidation, "pool", "concatenate", "write pooled reads", err)
	}

	fragment := stats.NewFragment(stats.ColumnInitial)
	var total int64
	for i, id := range active {
		fragment.Set(id, counts[i])
		total += counts[i]
	}
	logger.Info("samples pooled",
		logging.Int("samples", len(active)),
		logging.Int64("reads", total),
		logging.String("path", pooledPath),
	)
	return PooledReadSet{Path: pooledPath, Samples: active, Reads: total}, fragment, idmap, nil
}

func relabel(ctx context.Context, input, output, id string, keepAnnotations bool) (int64, error) {
	out, err := xopen.Wopen(output)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", output, err)
	}
	var n int64
	prefix := []byte(id + ".")
	err = seqio.EachRecord(input, func(record *fastx.Record) error {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if len(record.Seq.Qual) == 0 {
			return fmt.Errorf("record %s in %s has no quality scores", record.ID, input)
		}
		n++
		label := strconv.AppendInt(append([]byte(nil), prefix...), n, 10)
		name := label
		if keepAnnotations {
			if desc := description(record.Name); len(desc) > 0 {
				name = append(append(append([]byte(nil), label...), ' '), desc...)
			}
		}
		record.ID = label
		record.Name = name
		record.FormatToWriter(out, 0)
		return nil
	})
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", output, closeErr)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func description(name []byte) []byte {
	idx := bytes.IndexAny(name, " \t")
	if idx < 0 {
		return nil
	}
	return bytes.TrimSpace(name[idx+1:])
}

func concatenate(dest string, parts []string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	for _, part := range parts {
		if err := appendFile(out, part); err != nil {
			_ = out.Close()
			return err
		}
	}
	return out.Close()
}

func appendFile(dst io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(dst, in)
	return err
}
