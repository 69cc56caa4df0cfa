// Package featuretable maps reads onto discovered features to build the
// per-sample abundance table, and accounts for reads that only match chimeras.
package featuretable

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"ampliconflow/internal/engine"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
	"ampliconflow/internal/workspace"
)

// Stage names.
const (
	StageMap        = "feature_table"
	StageChimeraMap = "chimera_map"
)

// ZOTUIdentity is the mapping identity used for zero-radius OTUs.
const ZOTUIdentity = 1.0

// ErrRepSeqMismatch is the detail reported when reconciliation fails.
const ErrRepSeqMismatch = "representative sequences do not match feature table"

// Request describes one table build.
type Request struct {
	// Reads is the read file mapped onto the features.
	Reads string
	// Clean are the features to map against, in discovery order.
	Clean seqio.FeatureSet
	// Chimeras are searched with the unmapped reads; nil or empty skips it.
	Chimeras *seqio.FeatureSet
	Identity float64
	// Kind is the feature kind ("zotus" or "otus").
	Kind string
	// Samples lists the active sample identifiers in manifest order.
	Samples []string
	// ChimeraEngine runs the chimera search; nil uses the table engine.
	ChimeraEngine *engine.Client
}

// Result is the reconciled table and its representative sequences.
type Result struct {
	Table         *Table
	Features      seqio.FeatureSet
	ChimeraTable  *Table
	Mapped        *stats.Fragment
	ChimeraMapped *stats.Fragment
}

// Build maps reads onto the clean features, reconciles the table with the
// matched representative sequences and, when chimeras exist, maps the
// unmatched reads onto them.
func Build(ctx context.Context, eng *engine.Client, ws *workspace.Workspace, req Request, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if req.Identity <= 0 || req.Identity > 1 {
		return Result{}, services.Wrap(services.ErrConfiguration, StageMap, "validate",
			fmt.Sprintf("identity %s outside (0, 1]", engine.FormatFloat(req.Identity)), nil)
	}
	kind := req.Kind
	if kind == "" {
		kind = "zotus"
	}

	db := ws.Path(kind + ".fasta")
	if err := seqio.WriteFASTA(db, &req.Clean); err != nil {
		return Result{}, services.Wrap(services.ErrIntegrity, StageMap, "write features", "write feature database", err)
	}
	tabPath := ws.Path(kind + "_table.tsv")
	matchedPath := ws.Path("matched_" + kind + ".fasta")
	unmappedPath := ws.Path("unmapped.fasta")

	var cmd *engine.Command
	if eng.Backend() == engine.Vsearch {
		cmd = eng.Command(StageMap, "usearch_global", req.Reads).
			Option("db", db).
			Option("strand", "plus")
	} else {
		cmd = eng.Command(StageMap, "otutab", req.Reads).Option(kind, db)
	}
	cmd.Option("otutabout", tabPath).
		Option("dbmatched", matchedPath).
		Option("notmatched", unmappedPath).
		Float("id", req.Identity).
		Threads().
		Log(ws.Path("otutab.log"))
	if _, err := eng.Run(ctx, cmd); err != nil {
		return Result{}, err
	}

	table, err := ReadTSV(tabPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrIntegrity, StageMap, "read table", "read feature table", err)
	}
	matched, err := seqio.ReadFeatures(matchedPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrIntegrity, StageMap, "read matched", "read matched features", err)
	}
	if dropped := table.DropEmptyRows(); len(dropped) > 0 {
		logger.Debug("dropped empty feature rows", logging.Int("rows", len(dropped)))
		matched = without(matched, dropped)
	}
	features, err := Reconcile(table, matched, req.Clean)
	if err != nil {
		return Result{}, err
	}
	table.EnsureSamples(req.Samples)

	result := Result{
		Table:         table,
		Features:      features,
		Mapped:        fragment(stats.MappedColumn(kind), req.Samples, table),
		ChimeraMapped: fragment(stats.ColumnChimeraMapped, req.Samples, nil),
	}

	if req.Chimeras == nil || req.Chimeras.Len() == 0 {
		logger.Debug("chimera search skipped", logging.String("reason", "no chimeras"))
		return result, nil
	}
	hasUnmapped, err := seqio.HasRecords(unmappedPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrIntegrity, StageChimeraMap, "read unmapped", "read unmapped reads", err)
	}
	if !hasUnmapped {
		logger.Debug("chimera search skipped", logging.String("reason", "every read mapped"))
		return result, nil
	}

	chimeraTable, err := searchChimeras(ctx, req, ws, unmappedPath, eng)
	if err != nil {
		return Result{}, err
	}
	chimeraTable.EnsureSamples(req.Samples)
	result.ChimeraTable = chimeraTable
	result.ChimeraMapped = fragment(stats.ColumnChimeraMapped, req.Samples, chimeraTable)
	logger.Info("chimera search finished",
		logging.Int("chimeras", req.Chimeras.Len()),
		logging.Int64("reads_mapped_to_chimeras", result.ChimeraMapped.Total()),
	)
	return result, nil
}

func searchChimeras(ctx context.Context, req Request, ws *workspace.Workspace, unmappedPath string, fallback *engine.Client) (*Table, error) {
	ceng := req.ChimeraEngine
	if ceng == nil {
		ceng = fallback
	}
	db := ws.Path("chimeras.fasta")
	if err := seqio.WriteFASTA(db, req.Chimeras); err != nil {
		return nil, services.Wrap(services.ErrIntegrity, StageChimeraMap, "write chimeras", "write chimera database", err)
	}
	op := "search_global"
	if ceng.Backend() == engine.Vsearch {
		op = "usearch_global"
	}
	tabPath := ws.Path("chimera_table.tsv")
	cmd := ceng.Command(StageChimeraMap, op, unmappedPath).
		Option("db", db).
		Float("id", 1.0).
		Option("strand", "both").
		Option("otutabout", tabPath).
		Threads()
	if _, err := ceng.Run(ctx, cmd); err != nil {
		return nil, err
	}
	table, err := ReadTSV(tabPath)
	if err != nil {
		return nil, services.Wrap(services.ErrIntegrity, StageChimeraMap, "read table", "read chimera table", err)
	}
	table.DropEmptyRows()
	table.SortByTotal()
	return table, nil
}

// Reconcile orders table rows by descending total (ties keep the order of
// the matched features) and returns the representative sequences in the same
// order. Sequences come from clean when present there. Any feature present
// on only one side is an integrity error.
func Reconcile(table *Table, matched seqio.FeatureSet, clean seqio.FeatureSet) (seqio.FeatureSet, error) {
	rows := make(map[string]struct{}, table.Len())
	for _, id := range table.FeatureIDs() {
		rows[id] = struct{}{}
	}
	matchedIndex := matched.Index()
	if len(matchedIndex) != len(rows) {
		return seqio.FeatureSet{}, mismatch(fmt.Sprintf("%d table rows, %d sequences", len(rows), len(matchedIndex)))
	}
	for id := range rows {
		if _, ok := matchedIndex[id]; !ok {
			return seqio.FeatureSet{}, mismatch("feature " + id + " has no sequence")
		}
	}

	order := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, f := range matched.Features {
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		order = append(order, f.ID)
	}
	totals := make(map[string]int64, len(order))
	for _, id := range order {
		totals[id] = table.RowTotal(id)
	}
	sort.SliceStable(order, func(i, j int) bool { return totals[order[i]] > totals[order[j]] })
	if err := table.Reorder(order); err != nil {
		return seqio.FeatureSet{}, mismatch(err.Error())
	}

	cleanIndex := clean.Index()
	out := seqio.FeatureSet{Features: make([]seqio.Feature, 0, len(order))}
	for _, id := range order {
		f := matched.Features[matchedIndex[id]]
		if pos, ok := cleanIndex[id]; ok {
			f.Sequence = clean.Features[pos].Sequence
		}
		out.Features = append(out.Features, seqio.Feature{ID: id, Sequence: f.Sequence})
	}
	return out, nil
}

func mismatch(detail string) error {
	return services.Wrap(services.ErrIntegrity, StageMap, "reconcile", ErrRepSeqMismatch+": "+detail, nil)
}

func without(set seqio.FeatureSet, ids []string) seqio.FeatureSet {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := seqio.FeatureSet{}
	for _, f := range set.Features {
		if _, ok := drop[f.ID]; !ok {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

func fragment(column string, samples []string, table *Table) *stats.Fragment {
	totals := table.ColumnTotals()
	f := stats.NewFragment(column)
	for _, s := range samples {
		f.Set(s, totals[s])
	}
	return f
}
