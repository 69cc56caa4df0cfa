package testsupport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/shenwei356/bio/seqio/fastx"

	"ampliconflow/internal/engine"
	"ampliconflow/internal/seqio"
)

// FakeEngine is an in-process stand-in for usearch and vsearch. It implements
// the subset of commands the pipeline issues with exact-match semantics:
// denoising keeps every unique at or above the size threshold and read
// mapping only matches identical sequences.
type FakeEngine struct {
	// Chimeras lists sequences the denoiser or UPARSE reports as chimeric.
	Chimeras []string
	// FailOn makes the named operation exit with the given status.
	FailOn map[string]int
	// Silent suppresses the dereplication summary line.
	Silent bool

	mu    sync.Mutex
	calls [][]string
}

var _ engine.Executor = (*FakeEngine)(nil)

// Calls returns a copy of every argument list received.
func (f *FakeEngine) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// Ops returns the operation of every call in order.
func (f *FakeEngine) Ops() []string {
	var ops []string
	for _, c := range f.Calls() {
		if len(c) > 0 {
			ops = append(ops, strings.TrimLeft(c[0], "-"))
		}
	}
	return ops
}

var fakeSwitches = map[string]bool{
	"sizeout":     true,
	"relabel_md5": true,
	"usersort":    true,
}

type fakeCall struct {
	op    string
	input string
	opts  map[string]string
	vs    bool
}

func (c fakeCall) has(name string) bool {
	_, ok := c.opts[name]
	return ok
}

func (c fakeCall) intOpt(name string, fallback int) int {
	if v, ok := c.opts[name]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (c fakeCall) floatOpt(name string, fallback float64) float64 {
	if v, ok := c.opts[name]; ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func parseFakeCall(args []string) (fakeCall, error) {
	if len(args) < 2 {
		return fakeCall{}, errors.New("missing operation or input")
	}
	call := fakeCall{
		op:    strings.TrimLeft(args[0], "-"),
		input: args[1],
		opts:  make(map[string]string),
		vs:    strings.HasPrefix(args[0], "--"),
	}
	for i := 2; i < len(args); i++ {
		name := strings.TrimLeft(args[i], "-")
		if fakeSwitches[name] {
			call.opts[name] = ""
			continue
		}
		if i+1 >= len(args) {
			return fakeCall{}, fmt.Errorf("option %s has no value", name)
		}
		call.opts[name] = args[i+1]
		i++
	}
	return call, nil
}

// Run implements engine.Executor.
func (f *FakeEngine) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	call, err := parseFakeCall(args)
	if err != nil {
		onStderr("fatal: " + err.Error())
		return &engine.ExitError{Code: 1, Err: err}
	}
	if code, ok := f.FailOn[call.op]; ok {
		onStderr("---Fatal error---")
		onStderr(call.op + " failed")
		return &engine.ExitError{Code: code, Err: fmt.Errorf("%s failed", call.op)}
	}

	var lines []string
	switch call.op {
	case "fastq_filter":
		lines, err = f.filter(call)
	case "fastx_uniques":
		lines, err = f.uniques(call)
	case "unoise3", "cluster_unoise":
		lines, err = f.denoise(call)
	case "uchime3_denovo":
		lines, err = f.uchime(call)
	case "cluster_otus":
		lines, err = f.uparse(call)
	case "cluster_smallmem":
		lines, err = f.copyCentroids(call)
	case "otutab", "usearch_global", "search_global":
		lines, err = f.mapReads(call)
	default:
		err = fmt.Errorf("unsupported operation %s", call.op)
	}
	if err != nil {
		onStderr("fatal: " + err.Error())
		return &engine.ExitError{Code: 1, Err: err}
	}
	for _, line := range lines {
		onStderr(line)
	}
	if logPath, ok := call.opts["log"]; ok {
		if err := os.WriteFile(logPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
			return &engine.ExitError{Code: 1, Err: err}
		}
	}
	return nil
}

type fakeRecord struct {
	label string
	seq   string
	qual  []byte
}

func readAll(path string) ([]fakeRecord, error) {
	var out []fakeRecord
	err := seqio.EachRecord(path, func(r *fastx.Record) error {
		out = append(out, fakeRecord{
			label: string(r.ID),
			seq:   string(r.Seq.Seq),
			qual:  append([]byte(nil), r.Seq.Qual...),
		})
		return nil
	})
	return out, err
}

func writeRecords(path string, records []fakeRecord) error {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, ">%s\n%s\n", r.label, r.seq)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func (f *FakeEngine) filter(call fakeCall) ([]string, error) {
	out, ok := call.opts["fastaout"]
	if !ok {
		return nil, errors.New("fastaout required")
	}
	reads, err := readAll(call.input)
	if err != nil {
		return nil, err
	}
	offset := call.intOpt("fastq_ascii", 33)
	strip := call.intOpt("fastq_stripleft", 0)
	trunc := call.intOpt("fastq_trunclen", 0)
	minLen := call.intOpt("fastq_minlen", 0)
	maxNs := call.intOpt("fastq_maxns", -1)
	maxEE := call.floatOpt("fastq_maxee", math.Inf(1))

	var kept []fakeRecord
	for _, r := range reads {
		seq, qual := r.seq, r.qual
		if strip > 0 {
			if strip >= len(seq) {
				continue
			}
			seq, qual = seq[strip:], qual[strip:]
		}
		if trunc > 0 {
			if len(seq) < trunc {
				continue
			}
			seq, qual = seq[:trunc], qual[:trunc]
		}
		if len(seq) < minLen {
			continue
		}
		if maxNs >= 0 && strings.Count(strings.ToUpper(seq), "N") > maxNs {
			continue
		}
		ee := 0.0
		for _, q := range qual {
			ee += math.Pow(10, -float64(int(q)-offset)/10)
		}
		if ee > maxEE {
			continue
		}
		kept = append(kept, fakeRecord{label: r.label, seq: seq})
	}
	if err := writeRecords(out, kept); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("%d reads, %d filtered", len(reads), len(kept))}, nil
}

type unique struct {
	seq   string
	size  int
	first int
}

func (f *FakeEngine) uniques(call fakeCall) ([]string, error) {
	out, ok := call.opts["fastaout"]
	if !ok {
		return nil, errors.New("fastaout required")
	}
	reads, err := readAll(call.input)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var uniques []unique
	for i, r := range reads {
		key := strings.ToUpper(r.seq)
		if pos, ok := index[key]; ok {
			uniques[pos].size++
			continue
		}
		index[key] = len(uniques)
		uniques = append(uniques, unique{seq: key, size: 1, first: i})
	}
	sort.SliceStable(uniques, func(i, j int) bool { return uniques[i].size > uniques[j].size })

	singletons := 0
	minSize := call.intOpt("minuniquesize", 1)
	var records []fakeRecord
	for _, u := range uniques {
		if u.size == 1 {
			singletons++
		}
		if u.size < minSize {
			continue
		}
		label := fmt.Sprintf("Uniq%d", len(records)+1)
		if call.has("sizeout") {
			label += fmt.Sprintf(";size=%d", u.size)
		}
		records = append(records, fakeRecord{label: label, seq: u.seq})
	}
	if err := writeRecords(out, records); err != nil {
		return nil, err
	}
	if f.Silent || call.vs {
		return []string{fmt.Sprintf("%d unique sequences", len(uniques))}, nil
	}
	return []string{fmt.Sprintf("%s seqs, %s uniques, %s singletons (%.1f%%)",
		thousands(len(reads)), thousands(len(uniques)), thousands(singletons),
		100*float64(singletons)/math.Max(1, float64(len(uniques))))}, nil
}

func (f *FakeEngine) isChimera(seq string) bool {
	for _, c := range f.Chimeras {
		if strings.EqualFold(c, seq) {
			return true
		}
	}
	return false
}

func (f *FakeEngine) denoise(call fakeCall) ([]string, error) {
	out := call.opts["ampout"]
	if call.op == "cluster_unoise" {
		out = call.opts["centroids"]
	}
	if out == "" {
		return nil, errors.New("output path required")
	}
	uniques, err := readAll(call.input)
	if err != nil {
		return nil, err
	}
	minSize := call.intOpt("minsize", 8)
	var records []fakeRecord
	chimeras := 0
	for _, u := range uniques {
		label := seqio.ParseLabel(u.label)
		if label.Size < int64(minSize) {
			continue
		}
		id := fmt.Sprintf("Uniq%d;size=%d", len(records)+1, label.Size)
		if call.op == "unoise3" {
			if f.isChimera(u.seq) {
				id += ";amptype=chimera"
				chimeras++
			} else {
				id += ";amptype=otu"
			}
		}
		records = append(records, fakeRecord{label: id, seq: u.seq})
	}
	if err := writeRecords(out, records); err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("%d amplicons", len(records)),
		fmt.Sprintf("%d good, %d chimeras", len(records)-chimeras, chimeras),
	}, nil
}

func (f *FakeEngine) uchime(call fakeCall) ([]string, error) {
	out, ok := call.opts["nonchimeras"]
	if !ok {
		return nil, errors.New("nonchimeras required")
	}
	amps, err := readAll(call.input)
	if err != nil {
		return nil, err
	}
	var kept []fakeRecord
	for _, a := range amps {
		if f.isChimera(a.seq) {
			continue
		}
		label := a.label
		if call.has("relabel_md5") {
			label = seqio.HashID(a.seq)
		}
		kept = append(kept, fakeRecord{label: label, seq: a.seq})
	}
	return nil, writeRecords(out, kept)
}

func (f *FakeEngine) uparse(call fakeCall) ([]string, error) {
	otusPath, ok := call.opts["otus"]
	if !ok {
		return nil, errors.New("otus required")
	}
	tabPath, ok := call.opts["uparseout"]
	if !ok {
		return nil, errors.New("uparseout required")
	}
	uniques, err := readAll(call.input)
	if err != nil {
		return nil, err
	}
	minSize := call.intOpt("minsize", 2)
	var otus []fakeRecord
	var tab strings.Builder
	for _, u := range uniques {
		label := seqio.ParseLabel(u.label)
		if label.Size < int64(minSize) {
			continue
		}
		if f.isChimera(u.seq) {
			fmt.Fprintf(&tab, "%s\tnoisy_chimera\t\t\t\n", u.label)
			continue
		}
		fmt.Fprintf(&tab, "%s\totu\t100.0\t\tOTU%d\n", u.label, len(otus)+1)
		otus = append(otus, fakeRecord{label: fmt.Sprintf("Otu%d;size=%d", len(otus)+1, label.Size), seq: u.seq})
	}
	if err := writeRecords(otusPath, otus); err != nil {
		return nil, err
	}
	if err := os.WriteFile(tabPath, []byte(tab.String()), 0o644); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("%d OTUs", len(otus))}, nil
}

func (f *FakeEngine) copyCentroids(call fakeCall) ([]string, error) {
	out, ok := call.opts["centroids"]
	if !ok {
		return nil, errors.New("centroids required")
	}
	records, err := readAll(call.input)
	if err != nil {
		return nil, err
	}
	return nil, writeRecords(out, records)
}

func (f *FakeEngine) mapReads(call fakeCall) ([]string, error) {
	dbPath := call.opts["db"]
	for _, key := range []string{"zotus", "otus"} {
		if v, ok := call.opts[key]; ok {
			dbPath = v
		}
	}
	if dbPath == "" {
		return nil, errors.New("database required")
	}
	tabPath, ok := call.opts["otutabout"]
	if !ok {
		return nil, errors.New("otutabout required")
	}
	db, err := readAll(dbPath)
	if err != nil {
		return nil, err
	}
	reads, err := readAll(call.input)
	if err != nil {
		return nil, err
	}
	bothStrands := call.opts["strand"] == "both"

	dbIndex := make(map[string]int)
	for i, d := range db {
		key := strings.ToUpper(d.seq)
		if _, ok := dbIndex[key]; !ok {
			dbIndex[key] = i
		}
	}
	var samples []string
	seenSample := make(map[string]bool)
	counts := make([]map[string]int, len(db))
	var unmatched []fakeRecord
	for _, r := range reads {
		sample, ok := seqio.SampleOfRead(r.label)
		if !ok {
			continue
		}
		if !seenSample[sample] {
			seenSample[sample] = true
			samples = append(samples, sample)
		}
		key := strings.ToUpper(r.seq)
		pos, hit := dbIndex[key]
		if !hit && bothStrands {
			pos, hit = dbIndex[reverseComplement(key)]
		}
		if !hit {
			unmatched = append(unmatched, fakeRecord{label: r.label, seq: r.seq})
			continue
		}
		if counts[pos] == nil {
			counts[pos] = make(map[string]int)
		}
		counts[pos][sample]++
	}

	var tab strings.Builder
	tab.WriteString("#OTU ID")
	for _, s := range samples {
		tab.WriteString("\t" + s)
	}
	tab.WriteString("\n")
	var matched []fakeRecord
	for i, d := range db {
		if counts[i] == nil {
			continue
		}
		base := seqio.ParseLabel(d.label).Base
		tab.WriteString(base)
		total := 0
		for _, s := range samples {
			tab.WriteString("\t" + strconv.Itoa(counts[i][s]))
			total += counts[i][s]
		}
		tab.WriteString("\n")
		matched = append(matched, fakeRecord{label: fmt.Sprintf("%s;size=%d", base, total), seq: d.seq})
	}
	if err := os.WriteFile(tabPath, []byte(tab.String()), 0o644); err != nil {
		return nil, err
	}
	if path, ok := call.opts["dbmatched"]; ok {
		if err := writeRecords(path, matched); err != nil {
			return nil, err
		}
	}
	if path, ok := call.opts["notmatched"]; ok {
		if err := writeRecords(path, unmatched); err != nil {
			return nil, err
		}
	}
	return []string{fmt.Sprintf("%d / %d mapped", len(reads)-len(unmatched), len(reads))}, nil
}

func reverseComplement(seq string) string {
	out := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		var c byte
		switch seq[len(seq)-1-i] {
		case 'A':
			c = 'T'
		case 'T':
			c = 'A'
		case 'C':
			c = 'G'
		case 'G':
			c = 'C'
		default:
			c = 'N'
		}
		out[i] = c
	}
	return string(out)
}

func thousands(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
