package seqio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
)

// LineWidth is the residue wrap width used for FASTA output.
const LineWidth = 80

// EachRecord streams every record of a FASTA/FASTQ file (optionally gzipped)
// to fn. The record is reused between calls; use Clone to keep it. A
// zero-byte file yields no records.
func EachRecord(path string, fn func(*fastx.Record) error) error {
	empty, err := isZeroLength(path)
	if err != nil {
		return err
	}
	if empty {
		return nil
	}

	reader, err := fastx.NewReader(seq.DNAredundant, path, fastx.DefaultIDRegexp)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer reader.Close()

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

// ReadFeatures loads an engine-labelled FASTA file. Feature IDs are the label
// base; size and chimera annotations populate Abundance and Chimera.
func ReadFeatures(path string) (FeatureSet, error) {
	var set FeatureSet
	err := EachRecord(path, func(record *fastx.Record) error {
		label := ParseLabel(string(record.ID))
		set.Features = append(set.Features, Feature{
			ID:        label.Base,
			Sequence:  string(record.Seq.Seq),
			Abundance: label.Size,
			Chimera:   label.Chimera(),
		})
		return nil
	})
	if err != nil {
		return FeatureSet{}, err
	}
	return set, nil
}

// WriteFASTA writes features as FASTA labelled by ID, wrapped at LineWidth.
func WriteFASTA(path string, set *FeatureSet) error {
	out, err := xopen.Wopen(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if set != nil {
		for _, f := range set.Features {
			s, err := seq.NewSeqWithoutValidation(seq.DNAredundant, []byte(f.Sequence))
			if err != nil {
				_ = out.Close()
				return fmt.Errorf("encode feature %s: %w", f.ID, err)
			}
			record := &fastx.Record{ID: []byte(f.ID), Name: []byte(f.ID), Seq: s}
			record.FormatToWriter(out, LineWidth)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// CountReadsBySample tallies records of a pooled read file by the sample part
// of their "<sample>.<n>" label. Unlabelled reads are counted in the total only.
func CountReadsBySample(path string) (map[string]int64, int64, error) {
	counts := make(map[string]int64)
	var total int64
	err := EachRecord(path, func(record *fastx.Record) error {
		total++
		if sample, ok := SampleOfRead(string(record.ID)); ok {
			counts[sample]++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return counts, total, nil
}

// HasRecords reports whether path exists and holds at least one record.
func HasRecords(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	found := false
	errStop := errors.New("stop")
	err := EachRecord(path, func(*fastx.Record) error {
		found = true
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, err
	}
	return found, nil
}

func isZeroLength(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size() == 0, nil
}
