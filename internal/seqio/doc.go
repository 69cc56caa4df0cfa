// Package seqio reads and writes the FASTA/FASTQ files exchanged with the
// engine and models ordered feature sets.
//
// Parsing is delegated to github.com/shenwei356/bio; gzip and plain inputs
// are both accepted through xopen. Engine labels such as
// "Uniq1;size=120;amptype=chimera;" are decoded by ParseLabel, and hash
// labels are computed by HashID.
package seqio
