// Package samples normalizes declared sample identifiers and pools every
// sample's reads into one relabelled FASTQ.
//
// The engine requires sample identifiers matching ^[A-Za-z0-9_]+$. When any
// declared identifier fails that check, every sample is assigned a surrogate
// S1..Sn in manifest order and an IdentifierMap is returned so the final
// statistics and feature table can be restored to the declared identifiers.
package samples
