// Package cluster adapts the engine's feature discovery commands.
//
// Denoiser produces zero-radius OTUs (UNOISE); OTUClusterer produces 97%
// OTUs (UPARSE). Both implement Backend and return an abundance-ordered
// amplicon set in which chimeras are either marked inline or implied by a
// separate survivor set. Recluster collapses denoised features at a lower
// identity for the denoise-then-cluster mode.
package cluster
