// Package imagedup identifies visually near-duplicate raster images within a
// batch and retains exactly one representative per visual-similarity cluster.
//
// The core pipeline derives a fixed-length perceptual fingerprint from each
// image, measures dissimilarity as Hamming distance, and classifies a stream
// of images in encounter order: the first image of a cluster is accepted as
// its representative, later images within the distance threshold are reported
// as duplicates of it. Archive intake, image discovery, and repacking of the
// accepted set are provided as supporting glue around the core.
package imagedup

import "time"

// Defaults applied by Config.defaults for zero-value fields.
const (
	DefaultHashSize       = 8                  // 8x8 grid, 64-bit fingerprints
	DefaultThreshold      = 5                  // max Hamming distance for a duplicate
	DefaultMaxImageSize   = 50 * 1024 * 1024   // 50MB per image
	DefaultMaxArchiveSize = 1024 * 1024 * 1024 // 1GB per archive
)

// ThresholdExact restricts duplicate matches to identical fingerprints
// (Hamming distance 0). It exists because a literal 0 in Config.Threshold is
// indistinguishable from the unset zero value, which selects
// DefaultThreshold.
const ThresholdExact = -1

// Config holds all options for a deduplication run. The zero value is usable;
// zero fields are filled with the defaults above.
type Config struct {
	// HashSize is the side length of the fingerprint grid. Fingerprints have
	// HashSize² bits, so all images in one run are mutually comparable.
	HashSize int

	// Threshold is the maximum Hamming distance at which two fingerprints are
	// considered near-duplicates. 0 selects DefaultThreshold; use
	// ThresholdExact for identical-fingerprint matching only.
	Threshold int

	// Algorithm selects the fingerprint function: AlgorithmAverage (default),
	// AlgorithmDifference, or AlgorithmPerception.
	Algorithm string

	// MaxImageSize is the per-image byte cap; larger files are skipped before
	// decoding.
	MaxImageSize int64

	// MaxArchiveSize is the input archive byte cap, also the basis of the
	// zip-bomb ratio check.
	MaxArchiveSize int64

	// Workers bounds concurrent fingerprint computation. 1 (the default) is
	// fully sequential. Classification is always serialized in encounter
	// order, so the verdict sequence is identical for any worker count.
	Workers int

	// ItemTimeout bounds decode+fingerprint time per image; an item exceeding
	// it is skipped and the run continues. 0 disables the bound.
	ItemTimeout time.Duration

	// OnProgress, if set, is called after each image finishes fingerprinting.
	// It may be called from multiple goroutines when Workers > 1.
	OnProgress func(processed, total int)
}

// defaults fills zero-value fields with sensible defaults.
func (cfg *Config) defaults() {
	if cfg.HashSize <= 0 {
		cfg.HashSize = DefaultHashSize
	}
	switch {
	case cfg.Threshold == ThresholdExact:
		cfg.Threshold = 0
	case cfg.Threshold <= 0:
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmAverage
	}
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = DefaultMaxImageSize
	}
	if cfg.MaxArchiveSize <= 0 {
		cfg.MaxArchiveSize = DefaultMaxArchiveSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
}
