package imagedup

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/bits"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"
)

// Fingerprint algorithms accepted by Config.Algorithm.
const (
	AlgorithmAverage    = "ahash"
	AlgorithmDifference = "dhash"
	AlgorithmPerception = "phash"
)

// ErrLengthMismatch reports a comparison between fingerprints of different
// bit lengths. This only happens when fingerprints from different grid sizes
// are mixed within one run, which is a configuration bug, so callers treat it
// as fatal rather than skipping the item.
var ErrLengthMismatch = errors.New("fingerprint length mismatch")

// Fingerprint is a fixed-length bit vector summarizing an image's coarse
// luminance structure. Bit i corresponds to grid pixel i in row-major order.
// Immutable once produced; only equal-length fingerprints are comparable.
type Fingerprint struct {
	words []uint64
	bits  int
}

func newFingerprint(bitLen int) Fingerprint {
	return Fingerprint{words: make([]uint64, (bitLen+63)/64), bits: bitLen}
}

// Len returns the number of bits in the fingerprint.
func (f Fingerprint) Len() int { return f.bits }

// Bit returns bit i (0 or 1) in row-major pixel order.
func (f Fingerprint) Bit(i int) uint {
	return uint(f.words[i/64]>>(uint(i)%64)) & 1
}

func (f *Fingerprint) setBit(i int) {
	f.words[i/64] |= 1 << (uint(i) % 64)
}

// Distance returns the Hamming distance to other: the count of bit positions
// where the two fingerprints differ. Symmetric, zero iff the fingerprints are
// equal, bounded by the bit length. Fails with ErrLengthMismatch when the
// lengths differ.
func (f Fingerprint) Distance(other Fingerprint) (int, error) {
	if f.bits != other.bits {
		return 0, fmt.Errorf("%w: %d vs %d bits", ErrLengthMismatch, f.bits, other.bits)
	}
	d := 0
	for i := range f.words {
		d += bits.OnesCount64(f.words[i] ^ other.words[i])
	}
	return d, nil
}

// String renders the fingerprint as hex, 16 digits per 64-bit word.
func (f Fingerprint) String() string {
	var sb strings.Builder
	for i := len(f.words) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%016x", f.words[i])
	}
	return sb.String()
}

// AverageHash computes the average-hash fingerprint of img on a
// hashSize×hashSize grid: convert to grayscale, resample with Lanczos,
// take the floating-point mean of the grid intensities, and emit bit 1 for
// every pixel at or above the mean. The result encodes luminance structure
// relative to the image's own mean, which makes it stable under JPEG
// recompression and minor color shifts. Pure function of the pixel data.
func AverageHash(img image.Image, hashSize int) Fingerprint {
	scaled := resize.Resize(uint(hashSize), uint(hashSize), img, resize.Lanczos3)

	b := scaled.Bounds()
	lum := make([]float64, 0, hashSize*hashSize)
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(scaled.At(x, y)).(color.Gray)
			v := float64(g.Y)
			lum = append(lum, v)
			sum += v
		}
	}

	// Integer division here would bias the threshold.
	mean := sum / float64(len(lum))
	fp := newFingerprint(len(lum))
	for i, v := range lum {
		if v >= mean {
			fp.setBit(i)
		}
	}
	return fp
}

// fingerprintImage derives a fingerprint from img using the configured
// algorithm. The dhash and phash variants delegate to goimagehash and repack
// the result into the run's Fingerprint representation so the classifier and
// threshold are algorithm-agnostic.
func (cfg *Config) fingerprintImage(img image.Image) (Fingerprint, error) {
	switch cfg.Algorithm {
	case "", AlgorithmAverage:
		return AverageHash(img, cfg.HashSize), nil
	case AlgorithmDifference:
		h, err := goimagehash.ExtDifferenceHash(img, cfg.HashSize, cfg.HashSize)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("difference hash: %w", err)
		}
		return fromExtImageHash(h, cfg.HashSize*cfg.HashSize), nil
	case AlgorithmPerception:
		h, err := goimagehash.ExtPerceptionHash(img, cfg.HashSize, cfg.HashSize)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("perception hash: %w", err)
		}
		return fromExtImageHash(h, cfg.HashSize*cfg.HashSize), nil
	default:
		return Fingerprint{}, fmt.Errorf("unknown fingerprint algorithm %q", cfg.Algorithm)
	}
}

func fromExtImageHash(h *goimagehash.ExtImageHash, bitLen int) Fingerprint {
	fp := newFingerprint(bitLen)
	copy(fp.words, h.GetHash())
	return fp
}
