package imagedup

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

var (
	darkGray  = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	lightGray = color.RGBA{R: 235, G: 235, B: 235, A: 255}
)

// solidImage returns a w×h image filled with c.
func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// leftDarkImage returns a 100×100 image with a dark left half and a light
// right half: a fingerprint with stable vertical structure.
func leftDarkImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if x < 50 {
				img.Set(x, y, darkGray)
			} else {
				img.Set(x, y, lightGray)
			}
		}
	}
	return img
}

// topDarkImage returns a 100×100 image with a dark top half and a light
// bottom half. Its fingerprint differs from leftDarkImage in half the bits.
func topDarkImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if y < 50 {
				img.Set(x, y, darkGray)
			} else {
				img.Set(x, y, lightGray)
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

// writeImageFile writes data under dir and returns the matching ImageRecord.
func writeImageFile(t *testing.T, dir, name string, data []byte) ImageRecord {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return ImageRecord{ID: name, Path: path, Size: int64(len(data))}
}

// fpFromOnes builds a bitLen-bit fingerprint with the given bit positions set.
func fpFromOnes(bitLen int, ones ...int) Fingerprint {
	fp := newFingerprint(bitLen)
	for _, i := range ones {
		fp.setBit(i)
	}
	return fp
}
