package imagedup

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeImage decodes raw image bytes into pixel data. Every format accepted
// by the discovery walk is registered here, so an extension that passes
// discovery either decodes or yields a decode failure the orchestrator turns
// into a skip.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
