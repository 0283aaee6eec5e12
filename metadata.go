package imagedup

import (
	"bytes"
	"time"

	"github.com/bep/imagemeta"
)

// ImageMetadata holds the EXIF fields recorded in the run manifest for
// accepted representatives.
type ImageMetadata struct {
	Artist     string
	Copyright  string
	CapturedAt string // DateTimeOriginal, RFC 3339
}

// wantedEXIFTags maps tag-name → true for every tag the manifest cares about.
var wantedEXIFTags = map[string]bool{
	"Artist":           true,
	"Copyright":        true,
	"DateTimeOriginal": true,
}

// ExtractImageMetadata parses EXIF metadata from raw image bytes.
// Returns nil if the data is empty, cannot be parsed, or carries none of the
// wanted tags. Graceful degradation: never returns an error.
func ExtractImageMetadata(data []byte) *ImageMetadata {
	if len(data) == 0 {
		return nil
	}

	meta := &ImageMetadata{}
	found := false

	err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return wantedEXIFTags[ti.Tag]
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			switch ti.Tag {
			case "Artist":
				if s := tagValueString(ti.Value); s != "" {
					meta.Artist = s
					found = true
				}
			case "Copyright":
				if s := tagValueString(ti.Value); s != "" {
					meta.Copyright = s
					found = true
				}
			case "DateTimeOriginal":
				if s := tagValueTime(ti.Value); s != "" {
					meta.CapturedAt = s
					found = true
				}
			}
			return nil
		},
	})

	if err != nil || !found {
		return nil
	}
	return meta
}

// tagValueString extracts a string from a tag value. EXIF values may arrive
// as string or as a list.
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

// tagValueTime renders a timestamp tag value as RFC 3339. Depending on the
// source file the decoder yields either a time.Time or the raw EXIF string.
func tagValueTime(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.Format(time.RFC3339)
	case string:
		if t, err := time.Parse("2006:01:02 15:04:05", val); err == nil {
			return t.Format(time.RFC3339)
		}
		return val
	default:
		return ""
	}
}
