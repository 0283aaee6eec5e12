package imagedup

import (
	"encoding/json"
	"fmt"
	"os"
)

// Report is the outcome of one deduplication run: the ordered verdict
// sequence plus derived counts and the manifest entries written alongside the
// output archive.
type Report struct {
	Verdicts       []Verdict
	UniqueCount    int
	DuplicateCount int
	SkippedCount   int

	entries []ManifestEntry
}

// ManifestEntry is one record of the run manifest. Accepted representatives
// additionally carry their dimensions and any EXIF fields found.
type ManifestEntry struct {
	ID             string `json:"id"`
	Verdict        string `json:"verdict"`
	Representative string `json:"representative,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Fingerprint    string `json:"fingerprint,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Artist         string `json:"artist,omitempty"`
	Copyright      string `json:"copyright,omitempty"`
	CapturedAt     string `json:"captured_at,omitempty"`
}

// add appends a verdict and its manifest entry, keeping the counts current.
func (r *Report) add(v Verdict, out outcome) {
	r.Verdicts = append(r.Verdicts, v)

	e := ManifestEntry{
		ID:             v.ID,
		Verdict:        v.Kind.String(),
		Representative: v.Representative,
		Reason:         string(v.Reason),
	}
	switch v.Kind {
	case VerdictUnique:
		r.UniqueCount++
		e.Fingerprint = out.fp.String()
		e.Width = out.width
		e.Height = out.height
		if out.meta != nil {
			e.Artist = out.meta.Artist
			e.Copyright = out.meta.Copyright
			e.CapturedAt = out.meta.CapturedAt
		}
	case VerdictDuplicate:
		r.DuplicateCount++
		e.Fingerprint = out.fp.String()
	case VerdictSkipped:
		r.SkippedCount++
	}
	r.entries = append(r.entries, e)
}

// UniqueIDs returns the identifiers classified unique, in encounter order.
func (r *Report) UniqueIDs() []string {
	ids := make([]string, 0, r.UniqueCount)
	for _, v := range r.Verdicts {
		if v.Kind == VerdictUnique {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

// Entries returns the manifest entries in encounter order.
func (r *Report) Entries() []ManifestEntry {
	return r.entries
}

// Summary returns the one-line human-readable run summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d unique, %d duplicate, %d skipped", r.UniqueCount, r.DuplicateCount, r.SkippedCount)
}

// WriteManifest writes the manifest entries as indented JSON to path.
func (r *Report) WriteManifest(path string) error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
