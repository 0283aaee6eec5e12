package imagedup

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ImageRecord is one input item: an identifier (its archive-relative path),
// the on-disk location of the decoded-from bytes, and the byte size already
// established by discovery.
type ImageRecord struct {
	ID   string
	Path string
	Size int64
}

// outcome is the per-record result of the fingerprint stage, consumed by the
// serialized classification stage.
type outcome struct {
	fp            Fingerprint
	ok            bool
	reason        SkipReason
	width, height int
	meta          *ImageMetadata

	// err marks a structural failure: the image decoded but the extractor
	// itself failed, which means a configuration problem. It aborts the run
	// instead of becoming a skip.
	err error
}

// Run fingerprints and classifies records in encounter order and returns the
// run report: the ordered verdict sequence plus unique/duplicate/skipped
// counts. Per-item failures (corrupt image, oversize, timeout) become skipped
// verdicts and never abort the run; only a structural error — an unknown
// algorithm, a fingerprint length mismatch, or context cancellation — returns
// an error, and then no partial report is produced.
func (cfg *Config) Run(ctx context.Context, records []ImageRecord) (*Report, error) {
	cfg.defaults()
	switch cfg.Algorithm {
	case AlgorithmAverage, AlgorithmDifference:
	case AlgorithmPerception:
		// goimagehash's DCT path rejects any grid whose bit count is not a
		// power of two; catching it here keeps a bad config from being
		// misreported as a decode failure on every single image.
		if bits.OnesCount(uint(cfg.HashSize)) != 1 {
			return nil, fmt.Errorf("algorithm %s requires a power-of-two hash size, got %d",
				cfg.Algorithm, cfg.HashSize)
		}
	default:
		return nil, fmt.Errorf("unknown fingerprint algorithm %q", cfg.Algorithm)
	}

	outcomes, err := cfg.fingerprintAll(ctx, records)
	if err != nil {
		return nil, err
	}

	// Classification mutates the accepted set and is order-sensitive, so it
	// runs strictly in encounter order regardless of the worker count above.
	cls := NewClassifier(cfg.Threshold)
	report := &Report{}
	for i, rec := range records {
		out := outcomes[i]
		if !out.ok {
			slog.Debug("imagedup: skipped", "id", rec.ID, "reason", string(out.reason))
			report.add(Verdict{ID: rec.ID, Kind: VerdictSkipped, Reason: out.reason}, out)
			continue
		}
		v, err := cls.Classify(out.fp, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("classifying %s: %w", rec.ID, err)
		}
		report.add(v, out)
	}
	return report, nil
}

// fingerprintAll runs the fingerprint stage for every record, sequentially or
// with a bounded worker pool. Results are written by index so downstream
// classification sees them in encounter order either way.
func (cfg *Config) fingerprintAll(ctx context.Context, records []ImageRecord) ([]outcome, error) {
	outcomes := make([]outcome, len(records))

	if cfg.Workers <= 1 {
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out := cfg.fingerprintRecord(ctx, rec)
			if out.err != nil {
				return nil, out.err
			}
			outcomes[i] = out
			cfg.progress(i+1, len(records))
		}
		return outcomes, nil
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := cfg.fingerprintRecord(gctx, rec)
			if out.err != nil {
				return out.err
			}
			outcomes[i] = out
			cfg.progress(int(done.Add(1)), len(records))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (cfg *Config) progress(processed, total int) {
	if cfg.OnProgress != nil {
		cfg.OnProgress(processed, total)
	}
}

// fingerprintRecord applies the size cap, reads and decodes the file, and
// derives its fingerprint, honoring the per-item timeout when configured.
func (cfg *Config) fingerprintRecord(ctx context.Context, rec ImageRecord) outcome {
	if cfg.MaxImageSize > 0 && rec.Size > cfg.MaxImageSize {
		slog.Debug("imagedup: file too large", "id", rec.ID, "size", rec.Size, "max", cfg.MaxImageSize)
		return outcome{reason: SkipOversize}
	}

	if cfg.ItemTimeout <= 0 {
		return cfg.fingerprintFile(rec)
	}

	ch := make(chan outcome, 1)
	go func() { ch <- cfg.fingerprintFile(rec) }()

	t := time.NewTimer(cfg.ItemTimeout)
	defer t.Stop()
	select {
	case out := <-ch:
		return out
	case <-t.C:
		slog.Debug("imagedup: item timeout", "id", rec.ID, "timeout", cfg.ItemTimeout)
		return outcome{reason: SkipTimeout}
	case <-ctx.Done():
		return outcome{reason: SkipTimeout}
	}
}

func (cfg *Config) fingerprintFile(rec ImageRecord) outcome {
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		slog.Debug("imagedup: read failed", "id", rec.ID, "error", err.Error())
		return outcome{reason: SkipDecode}
	}

	img, err := DecodeImage(data)
	if err != nil {
		slog.Debug("imagedup: decode failed", "id", rec.ID, "error", err.Error())
		return outcome{reason: SkipDecode}
	}

	fp, err := cfg.fingerprintImage(img)
	if err != nil {
		// The image decoded fine, so the extractor itself failed. That is
		// deterministic for a given configuration and would repeat on every
		// input, which is fatal to the run rather than a per-item skip.
		return outcome{err: fmt.Errorf("fingerprinting %s: %w", rec.ID, err)}
	}

	b := img.Bounds()
	return outcome{
		fp:     fp,
		ok:     true,
		width:  b.Dx(),
		height: b.Dy(),
		meta:   ExtractImageMetadata(data),
	}
}

// DeduplicateArchive runs the full pipeline against the zip at archivePath:
// validate, extract into a run-scoped workspace, fingerprint and classify
// every image found, stage the accepted representatives, and write
// unique_images.zip plus manifest.json into outDir. The workspace is released
// on every return path; an aborted run produces no output files.
func (cfg *Config) DeduplicateArchive(ctx context.Context, archivePath, outDir string) (*Report, error) {
	cfg.defaults()

	if err := ValidateArchive(archivePath, cfg.MaxArchiveSize); err != nil {
		return nil, err
	}

	ws, err := NewWorkspace()
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	if err := ExtractArchive(archivePath, ws.ExtractDir); err != nil {
		return nil, err
	}

	records, err := DiscoverImages(ws.ExtractDir)
	if err != nil {
		return nil, err
	}
	slog.Debug("imagedup: discovered images", "count", len(records))

	report, err := cfg.Run(ctx, records)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	if err := StageUnique(ws.ExtractDir, ws.UniqueDir, report.UniqueIDs()); err != nil {
		return nil, err
	}
	if err := WriteArchive(ws.UniqueDir, filepath.Join(outDir, "unique_images.zip")); err != nil {
		return nil, err
	}
	if err := report.WriteManifest(filepath.Join(outDir, "manifest.json")); err != nil {
		return nil, err
	}
	return report, nil
}
