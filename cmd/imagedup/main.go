// Command imagedup removes visually near-duplicate images from a zip archive.
// It extracts the input archive, fingerprints every image, keeps the first
// representative of each visual-similarity cluster, and writes
// unique_images.zip plus manifest.json into the output directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	imagedup "github.com/anatolykoptev/go-imagedup"
)

func main() {
	var (
		hashSize  = flag.Int("hash-size", imagedup.DefaultHashSize, "fingerprint grid side length")
		threshold = flag.IntP("threshold", "t", imagedup.DefaultThreshold, "max Hamming distance for a duplicate (0 = identical fingerprints only)")
		algorithm = flag.String("algorithm", imagedup.AlgorithmAverage, "fingerprint algorithm: ahash, dhash or phash")
		workers   = flag.IntP("workers", "w", 1, "parallel fingerprint workers")
		maxImage  = flag.Int64("max-image-size", imagedup.DefaultMaxImageSize, "maximum image file size in bytes")
		maxZip    = flag.Int64("max-zip-size", imagedup.DefaultMaxArchiveSize, "maximum zip file size in bytes")
		timeout   = flag.Duration("item-timeout", 0, "per-image processing timeout (0 = unbounded)")
		verbose   = flag.BoolP("verbose", "v", false, "enable debug logging")
	)
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <input.zip> <output-dir>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// The callback may fire from several workers; create the bar exactly once.
	var (
		bar     *progressbar.ProgressBar
		barOnce sync.Once
	)
	// The library reserves 0 for "unset", so map an explicit --threshold 0
	// to exact-match mode.
	cfgThreshold := *threshold
	if cfgThreshold == 0 {
		cfgThreshold = imagedup.ThresholdExact
	}

	cfg := &imagedup.Config{
		HashSize:       *hashSize,
		Threshold:      cfgThreshold,
		Algorithm:      *algorithm,
		Workers:        *workers,
		MaxImageSize:   *maxImage,
		MaxArchiveSize: *maxZip,
		ItemTimeout:    *timeout,
		OnProgress: func(_, total int) {
			barOnce.Do(func() {
				bar = progressbar.Default(int64(total), "fingerprinting")
			})
			_ = bar.Add(1)
		},
	}

	report, err := cfg.DeduplicateArchive(context.Background(), flag.Arg(0), flag.Arg(1))
	if err != nil {
		slog.Error("run failed", "error", err.Error())
		os.Exit(1)
	}

	fmt.Println(report.Summary())
}
