package imagedup

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// bombRatio caps how far an archive's declared uncompressed total may exceed
// the archive size limit before intake refuses it.
const bombRatio = 10

var (
	// ErrArchiveTooLarge reports an input archive exceeding MaxArchiveSize.
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")
	// ErrSuspiciousArchive reports a declared uncompressed total beyond the
	// safety ratio (possible zip bomb).
	ErrSuspiciousArchive = errors.New("archive expands beyond the safety ratio")
	// ErrUnsafePath reports an archive entry that would escape the
	// extraction root.
	ErrUnsafePath = errors.New("archive entry escapes extraction root")
	// ErrCorruptArchive reports an archive entry that failed its integrity
	// check during intake.
	ErrCorruptArchive = errors.New("archive entry failed integrity check")
)

// imageExtensions is the set of file extensions treated as raster images
// during discovery.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

// ValidateArchive checks the zip at path against the size cap and the
// zip-bomb heuristic, then verifies every entry's checksum, all without
// writing anything to disk. A file that is not a valid zip archive, or one
// with a corrupt entry, fails here rather than mid-extraction.
func ValidateArchive(path string, maxSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	if info.Size() > maxSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrArchiveTooLarge, info.Size(), maxSize)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	var total uint64
	for _, f := range r.File {
		total += f.UncompressedSize64
	}
	if total > uint64(maxSize)*bombRatio {
		return fmt.Errorf("%w: %d bytes declared uncompressed", ErrSuspiciousArchive, total)
	}

	// Integrity pass after the bomb check, so a hostile archive is never
	// decompressed: reading an entry to EOF verifies its checksum.
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, f.Name, err)
		}
	}
	return nil
}

// ExtractArchive unpacks the zip at path into destDir. Entries that would
// resolve outside destDir fail with ErrUnsafePath.
func ExtractArchive(path, destDir string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.FromSlash(f.Name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o700)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return dst.Close()
}

// DiscoverImages walks root recursively and returns an ImageRecord for every
// file with a recognized image extension, in lexical walk order. IDs are
// slash-separated paths relative to root.
func DiscoverImages(root string) ([]ImageRecord, error) {
	var records []ImageRecord
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		records = append(records, ImageRecord{
			ID:   filepath.ToSlash(rel),
			Path: path,
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return records, nil
}

// StageUnique copies the files named by ids from extractDir into stageDir,
// preserving their archive-relative paths.
func StageUnique(extractDir, stageDir string, ids []string) error {
	for _, id := range ids {
		src := filepath.Join(extractDir, filepath.FromSlash(id))
		dst := filepath.Join(stageDir, filepath.FromSlash(id))
		if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
			return fmt.Errorf("staging %s: %w", id, err)
		}
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("staging %s: %w", id, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteArchive zips the contents of dir into a new archive at outPath,
// deflate-compressed, entry names relative to dir.
func WriteArchive(dir, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}

	zw := zip.NewWriter(out)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})

	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	return nil
}
