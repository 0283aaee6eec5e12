package imagedup

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

// buildZip writes a zip at path with the given entries (name → content).
// Entry order follows the given names slice so tests control layout.
func buildZip(t *testing.T, path string, names []string, contents map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(contents[name]); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("writing zip: %v", err)
	}
}

func TestValidateArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	okZip := filepath.Join(dir, "ok.zip")
	buildZip(t, okZip, []string{"a.png"}, map[string][]byte{"a.png": encodePNG(t, leftDarkImage())})

	bombZip := filepath.Join(dir, "bomb.zip")
	// 200KB of zeros deflates to a few hundred bytes, so the archive passes
	// the size cap while its declared uncompressed total blows the ratio.
	buildZip(t, bombZip, []string{"zeros.bin"}, map[string][]byte{"zeros.bin": make([]byte, 200*1024)})

	notZip := filepath.Join(dir, "not.zip")
	if err := os.WriteFile(notZip, []byte("plain text"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		maxSize int64
		wantErr error
	}{
		{name: "valid archive", path: okZip, maxSize: DefaultMaxArchiveSize, wantErr: nil},
		{name: "archive over size cap", path: okZip, maxSize: 10, wantErr: ErrArchiveTooLarge},
		{name: "zip bomb ratio", path: bombZip, maxSize: 2048, wantErr: ErrSuspiciousArchive},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateArchive(tc.path, tc.maxSize)
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateArchive = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateArchive = %v, want %v", err, tc.wantErr)
			}
		})
	}

	t.Run("not a zip", func(t *testing.T) {
		t.Parallel()
		if err := ValidateArchive(notZip, DefaultMaxArchiveSize); err == nil {
			t.Error("ValidateArchive on non-zip: want error, got nil")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		if err := ValidateArchive(filepath.Join(dir, "missing.zip"), DefaultMaxArchiveSize); err == nil {
			t.Error("ValidateArchive on missing file: want error, got nil")
		}
	})
}

func TestValidateArchiveCorruptEntry(t *testing.T) {
	t.Parallel()

	// CreateRaw lets the test declare a checksum that does not match the
	// stored bytes, the shape of a truncated or bit-rotted archive.
	data := []byte("stored without compression")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "bad.bin",
		Method:             zip.Store,
		CRC32:              0xdeadbeef,
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	})
	if err != nil {
		t.Fatalf("CreateRaw: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("writing entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "corrupt.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("writing zip: %v", err)
	}

	err = ValidateArchive(path, DefaultMaxArchiveSize)
	if !errors.Is(err, ErrCorruptArchive) {
		t.Errorf("ValidateArchive = %v, want ErrCorruptArchive", err)
	}
}

func TestExtractArchiveRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	evil := filepath.Join(dir, "evil.zip")
	buildZip(t, evil, []string{"../escape.txt"}, map[string][]byte{"../escape.txt": []byte("boom")})

	err := ExtractArchive(evil, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrUnsafePath) {
		t.Errorf("ExtractArchive = %v, want ErrUnsafePath", err)
	}
}

func TestExtractArchivePreservesStructure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "in.zip")
	img := encodePNG(t, leftDarkImage())
	buildZip(t, path,
		[]string{"top.png", "nested/deep/inner.png"},
		map[string][]byte{"top.png": img, "nested/deep/inner.png": img})

	dest := filepath.Join(dir, "out")
	if err := ExtractArchive(path, dest); err != nil {
		t.Fatalf("ExtractArchive: %v", err)
	}

	for _, rel := range []string{"top.png", filepath.Join("nested", "deep", "inner.png")} {
		got, err := os.ReadFile(filepath.Join(dest, rel))
		if err != nil {
			t.Fatalf("reading %s: %v", rel, err)
		}
		if !bytes.Equal(got, img) {
			t.Errorf("%s content differs after extraction", rel)
		}
	}
}

func TestDiscoverImages(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	img := encodePNG(t, leftDarkImage())
	files := []struct {
		rel  string
		data []byte
	}{
		{rel: filepath.Join("a", "one.png"), data: img},
		{rel: filepath.Join("b", "two.JPG"), data: img},
		{rel: filepath.Join("c", "three.webp"), data: img},
		{rel: "notes.txt", data: []byte("ignored")},
		{rel: "README", data: []byte("ignored")},
	}
	for _, f := range files {
		path := filepath.Join(root, f.rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, f.data, 0o600); err != nil {
			t.Fatalf("write %s: %v", f.rel, err)
		}
	}

	records, err := DiscoverImages(root)
	if err != nil {
		t.Fatalf("DiscoverImages: %v", err)
	}

	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
		if r.Size != int64(len(img)) {
			t.Errorf("%s size = %d, want %d", r.ID, r.Size, len(img))
		}
	}
	want := []string{"a/one.png", "b/two.JPG", "c/three.webp"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("discovered IDs = %v, want %v", ids, want)
	}
}

func TestDeduplicateArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inZip := filepath.Join(dir, "input.zip")
	buildZip(t, inZip,
		[]string{"img1.png", "img2.jpg", "img3.png", "junk.txt"},
		map[string][]byte{
			"img1.png": encodePNG(t, leftDarkImage()),
			"img2.jpg": encodeJPEG(t, leftDarkImage(), 90),
			"img3.png": encodePNG(t, topDarkImage()),
			"junk.txt": []byte("not an image"),
		})

	outDir := filepath.Join(dir, "out")
	cfg := &Config{}
	report, err := cfg.DeduplicateArchive(context.Background(), inZip, outDir)
	if err != nil {
		t.Fatalf("DeduplicateArchive: %v", err)
	}

	if report.UniqueCount != 2 || report.DuplicateCount != 1 || report.SkippedCount != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/1/0",
			report.UniqueCount, report.DuplicateCount, report.SkippedCount)
	}

	// Output archive holds exactly the accepted representatives.
	zr, err := zip.OpenReader(filepath.Join(outDir, "unique_images.zip"))
	if err != nil {
		t.Fatalf("opening output zip: %v", err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	if want := []string{"img1.png", "img3.png"}; !reflect.DeepEqual(names, want) {
		t.Errorf("output zip entries = %v, want %v", names, want)
	}

	// Manifest covers every input image with its verdict.
	data, err := os.ReadFile(filepath.Join(outDir, "manifest.json"))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("decoding manifest: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("manifest entries = %d, want 3", len(entries))
	}
	if entries[1].ID != "img2.jpg" || entries[1].Verdict != "duplicate" || entries[1].Representative != "img1.png" {
		t.Errorf("manifest[1] = %+v, want duplicate of img1.png", entries[1])
	}
	if entries[0].Fingerprint == "" || entries[0].Width != 100 || entries[0].Height != 100 {
		t.Errorf("manifest[0] = %+v, want fingerprint and 100x100 dimensions", entries[0])
	}
}

func TestDeduplicateArchiveRejectsOversizeInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inZip := filepath.Join(dir, "input.zip")
	buildZip(t, inZip, []string{"a.png"}, map[string][]byte{"a.png": encodePNG(t, leftDarkImage())})

	cfg := &Config{MaxArchiveSize: 16}
	_, err := cfg.DeduplicateArchive(context.Background(), inZip, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrArchiveTooLarge) {
		t.Errorf("DeduplicateArchive = %v, want ErrArchiveTooLarge", err)
	}
	// An aborted run must not produce partial output.
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Errorf("output dir exists after aborted run (stat err = %v)", err)
	}
}

func TestWriteArchiveRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	payload := encodePNG(t, topDarkImage())
	for _, rel := range []string{"x.png", filepath.Join("sub", "y.png")} {
		path := filepath.Join(src, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, payload, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	out := filepath.Join(dir, "out.zip")
	if err := WriteArchive(src, out); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	if want := []string{"sub/y.png", "x.png"}; !reflect.DeepEqual(names, want) {
		t.Errorf("archive entries = %v, want %v", names, want)
	}
}
