// Package dataset unpacks uploaded zip archives into per-dataset directories.
// The directory name comes from the archive file name without extension, so "catset.zip"
// extracted to "datasets" lands in "datasets/catset".
package dataset

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
)

// errors returned by Extract and Remove, wrapped with details
var (
	ErrArchiveFormat = errors.New("invalid zip archive")
	ErrFilesystem    = errors.New("filesystem error")
	ErrConflict      = errors.New("dataset directory conflict")
)

const defaultConcurrency = 4

// Extractor unpacks dataset archives. Zero value is usable, with no free space check.
type Extractor struct {
	Concurrency int                                // max files written in parallel, default 4
	FreeSpace   func(path string) (uint64, error) // free bytes on the volume of path, nil disables the check
}

// New makes Extractor with free space check enabled
func New(concurrency int) *Extractor {
	return &Extractor{Concurrency: concurrency, FreeSpace: FreeSpace}
}

// PathFor returns dataset directory for the archive without touching the filesystem
func PathFor(archivePath, destDir string) string {
	return filepath.Join(destDir, baseName(archivePath))
}

// baseName is the archive file name without extension. Leading dots are not an extension,
// i.e. ".zip" stays ".zip"
func baseName(archivePath string) string {
	base := filepath.Base(archivePath)
	ext := filepath.Ext(strings.TrimLeft(base, "."))
	return strings.TrimSuffix(base, ext)
}

// Extract unpacks archivePath into destDir/<archive base name> and returns that path.
// Extracting the same archive again is allowed and gives the same file set. A non-empty directory
// with entries the archive doesn't have is rejected with ErrConflict instead of merging into it.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) (string, error) {
	datasetPath := PathFor(archivePath, destDir)

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return "", fmt.Errorf("%w: can't open archive %s: %w", ErrFilesystem, archivePath, err)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrArchiveFormat, archivePath, err)
	}
	defer zr.Close()

	topLevel, required, err := inspect(zr.File)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrArchiveFormat, archivePath, err)
	}

	if err = checkConflict(datasetPath, topLevel); err != nil {
		return "", err
	}

	if err = os.MkdirAll(datasetPath, 0o750); err != nil {
		return "", fmt.Errorf("%w: can't make dataset directory: %w", ErrFilesystem, err)
	}

	if err = e.checkSpace(datasetPath, required); err != nil {
		return "", err
	}

	if err = e.unpack(ctx, zr.File, datasetPath); err != nil {
		return "", err
	}
	log.Printf("[INFO] extracted %d entries from %s to %s", len(zr.File), archivePath, datasetPath)
	return datasetPath, nil
}

// Remove deletes dataset directory with everything inside
func (e *Extractor) Remove(datasetPath string) error {
	if err := os.RemoveAll(datasetPath); err != nil {
		return fmt.Errorf("%w: can't remove %s: %w", ErrFilesystem, datasetPath, err)
	}
	log.Printf("[INFO] removed dataset %s", datasetPath)
	return nil
}

// inspect validates entry names and returns set of top-level names and total uncompressed size
func inspect(files []*zip.File) (topLevel map[string]bool, required uint64, err error) {
	topLevel = make(map[string]bool)
	for _, f := range files {
		if !filepath.IsLocal(f.Name) {
			return nil, 0, fmt.Errorf("entry %q points outside of the dataset directory", f.Name)
		}
		clean := path.Clean(f.Name)
		if clean == "." {
			continue
		}
		topLevel[strings.SplitN(clean, "/", 2)[0]] = true
		required += f.UncompressedSize64
	}
	return topLevel, required, nil
}

// checkConflict fails if datasetPath holds something the archive won't produce
func checkConflict(datasetPath string, topLevel map[string]bool) error {
	entries, err := os.ReadDir(datasetPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: can't read %s: %w", ErrFilesystem, datasetPath, err)
	}
	for _, entry := range entries {
		if !topLevel[entry.Name()] {
			return fmt.Errorf("%w: %s already has %q which is not in the archive", ErrConflict, datasetPath, entry.Name())
		}
	}
	return nil
}

func (e *Extractor) checkSpace(datasetPath string, required uint64) error {
	if e.FreeSpace == nil || required == 0 {
		return nil
	}
	free, err := e.FreeSpace(datasetPath)
	if err != nil {
		log.Printf("[WARN] can't get free space for %s, %v", datasetPath, err)
		return nil
	}
	if required > free {
		return fmt.Errorf("%w: not enough space in %s, need %d bytes, free %d", ErrFilesystem, datasetPath, required, free)
	}
	return nil
}

// unpack makes directories first, then writes files in parallel.
// Entries sharing a target path are written once, with the last one in the archive winning.
func (e *Extractor) unpack(ctx context.Context, files []*zip.File, datasetPath string) error {
	regular := make([]*zip.File, 0, len(files))
	seen := make(map[string]int, len(files)) // target -> index in regular
	for _, f := range files {
		target := filepath.Join(datasetPath, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("%w: can't make directory %s: %w", ErrFilesystem, target, err)
			}
			continue
		}
		if i, ok := seen[target]; ok {
			log.Printf("[DEBUG] duplicate entry %q in archive, later one wins", f.Name)
			regular[i] = f
			continue
		}
		seen[target] = len(regular)
		regular = append(regular, f)
	}

	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var once sync.Once
	var firstErr error
	grp := syncs.NewErrSizedGroup(concurrency, syncs.Context(ctx), syncs.Preemptive)
	for _, f := range regular {
		grp.Go(func() error {
			if err := writeFile(f, filepath.Join(datasetPath, filepath.FromSlash(f.Name))); err != nil {
				once.Do(func() { firstErr = err })
				return err
			}
			return nil
		})
	}
	err := grp.Wait()
	if firstErr != nil {
		return firstErr
	}
	if ctx.Err() != nil {
		return fmt.Errorf("extraction of %s canceled: %w", datasetPath, ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	return nil
}

func writeFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: can't open entry %q: %w", ErrArchiveFormat, f.Name, err)
	}
	defer rc.Close()

	if err = os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("%w: can't make directory for %s: %w", ErrFilesystem, target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640) //nolint:gosec // target validated by inspect
	if err != nil {
		return fmt.Errorf("%w: can't create %s: %w", ErrFilesystem, target, err)
	}

	if _, err = io.Copy(out, entryReader{r: rc, name: f.Name}); err != nil {
		_ = out.Close()
		if errors.Is(err, ErrArchiveFormat) {
			return err
		}
		return fmt.Errorf("%w: can't write %s: %w", ErrFilesystem, target, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("%w: can't close %s: %w", ErrFilesystem, target, err)
	}
	return nil
}

// entryReader marks read failures as archive errors, so io.Copy results can be told apart
type entryReader struct {
	r    io.Reader
	name string
}

func (e entryReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: can't read entry %q: %w", ErrArchiveFormat, e.name, err)
	}
	return n, err
}
