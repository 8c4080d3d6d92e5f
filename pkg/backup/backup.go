// Package backup keeps the original contents of files touched by a migration
// run and stores them as a compressed tar archive that can be restored later.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/aar10n/portpatch/pkg/logger"
)

// Compression identifies the codec wrapping the tar stream.
type Compression int

const (
	None Compression = iota
	Gzip
	Xz
	Zstd
)

// CompressionFor chooses the codec from the archive file name.
func CompressionFor(path string) (Compression, error) {
	switch {
	case strings.HasSuffix(path, ".tar.zst"), strings.HasSuffix(path, ".tar.zstd"), strings.HasSuffix(path, ".tzst"):
		return Zstd, nil
	case strings.HasSuffix(path, ".tar.xz"), strings.HasSuffix(path, ".txz"):
		return Xz, nil
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return Gzip, nil
	case strings.HasSuffix(path, ".tar"):
		return None, nil
	}
	return None, fmt.Errorf("unsupported backup archive extension: %s", filepath.Base(path))
}

type entry struct {
	data []byte
	mode os.FileMode
}

// Archive collects original file contents keyed by their path relative to a
// root directory. Only the first recording of a path is kept.
type Archive struct {
	root    string
	mu      sync.Mutex
	entries map[string]entry
}

// New returns an empty archive for files below root.
func New(root string) *Archive {
	return &Archive{
		root:    root,
		entries: make(map[string]entry),
	}
}

// Record remembers data as the original contents of path.
func (a *Archive) Record(path string, data []byte, mode os.FileMode) error {
	rel, err := filepath.Rel(a.root, path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s against %s: %w", path, a.root, err)
	}
	rel = filepath.ToSlash(rel)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("%s is outside of %s", path, a.root)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.entries[rel]; ok {
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.entries[rel] = entry{data: buf, mode: mode.Perm()}
	return nil
}

// Len returns the number of recorded files.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Paths returns the recorded relative paths in sorted order.
func (a *Archive) Paths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	paths := make([]string, 0, len(a.entries))
	for p := range a.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Write stores every recorded file in a tar archive at dest, compressed
// according to the extension of dest.
func (a *Archive) Write(dest string) (err error) {
	compression, err := CompressionFor(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create backup archive: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close backup archive: %w", cerr)
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	w, err := compressWriter(file, compression)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)
	now := time.Now()
	for _, rel := range a.Paths() {
		a.mu.Lock()
		e := a.entries[rel]
		a.mu.Unlock()

		header := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     rel,
			Mode:     int64(e.mode),
			Size:     int64(len(e.data)),
			ModTime:  now,
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", rel, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", rel, err)
		}
		logger.Debug("Backed up %s (%d bytes)", rel, len(e.data))
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish compressed stream: %w", err)
	}
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func compressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Xz:
		xzWriter, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xzWriter, nil
	case Zstd:
		zstdWriter, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zstdWriter, nil
	}
	return nopWriteCloser{w}, nil
}

// Restore extracts the archive at src over root and returns the restored
// relative paths.
func Restore(src, root string) ([]string, error) {
	compression, err := CompressionFor(src)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup archive: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	switch compression {
	case Gzip:
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	case Xz:
		xzReader, err := xz.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		reader = xzReader
	case Zstd:
		zstdReader, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zstdReader.Close()
		reader = zstdReader
	}

	var restored []string
	tarReader := tar.NewReader(reader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, fmt.Errorf("failed to read tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			logger.Debug("Skipping non-regular entry %s", header.Name)
			continue
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !filepath.IsLocal(name) {
			return restored, fmt.Errorf("refusing to restore %s outside of %s", header.Name, root)
		}

		target := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return restored, fmt.Errorf("failed to create parent directory: %w", err)
		}
		outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode).Perm())
		if err != nil {
			return restored, fmt.Errorf("failed to create file: %w", err)
		}
		if _, err := io.Copy(outFile, tarReader); err != nil {
			outFile.Close()
			return restored, fmt.Errorf("failed to write file: %w", err)
		}
		if err := outFile.Close(); err != nil {
			return restored, fmt.Errorf("failed to close %s: %w", target, err)
		}
		restored = append(restored, name)
	}

	return restored, nil
}
