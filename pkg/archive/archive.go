// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrUnsafePath is returned when an archive member would escape the extraction root.
var ErrUnsafePath = errors.New("archive member escapes destination")

// ErrMemberNotFound is returned by ReadFile when the archive has no such member.
var ErrMemberNotFound = errors.New("archive member not found")

// maxMemberSize bounds a single extracted file to protect against decompression bombs.
const maxMemberSize = 4 << 30

// SkipFunc decides whether a path (relative to the packed root, slash separated) is left out.
type SkipFunc func(rel string, d fs.DirEntry) bool

// SourceSkip leaves out VCS and IDE state, build output directories and user-local files.
func SourceSkip(rel string, d fs.DirEntry) bool {
	name := d.Name()
	if d.IsDir() {
		switch name {
		case ".git", ".idea":
			return true
		}
		return strings.Contains(name, "build") || strings.Contains(name, "target")
	}
	return strings.HasSuffix(name, ".user")
}

// Pack writes srcDir into a gzip-compressed tarball at target using SourceSkip.
// The target itself is never included even when it lives inside srcDir.
func Pack(srcDir, target string) error {
	return pack(srcDir, target, SourceSkip)
}

// PackAll writes every file of srcDir into target.
func PackAll(srcDir, target string) error {
	return pack(srcDir, target, nil)
}

func pack(srcDir, target string, skip SkipFunc) (err error) {
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(absTarget), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	out, err := os.Create(absTarget)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(absTarget)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, relErr := filepath.Rel(srcDir, path)
		if relErr != nil {
			return fmt.Errorf("failed to get relative path: %w", relErr)
		}
		if rel == "." {
			return nil
		}

		if abs, _ := filepath.Abs(path); abs == absTarget {
			return nil
		}

		rel = filepath.ToSlash(rel)
		if skip != nil && skip(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed; they are not part of a portable artifact.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		return addEntry(tw, path, rel, d)
	})
	if walkErr != nil {
		return fmt.Errorf("failed to pack %s: %w", srcDir, walkErr)
	}

	if err = tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize tar stream: %w", err)
	}
	if err = gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize gzip stream: %w", err)
	}
	return nil
}

func addEntry(tw *tar.Writer, path, rel string, d fs.DirEntry) (err error) {
	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create header for %s: %w", rel, err)
	}
	header.Name = rel
	if d.IsDir() {
		header.Name += "/"
	}

	if err = tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", rel, err)
	}
	if d.IsDir() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err = io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

// Unpack extracts a gzip-compressed tarball into dest, creating it if needed.
// Existing files are overwritten. Members that would land outside dest are rejected.
func Unpack(tarball, dest string) (err error) {
	f, err := os.Open(tarball)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read gzip stream of %s: %w", tarball, err)
	}
	defer func() { _ = gz.Close() }()

	if err = os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("failed to resolve destination: %w", err)
	}

	tr := tar.NewReader(gz)
	for {
		header, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			return nil
		}
		if nextErr != nil {
			return fmt.Errorf("failed to read %s: %w", tarball, nextErr)
		}

		target, pathErr := safeJoin(absDest, header.Name)
		if pathErr != nil {
			return pathErr
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err = extractFile(tr, target, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("failed to extract %s: %w", header.Name, err)
			}
		default:
			// Links and devices are not part of parcel artifacts.
		}
	}
}

func extractFile(r io.Reader, target string, perm fs.FileMode) (err error) {
	if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	n, err := io.Copy(out, io.LimitReader(r, maxMemberSize+1))
	if err != nil {
		return err
	}
	if n > maxMemberSize {
		return fmt.Errorf("member exceeds %d bytes", int64(maxMemberSize))
	}
	return nil
}

// safeJoin resolves name under root and rejects absolute paths and ".." escapes.
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

// ReadFile returns the contents of a single member of a gzip-compressed tarball.
// A leading "./" on member names is ignored.
func ReadFile(tarball, name string) (data []byte, err error) {
	f, err := os.Open(tarball)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip stream of %s: %w", tarball, err)
	}
	defer func() { _ = gz.Close() }()

	want := strings.TrimPrefix(filepath.ToSlash(name), "./")
	tr := tar.NewReader(gz)
	for {
		header, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			return nil, fmt.Errorf("%w: %s in %s", ErrMemberNotFound, name, filepath.Base(tarball))
		}
		if nextErr != nil {
			return nil, fmt.Errorf("failed to read %s: %w", tarball, nextErr)
		}
		if header.Typeflag != tar.TypeReg || strings.TrimPrefix(header.Name, "./") != want {
			continue
		}
		return io.ReadAll(io.LimitReader(tr, maxMemberSize))
	}
}
