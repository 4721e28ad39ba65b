package updater

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxExtractedBytes caps the total decompressed size of an archive.
const MaxExtractedBytes int64 = 512 << 20

// Extract unpacks the gzip-tar archive into destDir and returns the path of
// binaryName, found either at the archive root or one directory below it.
func Extract(archivePath, destDir, binaryName string) (string, error) {
	if err := unpack(archivePath, destDir); err != nil {
		return "", err
	}

	return locateBinary(destDir, binaryName)
}

func unpack(archivePath, destDir string) error {
	f, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("%w: open archive: %w", ErrFilesystem, err)
	}

	defer func() {
		_ = f.Close()
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: read gzip header: %w", ErrFilesystem, err)
	}

	defer func() {
		_ = gz.Close()
	}()

	tr := tar.NewReader(gz)
	remaining := MaxExtractedBytes

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("%w: read archive: %w", ErrFilesystem, err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: create %s: %w", ErrFilesystem, header.Name, err)
			}
		case tar.TypeReg:
			written, err := writeEntry(target, tr, header.FileInfo().Mode().Perm(), remaining)
			if err != nil {
				return err
			}

			remaining -= written
		default:
			// Links, devices and fifos never carry the executable.
		}
	}
}

func writeEntry(target string, r io.Reader, perm os.FileMode, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("%w: create parent of %s: %w", ErrFilesystem, target, err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", ErrFilesystem, target, err)
	}

	written, err := io.Copy(out, io.LimitReader(r, remaining+1))
	closeErr := out.Close()

	switch {
	case err != nil:
		return written, fmt.Errorf("%w: extract %s: %w", ErrFilesystem, target, err)
	case written > remaining:
		return written, fmt.Errorf("%w: archive expands beyond %d bytes", ErrFilesystem, MaxExtractedBytes)
	case closeErr != nil:
		return written, fmt.Errorf("%w: close %s: %w", ErrFilesystem, target, closeErr)
	}

	return written, nil
}

// safeJoin resolves an archive entry name under root, rejecting names that
// are absolute or climb out of it.
func safeJoin(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))

	if filepath.IsAbs(cleaned) || strings.HasPrefix(name, "/") ||
		cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchive, name)
	}

	return filepath.Join(root, cleaned), nil
}

func locateBinary(root, binaryName string) (string, error) {
	candidate := filepath.Join(root, binaryName)
	if isRegularFile(candidate) {
		return candidate, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("%w: list %s: %w", ErrFilesystem, root, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		nested := filepath.Join(root, entry.Name(), binaryName)
		if isRegularFile(nested) {
			return nested, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, binaryName)
}

func isRegularFile(path string) bool {
	info, err := os.Lstat(path)

	return err == nil && info.Mode().IsRegular()
}
