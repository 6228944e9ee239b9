package controller

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ciforge/internal/cierr"
)

// workspacePath derives the deterministic scratch directory for a
// container name. Deterministic paths let a restarted controller find and
// remove the directories a crashed predecessor left behind.
func workspacePath(workDir, containerName string) string {
	return filepath.Join(workDir, containerName)
}

// extractZip unpacks the stashed submission into dest. Entries with
// absolute paths or parent-directory traversal are rejected outright; a
// submission is untrusted input and must not be able to write outside its
// own workspace.
func extractZip(zipPath, dest string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return cierr.Wrap(cierr.InvalidInput, "opening submission zip", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return cierr.Wrap(cierr.Transient, "creating workspace", err)
	}

	for _, f := range zr.File {
		if err := extractZipEntry(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, dest string) error {
	name := f.Name
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return cierr.New(cierr.InvalidInput, fmt.Sprintf("zip entry %q has an absolute path", name))
	}
	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return cierr.New(cierr.InvalidInput, fmt.Sprintf("zip entry %q escapes the workspace", name))
	}

	target := filepath.Join(dest, cleaned)

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return cierr.Wrap(cierr.Transient, "creating directory from zip", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return cierr.Wrap(cierr.Transient, "creating parent directory from zip", err)
	}

	src, err := f.Open()
	if err != nil {
		return cierr.Wrap(cierr.InvalidInput, fmt.Sprintf("opening zip entry %q", name), err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0o400)
	if err != nil {
		return cierr.Wrap(cierr.Transient, fmt.Sprintf("creating file %q", target), err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return cierr.Wrap(cierr.Transient, fmt.Sprintf("extracting zip entry %q", name), err)
	}
	return nil
}
