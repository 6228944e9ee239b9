package controller

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"ciforge/internal/cierr"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry %q: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing zip entry %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}

	path := filepath.Join(t.TempDir(), "project.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing zip file: %v", err)
	}
	return path
}

func TestExtractZip(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"requirements.txt": "pytest\n",
		"tests/test_ok.py": "def test_ok():\n    assert True\n",
		"src/pkg/deep.py":  "x = 1\n",
	})
	dest := filepath.Join(t.TempDir(), "ws")

	if err := extractZip(zipPath, dest); err != nil {
		t.Fatalf("extractZip failed: %v", err)
	}

	for _, name := range []string{"requirements.txt", "tests/test_ok.py", "src/pkg/deep.py"} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Errorf("missing extracted file %q: %v", name, err)
		}
	}
}

func TestExtractZip_RejectsTraversal(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"../escape.txt": "gotcha",
	})
	dest := filepath.Join(t.TempDir(), "ws")

	err := extractZip(zipPath, dest)
	if !cierr.Is(err, cierr.InvalidInput) {
		t.Fatalf("expected InvalidInput for traversal entry, got %v", err)
	}

	parent := filepath.Dir(dest)
	if _, err := os.Stat(filepath.Join(parent, "escape.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry must not be written outside the workspace")
	}
}

func TestExtractZip_RejectsAbsolutePath(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"/etc/evil.txt": "gotcha",
	})
	dest := filepath.Join(t.TempDir(), "ws")

	err := extractZip(zipPath, dest)
	if !cierr.Is(err, cierr.InvalidInput) {
		t.Fatalf("expected InvalidInput for absolute entry, got %v", err)
	}
}

func TestExtractZip_MalformedArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a.zip")
	if err := os.WriteFile(path, []byte("this is not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := extractZip(path, filepath.Join(t.TempDir(), "ws"))
	if !cierr.Is(err, cierr.InvalidInput) {
		t.Fatalf("expected InvalidInput for malformed zip, got %v", err)
	}
}
