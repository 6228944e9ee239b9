package cmd

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestZipDir(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"requirements.txt":  "pytest\n",
		"src/app.py":        "x = 1\n",
		"tests/test_app.py": "def test_x():\n    assert True\n",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Noise that must not be shipped.
	if err := os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".git", "objects", "x"), []byte("blob"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "app.pyc"), []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := zipDir(root)
	if err != nil {
		t.Fatalf("zipDir failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reading produced zip: %v", err)
	}

	got := make(map[string]bool)
	for _, f := range zr.File {
		got[f.Name] = true
	}
	for name := range files {
		if !got[filepath.ToSlash(name)] {
			t.Errorf("missing entry %q", name)
		}
	}
	if got[".git/objects/x"] {
		t.Error("version-control internals must be skipped")
	}
	if got["src/app.pyc"] {
		t.Error("bytecode must be skipped")
	}
}

func TestZipDir_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := zipDir(path); err == nil {
		t.Fatal("expected an error for a non-directory")
	}
}
