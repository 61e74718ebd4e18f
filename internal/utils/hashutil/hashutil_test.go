package hashutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBlake3HashFileMatchesInMemoryHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.bin")
	payload := []byte("not real weights, but stable bytes")

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	fromFile, err := Blake3HashFile(path)
	if err != nil {
		t.Fatalf("Blake3HashFile failed: %v", err)
	}

	if want := Blake3Hash(payload); fromFile != want {
		t.Errorf("Expected %s, got %s", want, fromFile)
	}
}

func TestBlake3HashFileMissing(t *testing.T) {
	if _, err := Blake3HashFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
