package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSha256OfFileKnownVector(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sum, size, err := Sha256OfFile(path)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if sum != want {
		t.Fatalf("sum = %s, want %s", sum, want)
	}
	if size != 3 {
		t.Fatalf("size = %d, want 3", size)
	}
}

func TestSha256OfFileMissingFile(t *testing.T) {
	if _, _, err := Sha256OfFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("Sha256OfFile of a missing file should fail")
	}
}

func TestHasherWriteThenSumMatchesSha256OfFile(t *testing.T) {
	h := NewHasher()
	if _, err := h.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := h.Sum(); got != want {
		t.Fatalf("Sum() = %s, want %s", got, want)
	}
}
