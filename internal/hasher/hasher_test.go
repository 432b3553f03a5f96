package hasher_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/R1cK-ChaN/doc-parser/internal/hasher"
)

func TestSHA256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := hasher.SHA256File(path)
	if err != nil {
		t.Fatalf("SHA256File: %v", err)
	}
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("hash = %s, want %s", got, want)
	}
}

func TestSHA256FileMatchesBytes(t *testing.T) {
	data := []byte("financial research report content")
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := hasher.SHA256File(path)
	if err != nil {
		t.Fatalf("SHA256File: %v", err)
	}
	if fromBytes := hasher.SHA256Bytes(data); fromFile != fromBytes {
		t.Errorf("file hash %s != bytes hash %s", fromFile, fromBytes)
	}
}

func TestSHA256FileMissing(t *testing.T) {
	if _, err := hasher.SHA256File(filepath.Join(t.TempDir(), "absent.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}
