package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	sb, err := New(dir, 1024*1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sb.Write("a/b/page.html", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := sb.Read("a/b/page.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Read = %q, want %q", got, "hello")
	}
}

func TestWriteRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	sb, err := New(dir, 1024*1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sb.Write("../../etc/passwd", []byte("x")); err == nil {
		t.Errorf("expected traversal write to be rejected")
	}
}

func TestWriteRejectsSizeCeilingBreach(t *testing.T) {
	dir := t.TempDir()
	sb, err := New(dir, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sb.Write("small.txt", []byte("12345")); err != nil {
		t.Fatalf("Write small: %v", err)
	}
	if err := sb.Write("big.txt", []byte("0123456789abcdef")); err == nil {
		t.Errorf("expected size ceiling breach to be rejected")
	}
}

func TestWriteOverwriteDoesNotDoubleCount(t *testing.T) {
	dir := t.TempDir()
	sb, err := New(dir, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sb.Write("page.html", []byte("12345")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sb.Write("page.html", []byte("67890")); err != nil {
		t.Fatalf("Write overwrite: %v", err)
	}

	stats := sb.Stats()
	if stats.TotalBytes != 5 {
		t.Errorf("TotalBytes = %d, want 5 (overwrite should not double-count)", stats.TotalBytes)
	}
	if stats.FilesWritten != 1 {
		t.Errorf("FilesWritten = %d, want 1", stats.FilesWritten)
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	sb, err := New(dir, 1024*1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_ = sb.Write("index.html", []byte("a"))
	_ = sb.Write("assets/style.css", []byte("b"))

	files, err := sb.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ListFiles returned %d entries, want 2: %v", len(files), files)
	}
}

// TestWriteConcurrentReservationsRespectCeiling drives many goroutines
// writing distinct paths at once against a ceiling sized for roughly
// half of them, then checks the committed total never exceeds the
// ceiling and matches what is actually on disk — the property a racy
// check-then-write would let slip past.
func TestWriteConcurrentReservationsRespectCeiling(t *testing.T) {
	dir := t.TempDir()
	const (
		writers  = 40
		fileSize = 10
	)
	ceiling := int64(writers/2) * fileSize

	sb, err := New(dir, ceiling)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := []byte("0123456789")
	if len(data) != fileSize {
		t.Fatalf("test setup: fileSize %d does not match data length %d", fileSize, len(data))
	}

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = sb.Write(fmt.Sprintf("file-%02d.txt", i), data)
		}(i)
	}
	wg.Wait()

	stats := sb.Stats()
	if stats.TotalBytes > ceiling {
		t.Fatalf("Stats().TotalBytes = %d, want <= ceiling %d", stats.TotalBytes, ceiling)
	}

	files, err := sb.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	var onDisk int64
	for _, f := range files {
		b, err := sb.Read(f)
		if err != nil {
			t.Fatalf("Read(%q): %v", f, err)
		}
		onDisk += int64(len(b))
	}
	if onDisk != stats.TotalBytes {
		t.Errorf("bytes on disk = %d, want equal to Stats().TotalBytes = %d", onDisk, stats.TotalBytes)
	}
}

func TestCleanupRemovesSandbox(t *testing.T) {
	dir := t.TempDir()
	sb, err := New(filepath.Join(dir, "job-1"), 1024*1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = sb.Write("a.txt", []byte("x"))

	if err := sb.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(sb.Root()); !os.IsNotExist(err) {
		t.Errorf("expected sandbox root to be removed")
	}
}
