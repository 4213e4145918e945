// Package archivepkg packages a finished Storage sandbox into a single
// .zip archive, per spec §4.13: the one collaborator the specification
// itself describes as a "straightforward wrapper", so stdlib
// archive/zip needs no further justification — no third-party archiver
// appears anywhere in the retrieval pack either.
package archivepkg

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sitearchiver/sitearchiver/internal/storage"
)

// Write walks sandbox's finished file tree and writes a .zip archive to
// destPath, with every entry's name the same relative path ListFiles
// reports (POSIX-separated, rooted at the per-host directories spec §6
// describes). destPath's parent directory must already exist.
func Write(sandbox *storage.Sandbox, destPath string) error {
	files, err := sandbox.ListFiles()
	if err != nil {
		return fmt.Errorf("archivepkg: list files: %w", err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("archivepkg: create %q: %w", destPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, relPath := range files {
		if err := addFile(zw, sandbox, relPath); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archivepkg: finalise %q: %w", destPath, err)
	}
	return nil
}

func addFile(zw *zip.Writer, sandbox *storage.Sandbox, relPath string) error {
	data, err := sandbox.Read(relPath)
	if err != nil {
		return fmt.Errorf("archivepkg: read %q: %w", relPath, err)
	}

	header := &zip.FileHeader{
		Name:   filepath.ToSlash(relPath),
		Method: zip.Deflate,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("archivepkg: add entry %q: %w", relPath, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("archivepkg: write entry %q: %w", relPath, err)
	}
	return nil
}
