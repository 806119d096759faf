package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/klauspost/compress/zip"
)

// Zip extracts zip archives.
type Zip struct{}

func (Zip) Extract(ctx context.Context, archivePath, destDir string) (err error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open ZIP file: %w", err)
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	for _, file := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(destDir, file.Name)
		if err != nil {
			return err
		}
		info := file.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", file.Name, err)
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := extractZipFile(file, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractZipFile(file *zip.File, target string) error {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeEntry(target, rc, file.Mode())
}
