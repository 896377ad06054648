package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sanjeevkumarraob/pdf-ingest-service/pkg/stream"
)

// TempFileName returns "<stem>_<hex><ext>" for the upload's filename, where
// hex is a random UUID without dashes. Directory components are dropped.
func TempFileName(filename string) string {
	base := baseName(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "upload"
	}
	uniqueID := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%s%s", stem, uniqueID, ext)
}

// baseName strips both slash and backslash separated directories so
// client-supplied names from any platform stay inside the temp dir.
func baseName(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	if filename == "." || filename == ".." {
		return ""
	}
	return filename
}

// writeTempFile spools the upload into a new file inside dir. The file is
// created exclusively so an existing path is never overwritten. On error
// nothing is left on disk.
func writeTempFile(dir string, upload Upload, chunkSize int, maxSize int64) (string, error) {
	path := filepath.Join(dir, TempFileName(upload.Filename))

	src, err := upload.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	_, copyErr := stream.Copy(f, src, chunkSize, maxSize)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		if errors.Is(copyErr, stream.ErrLimitExceeded) {
			return "", ErrFileTooLarge
		}
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	return path, nil
}
