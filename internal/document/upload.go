package document

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// Upload is one uploaded file awaiting ingestion
type Upload struct {
	// Filename is the name the client gave the file
	Filename string
	// Size is the declared payload size, or -1 when unknown
	Size int64
	// Open returns a fresh reader over the payload
	Open func() (io.ReadCloser, error)
}

// UploadFromHeader wraps a multipart file header
func UploadFromHeader(header *multipart.FileHeader) Upload {
	return Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Open: func() (io.ReadCloser, error) {
			return header.Open()
		},
	}
}

// UploadFromPath wraps a file on local disk
func UploadFromPath(path string) (Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Upload{}, fmt.Errorf("%s is a directory", path)
	}
	return Upload{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// UploadFromBytes wraps an in-memory payload
func UploadFromBytes(filename string, data []byte) Upload {
	return Upload{
		Filename: filename,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
