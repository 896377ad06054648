package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/document/extractor"
	"github.com/sanjeevkumarraob/pdf-ingest-service/pkg/stream"
)

// Error definitions
var (
	ErrFileTooLarge        = errors.New("file size exceeds maximum allowed size")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrTooManyFiles        = errors.New("too many files in one upload")
	ErrLoaderPanic         = errors.New("document loader panicked")
)

// FileError reports which upload failed
type FileError struct {
	Filename string
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Loader turns a PDF on disk into page records
type Loader interface {
	Load(ctx context.Context, path string) ([]extractor.Page, error)
}

// FileResult describes one ingested upload
type FileResult struct {
	Filename string `json:"filename"`
	TempFile string `json:"temp_file"`
	Pages    int    `json:"pages"`
}

// TotalMessage is the running total line reported after every batch
func TotalMessage(total int) string {
	return fmt.Sprintf("Total pages processed: %d", total)
}

// BatchResult holds the outcome of one upload batch. Pages are ordered by
// upload, then by page number.
type BatchResult struct {
	Files []FileResult
	Pages []extractor.Page
}

// Ingester writes uploads to temp files and runs them through a Loader
type Ingester struct {
	loader      Loader
	tempDir     string
	maxFileSize int64
	maxFiles    int
	workers     int
	chunkSize   int
	logger      *zap.SugaredLogger
}

// Option configures an Ingester
type Option func(*Ingester)

// WithTempDir sets where temp files are written
func WithTempDir(dir string) Option {
	return func(i *Ingester) { i.tempDir = dir }
}

// WithMaxFileSize caps the size of a single upload. Zero disables the cap.
func WithMaxFileSize(n int64) Option {
	return func(i *Ingester) { i.maxFileSize = n }
}

// WithMaxFiles caps the number of uploads per batch. Zero disables the cap.
func WithMaxFiles(n int) Option {
	return func(i *Ingester) { i.maxFiles = n }
}

// WithWorkers sets how many files of a batch are processed at once
func WithWorkers(n int) Option {
	return func(i *Ingester) { i.workers = n }
}

// WithChunkSize sets the buffer size used when spooling uploads to disk
func WithChunkSize(n int) Option {
	return func(i *Ingester) { i.chunkSize = n }
}

// WithLogger sets the ingester's logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(i *Ingester) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewIngester creates a new ingester
func NewIngester(loader Loader, opts ...Option) *Ingester {
	i := &Ingester{
		loader:      loader,
		tempDir:     os.TempDir(),
		maxFileSize: 50 * 1024 * 1024,
		workers:     1,
		chunkSize:   stream.DefaultChunkSize,
		logger:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.workers <= 0 {
		i.workers = 1
	}
	return i
}

// MaxBatchSize is the largest payload a full batch can carry, or 0 when
// either the file count or the file size is unbounded.
func (i *Ingester) MaxBatchSize() int64 {
	if i.maxFiles <= 0 || i.maxFileSize <= 0 {
		return 0
	}
	return int64(i.maxFiles) * i.maxFileSize
}

// IngestBatch ingests every upload and returns their pages in upload order.
//
// The batch is validated up front; a validation failure rejects it before
// anything touches disk. If a file then fails to load, the result holds the
// pages of the files before it and the error names the first failed file.
func (i *Ingester) IngestBatch(ctx context.Context, uploads []Upload) (*BatchResult, error) {
	if err := i.validateBatch(uploads); err != nil {
		return nil, err
	}

	type outcome struct {
		file  FileResult
		pages []extractor.Page
		err   error
	}
	outcomes := make([]outcome, len(uploads))

	// Workers never cancel each other: files ahead of a failure must finish
	var g errgroup.Group
	g.SetLimit(i.workers)
	for idx, upload := range uploads {
		g.Go(func() error {
			file, pages, err := i.IngestFile(ctx, upload)
			outcomes[idx] = outcome{file: file, pages: pages, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{Files: make([]FileResult, 0, len(uploads))}
	for _, o := range outcomes {
		if o.err != nil {
			return result, o.err
		}
		result.Files = append(result.Files, o.file)
		result.Pages = append(result.Pages, o.pages...)
	}

	return result, nil
}

// IngestFile writes a single upload to a temp file, loads it, and removes
// the temp file whether or not loading succeeded.
func (i *Ingester) IngestFile(ctx context.Context, upload Upload) (FileResult, []extractor.Page, error) {
	result := FileResult{Filename: upload.Filename}

	if err := ctx.Err(); err != nil {
		return result, nil, &FileError{Filename: upload.Filename, Err: err}
	}

	limit := int64(-1)
	if i.maxFileSize > 0 {
		limit = i.maxFileSize
	}

	path, err := writeTempFile(i.tempDir, upload, i.chunkSize, limit)
	if err != nil {
		return result, nil, &FileError{Filename: upload.Filename, Err: err}
	}
	result.TempFile = filepath.Base(path)

	defer func() {
		if err := os.Remove(path); err != nil {
			i.logger.Warnw("failed to remove temp file", "path", path, "error", err)
		}
	}()

	pages, err := i.load(ctx, path)
	if err != nil {
		i.logger.Errorw("document load failed", "filename", upload.Filename, "temp_file", result.TempFile, "error", err)
		return result, nil, &FileError{Filename: upload.Filename, Err: err}
	}

	// The temp path is gone once this returns, so point source at the upload
	for idx := range pages {
		if pages[idx].Metadata == nil {
			pages[idx].Metadata = map[string]any{}
		}
		pages[idx].Metadata[extractor.MetaSource] = upload.Filename
	}
	result.Pages = len(pages)

	i.logger.Infow("document ingested", "filename", upload.Filename, "temp_file", result.TempFile, "pages", result.Pages)
	return result, pages, nil
}

// load runs the loader, turning a panic into ErrLoaderPanic so one bad
// file cannot take down the batch
func (i *Ingester) load(ctx context.Context, path string) (pages []extractor.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrLoaderPanic, r)
		}
	}()
	return i.loader.Load(ctx, path)
}

func (i *Ingester) validateBatch(uploads []Upload) error {
	if i.maxFiles > 0 && len(uploads) > i.maxFiles {
		return fmt.Errorf("%w: got %d, limit is %d", ErrTooManyFiles, len(uploads), i.maxFiles)
	}
	for _, upload := range uploads {
		if !isPDF(upload.Filename) {
			return &FileError{Filename: upload.Filename, Err: ErrUnsupportedFileType}
		}
		if i.maxFileSize > 0 && upload.Size > i.maxFileSize {
			return &FileError{Filename: upload.Filename, Err: ErrFileTooLarge}
		}
	}
	return nil
}

// isPDF reports whether the filename carries a .pdf extension
func isPDF(filename string) bool {
	return strings.ToLower(filepath.Ext(baseName(filename))) == ".pdf"
}
