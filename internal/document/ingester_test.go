package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/document/extractor"
)

// fakeLoader returns a fixed number of pages per payload and records every
// path it was asked to load and whether the file existed at that moment.
type fakeLoader struct {
	mu      sync.Mutex
	paths   []string
	existed []bool
	// pages maps payload content to page count; missing payloads fail
	pages map[string]int
}

func (l *fakeLoader) Load(ctx context.Context, path string) ([]extractor.Page, error) {
	data, statErr := os.ReadFile(path)

	l.mu.Lock()
	l.paths = append(l.paths, path)
	l.existed = append(l.existed, statErr == nil)
	l.mu.Unlock()

	if statErr != nil {
		return nil, statErr
	}

	n, ok := l.pages[string(data)]
	if !ok {
		return nil, errors.New("corrupt document")
	}
	pages := make([]extractor.Page, n)
	for i := range pages {
		pages[i] = extractor.Page{
			Content:  fmt.Sprintf("%s page %d", data, i),
			Metadata: map[string]any{extractor.MetaSource: path, extractor.MetaPage: i},
		}
	}
	return pages, nil
}

// panickingLoader panics on every path containing "boom" and delegates
// the rest
type panickingLoader struct {
	next Loader
}

func (l panickingLoader) Load(ctx context.Context, path string) ([]extractor.Page, error) {
	if strings.Contains(filepath.Base(path), "boom") {
		panic("runtime error: invalid memory address or nil pointer dereference")
	}
	return l.next.Load(ctx, path)
}

func newTestIngester(t *testing.T, loader Loader, opts ...Option) (*Ingester, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{WithTempDir(dir)}, opts...)
	return NewIngester(loader, opts...), dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files left behind")
}

func TestTempFileName(t *testing.T) {
	tests := []struct {
		filename   string
		wantPrefix string
		wantExt    string
	}{
		{"report.pdf", "report_", ".pdf"},
		{"archive.tar.PDF", "archive.tar_", ".PDF"},
		{"../../etc/passwd.pdf", "passwd_", ".pdf"},
		{`C:\Users\me\scan.pdf`, "scan_", ".pdf"},
		{".pdf", "upload_", ".pdf"},
		{"noext", "noext_", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			name := TempFileName(tt.filename)
			assert.True(t, strings.HasPrefix(name, tt.wantPrefix), name)
			assert.True(t, strings.HasSuffix(name, tt.wantExt), name)
			assert.NotContains(t, name, "/")
			assert.NotContains(t, name, `\`)

			hex := strings.TrimSuffix(strings.TrimPrefix(name, tt.wantPrefix), tt.wantExt)
			assert.Len(t, hex, 32)
			assert.Equal(t, strings.ToLower(hex), hex)
		})
	}
}

func TestTempFileName_NoCollisions(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		name := TempFileName("same.pdf")
		require.False(t, seen[name], "collision on %s", name)
		seen[name] = true
	}
}

func TestIngestBatch_SumsPagesAcrossFiles(t *testing.T) {
	loader := &fakeLoader{pages: map[string]int{"a": 2, "b": 3, "c": 1}}
	ing, dir := newTestIngester(t, loader, WithWorkers(3))

	result, err := ing.IngestBatch(context.Background(), []Upload{
		UploadFromBytes("a.pdf", []byte("a")),
		UploadFromBytes("b.pdf", []byte("b")),
		UploadFromBytes("c.pdf", []byte("c")),
	})
	require.NoError(t, err)

	require.Len(t, result.Files, 3)
	assert.Len(t, result.Pages, 6)
	sum := 0
	for _, f := range result.Files {
		sum += f.Pages
	}
	assert.Equal(t, len(result.Pages), sum)

	// Upload order is preserved even with concurrent workers
	var contents []string
	for _, p := range result.Pages {
		contents = append(contents, p.Content)
	}
	assert.Equal(t, []string{
		"a page 0", "a page 1",
		"b page 0", "b page 1", "b page 2",
		"c page 0",
	}, contents)

	// Source points at the original upload, not the deleted temp path
	assert.Equal(t, "b.pdf", result.Pages[2].Metadata[extractor.MetaSource])

	assertDirEmpty(t, dir)
}

func TestIngestBatch_TempFileExistsDuringLoadAndIsRemoved(t *testing.T) {
	loader := &fakeLoader{pages: map[string]int{"a": 1}}
	ing, dir := newTestIngester(t, loader)

	_, err := ing.IngestBatch(context.Background(), []Upload{UploadFromBytes("a.pdf", []byte("a"))})
	require.NoError(t, err)

	require.Len(t, loader.paths, 1)
	assert.True(t, loader.existed[0])
	assert.Equal(t, dir, filepath.Dir(loader.paths[0]))
	_, err = os.Stat(loader.paths[0])
	assert.True(t, os.IsNotExist(err))
}

func TestIngestBatch_RemovesTempFileOnLoaderFailure(t *testing.T) {
	loader := &fakeLoader{pages: map[string]int{"good": 2}}
	ing, dir := newTestIngester(t, loader)

	result, err := ing.IngestBatch(context.Background(), []Upload{
		UploadFromBytes("good.pdf", []byte("good")),
		UploadFromBytes("bad.pdf", []byte("bad")),
		UploadFromBytes("later.pdf", []byte("good")),
	})
	require.Error(t, err)

	var fileErr *FileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, "bad.pdf", fileErr.Filename)

	// Only the files before the failure contribute pages
	require.NotNil(t, result)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "good.pdf", result.Files[0].Filename)
	assert.Len(t, result.Pages, 2)

	assertDirEmpty(t, dir)
	for _, p := range loader.paths {
		_, statErr := os.Stat(p)
		assert.True(t, os.IsNotExist(statErr), p)
	}
}

func TestIngestBatch_LoaderPanicBecomesFileError(t *testing.T) {
	loader := panickingLoader{next: &fakeLoader{pages: map[string]int{"good": 2}}}
	ing, dir := newTestIngester(t, loader, WithWorkers(2))

	var (
		result *BatchResult
		err    error
	)
	require.NotPanics(t, func() {
		result, err = ing.IngestBatch(context.Background(), []Upload{
			UploadFromBytes("good.pdf", []byte("good")),
			UploadFromBytes("boom.pdf", []byte("good")),
			UploadFromBytes("after.pdf", []byte("good")),
		})
	})

	require.ErrorIs(t, err, ErrLoaderPanic)
	var fileErr *FileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, "boom.pdf", fileErr.Filename)

	require.NotNil(t, result)
	require.Len(t, result.Files, 1)
	assert.Len(t, result.Pages, 2)
	assertDirEmpty(t, dir)
}

func TestIngestBatch_SameNameNoCollision(t *testing.T) {
	loader := &fakeLoader{pages: map[string]int{"x": 1, "y": 1, "z": 1}}
	ing, dir := newTestIngester(t, loader, WithWorkers(3))

	result, err := ing.IngestBatch(context.Background(), []Upload{
		UploadFromBytes("dup.pdf", []byte("x")),
		UploadFromBytes("dup.pdf", []byte("y")),
		UploadFromBytes("dup.pdf", []byte("z")),
	})
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range result.Files {
		assert.True(t, strings.HasPrefix(f.TempFile, "dup_"))
		names[f.TempFile] = true
	}
	assert.Len(t, names, 3)

	// Each file kept its own payload
	assert.Equal(t, "x page 0", result.Pages[0].Content)
	assert.Equal(t, "y page 0", result.Pages[1].Content)
	assert.Equal(t, "z page 0", result.Pages[2].Content)

	assertDirEmpty(t, dir)
}

func TestIngestBatch_Empty(t *testing.T) {
	ing, _ := newTestIngester(t, &fakeLoader{})

	result, err := ing.IngestBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Files)
	assert.Empty(t, result.Pages)
}

func TestIngestBatch_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		uploads []Upload
		wantErr error
	}{
		{
			name:    "unsupported extension",
			uploads: []Upload{UploadFromBytes("a.pdf", []byte("a")), UploadFromBytes("notes.txt", []byte("n"))},
			wantErr: ErrUnsupportedFileType,
		},
		{
			name:    "declared size too large",
			opts:    []Option{WithMaxFileSize(2)},
			uploads: []Upload{UploadFromBytes("big.pdf", []byte("abc"))},
			wantErr: ErrFileTooLarge,
		},
		{
			name:    "too many files",
			opts:    []Option{WithMaxFiles(1)},
			uploads: []Upload{UploadFromBytes("a.pdf", []byte("a")), UploadFromBytes("b.pdf", []byte("b"))},
			wantErr: ErrTooManyFiles,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &fakeLoader{pages: map[string]int{"a": 1, "b": 1}}
			ing, dir := newTestIngester(t, loader, tt.opts...)

			result, err := ing.IngestBatch(context.Background(), tt.uploads)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, result)
			assert.Empty(t, loader.paths, "loader must not run for rejected batches")
			assertDirEmpty(t, dir)
		})
	}
}

func TestIngestBatch_UppercaseExtensionAccepted(t *testing.T) {
	loader := &fakeLoader{pages: map[string]int{"a": 1}}
	ing, _ := newTestIngester(t, loader)

	result, err := ing.IngestBatch(context.Background(), []Upload{UploadFromBytes("SCAN.PDF", []byte("a"))})
	require.NoError(t, err)
	assert.Len(t, result.Pages, 1)
}

func TestIngestFile_StreamedSizeLimit(t *testing.T) {
	loader := &fakeLoader{pages: map[string]int{}}
	ing, dir := newTestIngester(t, loader, WithMaxFileSize(4), WithChunkSize(2))

	// Declared size is unknown, so only the streaming limit can catch it
	upload := UploadFromBytes("big.pdf", []byte("0123456789"))
	upload.Size = -1

	_, _, err := ing.IngestFile(context.Background(), upload)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, loader.paths)
	assertDirEmpty(t, dir)
}

func TestIngestFile_OpenFailure(t *testing.T) {
	ing, dir := newTestIngester(t, &fakeLoader{})

	upload := UploadFromBytes("a.pdf", nil)
	upload.Open = func() (io.ReadCloser, error) { return nil, errors.New("gone") }

	_, _, err := ing.IngestFile(context.Background(), upload)
	assert.EqualError(t, errors.Unwrap(err), "failed to open upload: gone")
	assertDirEmpty(t, dir)
}

func TestIngestFile_CancelledContext(t *testing.T) {
	loader := &fakeLoader{pages: map[string]int{"a": 1}}
	ing, dir := newTestIngester(t, loader)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ing.IngestFile(ctx, UploadFromBytes("a.pdf", []byte("a")))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, loader.paths)
	assertDirEmpty(t, dir)
}

func TestUploadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.pdf")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0600))

	upload, err := UploadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "local.pdf", upload.Filename)
	assert.EqualValues(t, 1, upload.Size)

	_, err = UploadFromPath(filepath.Dir(path))
	assert.Error(t, err)

	_, err = UploadFromPath(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestIngester_WithRealLoader(t *testing.T) {
	ing, dir := newTestIngester(t, extractor.NewPDFLoader())

	// A payload the decoder rejects still leaves no temp file behind
	_, err := ing.IngestBatch(context.Background(), []Upload{UploadFromBytes("fake.pdf", []byte("not a pdf"))})
	require.Error(t, err)
	assertDirEmpty(t, dir)
}

func TestMaxBatchSize(t *testing.T) {
	ing := NewIngester(&fakeLoader{}, WithMaxFiles(3), WithMaxFileSize(100))
	assert.EqualValues(t, 300, ing.MaxBatchSize())

	ing = NewIngester(&fakeLoader{}, WithMaxFiles(0), WithMaxFileSize(100))
	assert.Zero(t, ing.MaxBatchSize())
}

func TestTotalMessage(t *testing.T) {
	assert.Equal(t, "Total pages processed: 0", TotalMessage(0))
	assert.Equal(t, "Total pages processed: 12", TotalMessage(12))
}
