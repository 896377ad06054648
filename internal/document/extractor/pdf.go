package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// Page metadata keys
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
)

// ErrInvalidPDF is returned when validation rejects a file or the decoder
// cannot make sense of it
var ErrInvalidPDF = errors.New("invalid PDF document")

// Page is a single page of extracted text plus its metadata
type Page struct {
	Content  string         `json:"page_content"`
	Metadata map[string]any `json:"metadata"`
}

// PDFLoader loads a PDF file into one page record per physical page
type PDFLoader struct {
	validate bool
	logger   *zap.SugaredLogger

	// Swappable for tests
	open         func(path string) (*os.File, *pdf.Reader, error)
	validateFile func(path string) error
	pageCount    func(path string) (int, error)
}

// PDFOption configures a PDFLoader
type PDFOption func(*PDFLoader)

// WithValidation enables a relaxed pdfcpu validation pass before extraction
func WithValidation(enabled bool) PDFOption {
	return func(l *PDFLoader) {
		l.validate = enabled
	}
}

// WithLogger sets the loader's logger
func WithLogger(logger *zap.SugaredLogger) PDFOption {
	return func(l *PDFLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewPDFLoader creates a new PDF loader
func NewPDFLoader(opts ...PDFOption) *PDFLoader {
	l := &PDFLoader{
		logger:       zap.NewNop().Sugar(),
		open:         pdf.Open,
		validateFile: validateFile,
		pageCount:    api.PageCountFile,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load extracts the text of every page in the PDF at path. Pages without
// a text layer produce a record with empty content.
func (l *PDFLoader) Load(ctx context.Context, path string) (pages []Page, err error) {
	// Both pdfcpu and the decoder panic on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %s: %v", ErrInvalidPDF, path, r)
		}
	}()

	if l.validate {
		if err := l.validateFile(path); err != nil {
			return nil, err
		}
	}

	f, r, err := l.open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening PDF: %w", err)
	}
	defer f.Close()

	numPages := r.NumPage()
	l.crossCheckPageCount(path, numPages)

	pages = make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		text, err := pageText(r.Page(i))
		if err != nil {
			return nil, fmt.Errorf("error extracting page %d: %w", i, err)
		}

		pages = append(pages, Page{
			Content: text,
			Metadata: map[string]any{
				MetaSource:     path,
				MetaPage:       i - 1,
				MetaTotalPages: numPages,
			},
		})
	}

	return pages, nil
}

func pageText(p pdf.Page) (string, error) {
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func validateFile(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return nil
}

// crossCheckPageCount compares the decoder's page count with pdfcpu's.
// Disagreement is only logged.
func (l *PDFLoader) crossCheckPageCount(path string, numPages int) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Debugw("pdfcpu page count panicked", "path", path, "panic", r)
		}
	}()

	count, err := l.pageCount(path)
	if err != nil {
		l.logger.Debugw("pdfcpu page count unavailable", "path", path, "error", err)
		return
	}
	if count != numPages {
		l.logger.Debugw("page count mismatch", "path", path, "decoder", numPages, "pdfcpu", count)
	}
}
