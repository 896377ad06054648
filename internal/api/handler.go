package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/document"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/document/extractor"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/session"
)

// multipartOverhead is the allowance for part headers and boundaries on top
// of the file payloads in one upload request
const multipartOverhead = 1 << 20

// PageStore accumulates pages per session
type PageStore interface {
	Append(ctx context.Context, key string, pages ...extractor.Page) (int, error)
	List(ctx context.Context, key string, offset, limit int) ([]extractor.Page, int, error)
	Len(ctx context.Context, key string) (int, error)
	Delete(ctx context.Context, key string) error
}

// Handler handles API requests
type Handler struct {
	ingester       *document.Ingester
	pages          PageStore
	sessionManager *session.Manager
	logger         *zap.SugaredLogger
	maxFileSize    int64
	authRequired   bool
}

// NewHandler creates a new handler
func NewHandler(
	ingester *document.Ingester,
	pages PageStore,
	sessionManager *session.Manager,
	logger *zap.SugaredLogger,
	maxFileSize int64,
) *Handler {
	return &Handler{
		ingester:       ingester,
		pages:          pages,
		sessionManager: sessionManager,
		logger:         logger,
		maxFileSize:    maxFileSize,
	}
}

// HealthCheck provides a simple health check endpoint
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Index renders the upload page
func (h *Handler) Index(c *gin.Context) {
	total := 0
	if id, err := h.sessionManager.CurrentID(c); err == nil {
		if n, err := h.pages.Len(c.Request.Context(), id); err == nil {
			total = n
		}
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"Message":       document.TotalMessage(total),
		"MaxFileSizeMB": h.maxFileSize / (1024 * 1024),
		"AuthRequired":  h.authRequired,
	})
}

// UploadDocuments ingests a batch of PDF uploads into the caller's session
func (h *Handler) UploadDocuments(c *gin.Context) {
	sessionID, err := h.sessionManager.SessionID(c)
	if err != nil {
		h.logger.Errorw("session lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get session"})
		return
	}

	if limit := h.ingester.MaxBatchSize(); limit > 0 {
		limit += multipartOverhead
		if c.Request.ContentLength > limit {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload exceeds maximum allowed batch size"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload exceeds maximum allowed batch size"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Multipart form with PDF files is required"})
		return
	}

	uploads := collectUploads(form)
	ctx := c.Request.Context()

	result, ingestErr := h.ingester.IngestBatch(ctx, uploads)

	// Files processed before a failure still count toward the session
	var batchPages []extractor.Page
	var files []document.FileResult
	if result != nil {
		batchPages = result.Pages
		files = result.Files
	}

	total, err := h.pages.Append(ctx, sessionID, batchPages...)
	if err != nil {
		h.logger.Errorw("failed to store pages", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store pages"})
		return
	}

	if ingestErr != nil {
		status, message := uploadErrorStatus(ingestErr)
		h.logger.Warnw("upload batch failed",
			"session_id", sessionID,
			"files", len(uploads),
			"status", status,
			"error", ingestErr,
		)
		c.JSON(status, gin.H{
			"error":       message,
			"details":     ingestErr.Error(),
			"files":       nonNilFiles(files),
			"batch_pages": len(batchPages),
			"total_pages": total,
			"message":     document.TotalMessage(total),
		})
		return
	}

	h.logger.Infow("upload batch processed",
		"session_id", sessionID,
		"files", len(files),
		"batch_pages", len(batchPages),
		"total_pages", total,
	)

	c.JSON(http.StatusOK, gin.H{
		"files":       nonNilFiles(files),
		"batch_pages": len(batchPages),
		"total_pages": total,
		"message":     document.TotalMessage(total),
	})
}

// ListPages returns the pages accumulated in the caller's session
func (h *Handler) ListPages(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	id, err := h.sessionManager.CurrentID(c)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"pages": []extractor.Page{}, "count": 0, "total": 0})
		return
	}

	pages, total, err := h.pages.List(c.Request.Context(), id, offset, limit)
	if err != nil {
		h.logger.Errorw("failed to list pages", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pages": pages,
		"count": len(pages),
		"total": total,
	})
}

// PageCount returns the caller's running page total
func (h *Handler) PageCount(c *gin.Context) {
	total := 0
	if id, err := h.sessionManager.CurrentID(c); err == nil {
		total, err = h.pages.Len(c.Request.Context(), id)
		if err != nil {
			h.logger.Errorw("failed to count pages", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count pages"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_pages": total,
		"message":     document.TotalMessage(total),
	})
}

// ClearSession drops the caller's pages and ends the session
func (h *Handler) ClearSession(c *gin.Context) {
	id, err := h.sessionManager.End(c)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			c.JSON(http.StatusOK, gin.H{"message": "No active session"})
			return
		}
		h.logger.Errorw("failed to end session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end session"})
		return
	}

	if err := h.pages.Delete(c.Request.Context(), id); err != nil {
		h.logger.Errorw("failed to drop session pages", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session cleared"})
}

// collectUploads gathers files sent under "files" and the single "file" field
func collectUploads(form *multipart.Form) []document.Upload {
	var uploads []document.Upload
	for _, field := range []string{"files", "file"} {
		for _, header := range form.File[field] {
			uploads = append(uploads, document.UploadFromHeader(header))
		}
	}
	return uploads
}

func uploadErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, document.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "File size exceeds maximum allowed size"
	case errors.Is(err, document.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType, "Only PDF files are supported"
	case errors.Is(err, document.ErrTooManyFiles):
		return http.StatusUnprocessableEntity, "Too many files in one upload"
	default:
		return http.StatusInternalServerError, "Failed to process document"
	}
}

func nonNilFiles(files []document.FileResult) []document.FileResult {
	if files == nil {
		return []document.FileResult{}
	}
	return files
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}
