package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"statement-service/internal/api/responses"
	"statement-service/internal/core/ingest"
	"statement-service/internal/core/statement"
	"statement-service/internal/core/tabular"
	"statement-service/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const statementFileField = "statementFile"

const commitTimeout = 60 * time.Second

// multipartOverhead is the room left for boundaries and part headers on top
// of the file size limit.
const multipartOverhead = 64 << 10

var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
	".csv":  true,
	".txt":  true,
}

// StatementHandler serves bank statement preview, export and commit requests.
type StatementHandler struct {
	service   statement.Service
	ingest    ingest.Service
	maxUpload int64
	logger    *zap.Logger
}

// NewStatementHandler creates a new statement handler. maxUpload is in bytes.
func NewStatementHandler(service statement.Service, ingestService ingest.Service, maxUpload int64, logger *zap.Logger) *StatementHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementHandler{
		service:   service,
		ingest:    ingestService,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Register mounts the statement routes on a router group.
func (h *StatementHandler) Register(group *gin.RouterGroup) {
	statements := group.Group("/bank-statements")
	statements.POST("/preview", h.HandlePreview)
	statements.POST("/export", h.HandleExport)
	statements.POST("/commit", h.HandleCommit)
}

// parseUpload validates and parses the uploaded statement. On failure the
// error response has already been written.
func (h *StatementHandler) parseUpload(c *gin.Context) (*domain.ParseResult, bool) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	}

	fileHeader, err := c.FormFile(statementFileField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return nil, false
		}
		responses.Error(c, http.StatusBadRequest, "statement file (.xlsx, .xls, .csv) is missing or invalid")
		return nil, false
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedExtensions[ext] {
		responses.Error(c, http.StatusBadRequest, fmt.Sprintf("unsupported statement file extension: %s", ext))
		return nil, false
	}
	if h.maxUpload > 0 && fileHeader.Size > h.maxUpload {
		h.tooLarge(c)
		return nil, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "could not open the statement file")
		return nil, false
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	result, err := h.service.Parse(file, fileHeader.Filename)
	if err != nil {
		if errors.Is(err, tabular.ErrDecode) || errors.Is(err, tabular.ErrUnsupportedFormat) {
			responses.Error(c, http.StatusUnprocessableEntity, "the statement file could not be read", err.Error())
			return nil, false
		}
		h.logger.Error("statement parse failed", zap.String("file", fileHeader.Filename), zap.Error(err))
		responses.Error(c, http.StatusInternalServerError, "error processing the statement file", err.Error())
		return nil, false
	}
	return result, true
}

func (h *StatementHandler) tooLarge(c *gin.Context) {
	responses.Error(c, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("statement file exceeds the %d MB limit", h.maxUpload>>20))
}

// HandlePreview returns the normalized rows with diagnostics for operator review.
func (h *StatementHandler) HandlePreview(c *gin.Context) {
	result, ok := h.parseUpload(c)
	if !ok {
		return
	}

	message := result.Message
	if message == "" {
		message = fmt.Sprintf("%d rows normalized", result.RowCount)
	}
	responses.Success(c, result, message)
}

// HandleExport returns the normalized rows as a CSV attachment.
func (h *StatementHandler) HandleExport(c *gin.Context) {
	result, ok := h.parseUpload(c)
	if !ok {
		return
	}
	if result.Empty() {
		responses.Error(c, http.StatusUnprocessableEntity, domain.NoValidRowsMessage)
		return
	}

	outputCSV, err := h.service.ExportCSV(result.Rows)
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "error generating the CSV file", err.Error())
		return
	}

	base := strings.TrimSuffix(result.FileName, filepath.Ext(result.FileName))
	fileName := fmt.Sprintf("%s_normalized_%s.csv", base, time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+fileName)
	c.Header("X-Import-Id", result.ImportID)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", outputCSV)
}

// HandleCommit forwards an already-previewed row set to the ingestion procedure.
func (h *StatementHandler) HandleCommit(c *gin.Context) {
	var req domain.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Error(c, http.StatusBadRequest, "invalid commit request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commitTimeout)
	defer cancel()

	receipt, err := h.ingest.Commit(ctx, req)
	switch {
	case err == nil:
		responses.Success(c, receipt, fmt.Sprintf("%d rows submitted", receipt.Submitted))
	case errors.Is(err, ingest.ErrNotConfigured):
		responses.Error(c, http.StatusServiceUnavailable, "statement ingestion is not configured")
	case errors.Is(err, ingest.ErrNoRows):
		responses.Error(c, http.StatusBadRequest, domain.NoValidRowsMessage)
	default:
		responses.Error(c, http.StatusBadGateway, "ingestion procedure failed", err.Error())
	}
}
