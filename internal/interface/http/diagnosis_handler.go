package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

const (
	codeMissingFields    = "missing_fields"
	messageMissingFields = "Missing required fields"
	messageAnalyzeFailed = "Failed to process X-ray"

	// multipart framing and the two text fields on top of the image
	formOverheadBytes = 64 << 10
)

var errImageTooLarge = errors.New("image exceeds maximum allowed size")

// AnalyzeXRay accepts the multipart form of the public upload page and
// answers with the bare diagnosis result.
func (h *Handler) AnalyzeXRay(c *gin.Context) {
	sub, err := h.readSubmission(c)
	if err != nil {
		if errors.Is(err, errImageTooLarge) {
			abortWithError(c, NewHTTPError(http.StatusRequestEntityTooLarge, diagnosis.CodeInvalidInput, err.Error(), err))
			return
		}
		abortWithError(c, NewHTTPError(http.StatusBadRequest, codeMissingFields, messageMissingFields, err))
		return
	}
	report, err := h.diagnosisSvc.Analyze(c.Request.Context(), accountID(c), sub)
	if err != nil {
		switch {
		case diagnosis.IsMissingField(err):
			abortWithError(c, NewHTTPError(http.StatusBadRequest, codeMissingFields, messageMissingFields, err))
		case apperrors.IsCode(err, diagnosis.CodeInvalidInput):
			abortWithError(c, NewHTTPError(http.StatusBadRequest, diagnosis.CodeInvalidInput, apperrors.MessageOf(err), err))
		default:
			abortWithError(c, NewHTTPError(http.StatusInternalServerError, diagnosis.CodeAnalysisFailed, messageAnalyzeFailed, err))
		}
		return
	}
	c.JSON(http.StatusOK, report.Result)
}

// CreateDiagnosis runs an analysis for the signed-in account and returns the full report.
func (h *Handler) CreateDiagnosis(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	sub, err := h.readSubmission(c)
	if err != nil {
		abortWithError(c, submissionError(err))
		return
	}
	report, err := h.diagnosisSvc.Analyze(c.Request.Context(), claims.AccountID, sub)
	if err != nil {
		abortWithError(c, diagnosisError(err))
		return
	}
	c.JSON(http.StatusCreated, report)
}

// StreamDiagnosis runs an analysis and streams progress using Server-Sent Events.
func (h *Handler) StreamDiagnosis(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	sub, err := h.readSubmission(c)
	if err != nil {
		abortWithError(c, submissionError(err))
		return
	}
	events, err := h.diagnosisSvc.AnalyzeStream(c.Request.Context(), claims.AccountID, sub)
	if err != nil {
		abortWithError(c, diagnosisError(err))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "stream_unsupported", "streaming not supported", nil))
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("marshal progress event failed", "error", err)
			continue
		}
		if _, err := c.Writer.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			h.logger.Warn("client went away during stream", "error", err)
			return
		}
		flusher.Flush()
	}
}

// ListDiagnoses returns the caller's most recent reports.
func (h *Handler) ListDiagnoses(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer", err))
			return
		}
		limit = parsed
	}
	reports, err := h.diagnosisSvc.List(c.Request.Context(), claims.AccountID, limit)
	if err != nil {
		abortWithError(c, diagnosisError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reports})
}

// GetDiagnosis returns one report owned by the caller.
func (h *Handler) GetDiagnosis(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := reportID(c)
	if !ok {
		return
	}
	report, err := h.diagnosisSvc.Get(c.Request.Context(), claims.AccountID, id)
	if err != nil {
		abortWithError(c, diagnosisError(err))
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetDiagnosisImage streams back the archived upload of a report.
func (h *Handler) GetDiagnosisImage(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := reportID(c)
	if !ok {
		return
	}
	body, ref, err := h.diagnosisSvc.Image(c.Request.Context(), claims.AccountID, id)
	if err != nil {
		abortWithError(c, diagnosisError(err))
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, ref.SizeBytes, ref.MimeType, body, map[string]string{
		"Cache-Control": "private, max-age=300",
	})
}

func reportID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid report id", err))
		return uuid.UUID{}, false
	}
	return id, true
}

// readSubmission pulls image, age and gender out of the multipart form. Fields
// that are absent or unreadable are left zero so the domain reports them as missing.
func (h *Handler) readSubmission(c *gin.Context) (diagnosis.Submission, error) {
	if h.maxImageBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+formOverheadBytes)
	}
	var sub diagnosis.Submission
	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return sub, errImageTooLarge
		}
		if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
			return sub, err
		}
	} else {
		image, err := h.readImage(fileHeader)
		if err != nil {
			return sub, err
		}
		sub.Image = image
	}
	if age, ok := diagnosis.ParseAge(c.PostForm("age")); ok {
		sub.Age = age
	}
	sub.Gender = diagnosis.Gender(c.PostForm("gender"))
	return sub, nil
}

func (h *Handler) readImage(fileHeader *multipart.FileHeader) (diagnosis.ImageUpload, error) {
	if h.maxImageBytes > 0 && fileHeader.Size > h.maxImageBytes {
		return diagnosis.ImageUpload{}, errImageTooLarge
	}
	file, err := fileHeader.Open()
	if err != nil {
		return diagnosis.ImageUpload{}, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return diagnosis.ImageUpload{}, err
	}
	return diagnosis.ImageUpload{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func submissionError(err error) *HTTPError {
	if errors.Is(err, errImageTooLarge) {
		return NewHTTPError(http.StatusRequestEntityTooLarge, diagnosis.CodeInvalidInput, err.Error(), err)
	}
	return NewHTTPError(http.StatusBadRequest, "invalid_request", "failed to read multipart form", err)
}

func diagnosisError(err error) *HTTPError {
	code := apperrors.CodeOf(err)
	switch code {
	case diagnosis.CodeMissingImage, diagnosis.CodeMissingAge, diagnosis.CodeMissingGender, diagnosis.CodeInvalidInput:
		return NewHTTPError(http.StatusBadRequest, code, apperrors.MessageOf(err), err)
	case diagnosis.CodeNotFound:
		return NewHTTPError(http.StatusNotFound, code, apperrors.MessageOf(err), err)
	case diagnosis.CodeStorageError:
		return NewHTTPError(http.StatusBadGateway, code, apperrors.MessageOf(err), err)
	default:
		return NewHTTPError(http.StatusInternalServerError, diagnosis.CodeAnalysisFailed, messageAnalyzeFailed, err)
	}
}
