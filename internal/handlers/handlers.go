package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
	"github.com/Brownie44l1/agrivision-api/internal/pipeline"
	"github.com/Brownie44l1/agrivision-api/internal/predict"
	"github.com/Brownie44l1/agrivision-api/internal/ratelimit"
)

// multipartOverhead is the slack allowed on top of the file size limit for
// multipart boundaries and part headers.
const multipartOverhead = 1 << 20

// multipartMemory is how much of a form is held in memory before spilling
// to temporary files.
const multipartMemory = 10 << 20

type Options struct {
	APIPrefix string
	StaticDir string
	// MaxUploadBytes caps the request body; zero disables the cap.
	MaxUploadBytes int64
	ShowWarning    bool
	CORSEnabled    bool
	CORSOrigins    []string
	// Limiter is nil when rate limiting is disabled.
	Limiter        *ratelimit.Limiter
	RequestTimeout time.Duration
}

type Handler struct {
	service *pipeline.Service
	opts    Options
	log     *zap.Logger
}

func NewHandler(service *pipeline.Service, opts Options, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		opts:    opts,
		log:     log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "healthy",
		ModelLoaded:  h.service.ModelLoaded(),
		TotalClasses: h.service.CatalogSize(),
	}
	if resp.ModelLoaded {
		d := h.service.Descriptor()
		resp.Model = &modelInfo{InputShape: d.InputShape(), NumClasses: d.NumClasses}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	// an unloaded model fails every upload, so answer before reading the body
	if !h.service.ModelLoaded() {
		h.writeFailure(w, r, domain.ErrModelUnavailable)
		return
	}

	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+multipartOverhead)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeFailure(w, r, fmt.Errorf("request body: %w", domain.ErrPayloadTooLarge))
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart form with an image in the 'file' field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := formFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "No image file provided. Use 'file' as the form field name")
		return
	}
	defer file.Close()

	if err := h.service.CheckUpload(header.Filename, header.Size); err != nil {
		h.writeFailure(w, r, err)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		h.log.Error("Failed to read upload", zap.Error(err), zap.String("request_id", requestIDFromContext(r.Context())))
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read uploaded file")
		return
	}

	result, err := h.service.Classify(r.Context(), pipeline.Upload{
		Filename: header.Filename,
		Size:     int64(len(content)),
		Content:  content,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	if result.Indeterminate {
		writeJSON(w, http.StatusOK, indeterminateResponse{
			Success:              true,
			Indeterminate:        true,
			Confidence:           result.Confidence,
			ConfidencePercentage: percentage(result.Confidence),
			Message:              "The model is not confident enough to identify this leaf. Try a clearer, closer photo of a single leaf.",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.predictionResponse(result))
}

// Index serves the web UI when the static directory provides one.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(h.opts.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "web interface not installed")
		return
	}
	http.ServeFile(w, r, index)
}

func (h *Handler) predictionResponse(result predict.Result) predictionResponse {
	resp := predictionResponse{
		Success:              true,
		Class:                result.ClassID,
		Confidence:           result.Confidence,
		ConfidencePercentage: percentage(result.Confidence),
		Plant:                result.Disease.PlantName,
		Disease:              result.Disease.DiseaseName,
		FullName:             result.Disease.FullName,
		Treatment:            result.Disease.TreatmentSteps,
		LowConfidence:        result.BelowWarningThreshold,
	}
	if h.opts.ShowWarning && result.BelowWarningThreshold {
		resp.Warning = "Low confidence prediction. Consider uploading a clearer image or consulting an expert."
	}
	for _, c := range result.TopK {
		resp.TopPredictions = append(resp.TopPredictions, candidateResponse{
			Class:                c.ClassID,
			Confidence:           c.Confidence,
			ConfidencePercentage: percentage(c.Confidence),
			Plant:                c.Disease.PlantName,
			Disease:              c.Disease.DiseaseName,
			FullName:             c.Disease.FullName,
		})
	}
	return resp
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := h.mapError(err)

	fields := []zap.Field{
		zap.Error(err),
		zap.String("code", code),
		zap.Int("status", status),
		zap.String("request_id", requestIDFromContext(r.Context())),
	}
	if status >= 500 {
		h.log.Error("Prediction failed", fields...)
	} else {
		h.log.Warn("Prediction rejected", fields...)
	}

	writeError(w, status, code, message)
}

// mapError turns a pipeline error into a status, a stable code and a
// message safe to show to the client.
func (h *Handler) mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "CANCELED", "Request canceled"
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.KindUnsupportedExtension:
		return http.StatusUnsupportedMediaType, kind.String(),
			"Unsupported file type. Allowed: " + strings.Join(h.service.AllowedExtensions(), ", ")
	case domain.KindPayloadTooLarge:
		msg := "File too large"
		if h.opts.MaxUploadBytes > 0 {
			msg = fmt.Sprintf("File too large. Maximum size is %d MB", h.opts.MaxUploadBytes>>20)
		}
		return http.StatusRequestEntityTooLarge, kind.String(), msg
	case domain.KindMagicBytesMismatch:
		return http.StatusUnsupportedMediaType, kind.String(), "File content is not a supported image format"
	case domain.KindUnreadable:
		return http.StatusBadRequest, kind.String(), "Could not read the image. Please upload a valid image file"
	case domain.KindModelUnavailable:
		return http.StatusServiceUnavailable, kind.String(), "Model not loaded"
	default:
		return http.StatusInternalServerError, domain.KindInternal.String(), "Prediction failed"
	}
}

// formFile reads the "file" field, falling back to "image".
func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile("file")
	if err == nil {
		return file, header, nil
	}
	return r.FormFile("image")
}

func percentage(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence*100)
}
