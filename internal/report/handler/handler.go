package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"freewalk/internal/media"
	"freewalk/internal/report/models"
	"freewalk/internal/report/service"
	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/platform/httputil"
	"freewalk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/report-mocks.go -package=mocks Service

// Service is the report submission use case.
type Service interface {
	SubmitReport(ctx context.Context, req service.SubmitRequest) (*models.Result, error)
}

// multipartOverhead allows for form fields and part headers on top of the image.
const multipartOverhead = 1 << 20

// ReportResponse is the body of a successful submission.
type ReportResponse struct {
	Message      string `json:"message"`
	Outcome      string `json:"outcome"`
	RewardPoints int64  `json:"reward_points"`
	TotalPoints  int64  `json:"total_points"`
	ViolationID  int64  `json:"violation_id"`
}

// Handler serves report submission.
type Handler struct {
	reports        Service
	uploader       media.Uploader
	maxUploadBytes int64
	logger         *slog.Logger
}

func New(reports Service, uploader media.Uploader, maxUploadBytes int64, logger *slog.Logger) *Handler {
	return &Handler{
		reports:        reports,
		uploader:       uploader,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Register mounts the report routes. r must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/reports", h.handleSubmit)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := requestcontext.UserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user id missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 10); err != nil {
		httputil.WriteError(w, h.bodyError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req, err := parseForm(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.UserID = userID
	// Reject bad input before paying for the upload.
	if _, err := service.ParseCandidate(req.Category, req.Latitude, req.Longitude, req.EntityRef); err != nil {
		httputil.WriteError(w, err)
		return
	}

	data, filename, contentType, err := h.readImage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ref, err := h.uploader.Upload(ctx, data, filename, contentType)
	if err != nil {
		h.logger.ErrorContext(ctx, "evidence upload failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to upload image to cloud storage"))
		return
	}
	req.StorageRef = ref

	result, err := h.reports.SubmitReport(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ReportResponse{
		Message:      message(result),
		Outcome:      string(result.Outcome),
		RewardPoints: result.PointsAwarded,
		TotalPoints:  result.TotalPoints,
		ViolationID:  int64(result.ViolationID),
	})
}

func parseForm(r *http.Request) (service.SubmitRequest, error) {
	lat, err := parseCoordinate(r.FormValue("latitude"), "latitude")
	if err != nil {
		return service.SubmitRequest{}, err
	}
	lon, err := parseCoordinate(r.FormValue("longitude"), "longitude")
	if err != nil {
		return service.SubmitRequest{}, err
	}
	category := r.FormValue("category")
	if strings.TrimSpace(category) == "" {
		category = "shop"
	}
	return service.SubmitRequest{
		Category:  category,
		Latitude:  lat,
		Longitude: lon,
		EntityRef: r.FormValue("license_plate"),
	}, nil
}

func parseCoordinate(raw, field string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" must be a number")
	}
	return v, nil
}

func (h *Handler) readImage(r *http.Request) ([]byte, string, string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", "", dErrors.New(dErrors.CodeInvalidInput, "image is required")
		}
		return nil, "", "", h.bodyError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, "", "", h.bodyError(err)
	}
	if int64(len(data)) > h.maxUploadBytes {
		return nil, "", "", dErrors.New(dErrors.CodePayloadTooLarge, "image too large")
	}
	contentType, err := media.DetectContentType(header.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, "", "", err
	}
	return data, header.Filename, contentType, nil
}

func (h *Handler) bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dErrors.New(dErrors.CodePayloadTooLarge, "image too large")
	}
	return dErrors.New(dErrors.CodeBadRequest, "invalid multipart form")
}

func message(r *models.Result) string {
	if r.Outcome == models.OutcomeNew {
		return fmt.Sprintf("First Reporter! New Violation Secured. +%d Points.", r.PointsAwarded)
	}
	return fmt.Sprintf("Violation Confirmed! +%d Points.", r.PointsAwarded)
}
