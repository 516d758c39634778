package handlers

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// PrescriptionService is the pipeline surface the handler needs.
type PrescriptionService interface {
	Analyze(ctx context.Context, image []byte, patient rx.PatientContext, forceRefresh bool) (*rx.AnalysisResult, error)
	Confirm(ctx context.Context, imageHash string, meds []rx.MedicationCandidate, patient rx.PatientContext) ([]rx.ConfirmedMedication, error)
	InvalidateCache(ctx context.Context, imageHash string) error
}

// PrescriptionHandler serves the two-call scan protocol: analyze, then
// confirm.
type PrescriptionHandler struct {
	service PrescriptionService
	logger  logging.Logger
}

// NewPrescriptionHandler constructs the handler.  The service is required.
func NewPrescriptionHandler(service PrescriptionService, logger logging.Logger) (*PrescriptionHandler, error) {
	if service == nil {
		return nil, apperrors.InvalidParam("handlers: prescription service is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PrescriptionHandler{service: service, logger: logger.Named("http")}, nil
}

// analyzeJSONRequest is the JSON alternative to a multipart photo upload.
type analyzeJSONRequest struct {
	ImageBase64  string            `json:"image_base64" binding:"required"`
	Patient      rx.PatientContext `json:"patient"`
	ForceRefresh bool              `json:"force_refresh"`
}

// Analyze handles POST /prescriptions/analyze.  The photo arrives either as
// the multipart file field "photo" (patient context in sibling form fields)
// or as base64 in a JSON body.
func (h *PrescriptionHandler) Analyze(c *gin.Context) {
	image, patient, forceRefresh, err := h.readAnalyzeRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.service.Analyze(c.Request.Context(), image, patient, forceRefresh)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PrescriptionHandler) readAnalyzeRequest(c *gin.Context) ([]byte, rx.PatientContext, bool, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req analyzeJSONRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, rx.PatientContext{}, false,
				apperrors.InvalidParam("invalid request body").WithDetail(err.Error())
		}
		image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return nil, rx.PatientContext{}, false,
				apperrors.InvalidParam("image_base64 is not valid base64")
		}
		return image, req.Patient, req.ForceRefresh, nil
	}

	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		return nil, rx.PatientContext{}, false,
			apperrors.InvalidParam("multipart field \"photo\" is required")
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		return nil, rx.PatientContext{}, false,
			apperrors.InvalidParam("could not read uploaded photo").WithDetail(err.Error())
	}

	patient := rx.PatientContext{
		Name:      c.PostForm("patient_name"),
		Language:  c.PostForm("language"),
		Lifestyle: c.PostForm("lifestyle"),
	}
	if raw := c.PostForm("patient_age"); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil || age < 0 {
			return nil, rx.PatientContext{}, false,
				apperrors.InvalidParam("patient_age must be a non-negative integer")
		}
		patient.Age = age
	}
	if raw := c.PostForm("concerns"); raw != "" {
		for _, concern := range strings.Split(raw, ",") {
			if concern = strings.TrimSpace(concern); concern != "" {
				patient.Concerns = append(patient.Concerns, concern)
			}
		}
	}
	if raw := c.PostForm("active_medications"); raw != "" {
		for _, med := range strings.Split(raw, ",") {
			if med = strings.TrimSpace(med); med != "" {
				patient.ActiveMedications = append(patient.ActiveMedications, med)
			}
		}
	}

	forceRefresh, _ := strconv.ParseBool(c.PostForm("force_refresh"))
	return image, patient, forceRefresh, nil
}

// confirmRequest carries the user-reviewed medication list back for the
// confirmation stage.
type confirmRequest struct {
	ImageHash   string                   `json:"image_hash" binding:"required"`
	Medications []rx.MedicationCandidate `json:"medications" binding:"required"`
	Patient     rx.PatientContext        `json:"patient"`
}

type confirmResponse struct {
	ImageHash   string                   `json:"image_hash"`
	Medications []rx.ConfirmedMedication `json:"medications"`
}

// Confirm handles POST /prescriptions/confirm.
func (h *PrescriptionHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.InvalidParam("invalid request body").WithDetail(err.Error()))
		return
	}

	confirmed, err := h.service.Confirm(c.Request.Context(), req.ImageHash, req.Medications, req.Patient)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, confirmResponse{ImageHash: req.ImageHash, Medications: confirmed})
}

// InvalidateCache handles DELETE /prescriptions/:hash/cache.
func (h *PrescriptionHandler) InvalidateCache(c *gin.Context) {
	hash := c.Param("hash")
	if err := h.service.InvalidateCache(c.Request.Context(), hash); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
